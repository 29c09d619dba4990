package storage

import (
	"testing"
	"time"

	"github.com/chatterbet/chatterbet/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSignal(id, handle string, createdAt time.Time, weight float64) *models.EnrichedSignal {
	return &models.EnrichedSignal{
		ID: id,
		Mention: &models.RawMention{
			ID:              "m-" + id,
			AuthorHandle:    handle,
			AuthorFollowers: 1200,
			AuthorCreatedAt: createdAt.Add(-365 * 24 * time.Hour),
			Text:            "the ETF decision leaked",
			Engagement:      models.Engagement{Likes: 10, Reshares: 2},
			CreatedAt:       createdAt,
		},
		Type:        models.SignalNews,
		Claim:       "ETF approval is imminent",
		Urgency:     models.UrgencyBreaking,
		Topics:      []string{"etf"},
		Weight:      weight,
		ProcessedAt: createdAt.Add(time.Minute),
	}
}

func testOrder(id string, decision models.Decision, signals ...*models.EnrichedSignal) *models.TradeOrder {
	o := &models.TradeOrder{
		ID:           id,
		Decision:     decision,
		InstrumentID: "inst-" + id,
		Question:     "Will the ETF be approved?",
		Direction:    models.DirectionYes,
		EdgeScore:    0.42,
		Reasoning:    "corroborated",
		Signals:      signals,
		CreatedAt:    time.Now().UTC(),
	}
	switch decision {
	case models.DecisionTrade:
		o.SizeUSD = 400
		o.EntryPrice = 0.40
		o.StopLoss = 0.28
		o.TakeProfit = 0.72
	case models.DecisionPass:
		o.PassReason = "low edge"
	case models.DecisionWatch:
		o.WatchCondition = "wait for corroboration"
	}
	return o
}

func TestSaveSignal_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	original := testSignal("s1", "alice", now.Add(-time.Hour), 4.5)
	original.Corroborations = []string{"s0"}
	if err := s.SaveSignal(original); err != nil {
		t.Fatalf("SaveSignal failed: %v", err)
	}

	signals, err := s.RecentSignals(24*time.Hour, now)
	if err != nil {
		t.Fatalf("RecentSignals failed: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(signals))
	}

	got := signals[0]
	if got.ID != "s1" || got.Type != models.SignalNews || got.Urgency != models.UrgencyBreaking {
		t.Errorf("Signal fields corrupted: %+v", got)
	}
	if got.Weight != 4.5 {
		t.Errorf("Expected weight 4.5, got %f", got.Weight)
	}
	if got.Claim != "ETF approval is imminent" {
		t.Errorf("Unexpected claim: %s", got.Claim)
	}
	if got.Mention == nil || got.Mention.AuthorHandle != "alice" {
		t.Fatalf("Mention not restored: %+v", got.Mention)
	}
	if got.Mention.Engagement.Likes != 10 {
		t.Errorf("Mention engagement not restored: %+v", got.Mention.Engagement)
	}
	if len(got.Topics) != 1 || got.Topics[0] != "etf" {
		t.Errorf("Topics not restored: %v", got.Topics)
	}
	if len(got.Corroborations) != 1 || got.Corroborations[0] != "s0" {
		t.Errorf("Corroborations not restored: %v", got.Corroborations)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Restored signal should validate: %v", err)
	}
}

func TestRecentSignals_WindowAndOrder(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	inWindowOld := testSignal("s1", "alice", now.Add(-20*time.Hour), 2.0)
	inWindowNew := testSignal("s2", "bob", now.Add(-time.Hour), 2.0)
	outOfWindow := testSignal("s3", "carol", now.Add(-30*time.Hour), 2.0)
	for _, sig := range []*models.EnrichedSignal{inWindowNew, outOfWindow, inWindowOld} {
		if err := s.SaveSignal(sig); err != nil {
			t.Fatalf("SaveSignal failed: %v", err)
		}
	}

	signals, err := s.RecentSignals(24*time.Hour, now)
	if err != nil {
		t.Fatalf("RecentSignals failed: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("Expected 2 signals in window, got %d", len(signals))
	}
	if signals[0].ID != "s1" || signals[1].ID != "s2" {
		t.Errorf("Expected oldest-first order s1,s2, got %s,%s", signals[0].ID, signals[1].ID)
	}
}

func TestSaveSignal_DuplicateIDRejected(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.SaveSignal(testSignal("s1", "alice", now, 2.0)); err != nil {
		t.Fatalf("First SaveSignal failed: %v", err)
	}
	if err := s.SaveSignal(testSignal("s1", "alice", now, 2.0)); err == nil {
		t.Fatal("Expected duplicate signal ID to be rejected")
	}

	// The failed transaction must not bump the daily counter.
	count, err := s.UserDailyCount("alice", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("UserDailyCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected daily count 1 after rollback, got %d", count)
	}
}

func TestUserDailyCount_TracksPerDay(t *testing.T) {
	s := openTestStore(t)
	day1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	for i, ts := range []time.Time{day1, day1.Add(time.Hour), day2} {
		sig := testSignal(string(rune('a'+i)), "alice", ts, 2.0)
		if err := s.SaveSignal(sig); err != nil {
			t.Fatalf("SaveSignal failed: %v", err)
		}
	}

	// Counter keys on ProcessedAt, which is a minute after CreatedAt.
	count, err := s.UserDailyCount("alice", day1)
	if err != nil {
		t.Fatalf("UserDailyCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 signals for alice on day1, got %d", count)
	}

	count, _ = s.UserDailyCount("alice", day2)
	if count != 1 {
		t.Errorf("Expected 1 signal for alice on day2, got %d", count)
	}

	count, _ = s.UserDailyCount("bob", day1)
	if count != 0 {
		t.Errorf("Expected 0 signals for unknown handle, got %d", count)
	}
}

func TestSaveOrder_AndOpenTrades(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	sig := testSignal("s1", "alice", now, 3.0)

	trade := testOrder("t1", models.DecisionTrade, sig)
	pass := testOrder("t2", models.DecisionPass, sig)
	watch := testOrder("t3", models.DecisionWatch, sig)
	for _, o := range []*models.TradeOrder{trade, pass, watch} {
		if err := s.SaveOrder(o); err != nil {
			t.Fatalf("SaveOrder %s failed: %v", o.ID, err)
		}
	}

	positions, err := s.OpenTrades()
	if err != nil {
		t.Fatalf("OpenTrades failed: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("Expected only the TRADE order as open position, got %d", len(positions))
	}
	pos := positions[0]
	if pos.InstrumentID != "inst-t1" || pos.Direction != models.DirectionYes || pos.SizeUSD != 400 {
		t.Errorf("Position fields corrupted: %+v", pos)
	}
	if pos.EntryPrice != 0.40 {
		t.Errorf("Expected entry 0.40, got %f", pos.EntryPrice)
	}
}

func TestCloseTrade_AndStats(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	sig := testSignal("s1", "alice", now, 3.0)

	win := testOrder("t1", models.DecisionTrade, sig)
	loss := testOrder("t2", models.DecisionTrade, sig)
	open := testOrder("t3", models.DecisionTrade, sig)
	for _, o := range []*models.TradeOrder{win, loss, open} {
		if err := s.SaveOrder(o); err != nil {
			t.Fatalf("SaveOrder failed: %v", err)
		}
	}

	if err := s.CloseTrade("t1", 0.72, 320, now); err != nil {
		t.Fatalf("CloseTrade failed: %v", err)
	}
	if err := s.CloseTrade("t2", 0.28, -120, now); err != nil {
		t.Fatalf("CloseTrade failed: %v", err)
	}

	stats, err := s.Stats(now)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Wins != 1 || stats.Losses != 1 {
		t.Errorf("Expected 1 win and 1 loss, got %d/%d", stats.Wins, stats.Losses)
	}
	if stats.RealizedPnL != 200 {
		t.Errorf("Expected realized PnL 200, got %f", stats.RealizedPnL)
	}
	if stats.TradesTotal != 3 {
		t.Errorf("Expected 3 total trades, got %d", stats.TradesTotal)
	}
	if stats.TradesOnDay != 3 {
		t.Errorf("Expected 3 trades today, got %d", stats.TradesOnDay)
	}

	// Closed trades leave the open set.
	positions, err := s.OpenTrades()
	if err != nil {
		t.Fatalf("OpenTrades failed: %v", err)
	}
	if len(positions) != 1 || positions[0].InstrumentID != "inst-t3" {
		t.Errorf("Expected only t3 open, got %+v", positions)
	}
}

func TestCloseTrade_UnknownOrAlreadyClosed(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.CloseTrade("missing", 0.5, 0, now); err == nil {
		t.Error("Expected error closing unknown trade")
	}

	sig := testSignal("s1", "alice", now, 3.0)
	if err := s.SaveOrder(testOrder("t1", models.DecisionTrade, sig)); err != nil {
		t.Fatalf("SaveOrder failed: %v", err)
	}
	if err := s.CloseTrade("t1", 0.5, 10, now); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := s.CloseTrade("t1", 0.5, 10, now); err == nil {
		t.Error("Expected error closing an already-closed trade")
	}
}

func TestContributors_CountsAndAttribution(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	aliceSig := testSignal("s1", "alice", now, 5.0)
	bobSig1 := testSignal("s2", "bob", now, 2.0)
	bobSig2 := testSignal("s3", "bob", now, 2.0)
	for _, sig := range []*models.EnrichedSignal{aliceSig, bobSig1, bobSig2} {
		if err := s.SaveSignal(sig); err != nil {
			t.Fatalf("SaveSignal failed: %v", err)
		}
	}

	order := testOrder("t1", models.DecisionTrade, aliceSig, bobSig1)
	if err := s.CreditContributors(order); err != nil {
		t.Fatalf("CreditContributors failed: %v", err)
	}

	top, err := s.TopContributors(10)
	if err != nil {
		t.Fatalf("TopContributors failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("Expected 2 contributors, got %d", len(top))
	}
	// Alice leads on attribution points (5.0 vs 2.0) despite fewer signals.
	if top[0].Handle != "alice" || top[0].AttributionPoints != 5.0 || top[0].SignalCount != 1 {
		t.Errorf("Unexpected leader: %+v", top[0])
	}
	if top[1].Handle != "bob" || top[1].AttributionPoints != 2.0 || top[1].SignalCount != 2 {
		t.Errorf("Unexpected runner-up: %+v", top[1])
	}
}

func TestStateKeys_CursorDigestCampaignStart(t *testing.T) {
	s := openTestStore(t)

	cursor, err := s.Cursor()
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if cursor != "" {
		t.Errorf("Expected empty initial cursor, got %q", cursor)
	}
	if err := s.SetCursor("c-123"); err != nil {
		t.Fatalf("SetCursor failed: %v", err)
	}
	if err := s.SetCursor("c-456"); err != nil {
		t.Fatalf("SetCursor overwrite failed: %v", err)
	}
	if cursor, _ = s.Cursor(); cursor != "c-456" {
		t.Errorf("Expected cursor c-456, got %q", cursor)
	}

	last, _ := s.LastDigestDate()
	if last != "" {
		t.Errorf("Expected empty initial digest date, got %q", last)
	}
	day := time.Date(2026, 9, 1, 16, 30, 0, 0, time.UTC)
	if err := s.SetLastDigestDate(day); err != nil {
		t.Fatalf("SetLastDigestDate failed: %v", err)
	}
	if last, _ = s.LastDigestDate(); last != "2026-09-01" {
		t.Errorf("Expected digest date 2026-09-01, got %q", last)
	}

	now := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	start, err := s.EnsureCampaignStart(now)
	if err != nil {
		t.Fatalf("EnsureCampaignStart failed: %v", err)
	}
	if !start.Equal(time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected campaign start: %v", start)
	}

	// A later call returns the original date, not the new now.
	again, err := s.EnsureCampaignStart(now.Add(72 * time.Hour))
	if err != nil {
		t.Fatalf("EnsureCampaignStart failed: %v", err)
	}
	if !again.Equal(start) {
		t.Errorf("Campaign start must be stable: first %v, then %v", start, again)
	}
}

func TestSaveOrder_RejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	bad := testOrder("t1", models.DecisionTrade)
	bad.SizeUSD = 0 // TRADE with zero size is contradictory
	if err := s.SaveOrder(bad); err == nil {
		t.Fatal("Expected invalid order to be rejected")
	}
}
