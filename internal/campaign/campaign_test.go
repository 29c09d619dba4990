package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chatterbet/chatterbet/internal/config"
	"github.com/chatterbet/chatterbet/internal/models"
	"github.com/chatterbet/chatterbet/internal/storage"
)

type fakeSocial struct {
	mentions   []*models.RawMention
	nextCursor string
	fetchErr   error

	gotCursor string
	posts     [][]string
}

func (f *fakeSocial) FetchMentions(_ context.Context, sinceCursor string) ([]*models.RawMention, string, error) {
	f.gotCursor = sinceCursor
	if f.fetchErr != nil {
		return nil, "", f.fetchErr
	}
	return f.mentions, f.nextCursor, nil
}

func (f *fakeSocial) PostThread(_ context.Context, texts []string) ([]string, error) {
	f.posts = append(f.posts, texts)
	ids := make([]string, len(texts))
	for i := range texts {
		ids[i] = fmt.Sprintf("p%d-%d", len(f.posts), i)
	}
	return ids, nil
}

// fakeEnricher turns every mention into one valid signal.
type fakeEnricher struct {
	seen []models.RawMention
}

func (f *fakeEnricher) EnrichBatch(_ context.Context, mentions []models.RawMention) []*models.EnrichedSignal {
	f.seen = append(f.seen, mentions...)
	signals := make([]*models.EnrichedSignal, 0, len(mentions))
	for i := range mentions {
		m := mentions[i]
		signals = append(signals, &models.EnrichedSignal{
			ID:          "sig-" + m.ID,
			Mention:     &m,
			Type:        models.SignalNews,
			Claim:       "claim from " + m.AuthorHandle,
			Urgency:     models.UrgencyBreaking,
			Weight:      3.0,
			ProcessedAt: m.CreatedAt.Add(time.Minute),
		})
	}
	return signals
}

// fakeClusterer groups all signals into a single cluster.
type fakeClusterer struct {
	err   error
	calls int
}

func (f *fakeClusterer) ClusterSignals(_ context.Context, signals []*models.EnrichedSignal) ([]*models.TopicCluster, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(signals) < 2 {
		return []*models.TopicCluster{}, nil
	}
	return []*models.TopicCluster{{
		ID:                  "c1",
		Name:                "etf approval",
		Signals:             signals,
		SignalCount:         len(signals),
		SentimentDirection:  models.SentimentBullish,
		SentimentConfidence: 0.8,
	}}, nil
}

type fakeScorer struct {
	perCluster int
}

func (f *fakeScorer) FindEdge(_ context.Context, c *models.TopicCluster, _ float64) ([]*models.EdgeOpportunity, error) {
	n := f.perCluster
	if n == 0 {
		n = 1
	}
	opps := make([]*models.EdgeOpportunity, n)
	for i := range opps {
		opps[i] = &models.EdgeOpportunity{
			Cluster:     c,
			Instrument:  &models.MarketInstrument{ID: fmt.Sprintf("inst-%d", i), Question: "Will the ETF be approved?", YesPrice: 0.40, NoPrice: 0.60},
			Direction:   models.DirectionYes,
			MarketPrice: 0.40,
			EdgeScore:   0.5 - float64(i)*0.05,
		}
	}
	return opps, nil
}

type fakeDecider struct {
	decision   models.Decision
	calls      int
	portfolios []*models.PortfolioState
}

func (f *fakeDecider) Decide(_ context.Context, opp *models.EdgeOpportunity, portfolio *models.PortfolioState) (*models.TradeOrder, error) {
	f.calls++
	f.portfolios = append(f.portfolios, portfolio)
	order := &models.TradeOrder{
		ID:           fmt.Sprintf("order-%d", f.calls),
		Decision:     f.decision,
		InstrumentID: opp.Instrument.ID,
		Question:     opp.Instrument.Question,
		Direction:    opp.Direction,
		EdgeScore:    opp.EdgeScore,
		Signals:      opp.Cluster.Signals,
		CreatedAt:    time.Now().UTC(),
	}
	switch f.decision {
	case models.DecisionTrade:
		order.SizeUSD = 400
		order.EntryPrice = opp.MarketPrice
		order.StopLoss = 0.28
		order.TakeProfit = 0.72
	case models.DecisionPass:
		order.PassReason = "declined"
	case models.DecisionWatch:
		order.WatchCondition = "wait for corroboration"
	}
	return order, nil
}

type fakeExecutor struct {
	placeErr     error
	placed       []*models.TradeOrder
	exits        int
	positions    []models.Position
	positionsErr error
}

func (f *fakeExecutor) PlaceOrder(_ context.Context, order *models.TradeOrder) (string, error) {
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed = append(f.placed, order)
	return fmt.Sprintf("broker-%d", len(f.placed)), nil
}

func (f *fakeExecutor) SetExitRules(_ context.Context, _ string, _, _ float64) error {
	f.exits++
	return nil
}

func (f *fakeExecutor) OpenPositions(_ context.Context) ([]models.Position, error) {
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	return f.positions, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Social: config.SocialConfig{
			MaxSignalsPerUserDay: 10,
			MinSignalsToPublish:  3,
		},
		Trading: config.TradingConfig{
			Bankroll: 10000,
		},
		Campaign: config.CampaignConfig{
			PollInterval:  time.Minute,
			SignalWindow:  24 * time.Hour,
			DigestHourUTC: 16,
		},
	}
}

func mention(id, handle string, createdAt time.Time) *models.RawMention {
	return &models.RawMention{
		ID:              id,
		AuthorHandle:    handle,
		AuthorFollowers: 1000,
		AuthorCreatedAt: createdAt.Add(-400 * 24 * time.Hour),
		Text:            "@chatterbet the ETF decision leaked",
		CreatedAt:       createdAt,
	}
}

func newTestCampaign(t *testing.T, social *fakeSocial, clusterer *fakeClusterer, scorer *fakeScorer,
	decider *fakeDecider, executor Executor, cfg *config.Config) (*Campaign, *storage.Store, *fakeEnricher) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	enricher := &fakeEnricher{}
	c, err := New(store, social, enricher, clusterer, scorer, decider, executor, nil, cfg)
	if err != nil {
		t.Fatalf("Failed to create campaign: %v", err)
	}
	return c, store, enricher
}

// noon avoids the digest window in tests not about digests.
func noon() time.Time {
	return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
}

func TestTick_FullPipelineExecutesTrade(t *testing.T) {
	now := noon()
	social := &fakeSocial{
		mentions:   []*models.RawMention{mention("m1", "alice", now.Add(-time.Hour)), mention("m2", "bob", now.Add(-30*time.Minute))},
		nextCursor: "c-2",
	}
	executor := &fakeExecutor{}
	decider := &fakeDecider{decision: models.DecisionTrade}
	c, store, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, decider, executor, testConfig())

	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if cursor, _ := store.Cursor(); cursor != "c-2" {
		t.Errorf("Cursor not persisted, got %q", cursor)
	}
	signals, _ := store.RecentSignals(24*time.Hour, now)
	if len(signals) != 2 {
		t.Errorf("Expected 2 persisted signals, got %d", len(signals))
	}
	if decider.calls != 1 {
		t.Errorf("Expected 1 decision, got %d", decider.calls)
	}
	if len(executor.placed) != 1 {
		t.Fatalf("Expected 1 placed order, got %d", len(executor.placed))
	}
	if executor.exits != 1 {
		t.Errorf("Expected exit rules to be attached, got %d calls", executor.exits)
	}

	positions, _ := store.OpenTrades()
	if len(positions) != 1 || positions[0].SizeUSD != 400 {
		t.Errorf("Trade not persisted as open position: %+v", positions)
	}

	// Contributors credited for the executed trade.
	top, _ := store.TopContributors(5)
	if len(top) != 2 {
		t.Fatalf("Expected 2 credited contributors, got %d", len(top))
	}
	if top[0].AttributionPoints != 3.0 {
		t.Errorf("Expected weight-scaled attribution 3.0, got %f", top[0].AttributionPoints)
	}

	// Trade announcement thread published.
	if len(social.posts) != 1 {
		t.Fatalf("Expected 1 published thread, got %d", len(social.posts))
	}
	if !strings.Contains(social.posts[0][0], "TRADE") {
		t.Errorf("Expected trade headline, got %q", social.posts[0][0])
	}
}

func TestTick_FetchFailureIsFatalForTick(t *testing.T) {
	social := &fakeSocial{fetchErr: errors.New("connection reset")}
	c, _, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionPass}, nil, testConfig())

	if err := c.Tick(context.Background(), noon()); err == nil {
		t.Fatal("Expected fetch failure to fail the tick")
	}
}

func TestTick_DailyLimitDropsMentionsBeforeEnrichment(t *testing.T) {
	now := noon()
	cfg := testConfig()
	cfg.Social.MaxSignalsPerUserDay = 2

	// Alice sends three mentions in one batch; only two may become signals.
	social := &fakeSocial{
		mentions: []*models.RawMention{
			mention("m1", "alice", now.Add(-3*time.Hour)),
			mention("m2", "alice", now.Add(-2*time.Hour)),
			mention("m3", "alice", now.Add(-time.Hour)),
		},
		nextCursor: "c-1",
	}
	c, store, enricher := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionPass}, nil, cfg)

	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(enricher.seen) != 2 {
		t.Errorf("Expected 2 mentions to reach enrichment, got %d", len(enricher.seen))
	}

	// A second tick the same day drops everything from alice.
	social.mentions = []*models.RawMention{mention("m4", "alice", now.Add(-30*time.Minute))}
	enricher.seen = nil
	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Second tick failed: %v", err)
	}
	if len(enricher.seen) != 0 {
		t.Errorf("Expected limit to drop alice's mention, got %d through", len(enricher.seen))
	}

	count, _ := store.UserDailyCount("alice", now)
	if count != 2 {
		t.Errorf("Expected 2 stored signals for alice, got %d", count)
	}
}

func TestTick_ExecutionFailureDowngradesToPass(t *testing.T) {
	now := noon()
	social := &fakeSocial{
		mentions:   []*models.RawMention{mention("m1", "alice", now.Add(-time.Hour)), mention("m2", "bob", now.Add(-time.Hour))},
		nextCursor: "c-1",
	}
	executor := &fakeExecutor{placeErr: errors.New("insufficient balance")}
	c, store, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionTrade}, executor, testConfig())

	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	// No open position, and no trade announcement.
	positions, _ := store.OpenTrades()
	if len(positions) != 0 {
		t.Errorf("Expected no open positions after failed execution, got %d", len(positions))
	}
	if len(social.posts) != 0 {
		t.Errorf("Downgraded PASS must not be announced, got %d posts", len(social.posts))
	}
}

func TestTick_WatchPublishThreshold(t *testing.T) {
	now := noon()

	// Two signals: below the publish threshold of 3.
	social := &fakeSocial{
		mentions:   []*models.RawMention{mention("m1", "alice", now.Add(-time.Hour)), mention("m2", "bob", now.Add(-time.Hour))},
		nextCursor: "c-1",
	}
	c, _, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionWatch}, nil, testConfig())
	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(social.posts) != 0 {
		t.Errorf("WATCH with 2 signals must not be published, got %d posts", len(social.posts))
	}

	// Three signals: published.
	social2 := &fakeSocial{
		mentions: []*models.RawMention{
			mention("m1", "alice", now.Add(-time.Hour)),
			mention("m2", "bob", now.Add(-time.Hour)),
			mention("m3", "carol", now.Add(-time.Hour)),
		},
		nextCursor: "c-1",
	}
	c2, _, _ := newTestCampaign(t, social2, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionWatch}, nil, testConfig())
	if err := c2.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(social2.posts) != 1 {
		t.Fatalf("WATCH with 3 signals must be published, got %d posts", len(social2.posts))
	}
	if !strings.Contains(social2.posts[0][0], "WATCHING") {
		t.Errorf("Expected watch post, got %q", social2.posts[0][0])
	}
}

func TestTick_PassPublishThresholdIsConfigurable(t *testing.T) {
	now := noon()
	mentions := []*models.RawMention{
		mention("m1", "alice", now.Add(-time.Hour)),
		mention("m2", "bob", now.Add(-time.Hour)),
	}

	// Default config requires 3 signals: a 2-signal PASS stays quiet.
	social := &fakeSocial{mentions: mentions, nextCursor: "c-1"}
	c, _, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionPass}, nil, testConfig())
	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(social.posts) != 0 {
		t.Errorf("PASS with 2 signals must not be published at threshold 3, got %d posts", len(social.posts))
	}

	// Lowering the threshold to 2 publishes the same PASS.
	cfg := testConfig()
	cfg.Social.MinSignalsToPublish = 2
	social2 := &fakeSocial{mentions: mentions, nextCursor: "c-1"}
	c2, _, _ := newTestCampaign(t, social2, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionPass}, nil, cfg)
	if err := c2.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(social2.posts) != 1 {
		t.Fatalf("PASS with 2 signals must be published at threshold 2, got %d posts", len(social2.posts))
	}
	if !strings.Contains(social2.posts[0][0], "PASSING") {
		t.Errorf("Expected pass post, got %q", social2.posts[0][0])
	}
}

func TestTick_CapsOpportunitiesPerTick(t *testing.T) {
	now := noon()
	social := &fakeSocial{
		mentions:   []*models.RawMention{mention("m1", "alice", now.Add(-time.Hour)), mention("m2", "bob", now.Add(-time.Hour))},
		nextCursor: "c-1",
	}
	decider := &fakeDecider{decision: models.DecisionPass}
	c, _, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{perCluster: 7}, decider, nil, testConfig())

	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if decider.calls != maxOpportunitiesPerTick {
		t.Errorf("Expected %d decisions, got %d", maxOpportunitiesPerTick, decider.calls)
	}
}

func TestTick_SingleSignalSkipsClustering(t *testing.T) {
	now := noon()
	social := &fakeSocial{
		mentions:   []*models.RawMention{mention("m1", "alice", now.Add(-time.Hour))},
		nextCursor: "c-1",
	}
	clusterer := &fakeClusterer{}
	c, _, _ := newTestCampaign(t, social, clusterer, &fakeScorer{}, &fakeDecider{decision: models.DecisionPass}, nil, testConfig())

	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if clusterer.calls != 0 {
		t.Errorf("Clustering must not run with fewer than 2 signals, got %d calls", clusterer.calls)
	}
}

func TestTick_DigestPublishedOncePerDayWithinWindow(t *testing.T) {
	social := &fakeSocial{nextCursor: "c-1"}
	c, store, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionPass}, nil, testConfig())

	// Before the window: nothing.
	before := time.Date(2026, 9, 1, 15, 59, 0, 0, time.UTC)
	if err := c.Tick(context.Background(), before); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(social.posts) != 0 {
		t.Fatalf("Digest published before the window: %v", social.posts)
	}

	// Inside the window: published once.
	inside := time.Date(2026, 9, 1, 16, 30, 0, 0, time.UTC)
	if err := c.Tick(context.Background(), inside); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(social.posts) != 1 {
		t.Fatalf("Expected 1 digest post, got %d", len(social.posts))
	}
	if !strings.Contains(social.posts[0][0], "Day ") {
		t.Errorf("Unexpected digest content: %q", social.posts[0][0])
	}

	// Second tick the same day: deduplicated.
	if err := c.Tick(context.Background(), inside.Add(10*time.Minute)); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(social.posts) != 1 {
		t.Errorf("Digest must publish once per day, got %d posts", len(social.posts))
	}
	if last, _ := store.LastDigestDate(); last != "2026-09-01" {
		t.Errorf("Digest date not persisted, got %q", last)
	}

	// Past the window the same day: still deduplicated; next day publishes.
	nextDay := time.Date(2026, 9, 2, 16, 5, 0, 0, time.UTC)
	if err := c.Tick(context.Background(), nextDay); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(social.posts) != 2 {
		t.Errorf("Expected next-day digest, got %d posts", len(social.posts))
	}
}

func TestTick_DigestPublishesEvenWhenFetchFails(t *testing.T) {
	social := &fakeSocial{fetchErr: errors.New("connection reset")}
	c, store, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionPass}, nil, testConfig())

	inside := time.Date(2026, 9, 1, 16, 30, 0, 0, time.UTC)
	if err := c.Tick(context.Background(), inside); err == nil {
		t.Fatal("Expected fetch failure to fail the tick")
	}

	// The fetch outage must not swallow the day's digest.
	if len(social.posts) != 1 {
		t.Fatalf("Expected digest despite failed tick, got %d posts", len(social.posts))
	}
	if !strings.Contains(social.posts[0][0], "Day ") {
		t.Errorf("Unexpected digest content: %q", social.posts[0][0])
	}
	if last, _ := store.LastDigestDate(); last != "2026-09-01" {
		t.Errorf("Digest date not persisted, got %q", last)
	}
}

func TestTick_PortfolioIncludesLiveBrokerPositions(t *testing.T) {
	now := noon()
	social := &fakeSocial{
		mentions:   []*models.RawMention{mention("m1", "alice", now.Add(-time.Hour)), mention("m2", "bob", now.Add(-time.Hour))},
		nextCursor: "c-1",
	}
	// The broker knows about a position the store has never seen.
	executor := &fakeExecutor{positions: []models.Position{
		{InstrumentID: "inst-live", Direction: models.DirectionYes, EntryPrice: 0.55, SizeUSD: 500},
	}}
	decider := &fakeDecider{decision: models.DecisionPass}
	c, _, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, decider, executor, testConfig())

	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(decider.portfolios) != 1 {
		t.Fatalf("Expected 1 decision, got %d", len(decider.portfolios))
	}

	portfolio := decider.portfolios[0]
	if len(portfolio.OpenPositions) != 1 || portfolio.OpenPositions[0].InstrumentID != "inst-live" {
		t.Fatalf("Live broker position missing from snapshot: %+v", portfolio.OpenPositions)
	}
	if portfolio.CashAvailable != 9500 {
		t.Errorf("Expected live position to lock up cash, got %f available", portfolio.CashAvailable)
	}
}

func TestBuildPortfolio_ReconcilesBrokerAndPersistedViews(t *testing.T) {
	now := noon()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// One persisted open trade; the broker reports the same instrument plus
	// one more the store has not recorded yet.
	if err := store.SaveOrder(&models.TradeOrder{
		ID:           "order-1",
		Decision:     models.DecisionTrade,
		InstrumentID: "inst-a",
		Question:     "Will the ETF be approved?",
		Direction:    models.DirectionYes,
		SizeUSD:      400,
		EntryPrice:   0.40,
		CreatedAt:    now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Failed to persist order: %v", err)
	}
	executor := &fakeExecutor{positions: []models.Position{
		{InstrumentID: "inst-a", Direction: models.DirectionYes, EntryPrice: 0.40, SizeUSD: 400},
		{InstrumentID: "inst-b", Direction: models.DirectionNo, EntryPrice: 0.30, SizeUSD: 250},
	}}
	c, err := New(store, &fakeSocial{}, &fakeEnricher{}, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{}, executor, nil, testConfig())
	if err != nil {
		t.Fatalf("Failed to create campaign: %v", err)
	}

	portfolio, err := c.buildPortfolio(context.Background(), now)
	if err != nil {
		t.Fatalf("buildPortfolio failed: %v", err)
	}
	if len(portfolio.OpenPositions) != 2 {
		t.Fatalf("Expected broker view merged without duplicates, got %+v", portfolio.OpenPositions)
	}
	if portfolio.CashAvailable != 10000-650 {
		t.Errorf("Expected 650 locked up, got %f available", portfolio.CashAvailable)
	}

	// A broker outage falls back to the persisted snapshot.
	executor.positionsErr = errors.New("gateway timeout")
	portfolio, err = c.buildPortfolio(context.Background(), now)
	if err != nil {
		t.Fatalf("buildPortfolio failed: %v", err)
	}
	if len(portfolio.OpenPositions) != 1 || portfolio.OpenPositions[0].InstrumentID != "inst-a" {
		t.Fatalf("Expected persisted-only fallback, got %+v", portfolio.OpenPositions)
	}
}

func TestTick_TradingDisabledRecordsWithoutExecuting(t *testing.T) {
	now := noon()
	social := &fakeSocial{
		mentions:   []*models.RawMention{mention("m1", "alice", now.Add(-time.Hour)), mention("m2", "bob", now.Add(-time.Hour))},
		nextCursor: "c-1",
	}
	// nil executor = trading disabled
	c, store, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionTrade}, nil, testConfig())

	if err := c.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	// The order is recorded and announced even in paper mode.
	positions, _ := store.OpenTrades()
	if len(positions) != 1 {
		t.Errorf("Expected paper trade recorded, got %d positions", len(positions))
	}
	if len(social.posts) != 1 {
		t.Errorf("Expected trade announcement, got %d posts", len(social.posts))
	}
}

type panickingClusterer struct{}

func (panickingClusterer) ClusterSignals(context.Context, []*models.EnrichedSignal) ([]*models.TopicCluster, error) {
	panic("index out of range")
}

func TestSafeTick_ContainsPanic(t *testing.T) {
	now := noon()
	social := &fakeSocial{
		mentions:   []*models.RawMention{mention("m1", "alice", now.Add(-time.Hour)), mention("m2", "bob", now.Add(-time.Hour))},
		nextCursor: "c-1",
	}
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	c, err := New(store, social, &fakeEnricher{}, panickingClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionPass}, nil, nil, testConfig())
	if err != nil {
		t.Fatalf("Failed to create campaign: %v", err)
	}

	if err := c.safeTick(context.Background(), now); err == nil {
		t.Fatal("Expected panicking tick to surface as an error")
	} else if !strings.Contains(err.Error(), "panicked") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestCampaignDay_CountsFromStart(t *testing.T) {
	social := &fakeSocial{nextCursor: "c-1"}
	c, _, _ := newTestCampaign(t, social, &fakeClusterer{}, &fakeScorer{}, &fakeDecider{decision: models.DecisionPass}, nil, testConfig())

	start := c.campaignStart
	if got := c.campaignDay(start.Add(2 * time.Hour)); got != 1 {
		t.Errorf("Expected day 1 on the start date, got %d", got)
	}
	if got := c.campaignDay(start.Add(25 * time.Hour)); got != 2 {
		t.Errorf("Expected day 2 the next date, got %d", got)
	}
	if got := c.campaignDay(start.Add(16 * 24 * time.Hour)); got != 17 {
		t.Errorf("Expected day 17, got %d", got)
	}
}
