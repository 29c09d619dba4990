// Package storage persists signals, trade orders, contributor attribution,
// and campaign bookkeeping to SQLite. All writes that must stay consistent
// (a signal plus its contributor and daily counters) run in one transaction.
//
// Storage is designed for reliability across restarts: the fetch cursor,
// campaign start date, and digest marker live in a key/value state table so
// a crashed process resumes where it left off.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chatterbet/chatterbet/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id                  TEXT PRIMARY KEY,
	author_handle       TEXT NOT NULL,
	signal_type         TEXT NOT NULL,
	claim               TEXT NOT NULL,
	urgency             TEXT NOT NULL,
	weight              REAL NOT NULL,
	topics_json         TEXT NOT NULL DEFAULT '[]',
	corroborations_json TEXT NOT NULL DEFAULT '[]',
	mention_json        TEXT NOT NULL,
	created_at_ms       INTEGER NOT NULL,
	processed_at_ms     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at_ms);

CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	decision        TEXT NOT NULL,
	instrument_id   TEXT NOT NULL,
	question        TEXT NOT NULL,
	direction       TEXT NOT NULL,
	size_usd        INTEGER NOT NULL,
	entry_price     REAL NOT NULL,
	stop_loss       REAL NOT NULL,
	take_profit     REAL NOT NULL,
	edge_score      REAL NOT NULL,
	reasoning       TEXT NOT NULL,
	pass_reason     TEXT NOT NULL DEFAULT '',
	watch_condition TEXT NOT NULL DEFAULT '',
	signal_ids_json TEXT NOT NULL DEFAULT '[]',
	created_at_ms   INTEGER NOT NULL,
	closed_at_ms    INTEGER,
	exit_price      REAL,
	realized_pnl    REAL
);
CREATE INDEX IF NOT EXISTS idx_trades_decision ON trades(decision);

CREATE TABLE IF NOT EXISTS contributors (
	handle             TEXT PRIMARY KEY,
	signal_count       INTEGER NOT NULL DEFAULT 0,
	attribution_points REAL NOT NULL DEFAULT 0,
	last_seen_at_ms    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_counts (
	handle TEXT NOT NULL,
	day    TEXT NOT NULL,
	count  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (handle, day)
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// State table keys.
const (
	stateKeyCursor        = "last_cursor"
	stateKeyCampaignStart = "campaign_start_date"
	stateKeyLastDigest    = "last_digest_date"
)

// dayLayout is the UTC calendar-day key used for daily counters and digest
// deduplication.
const dayLayout = "2006-01-02"

// Contributor is one row of the attribution leaderboard.
type Contributor struct {
	Handle            string
	SignalCount       int
	AttributionPoints float64
}

// TradeStats aggregates realized performance for digests and portfolio
// snapshots. Only closed trades count toward wins and losses.
type TradeStats struct {
	Wins        int
	Losses      int
	RealizedPnL float64
	TradesTotal int
	TradesOnDay int
}

// Store is a SQLite-backed persistence layer. Safe for concurrent use; the
// connection pool is capped at one so in-memory databases see a single
// coherent store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Pass ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSignal persists an enriched signal and, in the same transaction, bumps
// the author's daily counter and contributor record. The daily counter keys
// on the UTC day the signal was processed.
func (s *Store) SaveSignal(signal *models.EnrichedSignal) error {
	if err := signal.Validate(); err != nil {
		return fmt.Errorf("invalid signal: %w", err)
	}

	mentionJSON, err := json.Marshal(signal.Mention)
	if err != nil {
		return fmt.Errorf("failed to marshal mention: %w", err)
	}
	topicsJSON, err := json.Marshal(signal.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}
	corroborationsJSON, err := json.Marshal(signal.Corroborations)
	if err != nil {
		return fmt.Errorf("failed to marshal corroborations: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO signals
		(id, author_handle, signal_type, claim, urgency, weight, topics_json, corroborations_json, mention_json, created_at_ms, processed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		signal.ID, signal.Mention.AuthorHandle, string(signal.Type), signal.Claim, string(signal.Urgency),
		signal.Weight, string(topicsJSON), string(corroborationsJSON), string(mentionJSON),
		signal.Mention.CreatedAt.UTC().UnixMilli(), signal.ProcessedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	day := signal.ProcessedAt.UTC().Format(dayLayout)
	_, err = tx.Exec(`INSERT INTO daily_counts (handle, day, count) VALUES (?, ?, 1)
		ON CONFLICT(handle, day) DO UPDATE SET count = count + 1`,
		signal.Mention.AuthorHandle, day)
	if err != nil {
		return fmt.Errorf("failed to bump daily count: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO contributors (handle, signal_count, attribution_points, last_seen_at_ms) VALUES (?, 1, 0, ?)
		ON CONFLICT(handle) DO UPDATE SET signal_count = signal_count + 1, last_seen_at_ms = excluded.last_seen_at_ms`,
		signal.Mention.AuthorHandle, signal.ProcessedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to bump contributor: %w", err)
	}

	return tx.Commit()
}

// RecentSignals returns the signals whose source mention was created within
// the window ending now, ordered oldest first.
func (s *Store) RecentSignals(window time.Duration, now time.Time) ([]*models.EnrichedSignal, error) {
	cutoff := now.Add(-window).UTC().UnixMilli()
	rows, err := s.db.Query(`SELECT id, signal_type, claim, urgency, weight, topics_json, corroborations_json, mention_json, processed_at_ms
		FROM signals WHERE created_at_ms >= ? ORDER BY created_at_ms ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []*models.EnrichedSignal
	for rows.Next() {
		var (
			sig                                         models.EnrichedSignal
			signalType, urgency                         string
			topicsJSON, corroborationsJSON, mentionJSON string
			processedAtMs                               int64
		)
		if err := rows.Scan(&sig.ID, &signalType, &sig.Claim, &urgency, &sig.Weight,
			&topicsJSON, &corroborationsJSON, &mentionJSON, &processedAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		sig.Type = models.SignalType(signalType)
		sig.Urgency = models.Urgency(urgency)
		sig.ProcessedAt = time.UnixMilli(processedAtMs).UTC()

		var mention models.RawMention
		if err := json.Unmarshal([]byte(mentionJSON), &mention); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mention for signal %s: %w", sig.ID, err)
		}
		sig.Mention = &mention
		if err := json.Unmarshal([]byte(topicsJSON), &sig.Topics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topics for signal %s: %w", sig.ID, err)
		}
		if err := json.Unmarshal([]byte(corroborationsJSON), &sig.Corroborations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal corroborations for signal %s: %w", sig.ID, err)
		}
		signals = append(signals, &sig)
	}
	return signals, rows.Err()
}

// UserDailyCount returns the number of signals stored for a handle on the
// UTC day containing t.
func (s *Store) UserDailyCount(handle string, t time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT count FROM daily_counts WHERE handle = ? AND day = ?`,
		handle, t.UTC().Format(dayLayout)).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query daily count: %w", err)
	}
	return count, nil
}

// SaveOrder persists a terminal trade order. Every decision is recorded,
// PASS and WATCH included, so the audit trail survives restarts.
func (s *Store) SaveOrder(order *models.TradeOrder) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("invalid order: %w", err)
	}
	signalIDs, err := json.Marshal(order.SignalIDs())
	if err != nil {
		return fmt.Errorf("failed to marshal signal IDs: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO trades
		(id, decision, instrument_id, question, direction, size_usd, entry_price, stop_loss, take_profit, edge_score, reasoning, pass_reason, watch_condition, signal_ids_json, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, string(order.Decision), order.InstrumentID, order.Question, string(order.Direction),
		order.SizeUSD, order.EntryPrice, order.StopLoss, order.TakeProfit, order.EdgeScore,
		order.Reasoning, order.PassReason, order.WatchCondition, string(signalIDs),
		order.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// CloseTrade records the close of an executed trade: exit price, realized
// PnL, and close time.
func (s *Store) CloseTrade(orderID string, exitPrice, realizedPnL float64, closedAt time.Time) error {
	res, err := s.db.Exec(`UPDATE trades SET exit_price = ?, realized_pnl = ?, closed_at_ms = ?
		WHERE id = ? AND decision = 'TRADE' AND closed_at_ms IS NULL`,
		exitPrice, realizedPnL, closedAt.UTC().UnixMilli(), orderID)
	if err != nil {
		return fmt.Errorf("failed to close trade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read close result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no open trade found with ID %s", orderID)
	}
	return nil
}

// OpenTrades returns the still-open executed trades as positions, entry
// order preserved.
func (s *Store) OpenTrades() ([]models.Position, error) {
	rows, err := s.db.Query(`SELECT instrument_id, question, direction, entry_price, size_usd, created_at_ms
		FROM trades WHERE decision = 'TRADE' AND closed_at_ms IS NULL ORDER BY created_at_ms ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var (
			pos         models.Position
			direction   string
			createdAtMs int64
		)
		if err := rows.Scan(&pos.InstrumentID, &pos.Question, &direction, &pos.EntryPrice, &pos.SizeUSD, &createdAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan open trade: %w", err)
		}
		pos.Direction = models.Direction(direction)
		pos.EnteredAt = time.UnixMilli(createdAtMs).UTC()
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// Stats aggregates trade performance. day selects which UTC day counts as
// "today" for TradesOnDay.
func (s *Store) Stats(day time.Time) (TradeStats, error) {
	var stats TradeStats

	err := s.db.QueryRow(`SELECT
		COUNT(CASE WHEN realized_pnl > 0 THEN 1 END),
		COUNT(CASE WHEN realized_pnl < 0 THEN 1 END),
		COALESCE(SUM(realized_pnl), 0),
		COUNT(*)
		FROM trades WHERE decision = 'TRADE'`).Scan(&stats.Wins, &stats.Losses, &stats.RealizedPnL, &stats.TradesTotal)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}

	dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	err = s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE decision = 'TRADE' AND created_at_ms >= ? AND created_at_ms < ?`,
		dayStart.UnixMilli(), dayStart.Add(24*time.Hour).UnixMilli()).Scan(&stats.TradesOnDay)
	if err != nil {
		return stats, fmt.Errorf("failed to count trades for day: %w", err)
	}
	return stats, nil
}

// CreditContributors adds weight-scaled attribution points to the authors of
// the signals behind an executed trade.
func (s *Store) CreditContributors(order *models.TradeOrder) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, sig := range order.Signals {
		_, err := tx.Exec(`UPDATE contributors SET attribution_points = attribution_points + ? WHERE handle = ?`,
			sig.Weight, sig.Mention.AuthorHandle)
		if err != nil {
			return fmt.Errorf("failed to credit contributor %s: %w", sig.Mention.AuthorHandle, err)
		}
	}
	return tx.Commit()
}

// TopContributors returns up to n contributors ordered by attribution points
// then signal count, both descending.
func (s *Store) TopContributors(n int) ([]Contributor, error) {
	rows, err := s.db.Query(`SELECT handle, signal_count, attribution_points FROM contributors
		ORDER BY attribution_points DESC, signal_count DESC, handle ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributors: %w", err)
	}
	defer rows.Close()

	var contributors []Contributor
	for rows.Next() {
		var c Contributor
		if err := rows.Scan(&c.Handle, &c.SignalCount, &c.AttributionPoints); err != nil {
			return nil, fmt.Errorf("failed to scan contributor: %w", err)
		}
		contributors = append(contributors, c)
	}
	return contributors, rows.Err()
}

// Cursor returns the persisted fetch cursor, empty if none was saved yet.
func (s *Store) Cursor() (string, error) {
	return s.getState(stateKeyCursor)
}

// SetCursor persists the fetch cursor. Called immediately after each fetch
// so a crash never re-processes the same mentions.
func (s *Store) SetCursor(cursor string) error {
	return s.setState(stateKeyCursor, cursor)
}

// LastDigestDate returns the UTC day ("2006-01-02") the last daily digest
// was published, empty if never.
func (s *Store) LastDigestDate() (string, error) {
	return s.getState(stateKeyLastDigest)
}

// SetLastDigestDate marks the digest as published for the UTC day of t.
func (s *Store) SetLastDigestDate(t time.Time) error {
	return s.setState(stateKeyLastDigest, t.UTC().Format(dayLayout))
}

// EnsureCampaignStart returns the persisted campaign start day, writing the
// UTC day of now on first call. The campaign day counter derives from it.
func (s *Store) EnsureCampaignStart(now time.Time) (time.Time, error) {
	value, err := s.getState(stateKeyCampaignStart)
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		value = now.UTC().Format(dayLayout)
		if err := s.setState(stateKeyCampaignStart, value); err != nil {
			return time.Time{}, err
		}
	}
	start, err := time.ParseInLocation(dayLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt campaign start date %q: %w", value, err)
	}
	return start, nil
}

func (s *Store) getState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) setState(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}
