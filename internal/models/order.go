package models

import (
	"errors"
	"time"
)

// Decision is the terminal outcome for an evaluated opportunity.
type Decision string

const (
	DecisionTrade Decision = "TRADE"
	DecisionPass  Decision = "PASS"
	DecisionWatch Decision = "WATCH"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionTrade || d == DecisionPass || d == DecisionWatch
}

// TradeOrder is the fully-populated terminal decision for one opportunity.
// Immutable once recorded; a later close event (exit price, realized PnL)
// is written by the accounting path, not by the decision engine.
type TradeOrder struct {
	ID             string            `json:"id"`
	Decision       Decision          `json:"decision"`
	InstrumentID   string            `json:"instrument_id"`
	Question       string            `json:"question"`
	Direction      Direction         `json:"direction"`
	SizeUSD        int               `json:"size_usd"`
	EntryPrice     float64           `json:"entry_price"`
	StopLoss       float64           `json:"stop_loss"`
	TakeProfit     float64           `json:"take_profit"`
	EdgeScore      float64           `json:"edge_score"`
	Reasoning      string            `json:"reasoning"`
	Signals        []*EnrichedSignal `json:"signals"`
	PassReason     string            `json:"pass_reason,omitempty"`
	WatchCondition string            `json:"watch_condition,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Validate checks the order invariants. A TRADE with zero size is
// contradictory and must never be emitted.
func (o *TradeOrder) Validate() error {
	if o.ID == "" {
		return errors.New("order ID must not be empty")
	}
	if !o.Decision.Valid() {
		return errors.New("unknown decision")
	}
	if o.InstrumentID == "" {
		return errors.New("instrument ID must not be empty")
	}
	if !o.Direction.Valid() {
		return errors.New("direction must be YES or NO")
	}
	if o.Decision == DecisionTrade && o.SizeUSD <= 0 {
		return errors.New("TRADE order must have a positive size")
	}
	if o.Decision != DecisionTrade && o.SizeUSD != 0 {
		return errors.New("non-TRADE order must have zero size")
	}
	if o.SizeUSD < 0 {
		return errors.New("size must not be negative")
	}
	if o.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	return nil
}

// SignalIDs returns the IDs of the contributing signals.
func (o *TradeOrder) SignalIDs() []string {
	ids := make([]string, 0, len(o.Signals))
	for _, s := range o.Signals {
		ids = append(ids, s.ID)
	}
	return ids
}
