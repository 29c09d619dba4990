package models

import "time"

// Position is one open holding reported by the execution collaborator or
// reconstructed from persisted open trades.
type Position struct {
	InstrumentID string    `json:"instrument_id"`
	Question     string    `json:"question"`
	Direction    Direction `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	SizeUSD      int       `json:"size_usd"`
	EnteredAt    time.Time `json:"entered_at"`
}

// PortfolioState is a snapshot used only as decision input. It is rebuilt
// fresh each tick from persisted open trades plus live position data and is
// never mutated in place.
type PortfolioState struct {
	Bankroll         float64    `json:"bankroll"`
	StartingBankroll float64    `json:"starting_bankroll"`
	CashAvailable    float64    `json:"cash_available"`
	OpenPositions    []Position `json:"open_positions"`
	RealizedPnL      float64    `json:"realized_pnl"`
	Wins             int        `json:"wins"`
	Losses           int        `json:"losses"`
	Day              int        `json:"day"`
	TradesToday      int        `json:"trades_today"`
	TradesTotal      int        `json:"trades_total"`
}

// HasPosition reports whether an open position already exists for the exact
// instrument ID.
func (p *PortfolioState) HasPosition(instrumentID string) bool {
	for _, pos := range p.OpenPositions {
		if pos.InstrumentID == instrumentID {
			return true
		}
	}
	return false
}
