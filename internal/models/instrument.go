package models

import (
	"errors"
	"time"
)

// Direction is the side of a binary instrument an opportunity targets.
type Direction string

const (
	DirectionYes Direction = "YES"
	DirectionNo  Direction = "NO"
)

// Valid reports whether d is YES or NO.
func (d Direction) Valid() bool {
	return d == DirectionYes || d == DirectionNo
}

// MarketInstrument is an external tradable prediction-market instrument.
// Owned by the market-data collaborator and cached with a bounded refresh
// interval; prices are outcome probabilities in [0,1].
type MarketInstrument struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Outcomes  []string  `json:"outcomes"`
	YesPrice  float64   `json:"yes_price"`
	NoPrice   float64   `json:"no_price"`
	Volume    float64   `json:"volume"`
	Liquidity float64   `json:"liquidity"`
	EndDate   time.Time `json:"end_date"`
	Active    bool      `json:"active"`
}

// PriceFor returns the instrument's current price for the given direction.
func (i *MarketInstrument) PriceFor(d Direction) float64 {
	if d == DirectionNo {
		return i.NoPrice
	}
	return i.YesPrice
}

// Validate checks that all instrument fields are valid.
func (i *MarketInstrument) Validate() error {
	if i.ID == "" {
		return errors.New("instrument ID must not be empty")
	}
	if i.Question == "" {
		return errors.New("instrument question must not be empty")
	}
	if i.YesPrice < 0.0 || i.YesPrice > 1.0 {
		return errors.New("yes price must be between 0.0 and 1.0")
	}
	if i.NoPrice < 0.0 || i.NoPrice > 1.0 {
		return errors.New("no price must be between 0.0 and 1.0")
	}
	if i.Volume < 0 {
		return errors.New("volume must not be negative")
	}
	if i.Liquidity < 0 {
		return errors.New("liquidity must not be negative")
	}
	return nil
}

// EdgeOpportunity is a proposed mapping of one cluster onto one instrument.
// Transient: only the winning opportunity of a tick becomes an order.
type EdgeOpportunity struct {
	Cluster            *TopicCluster     `json:"cluster"`
	Instrument         *MarketInstrument `json:"instrument"`
	Direction          Direction         `json:"direction"`
	ImpliedProbability float64           `json:"implied_probability"`
	MarketPrice        float64           `json:"market_price"`
	PriceDiscrepancy   float64           `json:"price_discrepancy"`
	EdgeScore          float64           `json:"edge_score"`
	Reasoning          string            `json:"reasoning"`
}
