package models

import (
	"errors"
	"time"
)

// SignalType classifies what kind of information a mention carries.
type SignalType string

const (
	SignalNews          SignalType = "news"
	SignalData          SignalType = "data"
	SignalRumor         SignalType = "rumor"
	SignalSentiment     SignalType = "sentiment"
	SignalOnchain       SignalType = "onchain"
	SignalMarketPointer SignalType = "market_pointer"
	SignalNoise         SignalType = "noise"
)

// Valid reports whether t is one of the known signal types.
func (t SignalType) Valid() bool {
	switch t {
	case SignalNews, SignalData, SignalRumor, SignalSentiment, SignalOnchain, SignalMarketPointer, SignalNoise:
		return true
	}
	return false
}

// Urgency tiers how fast a signal is moving.
type Urgency string

const (
	UrgencyBreaking   Urgency = "breaking"
	UrgencyDeveloping Urgency = "developing"
	UrgencySlow       Urgency = "slow"
)

// Valid reports whether u is one of the known urgency tiers.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyBreaking, UrgencyDeveloping, UrgencySlow:
		return true
	}
	return false
}

// EnrichedSignal is a classified interpretation of one RawMention.
// A mention classified as noise never becomes an EnrichedSignal.
// Immutable after creation except for appending corroborations.
type EnrichedSignal struct {
	ID             string      `json:"id"`
	Mention        *RawMention `json:"mention"`
	Type           SignalType  `json:"type"`
	Claim          string      `json:"claim"`
	Urgency        Urgency     `json:"urgency"`
	Topics         []string    `json:"topics,omitempty"`
	Corroborations []string    `json:"corroborations,omitempty"`
	Weight         float64     `json:"weight"`
	ProcessedAt    time.Time   `json:"processed_at"`
}

// Validate checks that all signal fields are valid.
func (s *EnrichedSignal) Validate() error {
	if s.ID == "" {
		return errors.New("signal ID must not be empty")
	}
	if s.Mention == nil {
		return errors.New("signal must reference its mention")
	}
	if !s.Type.Valid() {
		return errors.New("unknown signal type")
	}
	if s.Type == SignalNoise {
		return errors.New("noise must not be stored as a signal")
	}
	if s.Claim == "" {
		return errors.New("core claim must not be empty")
	}
	if !s.Urgency.Valid() {
		return errors.New("unknown urgency tier")
	}
	if s.Weight < 1.0 {
		return errors.New("signal weight must be >= 1")
	}
	return nil
}
