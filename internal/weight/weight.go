// Package weight converts raw engagement counts and signal age into scalar
// weights used throughout the pipeline.
//
//	weight = 1 + log2(1 + likes + 2·reshares + 3·quote_shares)
//
// Quote shares count triple and reshares double because redistribution is a
// stronger endorsement than a like. Recency multiplies cluster-level weight
// only; a signal's stored weight never decays.
package weight

import (
	"math"
	"time"

	"github.com/chatterbet/chatterbet/internal/models"
)

// Recency breakpoints. Signals younger than freshAge carry the full boost;
// the multiplier then decays linearly until staleAge, after which it is flat.
const (
	freshAge = 2 * time.Hour
	staleAge = 24 * time.Hour

	freshMultiplier = 2.0
	baseMultiplier  = 1.0
	staleMultiplier = 0.5
)

// EngagementRank ranks an engagement by likes + 2·reshares + 3·quote_shares.
// Used to pick which context message carries the "real" engagement when a
// mention is a reply or quote. Negative counts are treated as 0.
func EngagementRank(e models.Engagement) int {
	return clampNonNegative(e.Likes) + 2*clampNonNegative(e.Reshares) + 3*clampNonNegative(e.QuoteShares)
}

// Engagement computes the scalar weight of an engagement. Always >= 1 and
// monotonically non-decreasing in each count.
func Engagement(e models.Engagement) float64 {
	return 1 + math.Log2(1+float64(EngagementRank(e)))
}

// Recency returns the age multiplier for a signal observed at signalTime:
// 2.0 up to 2h old, decaying linearly to 1.0 at 24h, then flat 0.5.
func Recency(signalTime, now time.Time) float64 {
	age := now.Sub(signalTime)
	switch {
	case age <= freshAge:
		return freshMultiplier
	case age <= staleAge:
		frac := float64(age-freshAge) / float64(staleAge-freshAge)
		return freshMultiplier - frac*(freshMultiplier-baseMultiplier)
	default:
		return staleMultiplier
	}
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
