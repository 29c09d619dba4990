// Package risk holds the pure position-sizing and portfolio-constraint
// functions. Nothing here does I/O; the decision engine calls these with a
// fresh portfolio snapshot each tick.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/chatterbet/chatterbet/internal/models"
)

// Conviction is the discrete tier derived from edge score.
type Conviction string

const (
	ConvictionHigh     Conviction = "high"
	ConvictionModerate Conviction = "moderate"
	ConvictionLow      Conviction = "low"
)

// Conviction tier boundaries and the position multiplier each tier earns.
// The boundaries are fixed by design, not configuration.
const (
	highConvictionMin     = 0.8
	moderateConvictionMin = 0.5

	highConvictionMultiplier     = 2.0
	moderateConvictionMultiplier = 1.0
	lowConvictionMultiplier      = 0.5
)

// Exit prices are probabilities and must stay strictly inside (0, 1).
const (
	minExitPrice = 0.01
	maxExitPrice = 0.99
)

// Params are the sizing and constraint inputs, carried from configuration.
// Bankroll is the original configured bankroll: the drawdown breaker
// compares against it, never the live one, so a recovered bankroll does not
// silently re-arm trading below the original floor.
type Params struct {
	Bankroll            float64
	BasePositionPct     float64
	MaxPositionPct      float64
	CashReservePct      float64
	MinPositionUSD      float64
	MaxOpenPositions    int
	DrawdownBreakerPct  float64
	MaxThemeExposurePct float64
	StopLossPercent     float64
	TakeProfitMultiple  float64
}

// ConvictionLevel maps an edge score to its conviction tier.
func ConvictionLevel(edgeScore float64) Conviction {
	switch {
	case edgeScore > highConvictionMin:
		return ConvictionHigh
	case edgeScore > moderateConvictionMin:
		return ConvictionModerate
	default:
		return ConvictionLow
	}
}

func convictionMultiplier(c Conviction) float64 {
	switch c {
	case ConvictionHigh:
		return highConvictionMultiplier
	case ConvictionModerate:
		return moderateConvictionMultiplier
	default:
		return lowConvictionMultiplier
	}
}

// PositionSize computes the conviction-scaled position size in whole USD.
// The base percent of bankroll is scaled by conviction, capped at
// MaxPositionPct of bankroll, capped again by cash available above the
// reserve, and floored to 0 when the result falls below MinPositionUSD.
func PositionSize(opp *models.EdgeOpportunity, portfolio *models.PortfolioState, p Params) int {
	pct := p.BasePositionPct * convictionMultiplier(ConvictionLevel(opp.EdgeScore))
	size := pct * portfolio.Bankroll

	if cap1 := p.MaxPositionPct * portfolio.Bankroll; size > cap1 {
		size = cap1
	}
	if cap2 := portfolio.CashAvailable - portfolio.Bankroll*p.CashReservePct; size > cap2 {
		size = cap2
	}

	rounded := math.Round(size)
	if rounded < p.MinPositionUSD {
		return 0
	}
	return int(rounded)
}

// CheckConstraints evaluates portfolio-level eligibility for an opportunity.
// Returns allowed=false with a human-readable reason on the first violated
// constraint.
func CheckConstraints(opp *models.EdgeOpportunity, portfolio *models.PortfolioState, p Params) (bool, string) {
	if len(portfolio.OpenPositions) >= p.MaxOpenPositions {
		return false, fmt.Sprintf("max open positions reached (%d)", p.MaxOpenPositions)
	}

	if floor := p.Bankroll * p.DrawdownBreakerPct; portfolio.Bankroll <= floor {
		return false, fmt.Sprintf("drawdown breaker tripped: bankroll %.2f at or below %.2f", portfolio.Bankroll, floor)
	}

	// Theme exposure groups instruments by the first word of the question
	// text. Deliberately coarse: an approximation, not a taxonomy.
	theme := themeKey(opp.Instrument.Question)
	var exposure float64
	for _, pos := range portfolio.OpenPositions {
		if themeKey(pos.Question) == theme {
			exposure += float64(pos.SizeUSD)
		}
	}
	if limit := p.MaxThemeExposurePct * portfolio.Bankroll; exposure > limit {
		return false, fmt.Sprintf("theme %q exposure %.2f exceeds limit %.2f", theme, exposure, limit)
	}

	if portfolio.HasPosition(opp.Instrument.ID) {
		return false, fmt.Sprintf("already have a position in %s", opp.Instrument.ID)
	}

	return true, ""
}

// ExitLevels computes stop-loss and take-profit prices for an entry. For YES
// positions a loss is a falling price; for NO the relationship inverts.
// Results are clamped to stay within (0, 1).
func ExitLevels(entryPrice float64, direction models.Direction, p Params) (stopLoss, takeProfit float64) {
	if direction == models.DirectionNo {
		stopLoss = math.Min(maxExitPrice, entryPrice*(1+p.StopLossPercent))
		takeProfit = math.Max(minExitPrice, entryPrice/p.TakeProfitMultiple)
		return stopLoss, takeProfit
	}
	stopLoss = math.Max(minExitPrice, entryPrice*(1-p.StopLossPercent))
	takeProfit = math.Min(maxExitPrice, entryPrice*p.TakeProfitMultiple)
	return stopLoss, takeProfit
}

// themeKey extracts the lowercased first word of a question.
func themeKey(question string) string {
	fields := strings.Fields(strings.ToLower(question))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
