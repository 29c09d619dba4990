// Package decision is the sanity checker: it turns each edge opportunity
// into a terminal TRADE, PASS, or WATCH order. Cheap deterministic gates run
// first (portfolio constraints, edge floor, signal-count floor); only
// opportunities that clear all three spend an arbitration call.
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatterbet/chatterbet/internal/edge"
	"github.com/chatterbet/chatterbet/internal/llm"
	"github.com/chatterbet/chatterbet/internal/logger"
	"github.com/chatterbet/chatterbet/internal/models"
	"github.com/chatterbet/chatterbet/internal/risk"
)

// Arbiter is the qualitative arbitration collaborator dependency.
type Arbiter interface {
	Arbitrate(ctx context.Context, req llm.ArbitrationRequest) (llm.Parsed[llm.Verdict], error)
}

// Engine decides TRADE/PASS/WATCH for opportunities.
type Engine struct {
	arbiter         Arbiter
	params          risk.Params
	minEdgeScore    float64
	minSignalsToAct int
	now             func() time.Time
}

// New creates a decision Engine.
func New(arbiter Arbiter, params risk.Params, minEdgeScore float64, minSignalsToAct int) *Engine {
	return &Engine{
		arbiter:         arbiter,
		params:          params,
		minEdgeScore:    minEdgeScore,
		minSignalsToAct: minSignalsToAct,
		now:             time.Now,
	}
}

// Decide runs the decision state machine for one opportunity against a fresh
// portfolio snapshot. The returned order is always fully populated; a TRADE
// order always has a positive size. Arbitration transport failures propagate;
// arbitration parse failures degrade to PASS.
func (e *Engine) Decide(ctx context.Context, opp *models.EdgeOpportunity, portfolio *models.PortfolioState) (*models.TradeOrder, error) {
	if allowed, reason := risk.CheckConstraints(opp, portfolio, e.params); !allowed {
		return e.pass(opp, reason, "portfolio constraints rejected the opportunity: "+reason), nil
	}

	if opp.EdgeScore < e.minEdgeScore {
		reason := fmt.Sprintf("edge score %.3f below minimum %.3f", opp.EdgeScore, e.minEdgeScore)
		return e.pass(opp, reason, reason), nil
	}

	if opp.Cluster.SignalCount < e.minSignalsToAct {
		condition := fmt.Sprintf("re-evaluate %q once it reaches %d corroborating signals (currently %d)",
			opp.Cluster.Name, e.minSignalsToAct, opp.Cluster.SignalCount)
		return e.watch(opp, condition), nil
	}

	parsed, err := e.arbiter.Arbitrate(ctx, e.arbitrationRequest(opp, portfolio))
	if err != nil {
		return nil, fmt.Errorf("arbitration failed for cluster %q: %w", opp.Cluster.Name, err)
	}
	verdict := parsed.Value
	if parsed.Defaulted {
		logger.Warn("Arbitration degraded to PASS for cluster %q: %s", opp.Cluster.Name, parsed.Note)
	}

	switch models.Decision(verdict.Decision) {
	case models.DecisionTrade:
		size := risk.PositionSize(opp, portfolio, e.params)
		if size == 0 {
			// A TRADE with zero size is contradictory; downgrade.
			reason := "computed position size below minimum"
			return e.pass(opp, reason, verdict.Reasoning+" (downgraded: "+reason+")"), nil
		}
		stop, take := risk.ExitLevels(opp.MarketPrice, opp.Direction, e.params)
		order := e.newOrder(opp, models.DecisionTrade)
		order.SizeUSD = size
		order.EntryPrice = opp.MarketPrice
		order.StopLoss = stop
		order.TakeProfit = take
		order.Reasoning = verdict.Reasoning
		return order, nil

	case models.DecisionWatch:
		condition := verdict.WatchCondition
		if condition == "" {
			condition = fmt.Sprintf("watch %q for further confirmation", opp.Cluster.Name)
		}
		order := e.watch(opp, condition)
		if verdict.Reasoning != "" {
			order.Reasoning = verdict.Reasoning
		}
		return order, nil

	default:
		// Unknown decisions are treated as PASS, same as an explicit one.
		reason := verdict.PassReason
		if reason == "" {
			reason = "arbitration declined the trade"
		}
		reasoning := verdict.Reasoning
		if reasoning == "" {
			reasoning = reason
		}
		return e.pass(opp, reason, reasoning), nil
	}
}

func (e *Engine) arbitrationRequest(opp *models.EdgeOpportunity, portfolio *models.PortfolioState) llm.ArbitrationRequest {
	return llm.ArbitrationRequest{
		Cluster:   edge.Summary(opp.Cluster),
		Question:  opp.Instrument.Question,
		Direction: string(opp.Direction),
		YesPrice:  opp.Instrument.YesPrice,
		NoPrice:   opp.Instrument.NoPrice,
		EdgeScore: opp.EdgeScore,
		Portfolio: llm.PortfolioSummary{
			Bankroll:      portfolio.Bankroll,
			CashAvailable: portfolio.CashAvailable,
			OpenPositions: len(portfolio.OpenPositions),
			RealizedPnL:   portfolio.RealizedPnL,
			Day:           portfolio.Day,
		},
	}
}

func (e *Engine) newOrder(opp *models.EdgeOpportunity, d models.Decision) *models.TradeOrder {
	return &models.TradeOrder{
		ID:           uuid.New().String(),
		Decision:     d,
		InstrumentID: opp.Instrument.ID,
		Question:     opp.Instrument.Question,
		Direction:    opp.Direction,
		EdgeScore:    opp.EdgeScore,
		Signals:      opp.Cluster.Signals,
		CreatedAt:    e.now(),
	}
}

func (e *Engine) pass(opp *models.EdgeOpportunity, reason, reasoning string) *models.TradeOrder {
	order := e.newOrder(opp, models.DecisionPass)
	order.PassReason = reason
	order.Reasoning = reasoning
	return order
}

func (e *Engine) watch(opp *models.EdgeOpportunity, condition string) *models.TradeOrder {
	order := e.newOrder(opp, models.DecisionWatch)
	order.WatchCondition = condition
	order.Reasoning = "insufficient corroboration to act; watching"
	return order
}
