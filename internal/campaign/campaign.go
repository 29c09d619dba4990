// Package campaign runs the trading loop: each tick fetches new mentions,
// enriches them into signals, re-clusters the rolling signal window, scores
// edges, and pushes the best opportunities through the decision engine. Every
// step after the fetch is fault-isolated so one bad cluster or collaborator
// hiccup never kills a tick, and one bad tick never kills the campaign.
package campaign

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chatterbet/chatterbet/internal/cluster"
	"github.com/chatterbet/chatterbet/internal/config"
	"github.com/chatterbet/chatterbet/internal/content"
	"github.com/chatterbet/chatterbet/internal/logger"
	"github.com/chatterbet/chatterbet/internal/models"
	"github.com/chatterbet/chatterbet/internal/storage"
)

// maxOpportunitiesPerTick bounds how many opportunities reach the decision
// engine each tick; arbitration calls are the expensive step.
const maxOpportunitiesPerTick = 3

// watchPublishMinSignals is the fixed floor of contributing signals below
// which a WATCH stays in the audit log instead of being announced.
const watchPublishMinSignals = 3

// digestWindow is how long past the configured digest hour a missed digest
// is still published.
const digestWindow = 2 * time.Hour

const dayLayout = "2006-01-02"

// MentionSource is the social platform dependency.
type MentionSource interface {
	FetchMentions(ctx context.Context, sinceCursor string) ([]*models.RawMention, string, error)
	PostThread(ctx context.Context, texts []string) ([]string, error)
}

// Enricher converts raw mentions into enriched signals.
type Enricher interface {
	EnrichBatch(ctx context.Context, mentions []models.RawMention) []*models.EnrichedSignal
}

// Clusterer groups signals into topic clusters.
type Clusterer interface {
	ClusterSignals(ctx context.Context, signals []*models.EnrichedSignal) ([]*models.TopicCluster, error)
}

// EdgeScorer maps a cluster onto instruments and scores the edges.
type EdgeScorer interface {
	FindEdge(ctx context.Context, c *models.TopicCluster, clusterWeight float64) ([]*models.EdgeOpportunity, error)
}

// Decider turns an opportunity into a terminal order.
type Decider interface {
	Decide(ctx context.Context, opp *models.EdgeOpportunity, portfolio *models.PortfolioState) (*models.TradeOrder, error)
}

// Executor places executed trades with the broker and reports its live view
// of open positions. Nil when trading is disabled; TRADE orders are then
// recorded and published but not submitted, and the portfolio snapshot is
// built from persisted open trades alone.
type Executor interface {
	PlaceOrder(ctx context.Context, order *models.TradeOrder) (string, error)
	SetExitRules(ctx context.Context, brokerOrderID string, stopLoss, takeProfit float64) error
	OpenPositions(ctx context.Context) ([]models.Position, error)
}

// Notifier is the optional ops channel.
type Notifier interface {
	SendTradeNotice(order *models.TradeOrder) error
	SendDigest(parts []string) error
	SendAlert(consecutiveFailures int, lastErr error) error
	SendRecovery() error
}

// Campaign orchestrates the full pipeline.
type Campaign struct {
	store    *storage.Store
	social   MentionSource
	enricher Enricher
	cluster  Clusterer
	scorer   EdgeScorer
	decider  Decider
	executor Executor
	notifier Notifier
	cfg      *config.Config

	campaignStart time.Time
	now           func() time.Time
}

// New creates a Campaign. executor and notifier may be nil.
func New(store *storage.Store, social MentionSource, enricher Enricher, clusterer Clusterer,
	scorer EdgeScorer, decider Decider, executor Executor, notifier Notifier, cfg *config.Config) (*Campaign, error) {
	c := &Campaign{
		store:    store,
		social:   social,
		enricher: enricher,
		cluster:  clusterer,
		scorer:   scorer,
		decider:  decider,
		executor: executor,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
	start, err := store.EnsureCampaignStart(c.now())
	if err != nil {
		return nil, fmt.Errorf("failed to establish campaign start: %w", err)
	}
	c.campaignStart = start
	return c, nil
}

// Run executes the campaign loop until ctx is cancelled. An initial tick
// runs immediately; failed ticks alert the ops channel once per failure
// streak and a recovery notice follows the first clean tick after.
func (c *Campaign) Run(ctx context.Context) {
	logger.Info("Starting campaign loop (poll: %v, window: %v, trading enabled: %v)",
		c.cfg.Campaign.PollInterval, c.cfg.Campaign.SignalWindow, c.executor != nil)

	ticker := time.NewTicker(c.cfg.Campaign.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	handleTickResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Campaign tick failed: %v", err)
			if consecutiveFailures == 1 && c.notifier != nil {
				if sendErr := c.notifier.SendAlert(consecutiveFailures, err); sendErr != nil {
					logger.Warn("Failed to send failure alert: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && c.notifier != nil {
			if sendErr := c.notifier.SendRecovery(); sendErr != nil {
				logger.Warn("Failed to send recovery notice: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	handleTickResult(c.safeTick(ctx, c.now()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Campaign stopped")
			return
		case tickTime := <-ticker.C:
			handleTickResult(c.safeTick(ctx, tickTime))
		}
	}
}

// safeTick contains a panicking tick so the loop survives to the next
// interval.
func (c *Campaign) safeTick(ctx context.Context, tickTime time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return c.Tick(ctx, tickTime)
}

// Tick runs one full pipeline pass. Only fetch and cluster failures are
// fatal for the tick; everything downstream degrades per item. The digest
// check always runs, even when the pipeline fails: a fetch outage spanning
// the digest window must not swallow that day's digest.
func (c *Campaign) Tick(ctx context.Context, tickTime time.Time) error {
	started := time.Now()
	logger.Info("Starting campaign tick")

	err := c.runPipeline(ctx, tickTime)

	c.maybePublishDigest(ctx, tickTime)

	logger.Info("Campaign tick completed in %v", time.Since(started))
	return err
}

func (c *Campaign) runPipeline(ctx context.Context, tickTime time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panicked: %v", r)
		}
	}()

	if err := c.ingestMentions(ctx, tickTime); err != nil {
		return err
	}

	recent, err := c.store.RecentSignals(c.cfg.Campaign.SignalWindow, tickTime)
	if err != nil {
		return fmt.Errorf("failed to load signal window: %w", err)
	}

	if len(recent) >= 2 {
		clusters, err := c.cluster.ClusterSignals(ctx, recent)
		if err != nil {
			return fmt.Errorf("failed to cluster signals: %w", err)
		}
		logger.Info("Clustered %d signals into %d topics", len(recent), len(clusters))

		opportunities := c.scoreClusters(ctx, clusters, tickTime)
		c.decideAndAct(ctx, opportunities, tickTime)
	} else {
		logger.Info("Only %d signals in window, skipping clustering", len(recent))
	}
	return nil
}

// ingestMentions fetches new mentions, persists the cursor before any
// processing, and stores the enriched signals that survive the per-author
// daily limit.
func (c *Campaign) ingestMentions(ctx context.Context, tickTime time.Time) error {
	cursor, err := c.store.Cursor()
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	mentions, nextCursor, err := c.social.FetchMentions(ctx, cursor)
	if err != nil {
		return fmt.Errorf("failed to fetch mentions: %w", err)
	}
	// Persist the cursor first: a crash after this point loses at most one
	// batch of mentions, never re-processes one.
	if err := c.store.SetCursor(nextCursor); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	logger.Info("Fetched %d mentions", len(mentions))
	if len(mentions) == 0 {
		return nil
	}

	eligible := make([]models.RawMention, 0, len(mentions))
	tickCounts := make(map[string]int)
	for _, m := range mentions {
		stored, err := c.store.UserDailyCount(m.AuthorHandle, tickTime)
		if err != nil {
			logger.Warn("Failed to read daily count for @%s: %v", m.AuthorHandle, err)
			continue
		}
		if stored+tickCounts[m.AuthorHandle] >= c.cfg.Social.MaxSignalsPerUserDay {
			logger.Debug("Daily limit reached for @%s, dropping mention %s", m.AuthorHandle, m.ID)
			continue
		}
		tickCounts[m.AuthorHandle]++
		eligible = append(eligible, *m)
	}

	signals := c.enricher.EnrichBatch(ctx, eligible)
	saved := 0
	for _, sig := range signals {
		if err := c.store.SaveSignal(sig); err != nil {
			logger.Warn("Failed to persist signal %s: %v", sig.ID, err)
			continue
		}
		saved++
	}
	logger.Info("Enriched %d mentions into %d signals (%d persisted)", len(eligible), len(signals), saved)
	return nil
}

// scoreClusters maps every cluster onto instruments and returns the top
// opportunities across all clusters, best edge first.
func (c *Campaign) scoreClusters(ctx context.Context, clusters []*models.TopicCluster, tickTime time.Time) []*models.EdgeOpportunity {
	var all []*models.EdgeOpportunity
	for _, cl := range clusters {
		w := cluster.ClusterWeight(cl, tickTime)
		opps, err := c.scorer.FindEdge(ctx, cl, w)
		if err != nil {
			logger.Warn("Edge scoring failed for cluster %q: %v", cl.Name, err)
			continue
		}
		all = append(all, opps...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].EdgeScore > all[j].EdgeScore })
	if len(all) > maxOpportunitiesPerTick {
		all = all[:maxOpportunitiesPerTick]
	}
	return all
}

// decideAndAct runs each opportunity through the decision engine against a
// fresh portfolio snapshot, executes and records the result, and publishes.
func (c *Campaign) decideAndAct(ctx context.Context, opportunities []*models.EdgeOpportunity, tickTime time.Time) {
	for _, opp := range opportunities {
		portfolio, err := c.buildPortfolio(ctx, tickTime)
		if err != nil {
			logger.Warn("Failed to build portfolio snapshot: %v", err)
			continue
		}

		order, err := c.decider.Decide(ctx, opp, portfolio)
		if err != nil {
			logger.Warn("Decision failed for cluster %q: %v", opp.Cluster.Name, err)
			continue
		}

		downgraded := false
		if order.Decision == models.DecisionTrade && c.executor != nil {
			if err := c.executeTrade(ctx, order); err != nil {
				logger.Error("Execution failed for order %s, downgrading to PASS: %v", order.ID, err)
				downgradeToPass(order, err)
				downgraded = true
			}
		}

		if err := c.store.SaveOrder(order); err != nil {
			logger.Error("Failed to persist order %s: %v", order.ID, err)
			continue
		}
		logger.Info("Decision for cluster %q: %s (instrument %s, edge %.3f)",
			opp.Cluster.Name, order.Decision, order.InstrumentID, order.EdgeScore)

		// A downgraded PASS reflects an execution failure, not a judgment
		// call; there is nothing to announce.
		if !downgraded {
			c.publishOrder(ctx, order)
		}
	}
}

func (c *Campaign) executeTrade(ctx context.Context, order *models.TradeOrder) error {
	brokerID, err := c.executor.PlaceOrder(ctx, order)
	if err != nil {
		return err
	}
	// The position exists either way; a failed exit-rule attach is logged,
	// not fatal.
	if err := c.executor.SetExitRules(ctx, brokerID, order.StopLoss, order.TakeProfit); err != nil {
		logger.Warn("Failed to attach exit rules to %s: %v", brokerID, err)
	}
	if err := c.store.CreditContributors(order); err != nil {
		logger.Warn("Failed to credit contributors for order %s: %v", order.ID, err)
	}
	return nil
}

// publishOrder posts TRADE threads always; WATCH and PASS only when enough
// signals contributed to be worth the audience's attention (a fixed floor
// for WATCH, a configurable one for PASS).
func (c *Campaign) publishOrder(ctx context.Context, order *models.TradeOrder) {
	switch order.Decision {
	case models.DecisionTrade:
		if _, err := c.social.PostThread(ctx, content.TradeThread(order)); err != nil {
			logger.Error("Failed to publish trade thread for %s: %v", order.ID, err)
		}
		if c.notifier != nil {
			if err := c.notifier.SendTradeNotice(order); err != nil {
				logger.Warn("Failed to send trade notice: %v", err)
			}
		}
	case models.DecisionWatch:
		if len(order.Signals) < watchPublishMinSignals {
			return
		}
		if _, err := c.social.PostThread(ctx, content.WatchPost(order)); err != nil {
			logger.Error("Failed to publish watch post for %s: %v", order.ID, err)
		}
	case models.DecisionPass:
		if len(order.Signals) < c.cfg.Social.MinSignalsToPublish {
			return
		}
		if _, err := c.social.PostThread(ctx, content.PassPost(order)); err != nil {
			logger.Error("Failed to publish pass post for %s: %v", order.ID, err)
		}
	}
}

// buildPortfolio assembles a fresh decision-input snapshot from persisted
// trades plus, when trading is enabled, the broker's live position view.
// The live bankroll is the configured bankroll plus realized PnL; open
// position sizes are locked up and unavailable as cash.
func (c *Campaign) buildPortfolio(ctx context.Context, tickTime time.Time) (*models.PortfolioState, error) {
	stats, err := c.store.Stats(tickTime)
	if err != nil {
		return nil, err
	}
	open, err := c.store.OpenTrades()
	if err != nil {
		return nil, err
	}
	if c.executor != nil {
		open = c.reconcilePositions(ctx, open)
	}

	invested := 0
	for _, pos := range open {
		invested += pos.SizeUSD
	}
	bankroll := c.cfg.Trading.Bankroll + stats.RealizedPnL

	return &models.PortfolioState{
		Bankroll:         bankroll,
		StartingBankroll: c.cfg.Trading.Bankroll,
		CashAvailable:    bankroll - float64(invested),
		OpenPositions:    open,
		RealizedPnL:      stats.RealizedPnL,
		Wins:             stats.Wins,
		Losses:           stats.Losses,
		Day:              c.campaignDay(tickTime),
		TradesToday:      stats.TradesOnDay,
		TradesTotal:      stats.TradesTotal,
	}, nil
}

// reconcilePositions overlays the broker's live position view on the
// persisted open trades: the broker wins where both know an instrument, and
// persisted trades the broker has not yet reported stay in. A broker error
// keeps the persisted-only snapshot.
func (c *Campaign) reconcilePositions(ctx context.Context, persisted []models.Position) []models.Position {
	live, err := c.executor.OpenPositions(ctx)
	if err != nil {
		logger.Warn("Failed to fetch live positions, using persisted open trades: %v", err)
		return persisted
	}
	seen := make(map[string]bool, len(live))
	for _, pos := range live {
		seen[pos.InstrumentID] = true
	}
	merged := live
	for _, pos := range persisted {
		if !seen[pos.InstrumentID] {
			merged = append(merged, pos)
		}
	}
	return merged
}

// campaignDay returns the 1-based day counter since the campaign start.
func (c *Campaign) campaignDay(t time.Time) int {
	tDay := time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(tDay.Sub(c.campaignStart).Hours()/24) + 1
}

// maybePublishDigest publishes the daily digest once per UTC day, inside the
// window starting at the configured digest hour. Outside the window a missed
// day stays missed; the next day's digest covers the cumulative record.
func (c *Campaign) maybePublishDigest(ctx context.Context, tickTime time.Time) {
	utc := tickTime.UTC()
	windowStart := time.Date(utc.Year(), utc.Month(), utc.Day(), c.cfg.Campaign.DigestHourUTC, 0, 0, 0, time.UTC)
	if utc.Before(windowStart) || !utc.Before(windowStart.Add(digestWindow)) {
		return
	}

	today := utc.Format(dayLayout)
	last, err := c.store.LastDigestDate()
	if err != nil {
		logger.Warn("Failed to read last digest date: %v", err)
		return
	}
	if last == today {
		return
	}

	stats, err := c.store.Stats(tickTime)
	if err != nil {
		logger.Warn("Failed to aggregate digest stats: %v", err)
		return
	}
	open, err := c.store.OpenTrades()
	if err != nil {
		logger.Warn("Failed to load open trades for digest: %v", err)
		return
	}
	contributors, err := c.store.TopContributors(3)
	if err != nil {
		logger.Warn("Failed to load contributors for digest: %v", err)
		return
	}

	bankroll := c.cfg.Trading.Bankroll + stats.RealizedPnL
	thread := content.Digest(c.campaignDay(tickTime), stats, bankroll, len(open), contributors, tickTime)

	if _, err := c.social.PostThread(ctx, thread); err != nil {
		logger.Error("Failed to publish digest: %v", err)
		return
	}
	if err := c.store.SetLastDigestDate(tickTime); err != nil {
		logger.Warn("Failed to mark digest as published: %v", err)
	}
	if c.notifier != nil {
		if err := c.notifier.SendDigest(thread); err != nil {
			logger.Warn("Failed to forward digest to ops channel: %v", err)
		}
	}
	logger.Info("Published daily digest for %s", today)
}

// downgradeToPass converts a TRADE order whose execution failed into a PASS
// so the recorded decision matches what actually happened.
func downgradeToPass(order *models.TradeOrder, execErr error) {
	order.Decision = models.DecisionPass
	order.SizeUSD = 0
	order.PassReason = fmt.Sprintf("execution failed: %v", execErr)
}
