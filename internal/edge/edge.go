// Package edge maps topic clusters onto tradable market instruments and
// scores the price discrepancy each mapping implies.
//
//	edgeScore = signalStrength × priceDiscrepancy × timeValue
//
// Signal strength normalizes the recency-adjusted cluster weight into [0,1];
// time value rewards urgency (breaking 1.0, developing 0.7, slow 0.4).
package edge

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/chatterbet/chatterbet/internal/llm"
	"github.com/chatterbet/chatterbet/internal/logger"
	"github.com/chatterbet/chatterbet/internal/models"
)

// Time-value tiers by the most urgent member signal.
const (
	timeValueBreaking   = 1.0
	timeValueDeveloping = 0.7
	timeValueSlow       = 0.4
)

// topClaimsPerCluster bounds the claims included in a cluster summary.
const topClaimsPerCluster = 5

// Mapper is the mapping collaborator dependency.
type Mapper interface {
	MapCluster(ctx context.Context, cluster llm.ClusterSummary, instruments []llm.InstrumentSummary) (llm.Parsed[llm.MappingResult], error)
}

// InstrumentSource lists active instruments, typically backed by a
// TTL-bounded cache.
type InstrumentSource interface {
	ListActiveInstruments(ctx context.Context, limit int) ([]models.MarketInstrument, error)
}

// Scorer maps clusters to instruments and computes edge scores.
type Scorer struct {
	source       InstrumentSource
	mapper       Mapper
	topN         int
	strengthNorm float64
}

// New creates a Scorer. strengthNorm is the cluster-weight value at which
// signal strength saturates to 1.0 (hand-tuned; configured, not a literal).
func New(source InstrumentSource, mapper Mapper, topN int, strengthNorm float64) *Scorer {
	if strengthNorm <= 0 {
		strengthNorm = 20.0
	}
	return &Scorer{source: source, mapper: mapper, topN: topN, strengthNorm: strengthNorm}
}

// FindEdge maps a cluster against the top instruments by volume and returns
// the scored opportunities, sorted by edge score descending. Unresolvable
// mappings (bad index, bad direction, out-of-range probability) are skipped,
// never fatal for the cluster.
func (s *Scorer) FindEdge(ctx context.Context, cluster *models.TopicCluster, clusterWeight float64) ([]*models.EdgeOpportunity, error) {
	instruments, err := s.source.ListActiveInstruments(ctx, s.topN)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	if len(instruments) == 0 {
		return []*models.EdgeOpportunity{}, nil
	}

	summaries := make([]llm.InstrumentSummary, len(instruments))
	for i, inst := range instruments {
		summaries[i] = llm.InstrumentSummary{
			Index:    i,
			ID:       inst.ID,
			Question: inst.Question,
			YesPrice: inst.YesPrice,
			NoPrice:  inst.NoPrice,
			Volume:   inst.Volume,
		}
	}

	parsed, err := s.mapper.MapCluster(ctx, Summary(cluster), summaries)
	if err != nil {
		return nil, fmt.Errorf("mapping failed for cluster %q: %w", cluster.Name, err)
	}
	if parsed.Defaulted {
		logger.Warn("Mapping degraded to empty for cluster %q: %s", cluster.Name, parsed.Note)
		return []*models.EdgeOpportunity{}, nil
	}

	strength := math.Min(1.0, clusterWeight/s.strengthNorm)
	tv := timeValue(cluster)

	opportunities := make([]*models.EdgeOpportunity, 0, len(parsed.Value.Mappings))
	for _, m := range parsed.Value.Mappings {
		if m.InstrumentIndex < 0 || m.InstrumentIndex >= len(instruments) {
			logger.Warn("Mapping for cluster %q references instrument index %d out of range, skipping", cluster.Name, m.InstrumentIndex)
			continue
		}
		direction := models.Direction(m.Direction)
		if !direction.Valid() {
			logger.Warn("Mapping for cluster %q has direction %q, skipping", cluster.Name, m.Direction)
			continue
		}
		if m.ImpliedProbability < 0.0 || m.ImpliedProbability > 1.0 {
			logger.Warn("Mapping for cluster %q has implied probability %f out of range, skipping", cluster.Name, m.ImpliedProbability)
			continue
		}

		instrument := instruments[m.InstrumentIndex]
		price := instrument.PriceFor(direction)
		discrepancy := math.Abs(m.ImpliedProbability - price)

		opportunities = append(opportunities, &models.EdgeOpportunity{
			Cluster:            cluster,
			Instrument:         &instrument,
			Direction:          direction,
			ImpliedProbability: m.ImpliedProbability,
			MarketPrice:        price,
			PriceDiscrepancy:   discrepancy,
			EdgeScore:          strength * discrepancy * tv,
			Reasoning:          m.Reasoning,
		})
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].EdgeScore > opportunities[j].EdgeScore
	})

	return opportunities, nil
}

// Summary builds the compact cluster summary submitted to the mapping and
// arbitration collaborators.
func Summary(cluster *models.TopicCluster) llm.ClusterSummary {
	return llm.ClusterSummary{
		Name:           cluster.Name,
		SignalCount:    cluster.SignalCount,
		MeanEngagement: cluster.MeanEngagement,
		Sentiment:      cluster.SentimentDirection,
		TopClaims:      cluster.TopClaims(topClaimsPerCluster),
	}
}

// timeValue returns the urgency tier of the cluster's most urgent member.
func timeValue(cluster *models.TopicCluster) float64 {
	hasDeveloping := false
	for _, s := range cluster.Signals {
		switch s.Urgency {
		case models.UrgencyBreaking:
			return timeValueBreaking
		case models.UrgencyDeveloping:
			hasDeveloping = true
		}
	}
	if hasDeveloping {
		return timeValueDeveloping
	}
	return timeValueSlow
}
