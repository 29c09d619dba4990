// Package cluster groups a window of enriched signals into named topic
// clusters via the grouping collaborator, enforcing the membership contract
// locally: the collaborator's index sets are suggestions, and this package is
// the authority on range checks, duplicate membership, and the minimum
// cluster size.
package cluster

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chatterbet/chatterbet/internal/llm"
	"github.com/chatterbet/chatterbet/internal/logger"
	"github.com/chatterbet/chatterbet/internal/models"
	"github.com/chatterbet/chatterbet/internal/weight"
)

// minClusterSize is the smallest set of signals that counts as a narrative.
const minClusterSize = 2

// Grouper is the grouping collaborator dependency.
type Grouper interface {
	GroupSignals(ctx context.Context, summaries []llm.SignalSummary) (llm.Parsed[llm.GroupingResult], error)
}

// Clusterer groups signals into topic clusters.
type Clusterer struct {
	grouper Grouper
	now     func() time.Time
}

// New creates a Clusterer.
func New(grouper Grouper) *Clusterer {
	return &Clusterer{grouper: grouper, now: time.Now}
}

// ClusterSignals groups the given signals into named topic clusters.
// Fewer than 2 input signals yields an empty result. Membership enforcement,
// regardless of what the collaborator returns: out-of-range indices are
// dropped silently, a signal already claimed by an earlier cluster stays
// there (first cluster wins, by array order), and clusters left with fewer
// than 2 resolved members are dropped.
func (c *Clusterer) ClusterSignals(ctx context.Context, signals []*models.EnrichedSignal) ([]*models.TopicCluster, error) {
	if len(signals) < minClusterSize {
		return []*models.TopicCluster{}, nil
	}

	summaries := make([]llm.SignalSummary, len(signals))
	for i, s := range signals {
		summaries[i] = llm.SignalSummary{
			Index:   i,
			Claim:   s.Claim,
			Topics:  s.Topics,
			Type:    string(s.Type),
			Urgency: string(s.Urgency),
			Weight:  s.Weight,
			Author:  s.Mention.AuthorHandle,
		}
	}

	parsed, err := c.grouper.GroupSignals(ctx, summaries)
	if err != nil {
		return nil, err
	}
	if parsed.Defaulted {
		logger.Warn("Grouping degraded to empty result: %s", parsed.Note)
		return []*models.TopicCluster{}, nil
	}

	claimed := make(map[int]bool, len(signals))
	clusters := make([]*models.TopicCluster, 0, len(parsed.Value.Clusters))

	for _, group := range parsed.Value.Clusters {
		var members []*models.EnrichedSignal
		for _, idx := range group.SignalIndices {
			if idx < 0 || idx >= len(signals) {
				continue
			}
			if claimed[idx] {
				logger.Warn("Signal index %d claimed by multiple clusters, keeping first assignment", idx)
				continue
			}
			claimed[idx] = true
			members = append(members, signals[idx])
		}
		if len(members) < minClusterSize {
			// Unclaim so a later cluster could still use these signals.
			for _, m := range members {
				for i, s := range signals {
					if s == m {
						claimed[i] = false
					}
				}
			}
			continue
		}

		clusters = append(clusters, buildCluster(group, members))
	}

	return clusters, nil
}

// Weight returns the ranking weight of a cluster: the sum over member
// signals of stored weight times the recency multiplier at now. Used only
// for ranking, never stored.
func (c *Clusterer) Weight(cluster *models.TopicCluster) float64 {
	return ClusterWeight(cluster, c.now())
}

// ClusterWeight computes the recency-adjusted cluster weight at the given
// time.
func ClusterWeight(cluster *models.TopicCluster, now time.Time) float64 {
	var total float64
	for _, s := range cluster.Signals {
		total += s.Weight * weight.Recency(s.Mention.CreatedAt, now)
	}
	return total
}

func buildCluster(group llm.ClusterGroup, members []*models.EnrichedSignal) *models.TopicCluster {
	var engagementSum float64
	firstSeen := members[0].Mention.CreatedAt
	lastUpdated := firstSeen
	for _, s := range members {
		engagementSum += float64(weight.EngagementRank(s.Mention.Engagement))
		if t := s.Mention.CreatedAt; t.Before(firstSeen) {
			firstSeen = t
		} else if t.After(lastUpdated) {
			lastUpdated = t
		}
	}

	direction := group.SentimentDirection
	switch direction {
	case models.SentimentBullish, models.SentimentBearish, models.SentimentMixed:
	default:
		direction = models.SentimentMixed
	}
	confidence := group.SentimentConfidence
	if confidence < 0.0 || confidence > 1.0 {
		confidence = 0.5
	}

	return &models.TopicCluster{
		ID:                  uuid.New().String(),
		Name:                group.Name,
		Signals:             members,
		SignalCount:         len(members),
		MeanEngagement:      engagementSum / float64(len(members)),
		SentimentDirection:  direction,
		SentimentConfidence: confidence,
		FirstSeen:           firstSeen,
		LastUpdated:         lastUpdated,
	}
}
