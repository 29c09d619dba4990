package models

import (
	"errors"
	"time"
)

// Sentiment directions a cluster can carry. Confidence sits near 0.5 when
// the grouping collaborator reports the narrative as mixed.
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentMixed   = "mixed"
)

// TopicCluster is a set of enriched signals sharing a narrative. Clusters
// are recomputed each cycle from recently persisted signals and are never
// stored as long-lived entities. A cluster requires at least 2 members.
type TopicCluster struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Signals             []*EnrichedSignal `json:"signals"`
	SignalCount         int               `json:"signal_count"`
	MeanEngagement      float64           `json:"mean_engagement"`
	SentimentDirection  string            `json:"sentiment_direction"`
	SentimentConfidence float64           `json:"sentiment_confidence"`
	FirstSeen           time.Time         `json:"first_seen"`
	LastUpdated         time.Time         `json:"last_updated"`
}

// Validate checks the cluster invariants.
func (c *TopicCluster) Validate() error {
	if c.ID == "" {
		return errors.New("cluster ID must not be empty")
	}
	if c.Name == "" {
		return errors.New("cluster name must not be empty")
	}
	if len(c.Signals) < 2 {
		return errors.New("cluster requires at least 2 signals")
	}
	if c.SignalCount != len(c.Signals) {
		return errors.New("signal count must match member slice length")
	}
	if c.SentimentConfidence < 0.0 || c.SentimentConfidence > 1.0 {
		return errors.New("sentiment confidence must be between 0.0 and 1.0")
	}
	return nil
}

// TopClaims returns up to n member claims ordered by signal weight
// descending, each tagged with the source handle. Used when summarizing a
// cluster for the mapping and arbitration collaborators.
func (c *TopicCluster) TopClaims(n int) []string {
	ordered := make([]*EnrichedSignal, len(c.Signals))
	copy(ordered, c.Signals)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].Weight > ordered[j-1].Weight; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	if n > len(ordered) {
		n = len(ordered)
	}
	claims := make([]string, 0, n)
	for _, s := range ordered[:n] {
		claims = append(claims, "@"+s.Mention.AuthorHandle+": "+s.Claim)
	}
	return claims
}
