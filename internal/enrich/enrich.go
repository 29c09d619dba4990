// Package enrich converts raw social mentions into structured, weighted
// signals via the classification collaborator.
//
// A mention is often just a tag ("@bot thoughts?") on someone else's claim:
// the context document therefore carries the full ancestor conversation and
// any quoted post, and the signal weight is taken from whichever of the
// mention, its direct parent, or the quoted post has the strongest
// engagement.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chatterbet/chatterbet/internal/llm"
	"github.com/chatterbet/chatterbet/internal/logger"
	"github.com/chatterbet/chatterbet/internal/models"
	"github.com/chatterbet/chatterbet/internal/weight"
)

// enrichBatchSize bounds concurrent classification calls per batch to respect
// collaborator rate limits.
const enrichBatchSize = 5

// Classifier is the classification collaborator dependency.
type Classifier interface {
	ClassifyMention(ctx context.Context, doc string) (llm.Parsed[llm.MentionClassification], error)
}

// Enricher classifies raw mentions into enriched signals.
type Enricher struct {
	classifier        Classifier
	minFollowers      int
	minAccountAgeDays int
	now               func() time.Time
}

// New creates an Enricher with the given trust minimums.
func New(classifier Classifier, minFollowers, minAccountAgeDays int) *Enricher {
	return &Enricher{
		classifier:        classifier,
		minFollowers:      minFollowers,
		minAccountAgeDays: minAccountAgeDays,
		now:               time.Now,
	}
}

// FilterMentions drops mentions from low-trust accounts: follower count or
// account age below the configured minimums. Pure filter, no errors.
func (e *Enricher) FilterMentions(mentions []models.RawMention) []models.RawMention {
	now := e.now()
	kept := make([]models.RawMention, 0, len(mentions))
	for _, m := range mentions {
		if m.AuthorFollowers < e.minFollowers {
			continue
		}
		if m.AuthorAccountAge(now) < time.Duration(e.minAccountAgeDays)*24*time.Hour {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// EnrichMention classifies one mention. Returns (nil, nil) when the mention
// is classified as noise, including when classification output is
// unparseable; transport errors propagate.
func (e *Enricher) EnrichMention(ctx context.Context, m *models.RawMention) (*models.EnrichedSignal, error) {
	doc := buildContextDocument(m)

	parsed, err := e.classifier.ClassifyMention(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("classification failed for mention %s: %w", m.ID, err)
	}
	if parsed.Defaulted {
		logger.Warn("Classification degraded to noise for mention %s: %s", m.ID, parsed.Note)
	}

	mc := parsed.Value
	if mc.IsNoise || models.SignalType(mc.SignalType) == models.SignalNoise {
		return nil, nil
	}

	sigType := models.SignalType(mc.SignalType)
	if !sigType.Valid() {
		logger.Warn("Unknown signal type %q for mention %s, treating as sentiment", mc.SignalType, m.ID)
		sigType = models.SignalSentiment
	}
	urgency := models.Urgency(mc.Urgency)
	if !urgency.Valid() {
		urgency = models.UrgencySlow
	}

	return &models.EnrichedSignal{
		ID:          uuid.New().String(),
		Mention:     m,
		Type:        sigType,
		Claim:       mc.CoreClaim,
		Urgency:     urgency,
		Topics:      mc.Topics,
		Weight:      weight.Engagement(bestEngagement(m)),
		ProcessedAt: e.now(),
	}, nil
}

// EnrichBatch filters, then enriches mentions with bounded concurrency.
// Per-mention failures are logged and skipped; they never abort the batch.
// Result order follows input order with noise and failures removed.
func (e *Enricher) EnrichBatch(ctx context.Context, mentions []models.RawMention) []*models.EnrichedSignal {
	filtered := e.FilterMentions(mentions)
	if len(filtered) == 0 {
		return nil
	}

	results := make([]*models.EnrichedSignal, len(filtered))

	for start := 0; start < len(filtered); start += enrichBatchSize {
		end := start + enrichBatchSize
		if end > len(filtered) {
			end = len(filtered)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(enrichBatchSize)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				signal, err := e.EnrichMention(gctx, &filtered[i])
				if err != nil {
					logger.Warn("Failed to enrich mention %s: %v", filtered[i].ID, err)
					return nil // isolate per-mention failures
				}
				results[i] = signal
				return nil
			})
		}
		_ = g.Wait()
	}

	signals := make([]*models.EnrichedSignal, 0, len(filtered))
	for _, s := range results {
		if s != nil {
			signals = append(signals, s)
		}
	}
	return signals
}

// bestEngagement picks the engagement to weight the signal by: the highest
// ranking of the mention's own, its nearest ancestor's, or the quoted post's.
func bestEngagement(m *models.RawMention) models.Engagement {
	best := m.Engagement
	bestRank := weight.EngagementRank(best)

	if len(m.Ancestors) > 0 {
		parent := m.Ancestors[len(m.Ancestors)-1].Engagement
		if r := weight.EngagementRank(parent); r > bestRank {
			best, bestRank = parent, r
		}
	}
	if m.Quoted != nil {
		if r := weight.EngagementRank(m.Quoted.Engagement); r > bestRank {
			best = m.Quoted.Engagement
		}
	}
	return best
}

// buildContextDocument concatenates, in order: the ancestor conversation
// (root first), the quoted post, and the tagging mention itself, annotated
// with where the substantive claim likely lives.
func buildContextDocument(m *models.RawMention) string {
	var b strings.Builder

	if len(m.Ancestors) > 0 {
		b.WriteString("Conversation (oldest first):\n")
		for i, a := range m.Ancestors {
			writeContextMessage(&b, fmt.Sprintf("[%d]", i+1), a.AuthorHandle, a.AuthorFollowers, a.Engagement, a.Text, a.URLs)
		}
		b.WriteString("\n")
	}

	if m.Quoted != nil {
		b.WriteString("Quoted post:\n")
		writeContextMessage(&b, "[quoted]", m.Quoted.AuthorHandle, m.Quoted.AuthorFollowers, m.Quoted.Engagement, m.Quoted.Text, m.Quoted.URLs)
		b.WriteString("\n")
	}

	b.WriteString("Tagging mention:\n")
	writeContextMessage(&b, "[mention]", m.AuthorHandle, m.AuthorFollowers, m.Engagement, m.Text, m.URLs)

	switch {
	case len(m.Ancestors) > 0 && m.Quoted != nil:
		b.WriteString("\nNote: the tagging mention is a reply that also quotes a post; the substantive claim most likely lives in the conversation above or the quoted post, not the mention itself.\n")
	case len(m.Ancestors) > 0:
		b.WriteString("\nNote: the tagging mention is a reply; the substantive claim most likely lives in the conversation above, not the mention itself.\n")
	case m.Quoted != nil:
		b.WriteString("\nNote: the tagging mention quotes another post; the substantive claim most likely lives in the quoted post, not the mention itself.\n")
	}

	return b.String()
}

func writeContextMessage(b *strings.Builder, tag, handle string, followers int, e models.Engagement, text string, urls []string) {
	fmt.Fprintf(b, "%s @%s (%d followers, %d likes/%d reshares/%d quotes): %s\n",
		tag, handle, followers, e.Likes, e.Reshares, e.QuoteShares, text)
	if len(urls) > 0 {
		fmt.Fprintf(b, "    links: %s\n", strings.Join(urls, " "))
	}
}
