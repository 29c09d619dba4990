// Package models defines the core domain entities for the chatterbet pipeline.
// Data flows one way: raw mentions are enriched into signals, signals are
// grouped into topic clusters, clusters are mapped onto market instruments as
// edge opportunities, and the decision engine turns the best opportunities
// into trade orders.
//
// Terminology:
//   - Mention: an inbound social post that tagged the bot, with its
//     conversation context.
//   - Signal: a classified, weighted interpretation of one mention.
//   - Cluster: a set of signals sharing a narrative.
package models

import (
	"errors"
	"time"
)

// Engagement holds the raw interaction counts of a social post.
type Engagement struct {
	Likes       int `json:"likes"`
	Reshares    int `json:"reshares"`
	Replies     int `json:"replies"`
	QuoteShares int `json:"quote_shares"`
}

// ContextMessage is one message in a mention's conversation context: either
// an ancestor in the reply chain or a quoted post.
type ContextMessage struct {
	ID              string     `json:"id"`
	AuthorHandle    string     `json:"author_handle"`
	AuthorFollowers int        `json:"author_followers"`
	Text            string     `json:"text"`
	URLs            []string   `json:"urls,omitempty"`
	Engagement      Engagement `json:"engagement"`
	CreatedAt       time.Time  `json:"created_at"`
}

// RawMention is an inbound social mention as produced by the mention source.
// Immutable once fetched; consumed exactly once by the enricher.
//
// Ancestors holds the reply chain root-first, so the last element is the
// direct parent of the mention. Quoted is non-nil when the mention quotes
// another post.
type RawMention struct {
	ID              string           `json:"id"`
	AuthorHandle    string           `json:"author_handle"`
	AuthorFollowers int              `json:"author_followers"`
	AuthorCreatedAt time.Time        `json:"author_created_at"`
	Text            string           `json:"text"`
	URLs            []string         `json:"urls,omitempty"`
	Engagement      Engagement       `json:"engagement"`
	CreatedAt       time.Time        `json:"created_at"`
	ReplyToID       string           `json:"reply_to_id,omitempty"`
	Ancestors       []ContextMessage `json:"ancestors,omitempty"`
	Quoted          *ContextMessage  `json:"quoted,omitempty"`
}

// AuthorAccountAge returns the age of the author's account at time now.
func (m *RawMention) AuthorAccountAge(now time.Time) time.Duration {
	return now.Sub(m.AuthorCreatedAt)
}

// Validate checks that the mention carries the fields the pipeline relies on.
func (m *RawMention) Validate() error {
	if m.ID == "" {
		return errors.New("mention ID must not be empty")
	}
	if m.AuthorHandle == "" {
		return errors.New("author handle must not be empty")
	}
	if m.Text == "" {
		return errors.New("mention text must not be empty")
	}
	if m.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	if m.AuthorFollowers < 0 {
		return errors.New("author followers must not be negative")
	}
	return nil
}
