// Package models defines the core domain entities: coins, submission
// records, and ranked mentions.
package models

import (
	"errors"
	"time"
)

// RecordKind discriminates what a tracking record is rooted at.
// Only submissions are tracked today; comment-rooted tracking is reserved.
type RecordKind string

const (
	KindSubmission RecordKind = "submission"
	KindComment    RecordKind = "comment"
)

// Coin is a single entry of the coin catalog. Symbols are not unique:
// wrapped and pegged tokens share the symbol of the asset they track.
type Coin struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	MarketCap *int64 `json:"market_cap"`
}

// Validate checks coin field constraints.
func (c *Coin) Validate() error {
	if c.ID == "" {
		return errors.New("coin ID must not be empty")
	}
	if c.Symbol == "" {
		return errors.New("coin symbol must not be empty")
	}
	if c.Name == "" {
		return errors.New("coin name must not be empty")
	}
	return nil
}

// SubmissionRecord is the durable per-thread tracking state, keyed by the
// platform submission id. ReplyID is write-once: after the first posted
// reply every later result edits that same comment. Ignored marks a
// thread as permanently unanalyzable.
type SubmissionRecord struct {
	ID        string
	Kind      RecordKind
	ReplyID   string
	Ignored   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks record field constraints.
func (r *SubmissionRecord) Validate() error {
	if r.ID == "" {
		return errors.New("record ID must not be empty")
	}
	if r.Kind != KindSubmission && r.Kind != KindComment {
		return errors.New("record kind must be submission or comment")
	}
	return nil
}

// RankedMention is one entry of a frequency ranking: a lowercase ticker
// and the number of distinct comments that mentioned it.
type RankedMention struct {
	Ticker string
	Count  int
}
