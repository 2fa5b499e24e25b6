// Package discovery ingests subsidy candidates from crawled sources, scores
// them and promotes the trustworthy ones into the catalog.
package discovery

import (
	"time"
)

// Stage is the position of an item in the discovery pipeline.
type Stage string

// Stages advance forward only: raw to validated or rejected, validated to
// promoted.
const (
	StageRaw       Stage = "raw"
	StageValidated Stage = "validated"
	StageRejected  Stage = "rejected"
	StagePromoted  Stage = "promoted"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageRaw, StageValidated, StageRejected, StagePromoted:
		return true
	}
	return false
}

// Candidate is one sighting of a subsidy program from a source.
type Candidate struct {
	SourceID    string         `json:"source_id" validate:"required"`
	Title       string         `json:"title" validate:"required"`
	Summary     string         `json:"summary,omitempty"`
	URL         string         `json:"url,omitempty"`
	RegionCode  string         `json:"region_code,omitempty"`
	MaxAmount   *int64         `json:"max_amount,omitempty"`
	Rate        string         `json:"rate,omitempty"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
	Status      string         `json:"status,omitempty"`
	Attachments []string       `json:"attachments,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Item is one row of discovery_items.
type Item struct {
	ID             string     `json:"id"`
	DedupeKey      string     `json:"dedupe_key"`
	SourceID       string     `json:"source_id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary,omitempty"`
	URL            string     `json:"url,omitempty"`
	RegionCode     string     `json:"region_code,omitempty"`
	Stage          Stage      `json:"stage"`
	QualityScore   int        `json:"quality_score"`
	ValidationNote string     `json:"validation_note,omitempty"`
	ContentHash    string     `json:"content_hash"`
	Raw            []byte     `json:"-"`
	FirstSeenAt    time.Time  `json:"first_seen_at"`
	LastSeenAt     time.Time  `json:"last_seen_at"`
	PromotedToID   *string    `json:"promoted_to_id,omitempty"`
	PromotedAt     *time.Time `json:"promoted_at,omitempty"`
}

// IngestOutcome describes what Ingest did with a candidate.
type IngestOutcome string

// Ingest outcomes.
const (
	OutcomeInserted IngestOutcome = "inserted"
	OutcomeTouched  IngestOutcome = "touched"
	OutcomeChanged  IngestOutcome = "changed"
)

// PromotionNote is recorded on every promotion log row.
const PromotionNote = "Promoted from discovery_items"
