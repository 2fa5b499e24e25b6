// Package runlog records one audit row per scheduled or manual job run and
// accumulates per-item outcomes while the run executes.
package runlog

import (
	"fmt"
	"sync"
)

// Status is the final state of a run.
type Status string

// Run statuses.
const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// MaxErrors bounds the error messages kept per run.
const MaxErrors = 100

// Batch accumulates counters and errors for one run. It is safe for
// concurrent use.
type Batch struct {
	mu sync.Mutex

	RunID      string
	Processed  int
	Inserted   int
	Updated    int
	Skipped    int
	ErrorCount int
	Errors     []string
	Metadata   map[string]any

	started bool
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{Metadata: map[string]any{}}
}

// Started marks that item processing has begun. Errors after this point make
// the run partial rather than failed.
func (b *Batch) Started() {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
}

// IsStarted reports whether Started was called.
func (b *Batch) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Process counts one handled item.
func (b *Batch) Process() {
	b.mu.Lock()
	b.Processed++
	b.mu.Unlock()
}

// Insert counts one inserted item.
func (b *Batch) Insert() {
	b.mu.Lock()
	b.Inserted++
	b.mu.Unlock()
}

// Update counts one updated item.
func (b *Batch) Update() {
	b.mu.Lock()
	b.Updated++
	b.mu.Unlock()
}

// Skip counts one skipped item.
func (b *Batch) Skip() {
	b.mu.Lock()
	b.Skipped++
	b.mu.Unlock()
}

// Fail records an item failure and counts it as skipped.
func (b *Batch) Fail(id string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Skipped++
	b.addErrorLocked(fmt.Sprintf("%s: %v", id, err))
}

// AddError records a run-level error message without touching item counters.
func (b *Batch) AddError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addErrorLocked(msg)
}

func (b *Batch) addErrorLocked(msg string) {
	b.ErrorCount++
	if len(b.Errors) < MaxErrors {
		b.Errors = append(b.Errors, msg)
	}
}

// Set stores a metadata value.
func (b *Batch) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	b.Metadata[key] = value
}

// Add increments an integer metadata counter.
func (b *Batch) Add(key string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	cur, _ := b.Metadata[key].(int)
	b.Metadata[key] = cur + n
}

// Counter returns an integer metadata counter.
func (b *Batch) Counter(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, _ := b.Metadata[key].(int)
	return n
}

// Status derives the run status. A fatal error before processing started
// fails the run; any error after that makes it partial.
func (b *Batch) Status(fatal error) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case fatal != nil && !b.started:
		return StatusFailed
	case fatal != nil || b.ErrorCount > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

// Snapshot returns a copy of the counters safe to serialise.
func (b *Batch) Snapshot() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	meta := make(map[string]any, len(b.Metadata))
	for k, v := range b.Metadata {
		meta[k] = v
	}
	return Summary{
		RunID:      b.RunID,
		Processed:  b.Processed,
		Inserted:   b.Inserted,
		Updated:    b.Updated,
		Skipped:    b.Skipped,
		ErrorCount: b.ErrorCount,
		Errors:     append([]string(nil), b.Errors...),
		Metadata:   meta,
	}
}

// Summary is a point-in-time copy of a Batch.
type Summary struct {
	RunID      string         `json:"run_id,omitempty"`
	Status     Status         `json:"status,omitempty"`
	Processed  int            `json:"items_processed"`
	Inserted   int            `json:"items_inserted"`
	Updated    int            `json:"items_updated"`
	Skipped    int            `json:"items_skipped"`
	ErrorCount int            `json:"error_count"`
	Errors     []string       `json:"errors,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
