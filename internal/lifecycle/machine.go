package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/db"
)

// Record is one row of lifecycle_records.
type Record struct {
	EntryID            string
	Status             Status
	Priority           int
	NextCheckAt        time.Time
	CheckFrequency     Frequency
	CloseReason        string
	CloseEvidenceURL   string
	CloseEvidenceQuote string
}

// Outcome is the result of one evaluation.
type Outcome struct {
	Prev        Status
	Status      Status
	Changed     bool
	NextCheckAt time.Time
	Frequency   Frequency
}

// Machine persists lifecycle decisions.
type Machine struct {
	pool db.Pool
	now  func() time.Time
}

// NewMachine creates a Machine backed by pool.
func NewMachine(pool db.Pool) *Machine {
	return &Machine{pool: pool, now: time.Now}
}

// Evaluate applies ev to the entry's record in one transaction. The record's
// next_check_at is always advanced; a history row is written only when the
// status changes.
func (m *Machine) Evaluate(ctx context.Context, entryID string, ev Evidence) (Outcome, error) {
	now := m.now().UTC()
	var out Outcome

	err := db.WithTx(ctx, m.pool, func(tx pgx.Tx) error {
		prev, priority, err := currentRecord(ctx, tx, entryID)
		if err != nil {
			return err
		}

		d := Decide(prev, ev, now)
		out = Outcome{
			Prev:        prev,
			Status:      d.Status,
			Changed:     d.Status != prev,
			NextCheckAt: NextCheckAt(d.Status, priority, now),
			Frequency:   FrequencyOf(d.Status, priority),
		}

		var reason, evURL, evQuote string
		if IsClosed(d.Status) || d.Status == StatusSuspended {
			reason, evURL, evQuote = d.Reason, d.EvidenceURL, d.EvidenceQuote
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO lifecycle_records (entry_id, status, priority, next_check_at, check_frequency,
				close_reason, close_evidence_url, close_evidence_quote, last_checked_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			ON CONFLICT (entry_id) DO UPDATE SET
				status = EXCLUDED.status,
				next_check_at = EXCLUDED.next_check_at,
				check_frequency = EXCLUDED.check_frequency,
				close_reason = CASE WHEN EXCLUDED.close_reason = '' AND lifecycle_records.status = EXCLUDED.status
					THEN lifecycle_records.close_reason ELSE EXCLUDED.close_reason END,
				close_evidence_url = CASE WHEN EXCLUDED.close_reason = '' AND lifecycle_records.status = EXCLUDED.status
					THEN lifecycle_records.close_evidence_url ELSE EXCLUDED.close_evidence_url END,
				close_evidence_quote = CASE WHEN EXCLUDED.close_reason = '' AND lifecycle_records.status = EXCLUDED.status
					THEN lifecycle_records.close_evidence_quote ELSE EXCLUDED.close_evidence_quote END,
				last_checked_at = EXCLUDED.last_checked_at,
				updated_at = EXCLUDED.updated_at`,
			entryID, string(d.Status), priority, out.NextCheckAt, string(out.Frequency),
			reason, evURL, evQuote, now,
		); err != nil {
			return eris.Wrapf(err, "lifecycle: upsert record %s", entryID)
		}

		if !out.Changed {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO lifecycle_history (id, entry_id, prev_status, new_status, reason, evidence_url, evidence_quote, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.NewString(), entryID, string(prev), string(d.Status), d.Reason, d.EvidenceURL, d.EvidenceQuote, now,
		); err != nil {
			return eris.Wrapf(err, "lifecycle: append history %s", entryID)
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if out.Changed {
		zap.L().Info("lifecycle: status changed",
			zap.String("entry_id", entryID),
			zap.String("from", string(out.Prev)),
			zap.String("to", string(out.Status)),
			zap.Time("next_check_at", out.NextCheckAt),
		)
	}
	return out, nil
}

// Suspend forces the entry into suspended.
func (m *Machine) Suspend(ctx context.Context, entryID, reason string) (Outcome, error) {
	return m.Evaluate(ctx, entryID, Evidence{Suspend: true, Reason: reason})
}

// Resume lifts a suspension. The entry returns to unknown until new evidence
// arrives.
func (m *Machine) Resume(ctx context.Context, entryID string) (Outcome, error) {
	return m.Evaluate(ctx, entryID, Evidence{Resume: true})
}

// Get returns the entry's record.
func (m *Machine) Get(ctx context.Context, entryID string) (*Record, error) {
	var r Record
	var status, freq string
	err := m.pool.QueryRow(ctx, `
		SELECT entry_id, status, priority, next_check_at, check_frequency,
			close_reason, close_evidence_url, close_evidence_quote
		FROM lifecycle_records WHERE entry_id = $1`,
		entryID,
	).Scan(&r.EntryID, &status, &r.Priority, &r.NextCheckAt, &freq,
		&r.CloseReason, &r.CloseEvidenceURL, &r.CloseEvidenceQuote)
	if err != nil {
		return nil, eris.Wrapf(err, "lifecycle: get %s", entryID)
	}
	r.Status = Status(status)
	r.CheckFrequency = Frequency(freq)
	return &r, nil
}

// EnsureRecord creates an unknown record for a newly promoted entry. It runs
// on q so promotion can include it in its transaction.
func EnsureRecord(ctx context.Context, q db.Querier, entryID string, priority int, now time.Time) error {
	if priority <= 0 {
		priority = DefaultPriority
	}
	_, err := q.Exec(ctx, `
		INSERT INTO lifecycle_records (entry_id, status, priority, next_check_at, check_frequency, updated_at)
		VALUES ($1, 'unknown', $2, $3, $4, $5)
		ON CONFLICT (entry_id) DO NOTHING`,
		entryID, priority, NextCheckAt(StatusUnknown, priority, now), string(FrequencyOf(StatusUnknown, priority)), now,
	)
	if err != nil {
		return eris.Wrapf(err, "lifecycle: ensure record %s", entryID)
	}
	return nil
}

func currentRecord(ctx context.Context, q db.Querier, entryID string) (Status, int, error) {
	var status string
	var priority int
	err := q.QueryRow(ctx,
		`SELECT status, priority FROM lifecycle_records WHERE entry_id = $1 FOR UPDATE`,
		entryID,
	).Scan(&status, &priority)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusUnknown, DefaultPriority, nil
	}
	if err != nil {
		return "", 0, eris.Wrapf(err, "lifecycle: load record %s", entryID)
	}
	if priority <= 0 {
		priority = DefaultPriority
	}
	return Status(status), priority, nil
}
