// Package domainpolicy implements the per-domain circuit breaker consulted
// before any crawl job is enqueued or any page is fetched.
package domainpolicy

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/db"
)

// Policy is one row of domain_policy.
type Policy struct {
	DomainKey     string
	Enabled       bool
	BlockedReason string
	SuccessCount  int64
	FailureCount  int64
	LastErrorCode string
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
}

// Guard reads and updates domain_policy. Reads fail open and writes never
// return errors, so callers always have a safe default path.
type Guard struct {
	pool db.Pool
	now  func() time.Time
}

// NewGuard creates a Guard backed by pool.
func NewGuard(pool db.Pool) *Guard {
	return &Guard{pool: pool, now: time.Now}
}

// IsBlocked reports whether an operator disabled the domain. A missing row or
// a failed query counts as not blocked.
func (g *Guard) IsBlocked(ctx context.Context, domainKey string) bool {
	var enabled bool
	err := g.pool.QueryRow(ctx,
		`SELECT enabled FROM domain_policy WHERE domain_key = $1`,
		domainKey,
	).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	if err != nil {
		zap.L().Warn("domainpolicy: lookup failed, allowing domain",
			zap.String("domain", domainKey), zap.Error(err))
		return false
	}
	return !enabled
}

// RecordSuccess increments the success counter, creating the row on first use.
func (g *Guard) RecordSuccess(ctx context.Context, domainKey string) {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO domain_policy (domain_key, success_count, last_success_at, updated_at)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (domain_key) DO UPDATE SET
			success_count = domain_policy.success_count + 1,
			last_success_at = EXCLUDED.last_success_at,
			updated_at = EXCLUDED.updated_at`,
		domainKey, g.now().UTC(),
	)
	if err != nil {
		zap.L().Warn("domainpolicy: record success failed",
			zap.String("domain", domainKey), zap.Error(err))
	}
}

// RecordFailure increments the failure counter, creating the row on first
// use. It never disables the domain.
func (g *Guard) RecordFailure(ctx context.Context, domainKey, errorCode string) {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO domain_policy (domain_key, failure_count, last_error_code, last_failure_at, updated_at)
		VALUES ($1, 1, $2, $3, $3)
		ON CONFLICT (domain_key) DO UPDATE SET
			failure_count = domain_policy.failure_count + 1,
			last_error_code = EXCLUDED.last_error_code,
			last_failure_at = EXCLUDED.last_failure_at,
			updated_at = EXCLUDED.updated_at`,
		domainKey, errorCode, g.now().UTC(),
	)
	if err != nil {
		zap.L().Warn("domainpolicy: record failure failed",
			zap.String("domain", domainKey), zap.String("code", errorCode), zap.Error(err))
	}
}

// SetEnabled is the operator switch. It is the only path that changes enabled.
func (g *Guard) SetEnabled(ctx context.Context, domainKey string, enabled bool, reason string) error {
	if domainKey == "" {
		return eris.New("domainpolicy: domain key is required")
	}
	if enabled {
		reason = ""
	}
	_, err := g.pool.Exec(ctx, `
		INSERT INTO domain_policy (domain_key, enabled, blocked_reason, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (domain_key) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			blocked_reason = EXCLUDED.blocked_reason,
			updated_at = EXCLUDED.updated_at`,
		domainKey, enabled, reason, g.now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "domainpolicy: set enabled for %s", domainKey)
	}
	return nil
}

const policyColumns = `domain_key, enabled, blocked_reason, success_count, failure_count,
	last_error_code, last_success_at, last_failure_at`

// List returns policies ordered by failure count, worst first.
func (g *Guard) List(ctx context.Context, limit int) ([]Policy, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM domain_policy ORDER BY failure_count DESC, domain_key LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "domainpolicy: list")
	}
	return scanPolicies(rows)
}

// Failing returns enabled domains with at least minFailures failures whose
// latest failure is after since and newer than their latest success.
func (g *Guard) Failing(ctx context.Context, minFailures int64, since time.Time) ([]Policy, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT `+policyColumns+` FROM domain_policy
		WHERE enabled
		  AND failure_count >= $1
		  AND last_failure_at >= $2
		  AND (last_success_at IS NULL OR last_success_at < last_failure_at)
		ORDER BY failure_count DESC`,
		minFailures, since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "domainpolicy: failing")
	}
	return scanPolicies(rows)
}

func scanPolicies(rows pgx.Rows) ([]Policy, error) {
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(
			&p.DomainKey, &p.Enabled, &p.BlockedReason, &p.SuccessCount, &p.FailureCount,
			&p.LastErrorCode, &p.LastSuccessAt, &p.LastFailureAt,
		); err != nil {
			return nil, eris.Wrap(err, "domainpolicy: scan")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "domainpolicy: rows")
	}
	return out, nil
}
