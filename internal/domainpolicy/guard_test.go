package domainpolicy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestGuard(t *testing.T) (*Guard, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	g := NewGuard(mock)
	g.now = func() time.Time { return fixedNow }
	return g, mock
}

func TestIsBlocked_NoRowFailsOpen(t *testing.T) {
	g, mock := newTestGuard(t)

	mock.ExpectQuery("SELECT enabled FROM domain_policy").
		WithArgs("meti.go.jp").
		WillReturnRows(pgxmock.NewRows([]string{"enabled"}))

	assert.False(t, g.IsBlocked(context.Background(), "meti.go.jp"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsBlocked_QueryErrorFailsOpen(t *testing.T) {
	g, mock := newTestGuard(t)

	mock.ExpectQuery("SELECT enabled FROM domain_policy").
		WithArgs("meti.go.jp").
		WillReturnError(errors.New("connection reset"))

	assert.False(t, g.IsBlocked(context.Background(), "meti.go.jp"))
}

func TestIsBlocked_Disabled(t *testing.T) {
	g, mock := newTestGuard(t)

	mock.ExpectQuery("SELECT enabled FROM domain_policy").
		WithArgs("bad.example.com").
		WillReturnRows(pgxmock.NewRows([]string{"enabled"}).AddRow(false))

	assert.True(t, g.IsBlocked(context.Background(), "bad.example.com"))
}

func TestIsBlocked_Enabled(t *testing.T) {
	g, mock := newTestGuard(t)

	mock.ExpectQuery("SELECT enabled FROM domain_policy").
		WithArgs("ok.example.com").
		WillReturnRows(pgxmock.NewRows([]string{"enabled"}).AddRow(true))

	assert.False(t, g.IsBlocked(context.Background(), "ok.example.com"))
}

func TestRecordSuccess_Upserts(t *testing.T) {
	g, mock := newTestGuard(t)

	mock.ExpectExec("INSERT INTO domain_policy").
		WithArgs("meti.go.jp", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	g.RecordSuccess(context.Background(), "meti.go.jp")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailure_Upserts(t *testing.T) {
	g, mock := newTestGuard(t)

	mock.ExpectExec("failure_count = domain_policy.failure_count \\+ 1").
		WithArgs("meti.go.jp", "HTTP_503", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	g.RecordFailure(context.Background(), "meti.go.jp", "HTTP_503")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailure_ErrorSwallowed(t *testing.T) {
	g, mock := newTestGuard(t)

	mock.ExpectExec("INSERT INTO domain_policy").
		WithArgs("meti.go.jp", "TIMEOUT", fixedNow).
		WillReturnError(errors.New("db down"))

	assert.NotPanics(t, func() {
		g.RecordFailure(context.Background(), "meti.go.jp", "TIMEOUT")
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetEnabled(t *testing.T) {
	g, mock := newTestGuard(t)

	mock.ExpectExec("INSERT INTO domain_policy").
		WithArgs("bad.example.com", false, "robots violation", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO domain_policy").
		WithArgs("bad.example.com", true, "", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, g.SetEnabled(context.Background(), "bad.example.com", false, "robots violation"))
	require.NoError(t, g.SetEnabled(context.Background(), "bad.example.com", true, "ignored"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetEnabled_RequiresKey(t *testing.T) {
	g, _ := newTestGuard(t)
	err := g.SetEnabled(context.Background(), "", false, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain key is required")
}

func policyRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"domain_key", "enabled", "blocked_reason", "success_count", "failure_count",
		"last_error_code", "last_success_at", "last_failure_at",
	})
}

func TestList(t *testing.T) {
	g, mock := newTestGuard(t)

	failed := fixedNow.Add(-time.Hour)
	mock.ExpectQuery("SELECT domain_key, enabled").
		WithArgs(20).
		WillReturnRows(policyRows().
			AddRow("bad.example.com", true, "", int64(2), int64(14), "HTTP_500", nil, &failed).
			AddRow("meti.go.jp", true, "", int64(40), int64(0), "", nil, nil))

	got, err := g.List(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bad.example.com", got[0].DomainKey)
	assert.Equal(t, int64(14), got[0].FailureCount)
	require.NotNil(t, got[0].LastFailureAt)
	assert.True(t, failed.Equal(*got[0].LastFailureAt))
	assert.Nil(t, got[1].LastFailureAt)
}

func TestFailing(t *testing.T) {
	g, mock := newTestGuard(t)

	since := fixedNow.Add(-24 * time.Hour)
	mock.ExpectQuery("FROM domain_policy").
		WithArgs(int64(10), since).
		WillReturnRows(policyRows())

	got, err := g.Failing(context.Background(), 10, since)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
