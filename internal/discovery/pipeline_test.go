package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/runlog"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline(store Store) *Pipeline {
	p := NewPipeline(store, nil, DefaultConfig())
	p.now = func() time.Time { return testNow }
	return p
}

func scenarioCandidate() Candidate {
	return Candidate{
		SourceID: "src-jnet21",
		Title:    "令和8年度ものづくり補助金公募",
		Summary:  "中小企業の設備投資を支援",
		URL:      "https://j-net21.smrj.go.jp/snavi/articles/1",
	}
}

func TestIngest_Insert(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store)

	out, it, err := p.Ingest(context.Background(), scenarioCandidate())
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, out)
	assert.Equal(t, StageRaw, it.Stage)
	assert.Equal(t, testNow, it.FirstSeenAt)
	assert.Len(t, store.items, 1)
}

func TestIngest_UnchangedOnlyTouches(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store)
	ctx := context.Background()

	_, first, err := p.Ingest(ctx, scenarioCandidate())
	require.NoError(t, err)

	later := testNow.Add(time.Hour)
	p.now = func() time.Time { return later }
	out, it, err := p.Ingest(ctx, scenarioCandidate())
	require.NoError(t, err)

	assert.Equal(t, OutcomeTouched, out)
	assert.Equal(t, first.ID, it.ID)
	assert.Equal(t, 1, store.touches)
	assert.Equal(t, 0, store.refreshes)
	assert.Equal(t, later, store.items[first.ID].LastSeenAt)
	assert.Equal(t, testNow, store.items[first.ID].FirstSeenAt)
}

func TestIngest_ChangedResetsToRaw(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store)
	ctx := context.Background()

	_, it, err := p.Ingest(ctx, scenarioCandidate())
	require.NoError(t, err)
	_, err = p.Validate(ctx, store.items[it.ID])
	require.NoError(t, err)
	require.Equal(t, StageValidated, store.items[it.ID].Stage)

	c := scenarioCandidate()
	c.Summary = "公募期間を延長"
	out, changed, err := p.Ingest(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, OutcomeChanged, out)
	assert.Equal(t, StageRaw, changed.Stage)
	assert.Equal(t, "公募期間を延長", store.items[it.ID].Summary)
	assert.Equal(t, 1, store.refreshes)
}

func TestIngest_ChangedKeepsPromoted(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store)
	ctx := context.Background()

	_, it, err := p.Ingest(ctx, scenarioCandidate())
	require.NoError(t, err)
	store.items[it.ID].Stage = StagePromoted

	c := scenarioCandidate()
	c.Rate = "2/3"
	out, changed, err := p.Ingest(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, OutcomeChanged, out)
	assert.Equal(t, StagePromoted, changed.Stage)
}

func TestIngest_RejectsIncompleteCandidate(t *testing.T) {
	p := newTestPipeline(newMockStore())

	_, _, err := p.Ingest(context.Background(), Candidate{Title: "x"})
	assert.Error(t, err)
	_, _, err = p.Ingest(context.Background(), Candidate{SourceID: "s"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store)
	ctx := context.Background()

	_, good, err := p.Ingest(ctx, scenarioCandidate())
	require.NoError(t, err)
	_, bad, err := p.Ingest(ctx, Candidate{SourceID: "s", Title: "短い", URL: "https://a.go.jp/1"})
	require.NoError(t, err)

	stage, err := p.Validate(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, StageValidated, stage)
	assert.Equal(t, 80, good.QualityScore)
	assert.Equal(t, "Auto-validated: score=80", good.ValidationNote)

	stage, err = p.Validate(ctx, bad)
	require.NoError(t, err)
	assert.Equal(t, StageRejected, stage)
	assert.Equal(t, "Rejected: score=20 (min=50)", bad.ValidationNote)

	_, err = p.Validate(ctx, good)
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestPromote_RequiresValidated(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store)

	_, err := p.Promote(context.Background(), &Item{ID: "x", Stage: StageRaw})
	assert.ErrorIs(t, err, ErrNotValidated)
	assert.Empty(t, store.promoted)
}

func TestPromote_BuildsEntryAndCallsHook(t *testing.T) {
	store := newMockStore()
	hook := &recordingHook{}
	p := newTestPipeline(store).WithEntryHook(hook)
	ctx := context.Background()

	amount := int64(12_500_000)
	c := scenarioCandidate()
	c.MaxAmount = &amount
	c.Rate = "1/2"
	_, it, err := p.Ingest(ctx, c)
	require.NoError(t, err)
	_, err = p.Validate(ctx, it)
	require.NoError(t, err)

	entry, err := p.Promote(ctx, it)
	require.NoError(t, err)

	assert.Equal(t, it.ID, entry.ID)
	assert.Equal(t, "src-jnet21", entry.Source)
	assert.Equal(t, amount, *entry.Fields.MaxAmount)
	assert.Equal(t, "1/2", entry.Fields.Rate)
	assert.Equal(t, c.Summary, entry.Fields.Overview)
	assert.Equal(t, testNow.Add(7*24*time.Hour), entry.ExpiresAt)
	assert.Equal(t, StagePromoted, it.Stage)
	require.NotNil(t, it.PromotedToID)
	assert.Equal(t, it.ID, *it.PromotedToID)
	assert.Equal(t, []string{it.ID}, hook.ids)
}

func TestPromote_FailureLeavesItemValidated(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store)
	ctx := context.Background()

	_, it, err := p.Ingest(ctx, scenarioCandidate())
	require.NoError(t, err)
	_, err = p.Validate(ctx, it)
	require.NoError(t, err)

	store.promoteErr = errors.New("catalog write failed")
	_, err = p.Promote(ctx, it)
	require.Error(t, err)
	assert.Equal(t, StageValidated, it.Stage)
	assert.Nil(t, it.PromotedToID)
	assert.Equal(t, StageValidated, store.items[it.ID].Stage)
}

func TestPromote_HookErrorIsNotFatal(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store).WithEntryHook(&recordingHook{err: errors.New("readiness down")})
	ctx := context.Background()

	_, it, err := p.Ingest(ctx, scenarioCandidate())
	require.NoError(t, err)
	_, err = p.Validate(ctx, it)
	require.NoError(t, err)

	_, err = p.Promote(ctx, it)
	assert.NoError(t, err)
}

func TestPromoteSweep(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store)
	ctx := context.Background()

	_, _, err := p.Ingest(ctx, scenarioCandidate())
	require.NoError(t, err)
	_, _, err = p.Ingest(ctx, Candidate{SourceID: "s", Title: "短い", URL: "https://a.go.jp/2"})
	require.NoError(t, err)

	s, err := p.PromoteSweep(ctx, 100, 100)
	require.NoError(t, err)

	assert.Equal(t, runlog.StatusSuccess, s.Status)
	assert.Equal(t, 1, s.Metadata["validated"])
	assert.Equal(t, 1, s.Metadata["rejected"])
	assert.Equal(t, 1, s.Metadata["promoted"])
	assert.Equal(t, 1, s.Inserted)
	assert.Equal(t, 3, s.Processed)
	assert.Len(t, store.promoted, 1)

	counts, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Stage]int{StagePromoted: 1, StageRejected: 1}, counts)
}

func TestPromoteSweep_PartialOnItemFailure(t *testing.T) {
	store := newMockStore()
	p := newTestPipeline(store)
	ctx := context.Background()

	_, _, err := p.Ingest(ctx, scenarioCandidate())
	require.NoError(t, err)
	store.promoteErr = errors.New("tx aborted")

	s, err := p.PromoteSweep(ctx, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusPartial, s.Status)
	assert.Equal(t, 1, s.ErrorCount)
}

func TestValidateSweep_ListFailureFails(t *testing.T) {
	store := newMockStore()
	store.listErr = errors.New("db down")
	p := newTestPipeline(store)

	s, err := p.ValidateSweep(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, runlog.StatusFailed, s.Status)
}
