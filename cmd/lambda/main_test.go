package main

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/runlog"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeRunner struct {
	job     string
	limit   int
	trigger string
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, name string, limit int) (runlog.Summary, error) {
	f.job, f.limit, f.trigger = name, limit, runlog.TriggerFrom(ctx)
	if f.err != nil {
		return runlog.Summary{Status: runlog.StatusFailed}, f.err
	}
	return runlog.Summary{Status: runlog.StatusSuccess, Processed: 4}, nil
}

func TestHandle_RunsJob(t *testing.T) {
	r := &fakeRunner{}
	sum, err := handle(context.Background(), r, Event{Job: "enrich", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSuccess, sum.Status)
	assert.Equal(t, "enrich", r.job)
	assert.Equal(t, 10, r.limit)
	assert.Equal(t, "cron", r.trigger)
}

func TestHandle_MissingJob(t *testing.T) {
	r := &fakeRunner{}
	_, err := handle(context.Background(), r, Event{})
	require.Error(t, err)
	assert.Empty(t, r.job)
}

func TestHandle_JobError(t *testing.T) {
	r := &fakeRunner{err: eris.New("boom")}
	sum, err := handle(context.Background(), r, Event{Job: "schedule"})
	require.Error(t, err)
	assert.Equal(t, runlog.StatusFailed, sum.Status)
}
