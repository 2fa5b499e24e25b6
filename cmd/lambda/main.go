// lambda runs one named job per invocation. EventBridge schedules invoke it
// with a constant input such as {"job": "enrich"}.
package main

import (
	"context"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/app"
	"github.com/sells-group/grantwatch/internal/config"
	"github.com/sells-group/grantwatch/internal/runlog"
)

// Event is the scheduled invocation payload.
type Event struct {
	Job   string `json:"job"`
	Limit int    `json:"limit,omitempty"`
}

// Runner runs a named job.
type Runner interface {
	Run(ctx context.Context, name string, limit int) (runlog.Summary, error)
}

var (
	runner  Runner
	initErr error
	once    sync.Once
)

func getRunner(ctx context.Context) (Runner, error) {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			initErr = err
			return
		}
		// The pool stays open across warm invocations.
		a, err := app.New(context.WithoutCancel(ctx), cfg, "lambda")
		if err != nil {
			initErr = err
			return
		}
		runner = a.Jobs
	})
	return runner, initErr
}

func handle(ctx context.Context, r Runner, ev Event) (runlog.Summary, error) {
	if ev.Job == "" {
		return runlog.Summary{}, eris.New("lambda: event has no job")
	}
	ctx = runlog.WithTrigger(ctx, "cron")
	sum, err := r.Run(ctx, ev.Job, ev.Limit)
	if err != nil {
		return sum, err
	}
	zap.L().Info("lambda: job complete",
		zap.String("job", ev.Job),
		zap.String("status", string(sum.Status)),
		zap.Int("processed", sum.Processed),
	)
	return sum, nil
}

func handler(ctx context.Context, ev Event) (runlog.Summary, error) {
	r, err := getRunner(ctx)
	if err != nil {
		return runlog.Summary{}, eris.Wrap(err, "lambda: init")
	}
	return handle(ctx, r, ev)
}

func main() {
	awslambda.Start(handler)
}
