package milestone

import (
	"context"
	"fmt"
	"time"

	"course-notify/internal/common/logger"

	"github.com/robfig/cron/v3"
)

type Runner interface {
	Run(ctx context.Context) (*RunReport, error)
}

// Trigger runs a Runner on a cron schedule. A tick that arrives while the
// previous run is still going is dropped.
type Trigger struct {
	cron    *cron.Cron
	entryID cron.EntryID
	runner  Runner
	logger  logger.Logger
}

func NewTrigger(spec string, loc *time.Location, runner Runner, log logger.Logger) (*Trigger, error) {
	if loc == nil {
		loc = time.UTC
	}
	log = logger.ForComponent(log, "milestone-trigger")
	cl := cronLogger{log: log}

	t := &Trigger{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		logger: log,
	}

	id, err := t.cron.AddFunc(spec, t.fire)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler cron %q: %w", spec, err)
	}
	t.entryID = id
	return t, nil
}

func (t *Trigger) Start() {
	t.cron.Start()
	t.logger.Info("milestone trigger started", map[string]interface{}{"nextRun": t.Next()})
}

// Next is the next scheduled tick, zero before Start.
func (t *Trigger) Next() time.Time {
	return t.cron.Entry(t.entryID).Next
}

// Stop prevents new ticks and waits for an in-flight run, or for ctx.
func (t *Trigger) Stop(ctx context.Context) error {
	done := t.cron.Stop()
	select {
	case <-done.Done():
		t.logger.Info("milestone trigger stopped", nil)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("milestone run still in progress: %w", ctx.Err())
	}
}

func (t *Trigger) fire() {
	// Stop waits for this run; it is never cancelled.
	if _, err := t.runner.Run(context.Background()); err != nil {
		t.logger.Error("scheduled milestone run failed", map[string]interface{}{"error": err})
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err
	l.log.Error("cron: "+msg, fields)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
