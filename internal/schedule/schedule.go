// Package schedule triggers repeated runs on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run. Its context is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Logger receives scheduler events.
type Logger interface {
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
}

// parser accepts standard 5-field expressions plus descriptors such as
// "@hourly" and "@every 10m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse validates a cron expression.
func Parse(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Scheduler runs a Job on a cron schedule, one run at a time. A trigger that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	expr     string
	schedule cron.Schedule
	job      Job
	logger   Logger
	runs     atomic.Int64
	skipped  atomic.Int64
}

// New creates a Scheduler for expr. logger may be nil.
func New(expr string, job Job, logger Logger) (*Scheduler, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return newScheduler(expr, sched, job, logger), nil
}

func newScheduler(expr string, sched cron.Schedule, job Job, logger Logger) *Scheduler {
	if job == nil {
		panic("schedule: nil job")
	}
	return &Scheduler{
		expr:     expr,
		schedule: sched,
		job:      job,
		logger:   logger,
	}
}

// Next returns the first activation time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Runs returns the number of completed runs.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Skipped returns the number of triggers skipped because a run was in progress.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Run starts the schedule and blocks until ctx is done. It then stops
// triggering and waits for an in-flight run to return.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(
			cron.Recover(cronLogger{s}),
			cron.SkipIfStillRunning(cronLogger{s}),
		),
	)

	c.Schedule(s.schedule, cron.FuncJob(func() { s.trigger(ctx) }))

	s.info(fmt.Sprintf("Scheduled %q, next run at %s", s.expr, s.Next(time.Now()).Format(time.RFC3339)))
	c.Start()

	<-ctx.Done()
	s.info("Stopping scheduler")
	<-c.Stop().Done()
	return nil
}

// trigger runs the job once.
func (s *Scheduler) trigger(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	n := s.runs.Add(1)
	s.info(fmt.Sprintf("Scheduled run #%d starting", n))
	if err := s.job(ctx); err != nil {
		if s.logger != nil {
			s.logger.LogError(fmt.Sprintf("Scheduled run #%d: %v", n, err))
		}
	}
	s.info(fmt.Sprintf("Next run at %s", s.Next(time.Now()).Format(time.RFC3339)))
}

func (s *Scheduler) info(msg string) {
	if s.logger != nil {
		s.logger.LogInfo(msg)
	}
}

// cronLogger adapts the scheduler's Logger to cron.Logger. The job chain
// reports skipped triggers as Info("skip") and recovered panics as Error.
type cronLogger struct {
	s *Scheduler
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg != "skip" {
		return
	}
	c.s.skipped.Add(1)
	if c.s.logger != nil {
		c.s.logger.LogWarn("Previous run still in progress, skipping this trigger")
	}
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if c.s.logger != nil {
		c.s.logger.LogError(fmt.Sprintf("%s: %v", msg, err))
	}
}
