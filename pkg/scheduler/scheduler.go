package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/commandqueue"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultExpr runs a rebuild cycle every night at 03:00.
const DefaultExpr = "0 3 * * *"

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Queue is the part of the command queue the scheduler submits to.
type Queue interface {
	Busy(lane string) bool
	Submit(ctx context.Context, lane string, task commandqueue.Task, options *commandqueue.TaskOptions) (string, error)
}

// Config holds scheduler configuration
type Config struct {
	Expr     string
	Timezone string
	Queue    Queue
	Task     commandqueue.Task // the rebuild cycle
	Logger   zerolog.Logger
}

// Scheduler submits rebuild cycles to the lifecycle lane on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	entry  cron.EntryID
	queue  Queue
	task   commandqueue.Task
	logger zerolog.Logger
}

// ParseExpr validates a five-field cron expression or descriptor such as @daily.
func ParseExpr(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Queue == nil || cfg.Task == nil {
		return nil, errors.New("scheduler needs a queue and a task")
	}
	expr := cfg.Expr
	if expr == "" {
		expr = DefaultExpr
	}
	if err := ParseExpr(expr); err != nil {
		return nil, err
	}

	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
		loc = l
	}

	s := &Scheduler{
		queue:  cfg.Queue,
		task:   cfg.Task,
		logger: cfg.Logger,
	}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger: cfg.Logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: cfg.Logger})),
	)

	id, err := s.cron.AddFunc(expr, func() { _, _, _ = s.Tick(context.Background()) })
	if err != nil {
		return nil, err
	}
	s.entry = id
	return s, nil
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Time("next_run", s.Next()).Msg("Rebuild scheduler started")
}

// Stop halts the cron loop and waits for an in-flight tick to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Tick submits one rebuild cycle. It is skipped when the lifecycle lane
// already has work queued or running.
func (s *Scheduler) Tick(ctx context.Context) (jobID string, skipped bool, err error) {
	if s.queue.Busy(commandqueue.LaneLifecycle) {
		s.logger.Info().Msg("Lifecycle lane busy, skipping scheduled rebuild")
		return "", true, nil
	}

	ctx = tracing.NewCycleContext(ctx, "scheduler")
	jobID, err = s.queue.Submit(ctx, commandqueue.LaneLifecycle, s.task, &commandqueue.TaskOptions{
		Kind:      "rebuild",
		WarnAfter: 10 * time.Minute,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to submit scheduled rebuild")
		return "", false, err
	}
	s.logger.Info().Str("job_id", jobID).Msg("Scheduled rebuild submitted")
	return jobID, false, nil
}

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
