package chongbot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduler runs the daily raid signup check on a cron schedule,
// evaluated in the community's timezone.
type scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	logger   *slog.Logger
}

// newScheduler parses the cron expression and registers the check
// run. The cron isn't started until start is called.
func newScheduler(
	config *RaidHelperConfig,
	loc *time.Location,
	logger *slog.Logger,
	run func(ctx context.Context),
) (*scheduler, error) {
	spec := config.CheckSchedule
	if spec == "" {
		spec = DefaultCheckSchedule
	}

	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid check schedule %q: %w", spec, err)
	}

	s := &scheduler{
		schedule: schedule,
		logger:   logger.With(loggerNameKey, "scheduler"),
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronSlogLogger{logger: s.logger})),
	)
	_, err = s.cron.AddFunc(
		spec, func() {
			s.logger.Info("scheduled raid signup check starting")
			run(context.Background())
		},
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *scheduler) start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "next_run", s.next())
}

// stop halts scheduling and returns a context that is done once any
// in-flight run completes.
func (s *scheduler) stop() context.Context {
	return s.cron.Stop()
}

func (s *scheduler) next() time.Time {
	return s.schedule.Next(time.Now().In(s.cron.Location()))
}

// NextScheduledRun reports when the daily check will next fire.
func (b *ChongBot) NextScheduledRun() time.Time {
	if b.scheduler == nil {
		return time.Time{}
	}
	return b.scheduler.next()
}

// cronSlogLogger adapts slog to the cron.Logger interface, for the
// recovery chain.
type cronSlogLogger struct {
	logger *slog.Logger
}

func (c cronSlogLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Info(msg, keysAndValues...)
}

func (c cronSlogLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
