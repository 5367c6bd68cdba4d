package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Normalizer repairs every wishlist holding more than one product of a category.
type Normalizer interface {
	NormalizeAll(ctx context.Context) (int, error)
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NormalizeSweep runs the wishlist normalization on a cron schedule.
// A run still in progress when the next one fires causes that one to be skipped.
type NormalizeSweep struct {
	normalizer Normalizer
	timeout    time.Duration
	sched      *cron.Cron
	logger     *slog.Logger
}

// NewNormalizeSweep parses schedule and registers the sweep. Each run is
// bounded by timeout.
func NewNormalizeSweep(n Normalizer, schedule string, loc *time.Location, timeout time.Duration, logger *slog.Logger) (*NormalizeSweep, error) {
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{logger: logger}
	s := &NormalizeSweep{
		normalizer: n,
		timeout:    timeout,
		logger:     logger,
		sched: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}

	if _, err := s.sched.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule wishlist normalization %q: %w", schedule, err)
	}

	return s, nil
}

// Start begins firing the schedule in the background.
func (s *NormalizeSweep) Start() {
	s.sched.Start()
	s.logger.Info("wishlist normalization sweep scheduled")
}

// Stop prevents further runs and waits for a running sweep to finish or ctx to end.
func (s *NormalizeSweep) Stop(ctx context.Context) error {
	done := s.sched.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single sweep and returns the number of wishlists changed.
func (s *NormalizeSweep) RunOnce(ctx context.Context) int {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	changed, err := s.normalizer.NormalizeAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "wishlist normalization sweep finished with errors",
			slog.Int("changed", changed),
			slog.String("error", err.Error()),
		)
		return changed
	}

	s.logger.InfoContext(ctx, "wishlist normalization sweep finished",
		slog.Int("changed", changed),
		slog.Duration("duration", time.Since(start)),
	)
	return changed
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
