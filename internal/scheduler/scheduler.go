// Package scheduler triggers the nightly batch on a cron schedule and
// makes sure only one run is in progress at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/agora-forum/agora/internal/jobs"
	"github.com/agora-forum/agora/pkg/config"
	"github.com/agora-forum/agora/pkg/logging"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const lockName = "nightly-batch"

// ErrAlreadyRunning is returned by RunNow when a run is in progress here
// or on another instance.
var ErrAlreadyRunning = errors.New("nightly batch already running")

// Runner executes one nightly batch.
type Runner interface {
	RunNightly(ctx context.Context) (*jobs.Summary, error)
}

// Locker provides a lock shared between instances. TryLock returns
// ok=false when another holder has it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Service owns the cron instance.
type Service struct {
	cron    *cron.Cron
	runner  Runner
	locker  Locker
	lockTTL time.Duration
	running atomic.Bool
	logger  *zap.Logger
}

// NewService parses the schedule and prepares the cron instance. locker
// may be nil for single-instance deployments.
func NewService(cfg *config.SchedulerConfig, runner Runner, locker Locker) (*Service, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone: %w", err)
	}

	logger := logging.GetLogger().With(zap.String("component", "scheduler"))
	cronLogger := cronLog{logger: logger}

	s := &Service{
		cron: cron.New(
			cron.WithParser(cron.NewParser(config.CronFields)),
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:  runner,
		locker:  locker,
		lockTTL: cfg.LockTTL,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(cfg.Spec, s.scheduledRun); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", cfg.Spec, err)
	}

	logger.Info("Nightly batch scheduled", zap.String("spec", cfg.Spec), zap.String("timezone", loc.String()))
	return s, nil
}

// Start starts the cron scheduler in the background.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running batch up to ctx.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Next returns the next scheduled run time.
func (s *Service) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Service) scheduledRun() {
	ctx := context.Background()
	if s.lockTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTTL)
		defer cancel()
	}
	if _, err := s.RunNow(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		s.logger.Error("Scheduled nightly batch failed", zap.Error(err))
	}
}

// RunNow runs the batch immediately unless one is already in progress.
func (s *Service) RunNow(ctx context.Context) (*jobs.Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, lockName, s.lockTTL)
		switch {
		case err != nil:
			// A lock backend outage must not stop the nightly pass.
			s.logger.Warn("Run lock unavailable, continuing with the local guard", zap.Error(err))
		case !ok:
			s.logger.Info("Nightly batch already running on another instance")
			return nil, ErrAlreadyRunning
		default:
			defer release()
		}
	}

	return s.runner.RunNightly(ctx)
}

// Running reports whether a batch is in progress in this process.
func (s *Service) Running() bool {
	return s.running.Load()
}

type cronLog struct {
	logger *zap.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
