// Package sweeper periodically reconciles payments whose gateway callback never arrived.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	defaultInterval = time.Minute
	defaultMinAge   = 10 * time.Minute
	defaultBatch    = 100
)

var ErrInvalidConfig = errors.New("sweeper: invalid config")

// Reconciler is satisfied by travel.PaymentService.
type Reconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (travel.SweepResult, error)
}

// Config controls the sweep cadence.
type Config struct {
	Interval time.Duration
	MinAge   time.Duration
	Batch    int
}

func (config Config) withDefaults() Config {
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	if config.MinAge <= 0 {
		config.MinAge = defaultMinAge
	}
	if config.Batch <= 0 {
		config.Batch = defaultBatch
	}
	return config
}

// Sweeper runs ReconcilePending on a gocron duration job.
type Sweeper struct {
	reconciler Reconciler
	config     Config
	logger     *zap.Logger
	now        func() time.Time
	scheduler  gocron.Scheduler
}

func New(reconciler Reconciler, config Config, logger *zap.Logger) (*Sweeper, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("%w: reconciler required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		reconciler: reconciler,
		config:     config.withDefaults(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// RunOnce performs a single sweep.
func (sweeper *Sweeper) RunOnce(ctx context.Context) (travel.SweepResult, error) {
	cutoff := sweeper.now().Add(-sweeper.config.MinAge)
	result, err := sweeper.reconciler.ReconcilePending(ctx, cutoff, sweeper.config.Batch)
	fields := []zap.Field{
		zap.Time("cutoff", cutoff),
		zap.Int("examined", result.Examined),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("unavailable", result.Unavailable),
	}
	if err != nil {
		sweeper.logger.Error("pending payment sweep failed", append(fields, zap.Error(err))...)
		return result, err
	}
	if result.Examined > 0 {
		sweeper.logger.Info("pending payment sweep", fields...)
	}
	return result, nil
}

// Start schedules the sweep and returns immediately. Overlapping runs are skipped.
func (sweeper *Sweeper) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(sweeper.config.Interval),
		gocron.NewTask(func() {
			_, _ = sweeper.RunOnce(ctx)
		}),
		gocron.WithName("reconcile-pending-payments"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	sweeper.scheduler = scheduler
	scheduler.Start()
	sweeper.logger.Info("pending payment sweeper started", zap.Duration("interval", sweeper.config.Interval))
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (sweeper *Sweeper) Stop() error {
	if sweeper.scheduler == nil {
		return nil
	}
	return sweeper.scheduler.Shutdown()
}
