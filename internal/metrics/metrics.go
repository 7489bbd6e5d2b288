// Package metrics keeps an optional sqlite history of control snapshots.
// The history is write-only from the controller's point of view.
package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/logger"
	"github.com/benbjohnson/clock"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/multierr"
)

// pruneInterval is how often expired history is deleted.
const pruneInterval = time.Hour

type service struct {
	repo      Repository
	cfg       Config
	clk       clock.Clock
	logger    logger.Logger
	scheduler gocron.Scheduler
}

type noopCollector struct{}

// NewService returns a sqlite backed collector, or a no-op one when
// collection is disabled.
func NewService(clk clock.Clock, cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return noopCollector{}, nil
	}

	repo, err := NewRepository(clk, cfg, log)
	if err != nil {
		return nil, err
	}

	s := &service{
		repo:   repo,
		cfg:    cfg,
		clk:    clk,
		logger: log,
	}

	if cfg.Retention > 0 {
		if err := s.startPruning(); err != nil {
			repo.Close()
			return nil, errFactory.Wrap(ErrStorageInit, err)
		}
	}

	return s, nil
}

func (s *service) startPruning() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(pruneInterval),
		gocron.NewTask(s.prune),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return multierr.Append(err, scheduler.Shutdown())
	}

	scheduler.Start()
	s.scheduler = scheduler

	return nil
}

// prune removes history older than the retention window.
func (s *service) prune() {
	cutoff := s.clk.Now().Add(-s.cfg.Retention)

	n, err := s.repo.Prune(cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to prune metrics history")
		return
	}
	if n > 0 {
		s.logger.Debug().Int64("rows", n).Time("before", cutoff).Msg("Pruned metrics history")
	}
}

func (s *service) Record(ctx context.Context, snapshot *ControlSnapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidSnapshot)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.Record(snapshot); err != nil {
		return errFactory.Wrap(ErrRecordFailed, err)
	}

	return nil
}

func (s *service) Close() error {
	var err error
	if s.scheduler != nil {
		err = multierr.Append(err, s.scheduler.Shutdown())
	}
	err = multierr.Append(err, s.repo.Close())

	if err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}

func (noopCollector) Record(context.Context, *ControlSnapshot) error {
	return nil
}

func (noopCollector) Close() error {
	return nil
}
