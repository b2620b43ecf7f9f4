package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs context-aware jobs on cron specs (5-field, @descriptors or
// @every). Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func NewScheduler(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
	}
}

// Add registers job under name. Each run gets ctx and its own timeout.
func (s *Scheduler) Add(ctx context.Context, name, spec string, timeout time.Duration, job func(ctx context.Context) error) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		runCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(runCtx); err != nil {
			s.logger.Error("Scheduled job failed",
				zap.String("job", name),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(start)),
			)
			return
		}
		s.logger.Debug("Scheduled job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
	})
	if err != nil {
		return 0, fmt.Errorf("scheduling %s with %q: %w", name, spec, err)
	}
	s.logger.Info("Job scheduled", zap.String("job", name), zap.String("spec", spec))
	return id, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
