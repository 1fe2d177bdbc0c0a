package trustscore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const recoverySchedule = "@every 1m"

// Scheduler runs the periodic quota refill and the resolver recovery sweep
type Scheduler struct {
	cron     *cron.Cron
	engine   *Engine
	resolver *Resolver
	logger   *zap.Logger
}

// NewScheduler registers the refill job on refillSpec and the recovery sweep
func NewScheduler(ctx context.Context, refillSpec string, engine *Engine, resolver *Resolver, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		engine:   engine,
		resolver: resolver,
		logger:   logger.Named("scheduler"),
	}

	if _, err := s.cron.AddFunc(refillSpec, func() { s.refill(ctx) }); err != nil {
		return nil, errors.Wrapf(err, "invalid refill schedule %q", refillSpec)
	}
	if _, err := s.cron.AddFunc(recoverySchedule, func() { s.recover(ctx) }); err != nil {
		return nil, errors.Wrap(err, "failed to schedule resolver recovery")
	}

	return s, nil
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop stops scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) refill(ctx context.Context) {
	if _, err := s.engine.RefillQuotas(ctx); err != nil {
		s.logger.Error("Quota refill failed", zap.Error(err))
	}
}

func (s *Scheduler) recover(ctx context.Context) {
	if err := s.resolver.Recover(ctx); err != nil {
		s.logger.Error("Resolver recovery failed", zap.Error(err))
	}
}
