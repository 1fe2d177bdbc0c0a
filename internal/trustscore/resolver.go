package trustscore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vantage/internal/events"
	"vantage/internal/metrics"
	"vantage/internal/models"
)

// Resolver scores accepted calculation requests on a bounded worker pool
type Resolver struct {
	store     Store
	signals   SignalSource
	scorer    *Scorer
	cache     *ScoreCache
	publisher events.Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger

	validity time.Duration
	workers  int
	queue    chan models.CalculationRequest
	inflight sync.Map
	wg       sync.WaitGroup
}

// ResolverConfig configures a Resolver
type ResolverConfig struct {
	Workers       int
	QueueSize     int
	ScoreValidity time.Duration
}

// NewResolver creates a resolver. Start must be called before requests are processed.
func NewResolver(
	store Store,
	signals SignalSource,
	scorer *Scorer,
	cache *ScoreCache,
	publisher events.Publisher,
	collector *metrics.Collector,
	cfg ResolverConfig,
	logger *zap.Logger,
) *Resolver {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Resolver{
		store:     store,
		signals:   signals,
		scorer:    scorer,
		cache:     cache,
		publisher: publisher,
		metrics:   collector,
		logger:    logger.Named("resolver"),
		validity:  cfg.ScoreValidity,
		workers:   cfg.Workers,
		queue:     make(chan models.CalculationRequest, cfg.QueueSize),
	}
}

// Start launches the workers and re-enqueues requests left processing by a previous run.
// Workers stop when ctx is cancelled; Wait blocks until they have.
func (r *Resolver) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx)
	}

	if err := r.Recover(ctx); err != nil {
		r.logger.Error("Failed to recover pending calculation requests", zap.Error(err))
	}

	r.logger.Info("Resolver started", zap.Int("workers", r.workers))
}

// Wait blocks until every worker has exited
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Enqueue hands req to the workers without blocking. It reports false when the queue is
// full; the request stays processing and is picked up by the next Recover.
func (r *Resolver) Enqueue(req models.CalculationRequest) bool {
	if _, loaded := r.inflight.LoadOrStore(req.ID, struct{}{}); loaded {
		return true
	}

	select {
	case r.queue <- req:
		r.metrics.SetResolverQueueDepth(len(r.queue))
		return true
	default:
		r.inflight.Delete(req.ID)
		r.logger.Warn("Resolver queue full, deferring calculation request",
			zap.String("request_id", req.ID))
		return false
	}
}

// Recover re-enqueues requests that are still processing
func (r *Resolver) Recover(ctx context.Context) error {
	pending, err := r.store.ListProcessing(ctx, cap(r.queue))
	if err != nil {
		return err
	}

	requeued := 0
	for _, req := range pending {
		if r.Enqueue(req) {
			requeued++
		}
	}
	if requeued > 0 {
		r.logger.Info("Re-enqueued pending calculation requests", zap.Int("count", requeued))
	}
	return nil
}

func (r *Resolver) work(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.queue:
			r.metrics.SetResolverQueueDepth(len(r.queue))
			if err := r.Resolve(ctx, req); err != nil {
				r.logger.Error("Calculation failed",
					zap.String("request_id", req.ID),
					zap.String("user_id", req.UserID),
					zap.Error(err))
			}
			r.inflight.Delete(req.ID)
		}
	}
}

// Resolve scores one request, stores the result and completes the request.
// On failure the request is marked failed.
func (r *Resolver) Resolve(ctx context.Context, req models.CalculationRequest) error {
	start := time.Now()
	defer func() { r.metrics.ObserveCalculationDuration(time.Since(start)) }()

	score, history, err := r.resolve(ctx, req)
	if err != nil {
		r.metrics.RecordCalculation(string(req.Tier), "failed")
		if failErr := r.store.FailCalculation(ctx, req.ID, err.Error()); failErr != nil {
			r.logger.Error("Failed to mark calculation request failed",
				zap.String("request_id", req.ID), zap.Error(failErr))
		}
		return err
	}

	if history == nil {
		r.logger.Info("Calculation request already resolved, skipping",
			zap.String("request_id", req.ID),
			zap.String("user_id", req.UserID))
		return nil
	}

	r.metrics.RecordCalculation(string(req.Tier), "completed")

	if err := r.cache.Set(ctx, score); err != nil {
		r.logger.Warn("Failed to refresh score cache", zap.String("user_id", req.UserID), zap.Error(err))
		if err := r.cache.Invalidate(ctx, req.UserID, req.Tier); err != nil {
			r.logger.Warn("Failed to invalidate score cache", zap.String("user_id", req.UserID), zap.Error(err))
		}
	}

	pubErr := r.publisher.ScoreCalculated(ctx, history)
	r.metrics.RecordEvent("trust.score.calculated", pubErr)
	if pubErr != nil {
		r.logger.Warn("Failed to publish score event", zap.String("user_id", req.UserID), zap.Error(pubErr))
	}

	r.logger.Info("Trust score calculated",
		zap.String("request_id", req.ID),
		zap.String("user_id", req.UserID),
		zap.String("tier", string(req.Tier)),
		zap.Int("score", history.Score),
		zap.Float64("trust_cost", history.TrustCost))
	return nil
}

// resolve returns a nil history when the request was resolved elsewhere
func (r *Resolver) resolve(ctx context.Context, req models.CalculationRequest) (*models.TrustScore, *models.TrustScoreHistory, error) {
	signals, err := r.signals.Signals(ctx, req.UserID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load trust signals")
	}

	result := r.scorer.Score(signals)
	now := time.Now().UTC()

	score := &models.TrustScore{
		UserID:       req.UserID,
		Tier:         req.Tier,
		Score:        result.Score,
		TrustCost:    result.TrustCost,
		Factors:      result.Factors,
		CalculatedAt: now,
		ExpiresAt:    now.Add(r.validity),
		UpdatedAt:    now,
	}
	history := &models.TrustScoreHistory{
		ID:           uuid.New().String(),
		UserID:       req.UserID,
		Tier:         req.Tier,
		Score:        result.Score,
		TrustCost:    result.TrustCost,
		Factors:      result.Factors,
		CalculatedAt: now,
	}

	applied, err := r.store.SaveResult(ctx, score, history, req.ID)
	if err != nil {
		return nil, nil, err
	}
	if !applied {
		return nil, nil, nil
	}
	return score, history, nil
}
