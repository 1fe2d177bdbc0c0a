package trustscore

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
	"vantage/internal/metrics"
	"vantage/internal/models"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// Enqueuer accepts calculation requests for asynchronous resolution
type Enqueuer interface {
	Enqueue(req models.CalculationRequest) bool
}

// Config configures the engine
type Config struct {
	EstimatedTime time.Duration
}

// Engine serves trust scores and gates recalculations behind the tier quota
type Engine struct {
	store    Store
	window   *RateWindow
	cache    *ScoreCache
	queue    Enqueuer
	policies Policies
	cfg      Config
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a trust score engine
func NewEngine(
	store Store,
	window *RateWindow,
	cache *ScoreCache,
	queue Enqueuer,
	policies Policies,
	cfg Config,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		store:    store,
		window:   window,
		cache:    cache,
		queue:    queue,
		policies: policies,
		cfg:      cfg,
		metrics:  collector,
		logger:   logger.Named("trust_score"),
		now:      time.Now,
	}
}

func validateRequest(userID string, tier models.Tier) error {
	return models.Validate(&models.TrustScoreRequest{UserID: userID, Tier: tier})
}

// GetTrustScore returns the user's score with a current quota snapshot, or nil when
// the user has no score at tier
func (e *Engine) GetTrustScore(ctx context.Context, userID string, tier models.Tier) (*models.TrustScoreRecord, error) {
	if err := validateRequest(userID, tier); err != nil {
		return nil, err
	}

	score, err := e.lookup(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if score == nil {
		return nil, nil
	}

	credits := 0.0
	ledger, err := e.store.GetLedger(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		credits = ledger.CreditsRemaining.InexactFloat64()
	}

	remaining, err := e.window.Remaining(ctx, userID, tier)
	if err != nil {
		return nil, err
	}

	return &models.TrustScoreRecord{
		UserID:              score.UserID,
		Tier:                score.Tier,
		Score:               score.Score,
		TrustCost:           score.TrustCost,
		Factors:             score.Factors,
		CalculatedAt:        score.CalculatedAt,
		ExpiresAt:           score.ExpiresAt,
		CreditsRemaining:    credits,
		NextCalculationCost: NextCalculationCost(tier),
		RateLimitRemaining:  remaining,
	}, nil
}

// CreatorTrustCost returns the trust cost used by the listing gate. It reads the pro tier
// record without consuming credits; a user without a record has a trust cost of 0.
func (e *Engine) CreatorTrustCost(ctx context.Context, userID string) (float64, error) {
	score, err := e.lookup(ctx, userID, models.TierPro)
	if err != nil {
		return 0, err
	}
	if score == nil {
		return 0, nil
	}
	return score.TrustCost, nil
}

// lookup reads through the cache. Cache failures fall back to the store.
func (e *Engine) lookup(ctx context.Context, userID string, tier models.Tier) (*models.TrustScore, error) {
	cached, err := e.cache.Get(ctx, userID, tier)
	if err != nil {
		e.logger.Warn("Score cache read failed", zap.String("user_id", userID), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	score, err := e.store.GetScore(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if score != nil {
		if err := e.cache.Fill(ctx, score); err != nil {
			e.logger.Warn("Score cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return score, nil
}

// CheckCalculationQuota reports whether the user may request a calculation at tier.
// Credits and the rate window are checked independently; either can deny.
func (e *Engine) CheckCalculationQuota(ctx context.Context, userID string, tier models.Tier) (*models.QuotaCheck, error) {
	if err := validateRequest(userID, tier); err != nil {
		return nil, err
	}

	ledger, err := e.store.GetLedger(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return &models.QuotaCheck{Allowed: false, Message: apperrors.MsgQuotaNotFound}, nil
	}

	remaining, err := e.window.Remaining(ctx, userID, tier)
	if err != nil {
		return nil, err
	}

	credits := ledger.CreditsRemaining.InexactFloat64()
	hasCredits := ledger.CreditsRemaining.GreaterThanOrEqual(Cost(tier))
	hasWindow := remaining > 0

	check := &models.QuotaCheck{
		Allowed:            hasCredits && hasWindow,
		CreditsRemaining:   &credits,
		RateLimitRemaining: &remaining,
	}
	switch {
	case !hasCredits:
		check.Message = apperrors.MsgInsufficientCredits
	case !hasWindow:
		check.Message = apperrors.MsgRateLimitExceeded
	}
	return check, nil
}

// CalculateTrustScore charges the tier cost and accepts a recalculation. The result
// resolves asynchronously; the returned request is still processing.
func (e *Engine) CalculateTrustScore(ctx context.Context, userID string, tier models.Tier) (*models.CalculationRequest, error) {
	check, err := e.CheckCalculationQuota(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		e.metrics.RecordCalculation(string(tier), "denied")
		return nil, apperrors.QuotaExceeded(check.Message)
	}

	_, ok, err := e.window.Consume(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metrics.RecordCalculation(string(tier), "denied")
		return nil, apperrors.QuotaExceeded(apperrors.MsgRateLimitExceeded)
	}

	now := e.now().UTC()
	req := models.CalculationRequest{
		ID:            newCalculationID(now),
		UserID:        userID,
		Tier:          tier,
		Status:        models.CalculationProcessing,
		Cost:          NextCalculationCost(tier),
		StartedAt:     now,
		EstimatedTime: int(e.cfg.EstimatedTime / time.Second),
	}

	debited, err := e.store.SubmitCalculation(ctx, &req, Cost(tier))
	if err != nil || !debited {
		if releaseErr := e.window.Release(ctx, userID, tier); releaseErr != nil {
			e.logger.Warn("Failed to release rate window", zap.String("user_id", userID), zap.Error(releaseErr))
		}
		if err != nil {
			return nil, err
		}
		e.metrics.RecordCalculation(string(tier), "denied")
		return nil, apperrors.QuotaExceeded(apperrors.MsgInsufficientCredits)
	}

	e.metrics.RecordCalculation(string(tier), "accepted")
	e.queue.Enqueue(req)

	e.logger.Info("Trust score calculation accepted",
		zap.String("request_id", req.ID),
		zap.String("user_id", userID),
		zap.String("tier", string(tier)),
		zap.Float64("cost", req.Cost))

	return &req, nil
}

// GetCalculationRequest returns the status of a calculation request
func (e *Engine) GetCalculationRequest(ctx context.Context, id string) (*models.CalculationRequest, error) {
	req, err := e.store.GetCalculation(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.ErrCalculationNotFound
	}
	return req, nil
}

// GetTrustScoreHistory returns a page of the user's history. creditsUsed is limit times
// the tier cost, or zero when the user has no history.
func (e *Engine) GetTrustScoreHistory(ctx context.Context, userID string, tier models.Tier, limit, offset int) (*models.TrustScoreHistoryPage, error) {
	if err := validateRequest(userID, tier); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	scores, total, err := e.store.ListHistory(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return &models.TrustScoreHistoryPage{Scores: []models.TrustScoreHistory{}}, nil
	}

	return &models.TrustScoreHistoryPage{
		Scores:      scores,
		Total:       total,
		HasMore:     int64(offset+len(scores)) < total,
		CreditsUsed: Cost(tier).Mul(decimal.NewFromInt(int64(limit))).InexactFloat64(),
	}, nil
}

// ProvisionQuota creates the user's ledger with the tier allowance. Calling it again
// returns the existing ledger unchanged.
func (e *Engine) ProvisionQuota(ctx context.Context, userID string, tier models.Tier) (*models.QuotaStatus, error) {
	if err := validateRequest(userID, tier); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	allowance := e.policies[tier].Allowance
	ledger := &models.QuotaLedger{
		UserID:           userID,
		Tier:             tier,
		CreditsRemaining: allowance,
		Allowance:        allowance,
		CreditsUsed:      decimal.Zero,
		LastRefilledAt:   now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := e.store.CreateLedger(ctx, ledger)
	if err != nil {
		return nil, err
	}
	if !created {
		ledger, err = e.store.GetLedger(ctx, userID, tier)
		if err != nil {
			return nil, err
		}
		if ledger == nil {
			return nil, apperrors.Internal(errors.New("quota ledger missing after provisioning"))
		}
	}

	remaining, err := e.window.Remaining(ctx, userID, tier)
	if err != nil {
		return nil, err
	}

	if created {
		e.logger.Info("Quota provisioned", zap.String("user_id", userID), zap.String("tier", string(tier)))
	}

	return &models.QuotaStatus{
		UserID:              userID,
		Tier:                tier,
		Allowance:           ledger.Allowance.InexactFloat64(),
		CreditsRemaining:    ledger.CreditsRemaining.InexactFloat64(),
		CreditsUsed:         ledger.CreditsUsed.InexactFloat64(),
		NextCalculationCost: NextCalculationCost(tier),
		RateLimitRemaining:  remaining,
		Created:             created,
	}, nil
}

// RefillQuotas resets every ledger to its tier allowance
func (e *Engine) RefillQuotas(ctx context.Context) (int64, error) {
	var total int64
	for _, tier := range models.Tiers {
		n, err := e.store.RefillLedgers(ctx, tier, e.policies[tier].Allowance)
		if err != nil {
			return total, err
		}
		total += n
	}
	e.metrics.AddLedgersRefilled(total)
	e.logger.Info("Quota ledgers refilled", zap.Int64("ledgers", total))
	return total, nil
}

// newCalculationID returns calc_<ms epoch>_<lowercase base36 random>
func newCalculationID(now time.Time) string {
	return "calc_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + strconv.FormatUint(rand.Uint64(), 36)
}
