package trustscore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
	"vantage/internal/models"
)

type recordingQueue struct {
	mu   sync.Mutex
	reqs []models.CalculationRequest
}

func (q *recordingQueue) Enqueue(req models.CalculationRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return true
}

func testPolicies() Policies {
	return Policies{
		models.TierBasic:      {Allowance: decimal.NewFromInt(100), RequestsPerWindow: 10},
		models.TierPro:        {Allowance: decimal.NewFromInt(500), RequestsPerWindow: 100},
		models.TierEnterprise: {Allowance: decimal.NewFromInt(5000), RequestsPerWindow: 1000},
	}
}

type engineFixture struct {
	engine *Engine
	store  *memStore
	queue  *recordingQueue
	redis  *miniredis.Miniredis
	client *redis.Client
	window *RateWindow
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	policies := testPolicies()
	store := newMemStore()
	queue := &recordingQueue{}
	window := NewRateWindow(client, time.Hour, policies)
	cache := NewScoreCache(client, 10*time.Minute)

	engine := NewEngine(store, window, cache, queue, policies, Config{EstimatedTime: 30 * time.Second}, nil, zap.NewNop())
	return &engineFixture{engine: engine, store: store, queue: queue, redis: mr, client: client, window: window}
}

func sampleScore(userID string, tier models.Tier, score int, trustCost float64) *models.TrustScore {
	now := time.Now().UTC()
	return &models.TrustScore{
		UserID:       userID,
		Tier:         tier,
		Score:        score,
		TrustCost:    trustCost,
		Factors:      models.Factors{FactorIdentity: 1},
		CalculatedAt: now,
		ExpiresAt:    now.Add(30 * 24 * time.Hour),
	}
}

func TestNextCalculationCost(t *testing.T) {
	assert.Equal(t, 1.0, NextCalculationCost(models.TierBasic))
	assert.Equal(t, 0.5, NextCalculationCost(models.TierPro))
	assert.Equal(t, 0.1, NextCalculationCost(models.TierEnterprise))
}

func TestEngine_GetTrustScore(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user returns nil", func(t *testing.T) {
		f := newEngineFixture(t)
		for _, tier := range models.Tiers {
			record, err := f.engine.GetTrustScore(ctx, "nobody", tier)
			require.NoError(t, err)
			assert.Nil(t, record)
		}
	})

	t.Run("known user carries quota snapshot", func(t *testing.T) {
		f := newEngineFixture(t)
		f.store.putScore(sampleScore("user_001", models.TierBasic, 85, 720))
		f.store.putLedger("user_001", models.TierBasic, "42")

		record, err := f.engine.GetTrustScore(ctx, "user_001", models.TierBasic)
		require.NoError(t, err)
		require.NotNil(t, record)

		assert.GreaterOrEqual(t, record.Score, 60)
		assert.LessOrEqual(t, record.Score, 100)
		assert.Equal(t, 1.0, record.NextCalculationCost)
		assert.Equal(t, 42.0, record.CreditsRemaining)
		assert.Equal(t, 10, record.RateLimitRemaining)
		assert.Equal(t, 720.0, record.TrustCost)
	})

	t.Run("served from cache after first read", func(t *testing.T) {
		f := newEngineFixture(t)
		f.store.putScore(sampleScore("user_002", models.TierPro, 70, 300))

		_, err := f.engine.GetTrustScore(ctx, "user_002", models.TierPro)
		require.NoError(t, err)
		assert.True(t, f.redis.Exists("trust:score:user_002:pro"))

		f.store.mu.Lock()
		delete(f.store.scores, storeKey("user_002", models.TierPro))
		f.store.mu.Unlock()

		record, err := f.engine.GetTrustScore(ctx, "user_002", models.TierPro)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, 70, record.Score)
	})

	t.Run("invalid tier", func(t *testing.T) {
		f := newEngineFixture(t)
		_, err := f.engine.GetTrustScore(ctx, "user_001", "gold")
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeValidation, appErr.Code)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		f := newEngineFixture(t)
		f.store.err = errors.New("connection refused")
		_, err := f.engine.GetTrustScore(ctx, "user_001", models.TierBasic)
		assert.EqualError(t, err, "connection refused")
	})
}

func TestEngine_CheckCalculationQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		f := newEngineFixture(t)
		check, err := f.engine.CheckCalculationQuota(ctx, "nobody", models.TierBasic)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, "User quota not found", check.Message)
		assert.Nil(t, check.CreditsRemaining)
		assert.Nil(t, check.RateLimitRemaining)
	})

	t.Run("allowed", func(t *testing.T) {
		f := newEngineFixture(t)
		f.store.putLedger("user_001", models.TierPro, "0.5")
		check, err := f.engine.CheckCalculationQuota(ctx, "user_001", models.TierPro)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 0.5, *check.CreditsRemaining)
		assert.Equal(t, 100, *check.RateLimitRemaining)
		assert.Empty(t, check.Message)
	})

	t.Run("insufficient credits", func(t *testing.T) {
		f := newEngineFixture(t)
		f.store.putLedger("user_001", models.TierBasic, "0.5")
		check, err := f.engine.CheckCalculationQuota(ctx, "user_001", models.TierBasic)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, apperrors.MsgInsufficientCredits, check.Message)
	})

	t.Run("rate window exhausted", func(t *testing.T) {
		f := newEngineFixture(t)
		f.store.putLedger("user_001", models.TierBasic, "100")
		require.NoError(t, f.redis.Set("trust:ratelimit:basic:user_001", "10"))

		check, err := f.engine.CheckCalculationQuota(ctx, "user_001", models.TierBasic)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, 0, *check.RateLimitRemaining)
		assert.Equal(t, apperrors.MsgRateLimitExceeded, check.Message)
	})
}

func TestEngine_CalculateTrustScore(t *testing.T) {
	ctx := context.Background()

	t.Run("charges at submission and enqueues", func(t *testing.T) {
		tests := []struct {
			tier      models.Tier
			credits   string
			remaining string
		}{
			{models.TierBasic, "100", "99"},
			{models.TierPro, "500", "499.5"},
			{models.TierEnterprise, "5000", "4999.9"},
		}
		for _, tt := range tests {
			t.Run(string(tt.tier), func(t *testing.T) {
				f := newEngineFixture(t)
				f.store.putLedger("user_001", tt.tier, tt.credits)

				req, err := f.engine.CalculateTrustScore(ctx, "user_001", tt.tier)
				require.NoError(t, err)

				assert.Regexp(t, `^calc_\d+_[a-z0-9]+$`, req.ID)
				assert.Equal(t, models.CalculationProcessing, req.Status)
				assert.Equal(t, NextCalculationCost(tt.tier), req.Cost)
				assert.Equal(t, 30, req.EstimatedTime)

				ledger := f.store.ledger("user_001", tt.tier)
				assert.True(t, decimal.RequireFromString(tt.remaining).Equal(ledger.CreditsRemaining),
					"credits remaining %s", ledger.CreditsRemaining)

				require.Len(t, f.queue.reqs, 1)
				assert.Equal(t, req.ID, f.queue.reqs[0].ID)
				assert.NotNil(t, f.store.calculation(req.ID))
			})
		}
	})

	t.Run("unknown user is denied", func(t *testing.T) {
		f := newEngineFixture(t)
		_, err := f.engine.CalculateTrustScore(ctx, "nobody", models.TierBasic)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeQuotaExceeded, appErr.Code)
		assert.Equal(t, "User quota not found", appErr.Message)
		assert.Empty(t, f.queue.reqs)
	})

	t.Run("credits run out", func(t *testing.T) {
		f := newEngineFixture(t)
		f.store.putLedger("user_001", models.TierBasic, "2")

		for i := 0; i < 2; i++ {
			_, err := f.engine.CalculateTrustScore(ctx, "user_001", models.TierBasic)
			require.NoError(t, err)
		}
		_, err := f.engine.CalculateTrustScore(ctx, "user_001", models.TierBasic)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.MsgInsufficientCredits, appErr.Message)
		assert.Len(t, f.queue.reqs, 2)
	})

	t.Run("rate window runs out", func(t *testing.T) {
		f := newEngineFixture(t)
		f.store.putLedger("user_001", models.TierBasic, "100")

		for i := 0; i < 10; i++ {
			_, err := f.engine.CalculateTrustScore(ctx, "user_001", models.TierBasic)
			require.NoError(t, err)
		}
		_, err := f.engine.CalculateTrustScore(ctx, "user_001", models.TierBasic)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.MsgRateLimitExceeded, appErr.Message)

		ledger := f.store.ledger("user_001", models.TierBasic)
		assert.True(t, decimal.NewFromInt(90).Equal(ledger.CreditsRemaining))
	})

	t.Run("store failure releases the window slot", func(t *testing.T) {
		f := newEngineFixture(t)
		f.store.putLedger("user_001", models.TierBasic, "100")

		remaining, err := f.window.Remaining(ctx, "user_001", models.TierBasic)
		require.NoError(t, err)
		require.Equal(t, 10, remaining)

		f.engine.store = &failingSubmitStore{memStore: f.store, err: errors.New("deadlock detected")}

		_, err = f.engine.CalculateTrustScore(ctx, "user_001", models.TierBasic)
		assert.EqualError(t, err, "deadlock detected")

		remaining, err = f.window.Remaining(ctx, "user_001", models.TierBasic)
		require.NoError(t, err)
		assert.Equal(t, 10, remaining)
	})
}

type failingSubmitStore struct {
	*memStore
	err error
}

func (s *failingSubmitStore) SubmitCalculation(context.Context, *models.CalculationRequest, decimal.Decimal) (bool, error) {
	return false, s.err
}

func TestEngine_GetTrustScoreHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("empty history reports zeros", func(t *testing.T) {
		f := newEngineFixture(t)
		page, err := f.engine.GetTrustScoreHistory(ctx, "nobody", models.TierBasic, 50, 0)
		require.NoError(t, err)
		assert.Empty(t, page.Scores)
		assert.Equal(t, int64(0), page.Total)
		assert.False(t, page.HasMore)
		assert.Equal(t, 0.0, page.CreditsUsed)
	})

	t.Run("credits used scale with limit", func(t *testing.T) {
		f := newEngineFixture(t)
		base := time.Now().UTC()
		for i := 0; i < 5; i++ {
			f.store.history = append(f.store.history, models.TrustScoreHistory{
				ID: "h" + string(rune('a'+i)), UserID: "user_001", Tier: models.TierPro,
				Score: 70 + i, CalculatedAt: base.Add(time.Duration(i) * time.Minute),
			})
		}

		tests := []struct {
			tier        models.Tier
			limit       int
			offset      int
			returned    int
			hasMore     bool
			creditsUsed float64
		}{
			{models.TierBasic, 2, 0, 2, true, 2},
			{models.TierPro, 2, 2, 2, true, 1},
			{models.TierEnterprise, 10, 0, 5, false, 1},
			{models.TierPro, 2, 4, 1, false, 1},
		}
		for _, tt := range tests {
			page, err := f.engine.GetTrustScoreHistory(ctx, "user_001", tt.tier, tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Len(t, page.Scores, tt.returned)
			assert.Equal(t, int64(5), page.Total)
			assert.Equal(t, tt.hasMore, page.HasMore)
			assert.Equal(t, tt.creditsUsed, page.CreditsUsed)
		}
	})
}

func TestEngine_ProvisionQuota(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	status, err := f.engine.ProvisionQuota(ctx, "user_001", models.TierPro)
	require.NoError(t, err)
	assert.True(t, status.Created)
	assert.Equal(t, 500.0, status.CreditsRemaining)
	assert.Equal(t, 0.5, status.NextCalculationCost)

	_, err = f.engine.CalculateTrustScore(ctx, "user_001", models.TierPro)
	require.NoError(t, err)

	status, err = f.engine.ProvisionQuota(ctx, "user_001", models.TierPro)
	require.NoError(t, err)
	assert.False(t, status.Created)
	assert.Equal(t, 499.5, status.CreditsRemaining)
	assert.Equal(t, 99, status.RateLimitRemaining)
}

func TestEngine_RefillQuotas(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.store.putLedger("a", models.TierBasic, "3")
	f.store.putLedger("b", models.TierEnterprise, "1")

	n, err := f.engine.RefillQuotas(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, decimal.NewFromInt(100).Equal(f.store.ledger("a", models.TierBasic).CreditsRemaining))
	assert.True(t, decimal.NewFromInt(5000).Equal(f.store.ledger("b", models.TierEnterprise).CreditsRemaining))
}

func TestEngine_CreatorTrustCost(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.store.putScore(sampleScore("creator_1", models.TierPro, 90, 750))
	f.store.putScore(sampleScore("creator_2", models.TierBasic, 90, 900))

	cost, err := f.engine.CreatorTrustCost(ctx, "creator_1")
	require.NoError(t, err)
	assert.Equal(t, 750.0, cost)

	cost, err = f.engine.CreatorTrustCost(ctx, "creator_2")
	require.NoError(t, err)
	assert.Equal(t, 0.0, cost, "only the pro tier record is consulted")

	f.store.putLedger("creator_1", models.TierPro, "10")
	_, err = f.engine.CreatorTrustCost(ctx, "creator_1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(f.store.ledger("creator_1", models.TierPro).CreditsRemaining))
}

func TestEngine_GetCalculationRequest(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.store.putLedger("user_001", models.TierBasic, "10")

	req, err := f.engine.CalculateTrustScore(ctx, "user_001", models.TierBasic)
	require.NoError(t, err)

	got, err := f.engine.GetCalculationRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CalculationProcessing, got.Status)

	_, err = f.engine.GetCalculationRequest(ctx, "calc_1_missing")
	assert.ErrorIs(t, err, apperrors.ErrCalculationNotFound)
}
