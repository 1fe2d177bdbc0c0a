package trustscore

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"vantage/internal/models"
)

// RateWindow counts calculation requests per user and tier in a fixed redis window
type RateWindow struct {
	client   redis.Cmdable
	window   time.Duration
	policies Policies
}

// NewRateWindow creates a rate window over client
func NewRateWindow(client redis.Cmdable, window time.Duration, policies Policies) *RateWindow {
	return &RateWindow{client: client, window: window, policies: policies}
}

func (w *RateWindow) key(userID string, tier models.Tier) string {
	return fmt.Sprintf("trust:ratelimit:%s:%s", tier, userID)
}

func (w *RateWindow) limit(tier models.Tier) int {
	return w.policies[tier].RequestsPerWindow
}

// Remaining returns how many requests the user may still make in the current window
func (w *RateWindow) Remaining(ctx context.Context, userID string, tier models.Tier) (int, error) {
	used, err := w.client.Get(ctx, w.key(userID, tier)).Int()
	if err != nil {
		if err == redis.Nil {
			return w.limit(tier), nil
		}
		return 0, errors.Wrap(err, "failed to read rate window")
	}
	return clampRemaining(w.limit(tier) - used), nil
}

// Consume takes one slot from the window. It reports false when the window was already full;
// the slot is not taken in that case. The increment and the expiry are applied in one
// MULTI/EXEC, and a counter found without a TTL gets one.
func (w *RateWindow) Consume(ctx context.Context, userID string, tier models.Tier) (int, bool, error) {
	key := w.key(userID, tier)

	var incr *redis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, w.window)
		return nil
	})
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to consume rate window")
	}
	used := incr.Val()

	limit := w.limit(tier)
	if int(used) > limit {
		if err := w.client.Decr(ctx, key).Err(); err != nil {
			return 0, false, errors.Wrap(err, "failed to release rate window")
		}
		return 0, false, nil
	}
	return clampRemaining(limit - int(used)), true, nil
}

// Release returns a consumed slot
func (w *RateWindow) Release(ctx context.Context, userID string, tier models.Tier) error {
	key := w.key(userID, tier)
	n, err := w.client.Decr(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, "failed to release rate window")
	}
	if n <= 0 {
		return w.client.Del(ctx, key).Err()
	}
	return nil
}

func clampRemaining(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
