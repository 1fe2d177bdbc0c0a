package trustscore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"vantage/internal/models"
)

// ScoreCache keeps recently read scores in redis
type ScoreCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewScoreCache creates a score cache over client
func NewScoreCache(client redis.Cmdable, ttl time.Duration) *ScoreCache {
	return &ScoreCache{client: client, ttl: ttl}
}

func (c *ScoreCache) key(userID string, tier models.Tier) string {
	return fmt.Sprintf("trust:score:%s:%s", userID, tier)
}

// Get returns the cached score or nil on a miss
func (c *ScoreCache) Get(ctx context.Context, userID string, tier models.Tier) (*models.TrustScore, error) {
	data, err := c.client.Get(ctx, c.key(userID, tier)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read score cache")
	}

	var score models.TrustScore
	if err := json.Unmarshal(data, &score); err != nil {
		return nil, errors.Wrap(err, "failed to decode cached score")
	}
	return &score, nil
}

// Set stores score for the cache ttl
func (c *ScoreCache) Set(ctx context.Context, score *models.TrustScore) error {
	data, err := json.Marshal(score)
	if err != nil {
		return errors.Wrap(err, "failed to encode score")
	}
	return c.client.Set(ctx, c.key(score.UserID, score.Tier), data, c.ttl).Err()
}

// Fill stores score only when no entry exists, so a read-through never replaces a
// score written by the resolver
func (c *ScoreCache) Fill(ctx context.Context, score *models.TrustScore) error {
	data, err := json.Marshal(score)
	if err != nil {
		return errors.Wrap(err, "failed to encode score")
	}
	return c.client.SetNX(ctx, c.key(score.UserID, score.Tier), data, c.ttl).Err()
}

// Invalidate drops the cached score for a user at tier
func (c *ScoreCache) Invalidate(ctx context.Context, userID string, tier models.Tier) error {
	return c.client.Del(ctx, c.key(userID, tier)).Err()
}
