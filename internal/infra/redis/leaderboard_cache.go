package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"edutest-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ScoreProvider computes a leaderboard from the backing store.
type ScoreProvider interface {
	TopScores(ctx context.Context, topic string, limit int) ([]domain.LeaderboardEntry, error)
}

// LeaderboardCache caches leaderboard snapshots in Redis (JSON value per
// topic/limit) and falls back to the provider on cache miss. The board only
// changes when a session finishes, so a short TTL keeps /leaderboard cheap
// without going stale for long.
type LeaderboardCache struct {
	client   *redis.Client
	provider ScoreProvider
	ttl      time.Duration
	sf       singleflight.Group
	rnd      *rand.Rand
}

func NewLeaderboardCache(client *redis.Client, provider ScoreProvider, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		client:   client,
		provider: provider,
		ttl:      ttl,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LeaderboardCache) TopScores(ctx context.Context, topic string, limit int) ([]domain.LeaderboardEntry, error) {
	key := c.key(topic, limit)

	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var entries []domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(raw), &entries); err == nil {
			return entries, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := c.client.Get(ctx, key).Result()
		if err == nil {
			var entries []domain.LeaderboardEntry
			if err := json.Unmarshal([]byte(raw), &entries); err == nil {
				return entries, nil
			}
		}

		entries, err := c.provider.TopScores(ctx, topic, limit)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(entries); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.LeaderboardEntry), nil
}

func (c *LeaderboardCache) key(topic string, limit int) string {
	return "edutest:leaderboard:" + topic + ":" + strconv.Itoa(limit)
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
