package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agora-forum/agora/pkg/config"
	"github.com/agora-forum/agora/pkg/logging"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPrefix = "agora"

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = errors.New("cache is disabled")
	// ErrMiss is returned by GetJSON when the key is absent
	ErrMiss = errors.New("cache miss")
)

// Cache wraps Redis client. A nil *Cache is valid and behaves as a
// disabled cache.
type Cache struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis cache client. It returns nil, nil when Redis is
// not configured.
func New(cfg *config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established", zap.String("prefix", cfg.KeyPrefix))

	return &Cache{
		client: client,
		prefix: cfg.KeyPrefix,
	}, nil
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) namespaceKey(key string) string {
	prefix := defaultPrefix
	if c != nil && c.prefix != "" {
		prefix = c.prefix
	}
	return prefix + ":" + key
}

// GetJSON decodes the value at key into dest.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if !c.enabled() {
		return ErrCacheDisabled
	}
	data, err := c.client.Get(ctx, c.namespaceKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON stores value at key as JSON with TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.enabled() {
		return ErrCacheDisabled
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.client.Set(ctx, c.namespaceKey(key), data, ttl).Err()
}

// Delete removes keys from cache
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled() {
		return ErrCacheDisabled
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = c.namespaceKey(k)
	}
	return c.client.Del(ctx, namespaced...).Err()
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// TryLock acquires key for ttl with SET NX. When acquired, the returned
// release function deletes the key only if this holder still owns it.
func (c *Cache) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if !c.enabled() {
		return nil, false, ErrCacheDisabled
	}
	lockKey := c.namespaceKey("lock:" + key)
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, c.client, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			logging.GetLogger().Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if !c.enabled() {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if !c.enabled() {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}

// HashKey returns a fixed-length key for arbitrary parts.
func HashKey(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// NightlyRecommendationsKey holds the post ids precomputed for a user by
// the nightly batch.
func NightlyRecommendationsKey(userID int64) string {
	return fmt.Sprintf("recs:nightly:%d", userID)
}

// RecommendationsKey holds one page of served post recommendations.
func RecommendationsKey(userID int64, limit, offset int) string {
	return fmt.Sprintf("recs:posts:%d:%d:%d", userID, limit, offset)
}

// RankedKey holds one page of a ranked post listing.
func RankedKey(sort string, communityID int64, limit, offset int) string {
	return "ranked:" + HashKey(sort, fmt.Sprint(communityID), fmt.Sprint(limit), fmt.Sprint(offset))
}
