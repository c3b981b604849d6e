// Package cache provides Redis-backed storage for detection results. Every
// cache fault degrades to a miss so a broken Redis never blocks detection.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/detect"
)

// Config holds Redis connection and keying settings.
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTL            time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// ResultCache stores detection results keyed by input text and layer
// selection.
type ResultCache struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache connects to Redis and verifies the connection.
func NewResultCache(config Config, logger *zap.Logger) (*ResultCache, error) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "detect"
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	if config.MinIdleConns > 0 {
		opts.MinIdleConns = config.MinIdleConns
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: connect to redis: %w", err)
	}

	logger.Info("result cache connected",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.String("key_prefix", config.KeyPrefix),
		zap.Duration("ttl", config.TTL))

	return &ResultCache{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
	}, nil
}

// Key derives the cache key for a text and layer selection. The layer list is
// sorted so the key is stable under permutation.
func (c *ResultCache) Key(text string, layers []int) string {
	sorted := make([]int, len(layers))
	copy(sorted, layers)
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, l := range sorted {
		parts[i] = strconv.Itoa(l)
	}

	sum := sha256.Sum256([]byte(text + "|" + strings.Join(parts, ",")))
	return fmt.Sprintf("%s:detect:%s", c.config.KeyPrefix, hex.EncodeToString(sum[:]))
}

// Lookup returns the cached result for the text, or (nil, false) on miss.
// Connection errors and corrupt entries count as misses.
func (c *ResultCache) Lookup(ctx context.Context, text string, layers []int) (*detect.Result, bool) {
	key := c.Key(text, layers)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.misses.Add(1)
		c.logger.Warn("cache lookup failed", zap.Error(err))
		return nil, false
	}

	var result detect.Result
	if err := result.UnmarshalBinary(data); err != nil {
		c.misses.Add(1)
		c.logger.Warn("corrupt cache entry dropped", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}

	c.hits.Add(1)
	return &result, true
}

// Store writes a result under the derived key with the configured TTL.
// Failures are logged and swallowed.
func (c *ResultCache) Store(ctx context.Context, text string, layers []int, result *detect.Result) {
	key := c.Key(text, layers)

	data, err := result.MarshalBinary()
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		c.logger.Warn("cache store failed", zap.Error(err))
	}
}

// Stats reports hit and miss counters since startup.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Clear removes every key under the configured prefix.
func (c *ResultCache) Clear(ctx context.Context) error {
	pattern := c.config.KeyPrefix + ":detect:*"

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache: scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: delete keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the Redis connection pool.
func (c *ResultCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// maskRedisURL hides the password portion of a Redis URL for logging.
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
