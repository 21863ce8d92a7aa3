package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/azzam1122112-dot/school-display/internal/config"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("store: key not found")

// Client wraps the Redis connection used for all cross-process coordination:
// revisions, snapshot cache, locks, rate limits and pub/sub.
type Client struct {
	rdb *redis.Client
}

func New(cfg *config.Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Printf("✅ Redis configured at %s", cfg.Redis.Addr)
	return &Client{rdb: rdb}
}

// NewFromRedis wires an existing client (tests use miniredis here).
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX is the conditional create behind both lock kinds. True means we own
// the key until the TTL runs out.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// ScanKeys collects every key matching pattern. Only used for the stale
// snapshot lookup, where the per-school keyspace is tiny.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// PSubscribe opens a pattern subscription. The caller owns the returned
// PubSub and must Close it.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return c.rdb.PSubscribe(ctx, patterns...)
}

// --- Key builders ---
// Raw tokens never appear in keys; handlers hash them before rate limiting.

func RevKey(schoolID uint) string {
	return fmt.Sprintf("rev:%d", schoolID)
}

func SnapKey(schoolID uint, rev int64) string {
	return fmt.Sprintf("snap:%d:%d", schoolID, rev)
}

func SnapPattern(schoolID uint) string {
	return fmt.Sprintf("snap:%d:*", schoolID)
}

func BumpLockKey(schoolID uint) string {
	return fmt.Sprintf("bump_lock:%d", schoolID)
}

func BuildLockKey(schoolID uint) string {
	return fmt.Sprintf("build_lock:%d", schoolID)
}

func RateLimitKey(tokenHash, deviceID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", tokenHash, deviceID)
}

func SchoolChannel(schoolID uint) string {
	return fmt.Sprintf("school:%d", schoolID)
}
