package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/engine"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "indoor:timeframed:v2:"

// ResponseCache stores serialized responses of closed-range queries in Redis
type ResponseCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewResponseCache creates a new response cache
func NewResponseCache(redisClient *redis.Client, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResponseCache{redis: redisClient, ttl: ttl}
}

// Connect opens a Redis client and checks it answers
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// Key derives the cache key of a request from its validated query, so
// requests the engine reads the same way share a key and no others do.
func Key(path string, q engine.Query) string {
	sensors := append([]string(nil), q.Sensors...)
	sort.Strings(sensors)

	metrics := make([]string, 0, len(q.Metrics))
	for _, m := range q.Metrics {
		metrics = append(metrics, string(m))
	}
	sort.Strings(metrics)

	ranges := make([]string, 0, len(q.Ranges))
	for m, vr := range q.Ranges {
		ranges = append(ranges, fmt.Sprintf("%s:%s:%s:%s:%s", m,
			bound(vr.GT), bound(vr.GTE), bound(vr.LT), bound(vr.LTE)))
	}
	sort.Strings(ranges)

	parts := []string{
		path,
		strconv.Itoa(int(q.Mode)),
		q.Timeframe.String(),
		q.Start.UTC().Format(time.RFC3339Nano),
		q.End.UTC().Format(time.RFC3339Nano),
		strings.Join(sensors, ","),
		strings.Join(metrics, ","),
		strings.Join(ranges, ","),
		strconv.FormatBool(q.Aggregations),
		strconv.FormatBool(q.Gapless),
		strconv.FormatBool(q.Rooms),
		strconv.FormatBool(q.VPD),
		string(q.Format),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func bound(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// Get returns the cached body for key. A miss is not an error.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return data, true, nil
}

// Set stores body under key with the configured TTL
func (c *ResponseCache) Set(ctx context.Context, key string, body []byte) error {
	if err := c.redis.Set(ctx, key, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

// Close closes the Redis client
func (c *ResponseCache) Close() error {
	return c.redis.Close()
}
