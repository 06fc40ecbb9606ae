// Package ratelimit provides a quote-call quota shared by every engine
// process through Redis, so several servers can sit behind one upstream
// price API allowance.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default quota configuration values.
const (
	DefaultLimit  = 100         // calls per window
	DefaultWindow = time.Minute // fixed window aligned to the clock
)

// Priority selects the pool a call draws from.
type Priority int

const (
	// PriorityInteractive is a single quote lookup on behalf of a caller.
	PriorityInteractive Priority = iota
	// PriorityBatch is one lookup of a report fan-out.
	PriorityBatch
)

// String returns a string representation of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityBatch:
		return "batch"
	default:
		return "unknown"
	}
}

type priorityKey struct{}

// WithPriority tags ctx so quota checks below it draw from p's pool
func WithPriority(ctx context.Context, p Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFrom returns the priority tagged on ctx, interactive by default
func PriorityFrom(ctx context.Context) Priority {
	if p, ok := ctx.Value(priorityKey{}).(Priority); ok {
		return p
	}
	return PriorityInteractive
}

// QuotaConfig holds configuration for a Quota.
type QuotaConfig struct {
	// Redis coordinates usage across processes. Required.
	Redis redis.Cmdable

	// Name namespaces the Redis keys, one per upstream.
	Name string

	// Limit is the number of calls allowed per window. Default: 100.
	Limit int

	// Reserved is the part of Limit batch calls may not use. Zero means no
	// reserve. It must stay below the limit so batch calls can make progress.
	Reserved int

	// Window is the quota window. Default: 1m.
	Window time.Duration
}

// Validate checks if the configuration is valid.
func (c *QuotaConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Name == "" {
		return errors.New("quota name is required")
	}
	if c.Limit < 0 || c.Reserved < 0 {
		return errors.New("quota limits cannot be negative")
	}
	limit := c.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if c.Reserved >= limit {
		return fmt.Errorf("reserved calls (%d) must be below the limit (%d)", c.Reserved, limit)
	}
	return nil
}

// Quota is a fixed-window call counter kept in Redis. Interactive calls
// may use the whole limit; batch calls stop at Limit-Reserved so a large
// report cannot starve single lookups.
type Quota struct {
	redis    redis.Cmdable
	prefix   string
	limit    int
	reserved int
	window   time.Duration
	now      func() time.Time
}

// Usage is the quota consumption in the current window.
type Usage struct {
	Used        int       `json:"used"`
	BatchUsed   int       `json:"batchUsed"`
	Limit       int       `json:"limit"`
	Reserved    int       `json:"reserved"`
	WindowStart time.Time `json:"windowStart"`
}

// NewQuota creates a quota with the given configuration.
func NewQuota(cfg *QuotaConfig) (*Quota, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	limit := cfg.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	return &Quota{
		redis:    cfg.Redis,
		prefix:   "quota:" + cfg.Name + ":",
		limit:    limit,
		reserved: cfg.Reserved,
		window:   window,
		now:      time.Now,
	}, nil
}

// consumeScript atomically checks both counters and increments them.
// KEYS: total, batch. ARGV: isBatch, limit, batchLimit, ttlSeconds.
var consumeScript = redis.NewScript(`
	local used = tonumber(redis.call('GET', KEYS[1]) or '0')
	local batchUsed = tonumber(redis.call('GET', KEYS[2]) or '0')
	local isBatch = tonumber(ARGV[1]) == 1

	if used + 1 > tonumber(ARGV[2]) then
		return 0
	end
	if isBatch and batchUsed + 1 > tonumber(ARGV[3]) then
		return 0
	end

	redis.call('INCR', KEYS[1])
	redis.call('EXPIRE', KEYS[1], ARGV[4])
	if isBatch then
		redis.call('INCR', KEYS[2])
		redis.call('EXPIRE', KEYS[2], ARGV[4])
	end
	return 1
`)

func (q *Quota) windowStart() time.Time {
	return q.now().Truncate(q.window)
}

func (q *Quota) keys(start time.Time) (totalKey, batchKey string) {
	ts := strconv.FormatInt(start.UnixMilli(), 10)
	return q.prefix + "total:" + ts, q.prefix + "batch:" + ts
}

// TryConsume takes one call from the pool for priority. When the pool is
// exhausted it reports how long until the next window opens. Redis errors
// are returned and nothing is consumed.
func (q *Quota) TryConsume(ctx context.Context, priority Priority) (bool, time.Duration, error) {
	start := q.windowStart()
	totalKey, batchKey := q.keys(start)

	isBatch := 0
	if priority == PriorityBatch {
		isBatch = 1
	}

	// keys outlive the window by one second so a slow clock cannot reuse them
	ttlSeconds := int(q.window.Seconds()) + 1

	allowed, err := consumeScript.Run(ctx, q.redis, []string{totalKey, batchKey},
		isBatch, q.limit, q.limit-q.reserved, ttlSeconds).Int()
	if err != nil {
		return false, 0, fmt.Errorf("quota check failed: %w", err)
	}
	if allowed == 1 {
		return true, 0, nil
	}

	wait := start.Add(q.window).Sub(q.now())
	if wait < 0 {
		wait = 0
	}
	return false, wait + time.Millisecond, nil
}

// Wait blocks until a call is available for the priority tagged on ctx, or
// ctx is done.
func (q *Quota) Wait(ctx context.Context) error {
	priority := PriorityFrom(ctx)
	for {
		allowed, wait, err := q.TryConsume(ctx, priority)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Usage returns consumption in the current window.
func (q *Quota) Usage(ctx context.Context) (*Usage, error) {
	start := q.windowStart()
	totalKey, batchKey := q.keys(start)

	pipe := q.redis.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey)
	batchCmd := pipe.Get(ctx, batchKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read quota usage: %w", err)
	}

	return &Usage{
		Used:        parseIntOrZero(totalCmd),
		BatchUsed:   parseIntOrZero(batchCmd),
		Limit:       q.limit,
		Reserved:    q.reserved,
		WindowStart: start,
	}, nil
}

// parseIntOrZero parses a Redis string command result as int, returning 0 on error.
func parseIntOrZero(cmd *redis.StringCmd) int {
	val, err := cmd.Int()
	if err != nil {
		return 0
	}
	return val
}
