// internal/common/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate is a request budget per fixed window, e.g. "10/minute".
type Rate struct {
	Limit  int
	Window time.Duration
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

var periods = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRate accepts "<n>/<period>" or "<n>/<k> <period>" where period is second, minute,
// hour or day (plural forms allowed).
func ParseRate(s string) (Rate, error) {
	countPart, periodPart, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: expected <count>/<period>", s)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || limit < 1 {
		return Rate{}, fmt.Errorf("invalid rate %q: count must be a positive integer", s)
	}

	multiplier := 1
	fields := strings.Fields(strings.ToLower(periodPart))
	switch len(fields) {
	case 1:
	case 2:
		multiplier, err = strconv.Atoi(fields[0])
		if err != nil || multiplier < 1 {
			return Rate{}, fmt.Errorf("invalid rate %q: bad period multiplier", s)
		}
		fields = fields[1:]
	default:
		return Rate{}, fmt.Errorf("invalid rate %q: bad period", s)
	}

	unit, ok := periods[strings.TrimSuffix(fields[0], "s")]
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: unknown period %q", s, fields[0])
	}
	return Rate{Limit: limit, Window: time.Duration(multiplier) * unit}, nil
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows stored in Redis, so every replica shares
// the same budget.
type Limiter struct {
	client redis.UniversalClient
	rate   Rate
	prefix string
	now    func() time.Time
}

func New(client redis.UniversalClient, rate Rate, prefix string) *Limiter {
	return &Limiter{client: client, rate: rate, prefix: prefix, now: time.Now}
}

func (l *Limiter) Rate() Rate { return l.rate }

// Allow records one hit for key and reports whether it fits the current window.
// Redis errors are returned to the caller, which decides whether to fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.rate.Window)
	windowEnd := windowStart.Add(l.rate.Window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowStart.Unix())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, windowEnd.Sub(now)+time.Second)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := int(incr.Val())
	if count > l.rate.Limit {
		return Decision{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: l.rate.Limit - count}, nil
}
