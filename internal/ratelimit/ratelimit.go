package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"personachat/internal/models"
	"personachat/internal/redis"
)

// Limiter answers "is this user allowed one more request" over two sliding
// windows (per minute, per day) backed by redis sorted sets. Each window key
// holds one member per counted request, scored by its unix-nano timestamp.
type Limiter struct {
	client    *redis.Client
	perMinute int
	perDay    int
}

// NewLimiter builds a limiter with the supplied window capacities.
func NewLimiter(client *redis.Client, perMinute, perDay int) *Limiter {
	return &Limiter{client: client, perMinute: perMinute, perDay: perDay}
}

type windowResult struct {
	allowed   bool
	remaining int
	reset     time.Time
	member    string
}

// Reserve consumes one slot in each window and reports the post-consumption
// snapshot. A window that is already full rejects without recording the
// request, and a slot consumed in one window is released again when the
// other window rejects, so a burst of rejected calls burns no quota and
// does not push either reset further out.
func (l *Limiter) Reserve(ctx context.Context, userID int64) (models.RateLimitStatus, error) {
	return l.check(ctx, userID, true)
}

// Status reports the current snapshot without consuming quota. Used by the
// usage endpoint so polling never burns requests.
func (l *Limiter) Status(ctx context.Context, userID int64) (models.RateLimitStatus, error) {
	return l.check(ctx, userID, false)
}

func (l *Limiter) check(ctx context.Context, userID int64, consume bool) (models.RateLimitStatus, error) {
	if l == nil || l.client == nil {
		return models.RateLimitStatus{}, errors.New("rate limiter not initialized")
	}
	now := time.Now()
	minuteKey := fmt.Sprintf("ratelimit:minute:%d", userID)
	dayKey := fmt.Sprintf("ratelimit:day:%d", userID)

	minute, err := l.window(ctx, minuteKey, l.perMinute, time.Minute, now, consume)
	if err != nil {
		return models.RateLimitStatus{}, err
	}
	day, err := l.window(ctx, dayKey, l.perDay, 24*time.Hour, now, consume)
	if err != nil {
		return models.RateLimitStatus{}, err
	}

	if consume && !(minute.allowed && day.allowed) {
		if l.release(ctx, minuteKey, minute.member) {
			minute.remaining++
		}
		if l.release(ctx, dayKey, day.member) {
			day.remaining++
		}
	}

	return models.RateLimitStatus{
		Allowed:         minute.allowed && day.allowed,
		MinuteRemaining: minute.remaining,
		DayRemaining:    day.remaining,
		ResetMinute:     minute.reset,
		ResetDay:        day.reset,
	}, nil
}

func (l *Limiter) window(ctx context.Context, key string, limit int, span time.Duration, now time.Time, consume bool) (windowResult, error) {
	raw := l.client.Raw()
	if raw == nil {
		return windowResult{}, errors.New("redis client not initialized")
	}
	cutoff := now.Add(-span).UnixNano()

	pipe := raw.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.ErrCacheMiss {
		return windowResult{}, fmt.Errorf("rate window %s: %w", key, err)
	}

	count := int(countCmd.Val())
	allowed := count < limit
	var member string
	if consume && allowed {
		member = fmt.Sprintf("%d-%d", now.UnixNano(), rand.Int63())
		add := raw.TxPipeline()
		add.ZAdd(ctx, key, goredis.Z{Score: float64(now.UnixNano()), Member: member})
		add.Expire(ctx, key, span)
		if _, err := add.Exec(ctx); err != nil {
			return windowResult{}, fmt.Errorf("rate reserve %s: %w", key, err)
		}
		count++
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	reset := now.Add(span)
	if scores := oldestCmd.Val(); len(scores) > 0 {
		reset = time.Unix(0, int64(scores[0].Score)).Add(span)
	}
	return windowResult{allowed: allowed, remaining: remaining, reset: reset, member: member}, nil
}

// release removes a member recorded by window. A failed removal is not an
// error worth surfacing; the member ages out of the window on its own.
func (l *Limiter) release(ctx context.Context, key, member string) bool {
	if member == "" {
		return false
	}
	raw := l.client.Raw()
	if raw == nil {
		return false
	}
	if err := raw.ZRem(ctx, key, member).Err(); err != nil && err != redis.ErrCacheMiss {
		return false
	}
	return true
}
