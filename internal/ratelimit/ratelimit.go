// Package ratelimit enforces per-actor daily quotas on sensitive actions
// such as proposal submission and voting, backed by Redis counters.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ActionSubmission   = "proposal_submission"
	ActionVote         = "vote"
	ActionRegistration = "registration"
)

// Limiter counts actions per actor per UTC day. When Redis is unreachable
// the limiter fails open: a broken counter must never lock citizens out of
// the platform.
type Limiter struct {
	client *redis.Client
	logger *zap.Logger
	limits map[string]int
	now    func() time.Time
}

func New(client *redis.Client, logger *zap.Logger, limits map[string]int) *Limiter {
	return &Limiter{
		client: client,
		logger: logger,
		limits: limits,
		now:    time.Now,
	}
}

func (l *Limiter) key(actorID, action string, day time.Time) string {
	return fmt.Sprintf("participa:rl:%s:%s:%s", actorID, action, day.UTC().Format("2006-01-02"))
}

// Allow consumes one unit of the actor's daily quota for the action. It
// returns false only when the quota is known to be exhausted.
func (l *Limiter) Allow(ctx context.Context, actorID, action string) bool {
	limit, ok := l.limits[action]
	if !ok || limit <= 0 {
		return true
	}

	key := l.key(actorID, action, l.now())
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, failing open",
			zap.String("action", action),
			zap.Error(err))
		return true
	}
	if count == 1 {
		// Expiry past the window end so a clock skew cannot orphan the key.
		if err := l.client.Expire(ctx, key, 48*time.Hour).Err(); err != nil {
			l.logger.Warn("rate limiter expire failed", zap.String("key", key), zap.Error(err))
		}
	}
	return count <= int64(limit)
}

// Remaining reports how much of the daily quota is left without consuming
// any of it.
func (l *Limiter) Remaining(ctx context.Context, actorID, action string) (int, error) {
	limit, ok := l.limits[action]
	if !ok || limit <= 0 {
		return -1, nil
	}
	count, err := l.client.Get(ctx, l.key(actorID, action, l.now())).Int()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read rate counter: %w", err)
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
