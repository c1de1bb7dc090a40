package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupLimiter(t *testing.T, limits map[string]int) (*Limiter, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, zap.NewNop(), limits), s
}

func TestAllowWithinQuota(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{ActionVote: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !limiter.Allow(ctx, "prf_1", ActionVote) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if limiter.Allow(ctx, "prf_1", ActionVote) {
		t.Fatal("fourth attempt should be denied")
	}
}

func TestAllowIsPerActor(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{ActionSubmission: 1})
	ctx := context.Background()

	if !limiter.Allow(ctx, "prf_1", ActionSubmission) {
		t.Fatal("first actor should be allowed")
	}
	if limiter.Allow(ctx, "prf_1", ActionSubmission) {
		t.Fatal("first actor should be exhausted")
	}
	if !limiter.Allow(ctx, "prf_2", ActionSubmission) {
		t.Fatal("second actor must have an independent quota")
	}
}

func TestAllowUnknownActionIsUnlimited(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{ActionVote: 1})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if !limiter.Allow(ctx, "prf_1", "unthrottled") {
			t.Fatal("actions without a configured limit must always pass")
		}
	}
}

func TestQuotaResetsNextDay(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{ActionVote: 1})
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return day }

	if !limiter.Allow(ctx, "prf_1", ActionVote) {
		t.Fatal("first attempt should be allowed")
	}
	if limiter.Allow(ctx, "prf_1", ActionVote) {
		t.Fatal("quota should be exhausted")
	}

	limiter.now = func() time.Time { return day.Add(2 * time.Hour) }
	if !limiter.Allow(ctx, "prf_1", ActionVote) {
		t.Fatal("quota must reset on the next UTC day")
	}
}

func TestFailsOpenWhenRedisDown(t *testing.T) {
	limiter, s := setupLimiter(t, map[string]int{ActionVote: 1})
	s.Close()

	if !limiter.Allow(context.Background(), "prf_1", ActionVote) {
		t.Fatal("limiter must fail open when the counter backend is down")
	}
}

func TestRemaining(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{ActionSubmission: 5})
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "prf_1", ActionSubmission)
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 5 {
		t.Fatalf("fresh quota: got %d, want 5", remaining)
	}

	limiter.Allow(ctx, "prf_1", ActionSubmission)
	limiter.Allow(ctx, "prf_1", ActionSubmission)

	remaining, err = limiter.Remaining(ctx, "prf_1", ActionSubmission)
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 3 {
		t.Fatalf("after two uses: got %d, want 3", remaining)
	}
}
