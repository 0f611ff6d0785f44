package cache

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestNilScoreCacheIsNoop(t *testing.T) {
	c := NewScoreCache(nil, time.Minute, zap.NewNop())
	if c != nil {
		t.Fatalf("want nil cache without a redis client")
	}

	ctx := context.Background()
	user := uuid.New()
	day := civil.Date{Year: 2025, Month: 3, Day: 10}

	if err := c.Set(ctx, user, day, map[string]int{"score": 40}); err != nil {
		t.Fatalf("Set on nil cache: %v", err)
	}
	var out map[string]int
	hit, err := c.Get(ctx, user, day, &out)
	if err != nil || hit {
		t.Fatalf("Get on nil cache: hit=%v err=%v", hit, err)
	}
	c.Invalidate(ctx, user)
}

func TestScoreKey(t *testing.T) {
	user := uuid.MustParse("6f1c1f6e-8a43-4b39-9a3a-0d3f0b2a9c11")
	got := scoreKey(user, civil.Date{Year: 2025, Month: 3, Day: 9})
	want := "identity_scores:6f1c1f6e-8a43-4b39-9a3a-0d3f0b2a9c11:2025-03-09"
	if got != want {
		t.Fatalf("want=%s got=%s", want, got)
	}
}
