package redis

import (
	"context"
	"testing"
	"time"
)

func TestQuotaRepository_IncrementDaily(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewQuotaRepository(client, "auth:quota")

	ctx := context.Background()
	day := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)

	for want := 1; want <= 3; want++ {
		count, err := repo.IncrementDaily(ctx, "resend:user-1", day)
		if err != nil {
			t.Fatalf("IncrementDaily returned error: %v", err)
		}
		if count != want {
			t.Fatalf("expected count %d, got %d", want, count)
		}
	}

	key := "auth:quota:resend:user-1:2026-03-14"
	ttl := server.TTL(key)
	if ttl <= 0 || ttl > 24*time.Hour {
		t.Fatalf("expected key to expire by next midnight, got ttl %v", ttl)
	}
}

func TestQuotaRepository_DailyCountMissingKey(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewQuotaRepository(client, "auth:quota")

	count, err := repo.DailyCount(context.Background(), "resend:user-2", time.Now())
	if err != nil {
		t.Fatalf("DailyCount returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero count for missing key, got %d", count)
	}
}

func TestQuotaRepository_BucketsByCalendarDay(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewQuotaRepository(client, "auth:quota")

	ctx := context.Background()
	today := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)

	if _, err := repo.IncrementDaily(ctx, "resend:user-3", today); err != nil {
		t.Fatalf("IncrementDaily returned error: %v", err)
	}

	count, err := repo.DailyCount(ctx, "resend:user-3", tomorrow)
	if err != nil {
		t.Fatalf("DailyCount returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected fresh bucket after midnight, got %d", count)
	}
}
