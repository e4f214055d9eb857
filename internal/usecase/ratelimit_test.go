package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRateLimitCheckAllowsUpToLimit(t *testing.T) {
	limiter := NewRateLimitService(newMemoryRateLimitStore(), nil)
	at := fixtureTime()

	for i := 0; i < 3; i++ {
		if err := limiter.Check(context.Background(), "login", "jordan@example.com", time.Minute, 3, at); err != nil {
			t.Fatalf("attempt %d should pass: %v", i, err)
		}
	}

	err := limiter.Check(context.Background(), "login", "jordan@example.com", time.Minute, 3, at)
	var limitErr *RateLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if limitErr.RetryAfter != time.Minute {
		t.Fatalf("expected retry-after of a full window, got %v", limitErr.RetryAfter)
	}
}

func TestRateLimitCheckWindowSlides(t *testing.T) {
	limiter := NewRateLimitService(newMemoryRateLimitStore(), nil)
	at := fixtureTime()

	for i := 0; i < 3; i++ {
		if err := limiter.Check(context.Background(), "login", "jordan@example.com", time.Minute, 3, at); err != nil {
			t.Fatalf("attempt %d should pass: %v", i, err)
		}
	}

	// Once the window has passed the identifier is clean again.
	if err := limiter.Check(context.Background(), "login", "jordan@example.com", time.Minute, 3, at.Add(2*time.Minute)); err != nil {
		t.Fatalf("attempt after window should pass: %v", err)
	}
}

func TestRateLimitCheckNormalizesIdentifier(t *testing.T) {
	limiter := NewRateLimitService(newMemoryRateLimitStore(), nil)
	at := fixtureTime()

	if err := limiter.Check(context.Background(), "login", "Jordan@Example.com ", time.Minute, 1, at); err != nil {
		t.Fatalf("first attempt should pass: %v", err)
	}

	err := limiter.Check(context.Background(), "login", "jordan@example.com", time.Minute, 1, at)
	var limitErr *RateLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("case and whitespace variants must share a bucket, got %v", err)
	}
}

func TestRateLimitCheckScopesAreIndependent(t *testing.T) {
	limiter := NewRateLimitService(newMemoryRateLimitStore(), nil)
	at := fixtureTime()

	if err := limiter.Check(context.Background(), "login", "jordan@example.com", time.Minute, 1, at); err != nil {
		t.Fatalf("login attempt should pass: %v", err)
	}
	if err := limiter.Check(context.Background(), "forgot_password", "jordan@example.com", time.Minute, 1, at); err != nil {
		t.Fatalf("a different scope must not share the bucket: %v", err)
	}
}

func TestRateLimitCheckFailsOpen(t *testing.T) {
	store := newMemoryRateLimitStore()
	store.failErr = fmt.Errorf("connection refused")
	limiter := NewRateLimitService(store, nil)

	if err := limiter.Check(context.Background(), "login", "jordan@example.com", time.Minute, 1, fixtureTime()); err != nil {
		t.Fatalf("store outage must not block the request: %v", err)
	}
}

func TestRateLimitCheckSkipsEmptyIdentifier(t *testing.T) {
	limiter := NewRateLimitService(newMemoryRateLimitStore(), nil)

	for i := 0; i < 5; i++ {
		if err := limiter.Check(context.Background(), "login", "  ", time.Minute, 1, fixtureTime()); err != nil {
			t.Fatalf("empty identifier must never be limited: %v", err)
		}
	}
}
