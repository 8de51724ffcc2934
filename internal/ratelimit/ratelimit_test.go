package ratelimit_test

import (
	"testing"
	"time"

	"erasure/internal/ratelimit"
)

func TestExhaustAndRefill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ratelimit.NewAt(2, func() time.Time { return now })

	if !l.Allow("acme") || !l.Allow("acme") {
		t.Fatalf("first two requests must pass")
	}
	if l.Allow("acme") {
		t.Fatalf("third request must be limited")
	}

	// Half an hour accrues one token at 2/hour.
	now = now.Add(30 * time.Minute)
	if !l.Allow("acme") {
		t.Fatalf("expected refill after 30m")
	}
	if l.Allow("acme") {
		t.Fatalf("only one token should have accrued")
	}
}

func TestKeysIndependent(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ratelimit.NewAt(1, func() time.Time { return now })
	if !l.Allow("acme") {
		t.Fatalf("acme first request blocked")
	}
	if !l.Allow("datamart") {
		t.Fatalf("datamart must have its own bucket")
	}
	if l.Allow("acme") {
		t.Fatalf("acme should be exhausted")
	}
}

func TestTokensCapAtBudget(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ratelimit.NewAt(3, func() time.Time { return now })
	l.Allow("acme")
	// A week idle must not bank more than the hourly budget.
	now = now.Add(7 * 24 * time.Hour)
	if got := l.Remaining("acme"); got != 3 {
		t.Fatalf("remaining = %d, want 3", got)
	}
}
