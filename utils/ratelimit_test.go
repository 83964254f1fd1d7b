package utils

import (
	"context"
	"testing"
	"time"
)

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		input       string
		expected    int64
		expectError bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"2048", 2048, false},
		{"512K", 512 * 1024, false},
		{"512k", 512 * 1024, false},
		{"5M", 5 * 1024 * 1024, false},
		{"5MB", 5 * 1024 * 1024, false},
		{"1.5M", 1572864, false},
		{"1G", 1024 * 1024 * 1024, false},
		{"100B", 100, false},
		{"M", 0, true},
		{"-5M", 0, true},
		{"5X", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRateLimit(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseRateLimit(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTokenBucketLimiter_Unlimited(t *testing.T) {
	limiter := NewTokenBucketLimiter(0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := limiter.Wait(context.Background(), 1<<20); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("an unlimited limiter should not block")
	}
}

func TestTokenBucketLimiter_ReserveComputesDebt(t *testing.T) {
	limiter := NewTokenBucketLimiter(1000)
	fixed := time.Now()
	limiter.now = func() time.Time { return fixed }
	limiter.lastUpdate = fixed

	if wait := limiter.reserve(1000); wait != 0 {
		t.Errorf("full bucket should cover the first 1000 bytes, got wait %v", wait)
	}
	if wait := limiter.reserve(500); wait != 500*time.Millisecond {
		t.Errorf("expected 500ms debt, got %v", wait)
	}

	// debt repaid, bucket refilled up to max
	fixed = fixed.Add(2 * time.Second)
	if wait := limiter.reserve(100); wait != 0 {
		t.Errorf("refilled bucket should not wait, got %v", wait)
	}
}

func TestTokenBucketLimiter_WaitHonorsContext(t *testing.T) {
	limiter := NewTokenBucketLimiter(10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx, 10000); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTokenBucketLimiter_SetRate(t *testing.T) {
	limiter := NewTokenBucketLimiter(1000)
	limiter.SetRate(50)

	if limiter.Rate() != 50 {
		t.Errorf("expected rate 50, got %d", limiter.Rate())
	}
	if limiter.bucket > 50 {
		t.Errorf("bucket should be clamped to the new max, got %d", limiter.bucket)
	}
}
