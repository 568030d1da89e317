package cron

import (
	"testing"
	"time"
)

func TestCalculator_NextAfterUTC(t *testing.T) {
	calc := NewCalculator()

	after := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	next, err := calc.NextAfter("s1", "0 3 * * *", "", after)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}

	want := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
	if next.Location() != time.UTC {
		t.Fatal("next occurrence must be returned in UTC")
	}
}

func TestCalculator_NextAfterTimezone(t *testing.T) {
	calc := NewCalculator()

	// 03:00 daily in Shanghai (UTC+8, no DST) is 19:00 UTC the previous day.
	after := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	next, err := calc.NextAfter("s2", "0 3 * * *", "Asia/Shanghai", after)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}

	shanghai, _ := time.LoadLocation("Asia/Shanghai")
	local := next.In(shanghai)
	if local.Hour() != 3 || local.Minute() != 0 {
		t.Fatalf("occurrence is %v local, want 03:00", local)
	}
	want := time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestCalculator_InvalidExpression(t *testing.T) {
	calc := NewCalculator()

	if _, err := calc.NextAfter("s3", "not a cron", "", time.Now()); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestCalculator_InvalidTimezone(t *testing.T) {
	calc := NewCalculator()

	if _, err := calc.NextAfter("s4", "0 3 * * *", "Mars/Olympus", time.Now()); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestCalculator_CacheInvalidatedOnExpressionChange(t *testing.T) {
	calc := NewCalculator()
	after := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	first, err := calc.NextAfter("s5", "0 3 * * *", "", after)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}

	// Same cache key, different expression: must not serve the stale parse.
	second, err := calc.NextAfter("s5", "0 9 * * *", "", after)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if first.Equal(second) {
		t.Fatal("changed expression returned cached occurrence")
	}
	if second.Hour() != 9 {
		t.Fatalf("second = %v, want hour 9", second)
	}
}
