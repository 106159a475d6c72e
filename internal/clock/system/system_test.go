package system

import (
	"testing"
	"time"
)

// TestClockNowUTC ensures the default clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New(nil)
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestClockNowInLocation checks the configured zone is applied.
func TestClockNowInLocation(t *testing.T) {
	t.Parallel()

	ict := time.FixedZone("ICT", 7*3600)
	clk := New(ict)
	if got := clk.Now().Location(); got != ict {
		t.Fatalf("expected ICT location, got %v", got)
	}
	if clk.Location() != ict {
		t.Fatalf("expected Location() to return ICT, got %v", clk.Location())
	}
}

// TestClockNowMonotonic checks successive timestamps are non-decreasing.
func TestClockNowMonotonic(t *testing.T) {
	t.Parallel()

	clk := New(nil)
	first := clk.Now()
	second := clk.Now()
	if second.Before(first) {
		t.Fatalf("expected second call %v to be >= first %v", second, first)
	}
}
