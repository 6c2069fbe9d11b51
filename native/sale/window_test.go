package sale

import (
	"testing"
	"time"
)

func TestWindowBoundsInclusive(t *testing.T) {
	start := time.Unix(1700000000, 0)
	end := start.Add(time.Hour)
	window := Window{Start: start, End: end}

	if window.Open(start.Add(-time.Second)) {
		t.Fatalf("expected closed before start")
	}
	if !window.Open(start) {
		t.Fatalf("expected open at start")
	}
	if !window.Open(start.Add(30 * time.Minute)) {
		t.Fatalf("expected open mid-window")
	}
	if !window.Open(end) {
		t.Fatalf("expected open at end")
	}
	if window.Open(end.Add(time.Second)) {
		t.Fatalf("expected closed after end")
	}
}

func TestWindowZeroBoundsUnbounded(t *testing.T) {
	now := time.Unix(1700000000, 0)
	if !(Window{}).Open(now) {
		t.Fatalf("expected zero window always open")
	}
	noEnd := Window{Start: now}
	if !noEnd.Open(now.Add(10000 * time.Hour)) {
		t.Fatalf("expected open with zero end")
	}
	if noEnd.Open(now.Add(-time.Second)) {
		t.Fatalf("expected closed before start")
	}
	noStart := Window{End: now}
	if !noStart.Open(now.Add(-10000 * time.Hour)) {
		t.Fatalf("expected open with zero start")
	}
	if noStart.Open(now.Add(time.Second)) {
		t.Fatalf("expected closed after end")
	}
}
