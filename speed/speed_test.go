package speed

import (
	"testing"
	"time"
)

func TestGetSpeedWindow(t *testing.T) {
	m := New(time.Minute)
	base := time.Unix(1000, 0)
	m.Add(base, 1000)
	m.Add(base.Add(time.Second), 1000)
	m.Add(base.Add(2*time.Second), 1000)
	got := m.GetSpeed(base.Add(2*time.Second), 3*time.Second)
	want := 1000.0
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestGetTotal(t *testing.T) {
	m := New(0)
	base := time.Unix(0, 0)
	m.Add(base, 500)
	m.Add(base.Add(time.Second), 500)
	if got := m.GetTotal(); got != 1000 {
		t.Fatalf("got %d", got)
	}
}

func TestPruneDropsOldSamples(t *testing.T) {
	m := New(time.Second)
	base := time.Unix(0, 0)
	m.Add(base, 1000)
	m.Add(base.Add(5*time.Second), 1000)
	// The first sample is outside the 1s retention window relative to the
	// second Add call, so GetSpeed over a wide window should only see the
	// most recent sample's contribution once pruned.
	got := m.GetSpeed(base.Add(5*time.Second), 10*time.Second)
	if got <= 0 {
		t.Fatalf("expected positive speed, got %v", got)
	}
	if got > 1000.0/10 {
		t.Fatalf("expected pruning to drop the old sample, got %v", got)
	}
}
