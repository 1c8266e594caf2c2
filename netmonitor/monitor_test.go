package netmonitor

import "testing"

func TestPollOnlyFiresOnChangeOnTransition(t *testing.T) {
	calls := 0
	m := &Monitor{onChange: func(available bool) { calls++ }}

	// First sample always reports, regardless of value.
	m.hasSample = false
	m.lastKnown = false
	m.recordSample(true)
	if calls != 1 {
		t.Fatalf("expected 1 call after first sample, got %d", calls)
	}

	m.recordSample(true)
	if calls != 1 {
		t.Fatalf("expected no call for a repeated sample, got %d calls", calls)
	}

	m.recordSample(false)
	if calls != 2 {
		t.Fatalf("expected a call on transition to unavailable, got %d calls", calls)
	}
}

func TestHasFlag(t *testing.T) {
	flags := []string{"up", "broadcast", "multicast"}
	if !hasFlag(flags, "up") {
		t.Fatal("expected hasFlag to find \"up\"")
	}
	if hasFlag(flags, "loopback") {
		t.Fatal("expected hasFlag to not find \"loopback\"")
	}
}
