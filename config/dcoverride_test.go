package am

import (
	"testing"
)

func withTempHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestSetDatacenterOverrideRoundTrips(t *testing.T) {
	withTempHome(t)

	if err := SetDatacenterOverride(2, "127.0.0.1", 8443); err != nil {
		t.Fatalf("SetDatacenterOverride: %v", err)
	}

	overrides, err := LoadDatacenterOverrides()
	if err != nil {
		t.Fatalf("LoadDatacenterOverrides: %v", err)
	}

	got, ok := overrides[2]
	if !ok {
		t.Fatal("expected an override for dc 2")
	}
	if got.Address != "127.0.0.1" || got.Port != 8443 {
		t.Fatalf("unexpected override: %+v", got)
	}
}

func TestSetDatacenterOverridePreservesOtherEntries(t *testing.T) {
	withTempHome(t)

	if err := SetDatacenterOverride(1, "10.0.0.1", 443); err != nil {
		t.Fatalf("SetDatacenterOverride(1): %v", err)
	}
	if err := SetDatacenterOverride(2, "10.0.0.2", 443); err != nil {
		t.Fatalf("SetDatacenterOverride(2): %v", err)
	}

	overrides, err := LoadDatacenterOverrides()
	if err != nil {
		t.Fatalf("LoadDatacenterOverrides: %v", err)
	}
	if len(overrides) != 2 {
		t.Fatalf("expected 2 overrides, got %d", len(overrides))
	}
}

func TestLoadDatacenterOverridesEmptyWhenFileMissing(t *testing.T) {
	withTempHome(t)

	overrides, err := LoadDatacenterOverrides()
	if err != nil {
		t.Fatalf("LoadDatacenterOverrides: %v", err)
	}
	if len(overrides) != 0 {
		t.Fatalf("expected no overrides, got %d", len(overrides))
	}
}
