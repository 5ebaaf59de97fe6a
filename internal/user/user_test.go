package user

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	t.Parallel()

	if errors.Is(ErrNotFound, ErrNameTaken) {
		t.Error("ErrNotFound and ErrNameTaken must be distinct")
	}
	if !errors.Is(ErrNotFound, ErrNotFound) {
		t.Error("errors.Is(ErrNotFound, ErrNotFound) = false")
	}
}

func TestStateValues(t *testing.T) {
	t.Parallel()

	// The persisted state strings are part of the storage contract.
	if StateOnline != "online" {
		t.Errorf("StateOnline = %q, want %q", StateOnline, "online")
	}
	if StateOffline != "offline" {
		t.Errorf("StateOffline = %q, want %q", StateOffline, "offline")
	}
}
