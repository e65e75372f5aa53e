package dialog

import (
	"strings"
	"testing"
)

func TestBLegUUIDOverwritesOnlyFirstFiveBytes(t *testing.T) {
	got := BLegUUID("a1234567-89ab-cdef")
	if !strings.HasPrefix(got, "b-leg") {
		t.Fatalf("expected b-leg prefix, got %q", got)
	}
	if got[5:] != "a1234567-89ab-cdef"[5:] {
		t.Fatalf("expected suffix preserved, got %q", got)
	}
}

func TestBLegUUIDShorterThanPrefix(t *testing.T) {
	got := BLegUUID("ab")
	if got != "b-" {
		t.Fatalf("expected truncated overwrite b-, got %q", got)
	}
}

func TestNewBranchHasExpectedPrefix(t *testing.T) {
	if !strings.HasPrefix(newBranch(), "z9hG4bK") {
		t.Fatalf("expected z9hG4bK prefix")
	}
	if !strings.HasPrefix(initialInviteBranch(), "z9hG4bK") {
		t.Fatalf("expected z9hG4bK prefix")
	}
}
