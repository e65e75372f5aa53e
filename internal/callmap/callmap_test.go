package callmap

import (
	"context"
	"fmt"
	"testing"
)

func TestAllocateAndFindByCallID(t *testing.T) {
	m := New()
	call := m.Allocate()
	if call == nil {
		t.Fatalf("expected a free slot")
	}
	call.ALegUUID = "a-1"
	call.BLegUUID = "b-leg1"
	call.Lock()
	call.Unlock()

	found, leg, ok := m.FindByCallID("a-1")
	if !ok || leg != LegA || found.Index != call.Index {
		t.Fatalf("expected to find a-leg, got ok=%v leg=%v", ok, leg)
	}
	found, leg, ok = m.FindByCallID("b-leg1")
	if !ok || leg != LegB {
		t.Fatalf("expected to find b-leg, got ok=%v leg=%v", ok, leg)
	}
}

func TestAllocateExhaustsCapacity(t *testing.T) {
	m := New()
	for i := 0; i < Capacity; i++ {
		if m.Allocate() == nil {
			t.Fatalf("expected slot %d to be allocatable", i)
		}
	}
	if m.Allocate() != nil {
		t.Fatalf("expected allocation to fail once capacity is exhausted")
	}
	if m.ActiveCount() != Capacity {
		t.Fatalf("expected active count %d, got %d", Capacity, m.ActiveCount())
	}
}

func TestReleaseFreesSlotForReuse(t *testing.T) {
	m := New()
	call := m.Allocate()
	call.ALegUUID = "a-1"
	m.Release(call)

	if m.ActiveCount() != 0 {
		t.Fatalf("expected active count 0 after release, got %d", m.ActiveCount())
	}
	if _, _, ok := m.FindByCallID("a-1"); ok {
		t.Fatalf("expected released call to no longer be findable")
	}

	reused := m.Allocate()
	if reused == nil {
		t.Fatalf("expected the freed slot to be reusable")
	}
	if reused.ALegUUID != "" {
		t.Fatalf("expected reused slot to be zeroed, got %q", reused.ALegUUID)
	}
}

func TestSnapshotMutationDoesNotAffectLiveMap(t *testing.T) {
	m := New()
	for i := 0; i < 3; i++ {
		c := m.Allocate()
		c.ALegUUID = fmt.Sprintf("a-%d", i)
	}
	snap := m.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 active calls in snapshot, got %d", len(snap))
	}
	snap[0].ALegUUID = "mutated"
	if found, _, _ := m.FindByCallID("mutated"); found != nil {
		t.Fatalf("mutating a snapshot entry must not affect the live map")
	}
}

func TestCallTransitionAdvancesState(t *testing.T) {
	m := New()
	call := m.Allocate()
	if call.State() != IDLE {
		t.Fatalf("expected freshly allocated call to start IDLE, got %v", call.State())
	}
	if err := call.Transition(context.Background(), EventRoute); err != nil {
		t.Fatalf("route from IDLE should succeed: %v", err)
	}
	if call.State() != ROUTING {
		t.Fatalf("expected ROUTING after route, got %v", call.State())
	}
	if err := call.Transition(context.Background(), EventConnect); err == nil {
		t.Fatalf("expected connect from ROUTING to be rejected by the fsm")
	}
	if call.State() != ROUTING {
		t.Fatalf("rejected transition must not change state, got %v", call.State())
	}
}

func TestReleaseResetsCallToFreshFSM(t *testing.T) {
	m := New()
	call := m.Allocate()
	if err := call.Transition(context.Background(), EventRoute); err != nil {
		t.Fatalf("route from IDLE should succeed: %v", err)
	}
	m.Release(call)

	reused := m.Allocate()
	if reused.State() != IDLE {
		t.Fatalf("expected reused slot's fsm to restart at IDLE, got %v", reused.State())
	}
	if err := reused.Transition(context.Background(), EventRoute); err != nil {
		t.Fatalf("route from IDLE should succeed on a reused slot: %v", err)
	}
}

func TestStateString(t *testing.T) {
	if IDLE.String() != "IDLE" || CONNECTED.String() != "CONNECTED" {
		t.Fatalf("unexpected State.String() output")
	}
	if State(99).String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for out-of-range state")
	}
}
