// Package callmap implements the fixed-capacity pool of call records the
// dialog state machine operates on: one slot per concurrent call,
// allocated and released by Call-ID, guarded by a map-level lock plus a
// per-slot lock (see original_source/sip_server.h's call_map_t). Each
// slot's state lives in a github.com/looplab/fsm.FSM rather than a bare
// field, the way arzzra-soft_phone/pkg/dialog.Dialog drives its own
// state through fsm.FSM instead of direct field assignment.
package callmap

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// Capacity matches original_source/sip_server.h's MAX_CALLS.
const Capacity = 32

// State is one of the six dialog states from spec §4.7.
type State int

const (
	IDLE State = iota
	ROUTING
	RINGING
	ANSWERED
	CONNECTED
	DISCONNECTING
)

func (s State) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case ROUTING:
		return "ROUTING"
	case RINGING:
		return "RINGING"
	case ANSWERED:
		return "ANSWERED"
	case CONNECTED:
		return "CONNECTED"
	case DISCONNECTING:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// stateNames maps a State's ordinal position to the fsm.FSM's state name,
// and back via stateFromName.
var stateNames = [...]string{"idle", "routing", "ringing", "answered", "connected", "disconnecting"}

func stateFromName(name string) State {
	for i, n := range stateNames {
		if n == name {
			return State(i)
		}
	}
	return IDLE
}

// Transition event names fired against a Call's fsm.FSM. The dialog
// engine still decides which inbound message maps to which event; the
// fsm.FSM owns the state itself and rejects an event whose Src doesn't
// match the call's current state.
const (
	EventRoute      = "route"      // IDLE -> ROUTING
	EventRing       = "ring"       // ROUTING|RINGING -> RINGING
	EventAnswer     = "answer"     // ROUTING|RINGING -> ANSWERED
	EventConnect    = "connect"    // ANSWERED -> CONNECTED
	EventDisconnect = "disconnect" // ROUTING|RINGING|CONNECTED -> DISCONNECTING
)

func newCallFSM() *fsm.FSM {
	return fsm.NewFSM(
		stateNames[IDLE],
		fsm.Events{
			{Name: EventRoute, Src: []string{stateNames[IDLE]}, Dst: stateNames[ROUTING]},
			{Name: EventRing, Src: []string{stateNames[ROUTING], stateNames[RINGING]}, Dst: stateNames[RINGING]},
			{Name: EventAnswer, Src: []string{stateNames[ROUTING], stateNames[RINGING]}, Dst: stateNames[ANSWERED]},
			{Name: EventConnect, Src: []string{stateNames[ANSWERED]}, Dst: stateNames[CONNECTED]},
			{Name: EventDisconnect, Src: []string{stateNames[ROUTING], stateNames[RINGING], stateNames[CONNECTED]}, Dst: stateNames[DISCONNECTING]},
		},
		fsm.Callbacks{},
	)
}

// Leg distinguishes caller-side from callee-side within a call.
type Leg int

const (
	LegA Leg = iota
	LegB
)

// LegHeaders holds one leg's From/Via/To/CSeq header lines exactly as
// captured off the wire (verbatim, including the "Header-Name: " prefix),
// per spec §3 and §9's "header capture including the header name".
type LegHeaders struct {
	From string
	Via  string
	To   string
	CSeq string
}

// MediaState flags whether SDP has been observed in each direction for a
// leg. Informational only: the engine sets these flags, but nothing in the
// engine, its logging or the status page reads them.
type MediaState struct {
	LocalMedia  bool
	RemoteMedia bool
}

// Call is one occupied or free slot in the CallMap.
type Call struct {
	Index    int
	IsActive bool

	ALegUUID string
	BLegUUID string

	ALegAddr Addr
	BLegAddr Addr

	ALegHeaders LegHeaders
	BLegHeaders LegHeaders

	ALegContact string
	BLegContact string

	ALegMedia MediaState
	BLegMedia MediaState

	Caller string
	Callee string

	// mu and fsm are pointers so Snapshot can copy a Call by value
	// without copying lock state (sync.Mutex must never be copied after
	// use). A copy shares the live slot's mutex and fsm.FSM, so State()
	// on a copy reports the live state.
	mu  *sync.Mutex
	fsm *fsm.FSM
}

// Addr is a transport address (host:port), stored rather than net.Addr so
// the call map stays free of any transport-package dependency.
type Addr struct {
	IP   string
	Port int
}

// Lock serializes transitions for this call independently of the map's
// lock; defense in depth per §5 for the single-queue/few-worker deployment.
func (c *Call) Lock()   { c.mu.Lock() }
func (c *Call) Unlock() { c.mu.Unlock() }

// State reports the call's current dialog state, read off the
// underlying fsm.FSM rather than a bare field.
func (c *Call) State() State {
	return stateFromName(c.fsm.Current())
}

// Transition fires event against the call's fsm.FSM. The caller (the
// dialog engine) is responsible for only firing events that are valid
// for the message just handled; fsm.FSM itself rejects an event whose
// Src doesn't include the current state, returned here as an error.
func (c *Call) Transition(ctx context.Context, event string) error {
	return c.fsm.Event(ctx, event)
}

func (c *Call) reset(index int) {
	mu := c.mu
	*c = Call{Index: index, mu: mu, fsm: newCallFSM()}
}

// Map is the fixed-capacity call pool, guarded by one lock (§5).
type Map struct {
	mu    sync.Mutex
	slots [Capacity]Call
	size  int
}

// New builds an empty map with all slots initialized to IDLE/inactive.
func New() *Map {
	m := &Map{}
	for i := range m.slots {
		m.slots[i].Index = i
		m.slots[i].mu = &sync.Mutex{}
		m.slots[i].fsm = newCallFSM()
	}
	return m
}

// Allocate finds the first free slot, marks it occupied, and returns it.
// Returns nil when the pool is full (§4.6).
func (m *Map) Allocate() *Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.size >= Capacity {
		return nil
	}
	for i := range m.slots {
		if !m.slots[i].IsActive {
			m.slots[i].IsActive = true
			m.size++
			return &m.slots[i]
		}
	}
	return nil
}

// FindByCallID scans active slots comparing id against each slot's
// ALegUUID and BLegUUID, returning the call and which leg matched (§4.6).
func (m *Map) FindByCallID(id string) (*Call, Leg, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if !m.slots[i].IsActive {
			continue
		}
		if m.slots[i].ALegUUID == id {
			return &m.slots[i], LegA, true
		}
		if m.slots[i].BLegUUID == id {
			return &m.slots[i], LegB, true
		}
	}
	return nil, 0, false
}

// Release re-initializes the slot to its zero value and decrements the
// active counter. Must be called with the call's own lock already held by
// the caller's transition, before the map lock is taken.
func (m *Map) Release(c *Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !c.IsActive {
		return
	}
	index := c.Index
	c.reset(index)
	m.size--
}

// ActiveCount reports the number of occupied slots, for the status page
// and for tests asserting invariant 1 (active count == non-IDLE count).
func (m *Map) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Snapshot returns a copy of every active call, for the read-only status
// page. Copies are taken without the per-call lock since the dashboard is
// best-effort and tolerates a torn read of a call mid-transition.
func (m *Map) Snapshot() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, 0, m.size)
	for i := range m.slots {
		if m.slots[i].IsActive {
			out = append(out, m.slots[i])
		}
	}
	return out
}
