// Package location implements the fixed in-memory user directory: a small
// seeded table of known usernames and the registrar that keeps their
// transport addresses current.
package location

import "sync"

// Entry mirrors original_source/sip_server.h's location_entry_t. Password
// and Realm are carried for shape-fidelity with the C struct; nothing reads
// Password yet (see DESIGN.md) since digest validation is out of scope.
type Entry struct {
	Username   string
	Password   string
	IP         string
	Port       int
	Realm      string
	Registered bool
}

// Table is a fixed-capacity, seeded-at-startup directory of known users.
// It is mutated only by Register; the state machine reads through Lookup.
type Table struct {
	mu      sync.Mutex
	entries []Entry
}

// Seed entries match original_source/sip_server.c's location_entries[]
// verbatim, including each username's compiled-in default ip/port/password:
// unregistered until their softphone REGISTERs, but resolvable by an
// INVITE to their default address before that REGISTER ever arrives.
func defaultSeed(realm string) []Entry {
	type seed struct {
		username string
		ip       string
		port     int
	}
	seeds := []seed{
		{"1001", "192.168.192.1", 5060},
		{"1002", "192.168.192.1", 5070},
		{"1003", "192.168.1.103", 5060},
		{"1004", "192.168.1.104", 5060},
		{"1005", "192.168.184.1", 5060},
		{"1006", "192.168.184.1", 5070},
		{"1007", "192.168.1.4", 5060},
		{"1008", "192.168.1.4", 5070},
	}
	entries := make([]Entry, len(seeds))
	for i, s := range seeds {
		entries[i] = Entry{
			Username:   s.username,
			Password:   "defaultpassword",
			IP:         s.ip,
			Port:       s.port,
			Realm:      realm,
			Registered: false,
		}
	}
	return entries
}

// NewTable builds the seeded table. realm is the server's configured
// realm, replacing the C original's compile-time SIP_SERVER_IP_ADDRESS
// macro used as the default realm string.
func NewTable(realm string) *Table {
	return &Table{entries: defaultSeed(realm)}
}

// Lookup performs the linear search by exact username match specified in
// §4.5. It returns a copy; callers needing to mutate go through Register.
func (t *Table) Lookup(username string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].Username == username {
			return t.entries[i], true
		}
	}
	return Entry{}, false
}

// Register overwrites the matched entry's ip/port and marks it registered.
// It is the only mutator of the table (invariant: a successful REGISTER
// touches exactly one entry's ip/port/registered and nothing else). Returns
// false if the username is unknown, in which case nothing is mutated.
func (t *Table) Register(username, ip string, port int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].Username == username {
			t.entries[i].IP = ip
			t.entries[i].Port = port
			t.entries[i].Registered = true
			return t.entries[i], true
		}
	}
	return Entry{}, false
}

// Snapshot returns a copy of all entries, for the read-only status page.
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
