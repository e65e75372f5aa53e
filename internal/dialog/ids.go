package dialog

import (
	"fmt"
	"time"
)

// BLegUUID derives the B-leg dialog identifier from the A-leg Call-ID by
// overwriting its first five bytes with the literal "b-leg", per invariant
// 2 in spec §3. This is a deliberate, pragmatic identity mapping (§9's
// design note says a cleaner port would mint a fresh UUID and keep a
// two-way map) but the on-wire contract — a deterministic, distinct
// derived Call-ID — must be preserved exactly as written here.
func BLegUUID(aLegUUID string) string {
	b := []byte(aLegUUID)
	for i := 0; i < 5 && i < len(b); i++ {
		b[i] = "b-leg"[i]
	}
	return string(b)
}

// newBranch mints a "z9hG4bK<hex>" branch token for the later fresh-Via
// transitions (ACK/BYE), using hex-of-unix-nanoseconds so two branches
// minted within the same second don't collide. The initial INVITE to B
// uses initialInviteBranch instead (hex-of-unix-seconds, matching
// original_source/sip_server.c's `(unsigned long)time(NULL)` formatting,
// §4.7 step 9).
func newBranch() string {
	return fmt.Sprintf("z9hG4bK%x", time.Now().UnixNano())
}

// initialInviteBranch matches the C original's second-resolution format
// used specifically for the first INVITE sent to the callee.
func initialInviteBranch() string {
	return fmt.Sprintf("z9hG4bK%x", time.Now().Unix())
}
