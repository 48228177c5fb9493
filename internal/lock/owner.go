// Package lock builds the per-instance lock owner identity and defines
// the tri-state lock descriptor: never a pointer sentinel, always an
// explicit enum.
package lock

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// State is the tri-state a lock can be in from this scheduler instance's
// point of view.
type State int

const (
	// Unlocked: no owner string persisted.
	Unlocked State = iota
	// Owned: this scheduler instance holds the lock.
	Owned
	// External: some other owner holds the lock. Re-queried, never acquired.
	External
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Owned:
		return "owned"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// Descriptor is the in-memory view of a persisted DSS lock column: the
// free-form owner string plus the tri-state derived from comparing it to
// this instance's own owner identity.
type Descriptor struct {
	State State
	Owner string
}

// FromRow derives a Descriptor from a persisted lock owner string and this
// instance's own owner identity. An empty row owner means Unlocked; any
// other value not equal to selfOwner means External.
func FromRow(rowOwner, selfOwner string) Descriptor {
	if rowOwner == "" {
		return Descriptor{State: Unlocked}
	}
	if rowOwner == selfOwner {
		return Descriptor{State: Owned, Owner: rowOwner}
	}
	return Descriptor{State: External, Owner: rowOwner}
}

var counter uint64

// NewOwnerID builds a lock owner identity unique across hosts and restarts:
// HOST:TID:TIME:COUNTER. The host segment is cut to 213 bytes, the other
// segments are hex numbers zero-padded to at least 8, 16 and 16 digits,
// and the whole string is truncated to 256 bytes. tid identifies the calling
// goroutine's host thread when known; pass 0 if unavailable.
func NewOwnerID(tid int) string {
	host := hostname()
	n := atomic.AddUint64(&counter, 1)
	id := fmt.Sprintf("%.213s:%.8x:%.16x:%.16x", host, tid, time.Now().Unix(), n)
	if len(id) > 256 {
		id = id[:256]
	}
	return id
}

// Host extracts the host segment from an owner string built by NewOwnerID
// (the HOST in HOST:TID:TIME:COUNTER), used by the locate operation to
// report who currently holds a medium.
func Host(owner string) string {
	if i := strings.IndexByte(owner, ':'); i >= 0 {
		return owner[:i]
	}
	return owner
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	if dot := strings.IndexByte(h, '.'); dot >= 0 {
		h = h[:dot]
	}
	return h
}
