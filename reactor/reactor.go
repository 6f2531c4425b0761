package reactor

import "errors"

// Interest is a bitmask of readiness conditions a descriptor is watched for.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write
	PeerClosed
)

// Flags modify how a registration behaves across wake-ups.
type Flags uint8

const (
	EdgeTriggered Flags = 1 << iota
	OneShot
)

// Event reports one descriptor's observed readiness.
type Event struct {
	Fd       int
	Ready    Interest
	UserData uintptr
}

var (
	// ErrInterrupted signals Wait was interrupted (EINTR) and should be retried.
	ErrInterrupted = errors.New("reactor: interrupted")
)

// Reactor is the readiness-notification core described in spec.md §4.1.
// Implementations must guarantee that a given fd is registered in at most
// one Reactor's interest set at any instant (spec.md §3 invariant).
type Reactor interface {
	// Register adds fd to the interest set with the given flags. userData
	// is returned verbatim in Event.UserData so callers can recover the
	// owning Connection without a map lookup.
	Register(fd int, interest Interest, flags Flags, userData uintptr) error

	// Modify changes the interest set for an already-registered fd. Used to
	// re-arm a ONE_SHOT descriptor for the next phase (READ vs WRITE).
	Modify(fd int, interest Interest) error

	// Unregister removes fd from the interest set. It does not close fd.
	Unregister(fd int) error

	// Wait blocks until at least one descriptor is ready, the timeout
	// elapses, or the call is interrupted. It returns the number of events
	// written into out. timeoutMs < 0 blocks indefinitely.
	Wait(out []Event, timeoutMs int) (int, error)

	// Close releases the underlying polling instance.
	Close() error
}
