package signal

import (
	"time"

	"github.com/wippyai/wasm-bridge/errors"
)

// Signal is one command value in a guest's signal word.
type Signal uint32

const (
	// Idle means no command pending; only guests store it.
	Idle Signal = iota
	// Init tells the guest to set up its world from the shared regions.
	Init
	// Tick advances the guest one step.
	Tick
	// LargeAlloc makes the guest allocate a large scratch block. WASM
	// guests grow their memory doing so, which trips the base-drift check.
	LargeAlloc
	// ModifyGrid asks the guest to mutate the grid region. Guests holding
	// a read-only grid die trying, which is the point of the demo.
	ModifyGrid
	// Exit tells the guest to ack and stop its loop.
	Exit
)

func (s Signal) String() string {
	switch s {
	case Idle:
		return "idle"
	case Init:
		return "init"
	case Tick:
		return "tick"
	case LargeAlloc:
		return "large_alloc"
	case ModifyGrid:
		return "modify_grid"
	case Exit:
		return "exit"
	default:
		return "invalid"
	}
}

// Decode validates a raw word value. Anything past Exit is a protocol
// violation, never silently wrapped or clamped.
func Decode(v uint32) (Signal, error) {
	if v > uint32(Exit) {
		return 0, errors.Protocol(errors.PhaseSignal, "signal word %d out of range", v)
	}
	return Signal(v), nil
}

// Polling defaults, shared by host and guest sides.
const (
	DefaultInterval = 10 * time.Millisecond
	DefaultAttempts = 300
)

// Config bounds the polling on either side of the protocol. Zero values
// take the defaults.
type Config struct {
	// Interval between polls.
	Interval time.Duration
	// Attempts is the number of retries after the first poll before the
	// waiter gives up with a timeout.
	Attempts uint64
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	return c
}
