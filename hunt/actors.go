package hunt

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/region"
)

// Actor table wire layout, little-endian int32 fields:
//
//	+0   hunter x
//	+4   hunter y
//	+8   runner 0: x, y, state
//	+20  runner 1: ...
const (
	hunterBytes = 8
	runnerBytes = 12
)

// ActorsSize returns the byte length of an actor table holding the given
// number of runners. It does not include the signal block in front.
func ActorsSize(runners int) uint32 {
	return hunterBytes + uint32(runners)*runnerBytes
}

// State is a runner's lifecycle state.
type State int32

const (
	Walking State = 0
	Running State = 1
	Dead    State = 2
)

// String returns the state's display name.
func (s State) String() string {
	switch s {
	case Walking:
		return "walking"
	case Running:
		return "running"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DecodeState validates a raw state word read from shared memory. Junk
// means a foreign guest broke the wire format; better to stop than to
// simulate garbage.
func DecodeState(v int32) (State, error) {
	if v < int32(Walking) || v > int32(Dead) {
		return 0, errors.InvalidData(errors.PhaseHunt, fmt.Sprintf("junk runner state %d", v))
	}
	return State(v), nil
}

// Runner is one runner's record.
type Runner struct {
	X, Y  int32
	State State
}

// Actors frames the actor table over the payload part of the read-write
// region, after the signal block. Host and guests frame the same bytes;
// write ownership (hunter guest: the hunter pair, runner guest: every
// runner record) is what keeps concurrent ticks sound.
type Actors struct {
	buf     []byte
	runners int
}

// NewActors frames a table with the given runner count over view.
func NewActors(view region.View, runners int) (*Actors, error) {
	if runners <= 0 {
		return nil, errors.InvalidInput(errors.PhaseHunt, "runner count must be positive")
	}
	buf, err := view.Bytes(0, ActorsSize(runners))
	if err != nil {
		return nil, err
	}
	return &Actors{buf: buf, runners: runners}, nil
}

// Runners returns the table's runner capacity.
func (a *Actors) Runners() int { return a.runners }

// Hunter reads the hunter position.
func (a *Actors) Hunter() (x, y int32) {
	return int32(binary.LittleEndian.Uint32(a.buf)),
		int32(binary.LittleEndian.Uint32(a.buf[4:]))
}

// SetHunter writes the hunter position.
func (a *Actors) SetHunter(x, y int32) {
	binary.LittleEndian.PutUint32(a.buf, uint32(x))
	binary.LittleEndian.PutUint32(a.buf[4:], uint32(y))
}

// Runner reads runner i's record, validating the state word.
func (a *Actors) Runner(i int) (Runner, error) {
	if err := a.check(i); err != nil {
		return Runner{}, err
	}
	off := hunterBytes + i*runnerBytes
	st, err := DecodeState(int32(binary.LittleEndian.Uint32(a.buf[off+8:])))
	if err != nil {
		return Runner{}, err
	}
	return Runner{
		X:     int32(binary.LittleEndian.Uint32(a.buf[off:])),
		Y:     int32(binary.LittleEndian.Uint32(a.buf[off+4:])),
		State: st,
	}, nil
}

// SetRunner writes runner i's record.
func (a *Actors) SetRunner(i int, r Runner) error {
	if err := a.check(i); err != nil {
		return err
	}
	off := hunterBytes + i*runnerBytes
	binary.LittleEndian.PutUint32(a.buf[off:], uint32(r.X))
	binary.LittleEndian.PutUint32(a.buf[off+4:], uint32(r.Y))
	binary.LittleEndian.PutUint32(a.buf[off+8:], uint32(r.State))
	return nil
}

// Live counts runners not yet dead.
func (a *Actors) Live() (int, error) {
	live := 0
	for i := 0; i < a.runners; i++ {
		r, err := a.Runner(i)
		if err != nil {
			return 0, err
		}
		if r.State != Dead {
			live++
		}
	}
	return live, nil
}

func (a *Actors) check(i int) error {
	if i < 0 || i >= a.runners {
		return errors.InvalidInput(errors.PhaseHunt, fmt.Sprintf("runner %d outside 0..%d", i, a.runners-1))
	}
	return nil
}
