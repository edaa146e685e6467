package guest

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/region"
)

// Descriptor names a byte range of guest linear memory.
type Descriptor struct {
	Offset uint32
	Length uint32
}

// End returns the first byte offset past the range. It is 64-bit so a
// range touching the top of the 32-bit space does not wrap.
func (d Descriptor) End() uint64 {
	return uint64(d.Offset) + uint64(d.Length)
}

// Layout carries the two application ranges handed to a guest. The
// read-write descriptor covers the application payload only; the signal
// block in front of it belongs to the host and the listener.
type Layout struct {
	RO Descriptor
	RW Descriptor
}

// Check verifies that both ranges are non-empty and lie inside a memory
// of the given size.
func (l Layout) Check(memSize uint32) error {
	for _, r := range []struct {
		name string
		d    Descriptor
	}{{"read-only", l.RO}, {"read-write", l.RW}} {
		if r.d.Length == 0 {
			return errors.InvalidInput(errors.PhaseGuest, r.name+" range is empty")
		}
		if r.d.End() > uint64(memSize) {
			return errors.OutOfBounds(errors.PhaseGuest, uint64(r.d.Offset), uint64(r.d.Length), uint64(memSize))
		}
	}
	return nil
}

// Context is what a native guest works against: bounds-checked views of
// the two shared regions.
type Context struct {
	RO region.View
	RW region.View
}

// NewContext pairs the two views, rejecting empty ones.
func NewContext(ro, rw region.View) (*Context, error) {
	if ro.Len() == 0 {
		return nil, errors.InvalidInput(errors.PhaseGuest, "read-only view is empty")
	}
	if rw.Len() == 0 {
		return nil, errors.InvalidInput(errors.PhaseGuest, "read-write view is empty")
	}
	return &Context{RO: ro, RW: rw}, nil
}
