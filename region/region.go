package region

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/shm"
)

// Region is one mapped shared region. Host-side regions wrap a kernel-chosen
// mapping of the backing object; guest-side regions alias the fixed-mapped
// range inside guest linear memory.
type Region struct {
	obj      *shm.Object
	name     string
	buf      []byte
	access   Access
	guestOff uint32
	fixed    bool
	addr     uintptr
}

// Name returns the region name from its Spec.
func (r *Region) Name() string { return r.name }

// Size returns the mapped length in bytes.
func (r *Region) Size() int { return len(r.buf) }

// Access returns the guest-side protection for this region.
func (r *Region) Access() Access { return r.access }

// Bytes returns the full mapped slice. For ReadOnly regions on the guest
// side the pages fault on store; treat the slice as read-only.
func (r *Region) Bytes() []byte { return r.buf }

// GuestOffset returns the region's offset inside guest linear memory.
// It is only meaningful for regions mapped by a Mapper.
func (r *Region) GuestOffset() uint32 { return r.guestOff }

// ObjectName returns the backing shared-memory object's name, used to hand
// the region to another process.
func (r *Region) ObjectName() string {
	if r.obj == nil {
		return ""
	}
	return r.obj.Name()
}

// View returns a bounds-checked view over [off, off+length) of the region.
func (r *Region) View(off, length uint32) (View, error) {
	return NewView(r.buf).Slice(off, length)
}

// release tears down this region's mapping and descriptor. Unlink only for
// owners. Errors are returned for aggregation; the sweep never stops early.
func (r *Region) release(owner bool) error {
	var err error
	if r.fixed {
		err = shm.UnmapFixed(r.addr, uintptr(len(r.buf)))
	} else if r.buf != nil {
		err = shm.Unmap(r.buf)
	}
	r.buf = nil

	if r.obj != nil {
		if cerr := r.obj.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if owner {
			if uerr := r.obj.Unlink(); uerr != nil && err == nil {
				err = uerr
			}
		}
		r.obj = nil
	}
	if err != nil {
		return errors.Wrap(errors.PhaseMap, errors.KindMapping, err, "release region "+r.name)
	}
	return nil
}
