package shm

import (
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-bridge/errors"
)

// Prot selects the page protection of a mapping.
type Prot int

const (
	// ReadOnly pages fault on write. Guest-side views of host-built
	// content are mapped this way.
	ReadOnly Prot = unix.PROT_READ
	// ReadWrite pages accept loads and stores from both sides.
	ReadWrite Prot = unix.PROT_READ | unix.PROT_WRITE
)

// Map maps the whole object at a kernel-chosen address and returns the
// mapping. Release with Unmap.
func (o *Object) Map(p Prot) ([]byte, error) {
	if o.file == nil {
		return nil, errors.MappingFailed(o.name, "object descriptor already closed", nil)
	}
	b, err := unix.Mmap(int(o.file.Fd()), 0, int(o.size), int(p), unix.MAP_SHARED)
	if err != nil {
		return nil, errors.MappingFailed(o.name, "mmap", err)
	}
	return b, nil
}

// MapFixed maps the whole object at exactly addr, which must be
// page-aligned. The kernel replacing mappings under MAP_FIXED is the point:
// the caller guarantees the range is an arena it owns inside guest memory.
// A kernel answer other than addr is an address mismatch and the stray
// mapping is released before returning.
func (o *Object) MapFixed(addr uintptr, p Prot) error {
	if o.file == nil {
		return errors.MappingFailed(o.name, "object descriptor already closed", nil)
	}
	got, err := unix.MmapPtr(int(o.file.Fd()), 0, unsafe.Pointer(addr), uintptr(o.size),
		int(p), unix.MAP_SHARED|unix.MAP_FIXED)
	if err != nil {
		return errors.New(errors.PhaseMap, errors.KindMapping).
			Region(o.name).Addr(addr).Cause(err).Detail("mmap fixed at %#x", addr).Build()
	}
	if uintptr(got) != addr {
		if uerr := unix.MunmapPtr(got, uintptr(o.size)); uerr != nil {
			Logger().Warn("failed to release stray mapping",
				zap.String("name", o.name), zap.Error(uerr))
		}
		return errors.AddressMismatch(o.name, addr, uintptr(got))
	}
	return nil
}

// Unmap releases a mapping returned by Map.
func Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Munmap(b); err != nil {
		return errors.MappingFailed("", "munmap", err)
	}
	return nil
}

// UnmapFixed releases a MapFixed mapping by installing fresh anonymous
// pages over the range. A plain munmap would leave a hole inside the guest
// arena; anonymous zero pages keep the surrounding allocation usable.
func UnmapFixed(addr, size uintptr) error {
	_, err := unix.MmapPtr(-1, 0, unsafe.Pointer(addr), size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED)
	if err != nil {
		return errors.New(errors.PhaseMap, errors.KindMapping).
			Addr(addr).Cause(err).Detail("restore anonymous pages at %#x", addr).Build()
	}
	return nil
}
