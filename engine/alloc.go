package engine

import (
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-bridge/errors"
)

// pinnedAllocator backs guest linear memories with one anonymous mapping
// reserved at the memory's maximum size. Growth hands back a longer slice
// of the same mapping, so the base address never changes and fixed
// mappings placed inside the arena stay valid.
type pinnedAllocator struct{}

func (pinnedAllocator) Allocate(cap, max uint64) experimental.LinearMemory {
	if max == 0 {
		max = cap
	}
	// MAP_NORESERVE keeps the reservation cheap: pages are committed as
	// the guest touches them, not when the range is mapped.
	buf, err := unix.Mmap(-1, 0, int(max),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		// The allocator hook has no error path; reservation failure is
		// fatal for the instantiation.
		panic(errors.AllocationFailed(errors.PhaseEngine, max, err))
	}
	return &pinnedMemory{buf: buf, size: cap}
}

type pinnedMemory struct {
	buf  []byte
	size uint64
}

// Reallocate resizes the memory view without moving it. Growing past the
// reservation is refused, which wazero reports as a failed memory.grow.
func (m *pinnedMemory) Reallocate(size uint64) []byte {
	if size > uint64(len(m.buf)) {
		return nil
	}
	m.size = size
	return m.buf[:size]
}

func (m *pinnedMemory) Free() {
	if m.buf == nil {
		return
	}
	if err := unix.Munmap(m.buf); err != nil {
		Logger().Warn("pinned memory unmap failed", zap.Error(err))
	}
	m.buf = nil
}
