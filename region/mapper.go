package region

import (
	"math"
	"os"
	"unsafe"

	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/shm"
)

// Mapper places shared objects at page-aligned fixed addresses inside guest
// linear memory. It allocates a single arena through the guest's own
// allocator, so the guest cannot hand the same range to anything else, then
// replaces the arena's pages with the shared objects'.
type Mapper struct {
	mem   wasmbridge.LinearMemory
	alloc wasmbridge.Allocator
	page  uintptr
}

// NewMapper builds a Mapper over a guest's memory and allocator, using the
// host page size.
func NewMapper(mem wasmbridge.LinearMemory, alloc wasmbridge.Allocator) *Mapper {
	return &Mapper{mem: mem, alloc: alloc, page: uintptr(os.Getpagesize())}
}

// Map maps objs[i] according to specs[i] into guest memory, in order, each
// start page-aligned. Spec sizes of zero take the object's size; non-zero
// sizes must fit inside the object.
//
// On success the mapper owns the objects' descriptors and closes them (the
// mappings persist); the returned set is a non-owner, so Close restores the
// arena's pages without unlinking anything. On failure the descriptors stay
// open and belong to the caller again.
func (m *Mapper) Map(objs []*shm.Object, specs []Spec) (*Set, error) {
	if len(objs) == 0 || len(objs) != len(specs) {
		return nil, errors.InvalidInput(errors.PhaseMap, "objects and specs must pair up")
	}

	work := make([]Spec, len(specs))
	copy(work, specs)
	sizes := make([]uintptr, len(work))
	for i := range work {
		if work[i].Size == 0 {
			work[i].Size = uintptr(objs[i].Size())
		}
		if int64(work[i].Size) > objs[i].Size() {
			return nil, errors.New(errors.PhaseMap, errors.KindInvalidInput).
				Region(work[i].Name).
				Detail("object holds %d bytes, spec wants %d", objs[i].Size(), work[i].Size).
				Build()
		}
		sizes[i] = work[i].Size
	}

	arena := ArenaSize(m.page, sizes...)
	if uint64(arena) > math.MaxUint32 {
		return nil, errors.InvalidInput(errors.PhaseMap, "arena exceeds 32-bit guest address space")
	}

	arenaOff, err := m.alloc.Alloc(uint32(arena))
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseMap, uint64(arena), err)
	}
	if arenaOff == 0 {
		return nil, errors.AllocationFailed(errors.PhaseMap, uint64(arena), nil)
	}

	buf, err := m.mem.Buffer()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMap, errors.KindMapping, err, "guest memory buffer")
	}
	if len(buf) == 0 || uint64(arenaOff)+uint64(arena) > uint64(len(buf)) {
		return nil, errors.New(errors.PhaseMap, errors.KindOutOfBounds).
			Detail("arena [%d, %d) outside guest memory of %d bytes",
				arenaOff, uint64(arenaOff)+uint64(arena), len(buf)).
			Build()
	}

	memBase := uintptr(unsafe.Pointer(&buf[0]))
	placements, err := Plan(memBase+uintptr(arenaOff), m.page, work)
	if err != nil {
		return nil, err
	}
	last := placements[len(placements)-1]
	if last.Addr+last.Size > memBase+uintptr(arenaOff)+arena {
		return nil, errors.Internal(errors.PhaseMap, "plan escaped its arena", nil)
	}

	for i, pl := range placements {
		if err := objs[i].MapFixed(pl.Addr, pl.Access.prot()); err != nil {
			for j := i - 1; j >= 0; j-- {
				if uerr := shm.UnmapFixed(placements[j].Addr, placements[j].Size); uerr != nil {
					Logger().Warn("rollback unmap",
						zap.String("region", placements[j].Name), zap.Error(uerr))
				}
			}
			return nil, err
		}
	}

	s := &Set{byName: make(map[string]*Region, len(placements))}
	for i, pl := range placements {
		goff := uint32(pl.Addr - memBase)
		r := &Region{
			obj:      objs[i],
			name:     pl.Name,
			buf:      buf[goff : goff+uint32(pl.Size) : goff+uint32(pl.Size)],
			access:   pl.Access,
			guestOff: goff,
			fixed:    true,
			addr:     pl.Addr,
		}
		s.regions = append(s.regions, r)
		s.byName[pl.Name] = r

		if err := objs[i].Close(); err != nil {
			Logger().Warn("close object descriptor",
				zap.String("region", pl.Name), zap.Error(err))
		}
		Logger().Debug("fixed-mapped region",
			zap.String("region", pl.Name),
			zap.Uint32("guest_offset", goff),
			zap.Int("size", r.Size()),
			zap.Stringer("access", pl.Access))
	}
	return s, nil
}
