package region

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/shm"
)

// Access is the protection guests get on a region.
type Access int

const (
	// ReadOnly regions are mapped PROT_READ on the guest side; the host
	// keeps its own writable mapping to build content.
	ReadOnly Access = iota
	// ReadWrite regions accept stores from both sides.
	ReadWrite
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	default:
		return "invalid"
	}
}

func (a Access) prot() shm.Prot {
	if a == ReadOnly {
		return shm.ReadOnly
	}
	return shm.ReadWrite
}

// Spec describes one shared region to create or map.
type Spec struct {
	Name   string
	Size   uintptr
	Access Access
}

// Placement is one region's resolved position inside a guest arena.
type Placement struct {
	Name   string
	Addr   uintptr
	Size   uintptr
	Access Access
}

// Align rounds ptr up to the next multiple of pageSize; pointers already on
// a boundary are returned unchanged. pageSize must be a power of two
// (validated by Plan, not here).
func Align(ptr, pageSize uintptr) uintptr {
	return ((ptr - 1) &^ (pageSize - 1)) + pageSize
}

// ArenaSize returns the guest allocation that is guaranteed to hold every
// region page-aligned, wherever the allocation itself starts: the sum of
// the sizes plus one page of slack per region plus one for the unaligned
// base.
func ArenaSize(pageSize uintptr, sizes ...uintptr) uintptr {
	total := uintptr(len(sizes)+1) * pageSize
	for _, s := range sizes {
		total += s
	}
	return total
}

// Plan walks an arena starting at base and assigns each spec a page-aligned
// address, in order, back to back. It validates the page size and the specs
// but not the arena bound; the mapper checks the final placement against
// the arena it allocated.
func Plan(base, pageSize uintptr, specs []Spec) ([]Placement, error) {
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		return nil, errors.InvalidInput(errors.PhaseAlign, "page size must be a power of two")
	}
	if len(specs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseAlign, "no regions to place")
	}

	seen := make(map[string]bool, len(specs))
	placements := make([]Placement, 0, len(specs))
	cur := base
	for _, sp := range specs {
		if sp.Name == "" {
			return nil, errors.InvalidInput(errors.PhaseAlign, "region name must not be empty")
		}
		if seen[sp.Name] {
			return nil, errors.New(errors.PhaseAlign, errors.KindInvalidInput).
				Region(sp.Name).Detail("duplicate region name").Build()
		}
		seen[sp.Name] = true
		if sp.Size == 0 {
			return nil, errors.New(errors.PhaseAlign, errors.KindInvalidInput).
				Region(sp.Name).Detail("region size must be positive").Build()
		}

		addr := Align(cur, pageSize)
		placements = append(placements, Placement{
			Name:   sp.Name,
			Addr:   addr,
			Size:   sp.Size,
			Access: sp.Access,
		})
		cur = addr + sp.Size
	}
	return placements, nil
}
