package hunt

import (
	"math/rand"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/region"
)

// Cell values stored in the grid.
const (
	CellEmpty int32 = 0
	CellWall  int32 = 1

	// cellScribble is what the modify-grid command writes at the origin:
	// still blocked, but distinguishable from a real wall when inspecting
	// the map after the fact.
	cellScribble int32 = 2
)

// modifyFlips is how many interior cells one host-side Modify toggles.
const modifyFlips = 5

// GridBytes returns the region size a w×h grid occupies.
func GridBytes(w, h int32) uint32 { return uint32(w) * uint32(h) * 4 }

// Grid frames the world map over the read-only shared region: w×h int32
// cells in row-major order. The host holds the only writable mapping;
// guests construct the same Grid over their read-only one and stick to
// the accessors.
type Grid struct {
	view region.View
	w, h int32
}

// NewGrid frames a w×h grid over view. The grid needs room for its border
// walls, so anything under 3×3 is refused.
func NewGrid(view region.View, w, h int32) (*Grid, error) {
	if w < 3 || h < 3 {
		return nil, errors.InvalidInput(errors.PhaseHunt, "grid needs at least 3x3 cells for its borders")
	}
	if need := int(GridBytes(w, h)); view.Len() < need {
		return nil, errors.New(errors.PhaseHunt, errors.KindInvalidInput).
			Detail("grid %dx%d needs %d bytes, view holds %d", w, h, need, view.Len()).
			Build()
	}
	return &Grid{view: view, w: w, h: h}, nil
}

// W returns the grid width in cells.
func (g *Grid) W() int32 { return g.w }

// H returns the grid height in cells.
func (g *Grid) H() int32 { return g.h }

// Cell returns the value at (x, y). Coordinates outside the grid read as
// walls, so movement code can probe neighbours without bounds juggling.
func (g *Grid) Cell(x, y int32) int32 {
	if x < 0 || x >= g.w || y < 0 || y >= g.h {
		return CellWall
	}
	v, err := g.view.I32(uint32(y*g.w+x) * 4)
	if err != nil {
		return CellWall
	}
	return v
}

// Blocked reports whether (x, y) cannot be entered.
func (g *Grid) Blocked(x, y int32) bool { return g.Cell(x, y) != CellEmpty }

// SetCell writes the value at (x, y). Callers holding a read-only mapping
// fault on the store; that is the protection working, not a bug here.
func (g *Grid) SetCell(x, y, v int32) error {
	if x < 0 || x >= g.w || y < 0 || y >= g.h {
		return errors.New(errors.PhaseHunt, errors.KindOutOfBounds).
			Detail("cell (%d, %d) outside %dx%d grid", x, y, g.w, g.h).
			Build()
	}
	return g.view.PutI32(uint32(y*g.w+x)*4, v)
}

// Init clears the map, draws the border walls and scatters blocks random
// interior walls. Scatter collisions are allowed, so the final wall count
// may come out below blocks.
func (g *Grid) Init(rng *rand.Rand, blocks int) error {
	for y := int32(0); y < g.h; y++ {
		for x := int32(0); x < g.w; x++ {
			v := CellEmpty
			if x == 0 || x == g.w-1 || y == 0 || y == g.h-1 {
				v = CellWall
			}
			if err := g.SetCell(x, y, v); err != nil {
				return err
			}
		}
	}
	for i := 0; i < blocks; i++ {
		x, y := g.randInterior(rng)
		if err := g.SetCell(x, y, CellWall); err != nil {
			return err
		}
	}
	return nil
}

// Modify toggles a handful of random interior cells between wall and
// empty, the host-side counterpart of the guest modify-grid command.
func (g *Grid) Modify(rng *rand.Rand) error {
	for i := 0; i < modifyFlips; i++ {
		x, y := g.randInterior(rng)
		v := CellWall
		if g.Cell(x, y) == CellWall {
			v = CellEmpty
		}
		if err := g.SetCell(x, y, v); err != nil {
			return err
		}
	}
	return nil
}

// randInterior picks a uniform coordinate strictly inside the borders.
func (g *Grid) randInterior(rng *rand.Rand) (x, y int32) {
	return 1 + rng.Int31n(g.w-2), 1 + rng.Int31n(g.h-2)
}
