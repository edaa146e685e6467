package hunt

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// largeAllocBytes is what the large-alloc command grabs: enough to force
// linear memory growth on a WASM guest with the default arena headroom.
const largeAllocBytes = 1 << 20

// brainCore carries what both in-process guest brains share: the world
// framings, the per-guest RNG, and the commands that are the same for
// hunter and runners.
type brainCore struct {
	grid    *Grid
	actors  *Actors
	rng     *rand.Rand
	scratch []byte
}

func (c *brainCore) seed(seed int32) {
	c.rng = rand.New(rand.NewSource(int64(seed)))
}

func (c *brainCore) ready() error {
	if c.rng == nil {
		return errors.Protocol(errors.PhaseHunt, "tick before init")
	}
	return nil
}

// ModifyGrid scribbles on the world map. The command exists for what
// happens to the writer: an in-process brain goes through the host's
// writable mapping and succeeds, a process or WASM guest faults on its
// read-only one.
func (c *brainCore) ModifyGrid() error {
	Logger().Info("guest writing into the world map")
	return c.grid.SetCell(0, 0, cellScribble)
}

// LargeAlloc grabs a large private buffer and touches every page so the
// allocation is real. For a native guest this is routine; the interesting
// case is a WASM guest, where the same command grows linear memory and
// pinning decides whether the fixed mappings survive.
func (c *brainCore) LargeAlloc() error {
	c.scratch = make([]byte, largeAllocBytes)
	for i := 0; i < len(c.scratch); i += 4096 {
		c.scratch[i] = 1
	}
	Logger().Debug("guest allocated scratch", zap.Int("bytes", len(c.scratch)))
	return nil
}

// step clamps a delta to one unit step, preserving its sign.
func step(d int32) int32 {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}

// randStep picks -1, 0 or 1.
func randStep(rng *rand.Rand) int32 { return rng.Int31n(3) - 1 }

// clampFlee bounds a flee delta to two cells per axis, so a panicked
// runner cannot teleport across the map when the hunter is far along one
// axis but near along the other.
func clampFlee(d int32) int32 {
	if d > 2 {
		return 2
	}
	if d < -2 {
		return -2
	}
	return d
}

// moveBy tries to move (x, y) by (mx, my). A blocked destination gets one
// random nudge as fallback; if that is blocked too the mover stays put.
func moveBy(g *Grid, rng *rand.Rand, x, y *int32, mx, my int32) {
	nx, ny := *x+mx, *y+my
	if g.Blocked(nx, ny) {
		nx, ny = *x+randStep(rng), *y+randStep(rng)
		if g.Blocked(nx, ny) {
			return
		}
	}
	*x, *y = nx, ny
}
