package hunt

import "math"

// HunterBrain drives the hunter: every tick it takes one step toward the
// nearest live runner. It writes only the hunter record and reads runner
// records, which the runner guest owns.
type HunterBrain struct {
	brainCore
}

// NewHunterBrain builds the hunter over the given world framings.
func NewHunterBrain(grid *Grid, actors *Actors) *HunterBrain {
	return &HunterBrain{brainCore{grid: grid, actors: actors}}
}

// Init seeds the brain and parks the hunter mid-grid.
func (b *HunterBrain) Init(seed int32) error {
	b.seed(seed)
	b.actors.SetHunter(b.grid.W()/2, b.grid.H()/2)
	return nil
}

// Tick steps toward the nearest live runner, if any remain.
func (b *HunterBrain) Tick() error {
	if err := b.ready(); err != nil {
		return err
	}
	hx, hy := b.actors.Hunter()
	tx, ty, found, err := b.nearestLive(hx, hy)
	if err != nil || !found {
		return err
	}
	x, y := hx, hy
	moveBy(b.grid, b.rng, &x, &y, step(tx-hx), step(ty-hy))
	b.actors.SetHunter(x, y)
	return nil
}

// nearestLive scans the runner table for the closest live runner by
// squared distance.
func (b *HunterBrain) nearestLive(hx, hy int32) (int32, int32, bool, error) {
	var tx, ty int32
	found := false
	best := int64(math.MaxInt64)
	for i := 0; i < b.actors.Runners(); i++ {
		r, err := b.actors.Runner(i)
		if err != nil {
			return 0, 0, false, err
		}
		if r.State == Dead {
			continue
		}
		dx, dy := int64(r.X-hx), int64(r.Y-hy)
		if d := dx*dx + dy*dy; d < best {
			best, tx, ty, found = d, r.X, r.Y, true
		}
	}
	return tx, ty, found, nil
}
