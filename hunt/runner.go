package hunt

// RunnerBrain drives every runner record from one guest, so each record
// keeps exactly one writer even while the hunter guest reads it
// mid-chase. Kill detection lives here for the same reason: a runner
// standing on the hunter's cell marks itself dead instead of the hunter
// reaching into a record it does not own.
type RunnerBrain struct {
	brainCore
	scare int32
}

// NewRunnerBrain builds the runner herd over the given world framings.
// scareDist is the panic radius in cells.
func NewRunnerBrain(grid *Grid, actors *Actors, scareDist int32) *RunnerBrain {
	return &RunnerBrain{brainCore: brainCore{grid: grid, actors: actors}, scare: scareDist}
}

// Init seeds the brain and scatters the runners over the interior, all
// walking. Scatter ignores walls; a runner starting inside one simply
// walks out on its first tick, the way moveBy resolves any blocked move.
func (b *RunnerBrain) Init(seed int32) error {
	b.seed(seed)
	for i := 0; i < b.actors.Runners(); i++ {
		x, y := b.grid.randInterior(b.rng)
		if err := b.actors.SetRunner(i, Runner{X: x, Y: y, State: Walking}); err != nil {
			return err
		}
	}
	return nil
}

// Tick advances every live runner: die on hunter contact, flee when the
// hunter is inside the scare radius, wander otherwise.
func (b *RunnerBrain) Tick() error {
	if err := b.ready(); err != nil {
		return err
	}
	hx, hy := b.actors.Hunter()
	for i := 0; i < b.actors.Runners(); i++ {
		r, err := b.actors.Runner(i)
		if err != nil {
			return err
		}
		if r.State == Dead {
			continue
		}
		b.stepRunner(&r, hx, hy)
		if err := b.actors.SetRunner(i, r); err != nil {
			return err
		}
	}
	return nil
}

func (b *RunnerBrain) stepRunner(r *Runner, hx, hy int32) {
	dx, dy := r.X-hx, r.Y-hy
	if dx == 0 && dy == 0 {
		r.State = Dead
		return
	}
	if dx*dx+dy*dy > b.scare*b.scare {
		r.State = Walking
		moveBy(b.grid, b.rng, &r.X, &r.Y, randStep(b.rng), randStep(b.rng))
		return
	}

	// Flee along the hunter→runner vector, at most two cells per axis,
	// randomizing one axis two times out of three so a panicked pack
	// spreads instead of stacking up.
	r.State = Running
	mx, my := clampFlee(dx), clampFlee(dy)
	switch b.rng.Int31n(3) {
	case 0:
		my = randStep(b.rng)
	case 1:
		mx = randStep(b.rng)
	}
	moveBy(b.grid, b.rng, &r.X, &r.Y, mx, my)
}
