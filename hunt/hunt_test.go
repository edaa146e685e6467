package hunt

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	bridgeerr "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/guest"
	"github.com/wippyai/wasm-bridge/region"
	"github.com/wippyai/wasm-bridge/signal"
)

func newTestGrid(t *testing.T, w, h int32) *Grid {
	t.Helper()
	g, err := NewGrid(region.NewView(make([]byte, GridBytes(w, h))), w, h)
	if err != nil {
		t.Fatalf("NewGrid(%dx%d): %v", w, h, err)
	}
	return g
}

func newTestActors(t *testing.T, runners int) (*Actors, []byte) {
	t.Helper()
	buf := make([]byte, ActorsSize(runners))
	a, err := NewActors(region.NewView(buf), runners)
	if err != nil {
		t.Fatalf("NewActors(%d): %v", runners, err)
	}
	return a, buf
}

func TestGridValidation(t *testing.T) {
	if _, err := NewGrid(region.NewView(make([]byte, 64)), 2, 8); !bridgeerr.IsKind(err, bridgeerr.KindInvalidInput) {
		t.Fatalf("2-wide grid accepted: %v", err)
	}
	if _, err := NewGrid(region.NewView(make([]byte, 10)), 4, 4); !bridgeerr.IsKind(err, bridgeerr.KindInvalidInput) {
		t.Fatalf("undersized view accepted: %v", err)
	}

	g := newTestGrid(t, 6, 5)
	if err := g.SetCell(-1, 0, CellWall); !bridgeerr.IsKind(err, bridgeerr.KindOutOfBounds) {
		t.Fatalf("SetCell(-1, 0) = %v, want out of bounds", err)
	}
	if err := g.SetCell(6, 2, CellWall); !bridgeerr.IsKind(err, bridgeerr.KindOutOfBounds) {
		t.Fatalf("SetCell(6, 2) = %v, want out of bounds", err)
	}
	if got := g.Cell(-3, 100); got != CellWall {
		t.Fatalf("out-of-range cell = %d, want wall", got)
	}
}

func TestGridInit(t *testing.T) {
	g := newTestGrid(t, 12, 9)
	if err := g.Init(rand.New(rand.NewSource(1)), 10); err != nil {
		t.Fatalf("Init: %v", err)
	}

	for x := int32(0); x < g.W(); x++ {
		if g.Cell(x, 0) != CellWall || g.Cell(x, g.H()-1) != CellWall {
			t.Fatalf("border row open at x=%d", x)
		}
	}
	for y := int32(0); y < g.H(); y++ {
		if g.Cell(0, y) != CellWall || g.Cell(g.W()-1, y) != CellWall {
			t.Fatalf("border column open at y=%d", y)
		}
	}

	walls := 0
	for y := int32(1); y < g.H()-1; y++ {
		for x := int32(1); x < g.W()-1; x++ {
			switch g.Cell(x, y) {
			case CellWall:
				walls++
			case CellEmpty:
			default:
				t.Fatalf("unexpected cell value %d at (%d, %d)", g.Cell(x, y), x, y)
			}
		}
	}
	if walls < 1 || walls > 10 {
		t.Fatalf("interior wall count = %d, want 1..10", walls)
	}
}

func TestGridModify(t *testing.T) {
	g := newTestGrid(t, 20, 15)
	rng := rand.New(rand.NewSource(3))
	if err := g.Init(rng, 0); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := g.Modify(rng); err != nil {
		t.Fatalf("Modify: %v", err)
	}

	// Starting from an empty interior, each flip toggles one cell, so an
	// odd flip count leaves an odd, nonzero number of new walls.
	diffs := 0
	for y := int32(1); y < g.H()-1; y++ {
		for x := int32(1); x < g.W()-1; x++ {
			if g.Cell(x, y) == CellWall {
				diffs++
			}
		}
	}
	if diffs < 1 || diffs > modifyFlips || diffs%2 == 0 {
		t.Fatalf("modify changed %d cells, want odd count in 1..%d", diffs, modifyFlips)
	}
	for x := int32(0); x < g.W(); x++ {
		if g.Cell(x, 0) != CellWall || g.Cell(x, g.H()-1) != CellWall {
			t.Fatalf("modify touched the border at x=%d", x)
		}
	}
}

func TestActorsTable(t *testing.T) {
	if got := ActorsSize(15); got != 188 {
		t.Fatalf("ActorsSize(15) = %d, want 188", got)
	}
	if _, err := NewActors(region.NewView(make([]byte, 64)), 0); !bridgeerr.IsKind(err, bridgeerr.KindInvalidInput) {
		t.Fatalf("zero runners accepted: %v", err)
	}
	if _, err := NewActors(region.NewView(make([]byte, 10)), 1); !bridgeerr.IsKind(err, bridgeerr.KindOutOfBounds) {
		t.Fatalf("undersized view accepted: %v", err)
	}

	a, buf := newTestActors(t, 2)
	a.SetHunter(3, -4)
	if x, y := a.Hunter(); x != 3 || y != -4 {
		t.Fatalf("hunter roundtrip = (%d, %d), want (3, -4)", x, y)
	}

	if err := a.SetRunner(1, Runner{X: 7, Y: 9, State: Running}); err != nil {
		t.Fatalf("SetRunner: %v", err)
	}
	// Runner 1 sits at byte 20: x, then y, then state, little-endian.
	if buf[20] != 7 || buf[24] != 9 || buf[28] != 1 {
		t.Fatalf("runner record bytes = % x", buf[20:32])
	}
	r, err := a.Runner(1)
	if err != nil {
		t.Fatalf("Runner(1): %v", err)
	}
	if r.X != 7 || r.Y != 9 || r.State != Running {
		t.Fatalf("runner roundtrip = %+v", r)
	}

	if _, err := a.Runner(2); !bridgeerr.IsKind(err, bridgeerr.KindInvalidInput) {
		t.Fatalf("Runner(2) on 2-runner table: %v", err)
	}
	if err := a.SetRunner(-1, Runner{}); !bridgeerr.IsKind(err, bridgeerr.KindInvalidInput) {
		t.Fatalf("SetRunner(-1): %v", err)
	}

	// A foreign guest writing junk into a state word must not decode.
	buf[16] = 7
	if _, err := a.Runner(0); !bridgeerr.IsKind(err, bridgeerr.KindInvalidData) {
		t.Fatalf("junk state decoded: %v", err)
	}

	live, err := a.Live()
	if err == nil {
		t.Fatalf("Live over junk state = %d, want error", live)
	}
}

func TestDecodeState(t *testing.T) {
	for raw, want := range map[int32]State{0: Walking, 1: Running, 2: Dead} {
		got, err := DecodeState(raw)
		if err != nil || got != want {
			t.Fatalf("DecodeState(%d) = %v, %v", raw, got, err)
		}
	}
	if _, err := DecodeState(3); !bridgeerr.IsKind(err, bridgeerr.KindInvalidData) {
		t.Fatalf("DecodeState(3): %v", err)
	}
	if Walking.String() != "walking" || Dead.String() != "dead" {
		t.Fatalf("state names: %v %v", Walking, Dead)
	}
}

func TestHunterChase(t *testing.T) {
	g := newTestGrid(t, 9, 9)
	if err := g.Init(rand.New(rand.NewSource(1)), 0); err != nil {
		t.Fatalf("Init grid: %v", err)
	}
	a, _ := newTestActors(t, 2)
	b := NewHunterBrain(g, a)

	if err := b.Tick(); !bridgeerr.IsKind(err, bridgeerr.KindProtocol) {
		t.Fatalf("tick before init = %v, want protocol error", err)
	}
	if err := b.Init(5); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if x, y := a.Hunter(); x != 4 || y != 4 {
		t.Fatalf("hunter spawned at (%d, %d), want grid center (4, 4)", x, y)
	}

	// Runner 1 is closer; the hunter must step toward it, not runner 0.
	a.SetRunner(0, Runner{X: 1, Y: 4, State: Walking})
	a.SetRunner(1, Runner{X: 6, Y: 4, State: Walking})
	if err := b.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if x, y := a.Hunter(); x != 5 || y != 4 {
		t.Fatalf("hunter at (%d, %d), want (5, 4)", x, y)
	}

	// With runner 1 dead the chase flips to runner 0.
	a.SetRunner(1, Runner{X: 6, Y: 4, State: Dead})
	if err := b.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if x, y := a.Hunter(); x != 4 || y != 4 {
		t.Fatalf("hunter at (%d, %d), want (4, 4)", x, y)
	}

	// Nothing left alive, nothing to chase.
	a.SetRunner(0, Runner{X: 1, Y: 4, State: Dead})
	if err := b.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if x, y := a.Hunter(); x != 4 || y != 4 {
		t.Fatalf("hunter moved to (%d, %d) with all runners dead", x, y)
	}
}

func TestRunnerBehavior(t *testing.T) {
	world := func(t *testing.T, scare int32) (*Grid, *Actors, *RunnerBrain) {
		t.Helper()
		g := newTestGrid(t, 15, 15)
		if err := g.Init(rand.New(rand.NewSource(1)), 0); err != nil {
			t.Fatalf("Init grid: %v", err)
		}
		a, _ := newTestActors(t, 1)
		b := NewRunnerBrain(g, a, scare)
		b.seed(9)
		return g, a, b
	}

	t.Run("contact kills", func(t *testing.T) {
		_, a, b := world(t, 3)
		a.SetHunter(5, 5)
		a.SetRunner(0, Runner{X: 5, Y: 5, State: Running})
		if err := b.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		r, _ := a.Runner(0)
		if r.State != Dead || r.X != 5 || r.Y != 5 {
			t.Fatalf("contact left runner %+v", r)
		}
	})

	t.Run("far runner walks", func(t *testing.T) {
		g, a, b := world(t, 3)
		a.SetHunter(2, 2)
		a.SetRunner(0, Runner{X: 11, Y: 11, State: Running})
		if err := b.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		r, _ := a.Runner(0)
		if r.State != Walking {
			t.Fatalf("far runner state = %v, want walking", r.State)
		}
		if dx, dy := r.X-11, r.Y-11; dx < -1 || dx > 1 || dy < -1 || dy > 1 {
			t.Fatalf("walk moved runner to (%d, %d)", r.X, r.Y)
		}
		if g.Blocked(r.X, r.Y) {
			t.Fatalf("runner walked into a wall at (%d, %d)", r.X, r.Y)
		}
	})

	t.Run("near runner flees", func(t *testing.T) {
		_, a, b := world(t, 4)
		a.SetHunter(5, 5)
		a.SetRunner(0, Runner{X: 6, Y: 5, State: Walking})
		if err := b.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		r, _ := a.Runner(0)
		if r.State != Running {
			t.Fatalf("scared runner state = %v, want running", r.State)
		}
		if dx, dy := r.X-6, r.Y-5; dx < -2 || dx > 2 || dy < -2 || dy > 2 {
			t.Fatalf("flee jumped runner to (%d, %d)", r.X, r.Y)
		}
	})

	t.Run("dead runner stays put", func(t *testing.T) {
		_, a, b := world(t, 3)
		a.SetHunter(2, 2)
		a.SetRunner(0, Runner{X: 7, Y: 7, State: Dead})
		if err := b.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		r, _ := a.Runner(0)
		if r.State != Dead || r.X != 7 || r.Y != 7 {
			t.Fatalf("dead runner changed: %+v", r)
		}
	})
}

func TestMoveBy(t *testing.T) {
	g := newTestGrid(t, 7, 7)
	if err := g.Init(rand.New(rand.NewSource(1)), 0); err != nil {
		t.Fatalf("Init grid: %v", err)
	}
	rng := rand.New(rand.NewSource(2))

	x, y := int32(3), int32(3)
	moveBy(g, rng, &x, &y, 2, -1)
	if x != 5 || y != 2 {
		t.Fatalf("open move landed at (%d, %d), want (5, 2)", x, y)
	}

	// Destination into the border wall: after one random fallback the
	// mover must still be on an open interior cell.
	x, y = 1, 1
	moveBy(g, rng, &x, &y, -2, 0)
	if g.Blocked(x, y) {
		t.Fatalf("blocked move landed on a wall at (%d, %d)", x, y)
	}

	if step(7) != 1 || step(-3) != -1 || step(0) != 0 {
		t.Fatal("step sign clamp broken")
	}
	if clampFlee(5) != 2 || clampFlee(-9) != -2 || clampFlee(1) != 1 {
		t.Fatal("flee clamp broken")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.GridW != DefaultGridW || c.GridH != DefaultGridH ||
		c.Blocks != DefaultBlocks || c.Runners != DefaultRunners ||
		c.ScareDist != DefaultScareDist {
		t.Fatalf("defaults = %+v", c)
	}
	if c.Seed == 0 {
		t.Fatal("zero seed not replaced")
	}

	specs := Config{GridW: 8, GridH: 6, Runners: 2}.Specs()
	if specs[0].Name != GridRegion || specs[0].Size != 8*6*4 || specs[0].Access != region.ReadOnly {
		t.Fatalf("grid spec = %+v", specs[0])
	}
	wantRW := uintptr(signal.BlockSize(GuestCount) + ActorsSize(2))
	if specs[1].Name != ActorsRegion || specs[1].Size != wantRW || specs[1].Access != region.ReadWrite {
		t.Fatalf("actors spec = %+v", specs[1])
	}

	cfg := Config{Seed: 100}
	if h, r := cfg.GuestSeed(HunterGuest), cfg.GuestSeed(RunnerGuest); h == r {
		t.Fatalf("guest seeds collide: %d", h)
	}
}

func TestHostWorld(t *testing.T) {
	cfg := Config{
		GridW: 16, GridH: 12, Blocks: 6, Runners: 4, ScareDist: 4, Seed: 42,
		Signal: signal.Config{Interval: time.Millisecond, Attempts: 3000},
	}
	h, err := NewHost(cfg)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	defer h.Close()
	ctx := context.Background()

	if err := h.StartGuest(ctx, HunterGuest, h.LocalHunter()); err != nil {
		t.Fatalf("start hunter: %v", err)
	}
	if err := h.StartGuest(ctx, HunterGuest, h.LocalHunter()); !bridgeerr.IsKind(err, bridgeerr.KindInvalidInput) {
		t.Fatalf("double start = %v, want invalid input", err)
	}
	if err := h.StartGuest(ctx, RunnerGuest, h.LocalRunners()); err != nil {
		t.Fatalf("start runners: %v", err)
	}

	if err := h.Init(ctx); err != nil {
		t.Fatalf("init broadcast: %v", err)
	}
	if x, y := h.Actors().Hunter(); x != 8 || y != 6 {
		t.Fatalf("hunter spawned at (%d, %d), want (8, 6)", x, y)
	}
	for i := 0; i < cfg.Runners; i++ {
		r, err := h.Actors().Runner(i)
		if err != nil {
			t.Fatalf("runner %d: %v", i, err)
		}
		if r.State != Walking {
			t.Fatalf("runner %d spawned %v, want walking", i, r.State)
		}
	}

	for i := 0; i < 20; i++ {
		if err := h.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	// Actors start in the interior and never move onto a blocked cell,
	// and the border is all wall, so nobody can have left the interior.
	inInterior := func(x, y int32) bool {
		return x >= 1 && x <= cfg.GridW-2 && y >= 1 && y <= cfg.GridH-2
	}
	if x, y := h.Actors().Hunter(); !inInterior(x, y) {
		t.Fatalf("hunter escaped to (%d, %d)", x, y)
	}
	for i := 0; i < cfg.Runners; i++ {
		r, err := h.Actors().Runner(i)
		if err != nil {
			t.Fatalf("runner %d after ticks: %v", i, err)
		}
		if !inInterior(r.X, r.Y) {
			t.Fatalf("runner %d escaped to (%d, %d)", i, r.X, r.Y)
		}
	}

	if err := h.SendLargeAlloc(ctx, HunterGuest); err != nil {
		t.Fatalf("large alloc roundtrip: %v", err)
	}
	// In-process guests write through the host's own writable mapping, so
	// this succeeds; only process and WASM guests fault here.
	if err := h.SendModifyGrid(ctx, RunnerGuest); err != nil {
		t.Fatalf("modify grid roundtrip: %v", err)
	}
	if got := h.Grid().Cell(0, 0); got != cellScribble {
		t.Fatalf("origin cell = %d after guest modify, want %d", got, cellScribble)
	}
	if err := h.ModifyTerrain(); err != nil {
		t.Fatalf("host terrain modify: %v", err)
	}

	if sig, err := h.GuestSignal(HunterGuest); err != nil || sig != signal.Idle {
		t.Fatalf("hunter signal = %v, %v, want idle", sig, err)
	}

	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := h.Err(); err != nil {
		t.Fatalf("guest loops reported: %v", err)
	}
}

func TestNamedWorldAttach(t *testing.T) {
	cfg := Config{
		GridW: 10, GridH: 8, Blocks: 4, Runners: 2, ScareDist: 3, Seed: 7,
		Prefix: fmt.Sprintf("hunt-test.%d", os.Getpid()),
		Signal: signal.Config{Interval: time.Millisecond, Attempts: 3000},
	}
	h, err := NewHost(cfg)
	if err != nil {
		t.Skipf("named shared memory unavailable: %v", err)
	}
	defer h.Close()
	ctx := context.Background()

	// Attach the runner guest the way an external process would: open the
	// named objects, adopt their sizes, frame the world on top.
	specs := cfg.Specs()
	for i := range specs {
		specs[i].Size = 0
	}
	set, err := region.OpenSet(cfg.Prefix, specs...)
	if err != nil {
		t.Fatalf("OpenSet: %v", err)
	}
	defer set.Close()

	w, err := Attach(set, cfg, RunnerGuest)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	brain, err := w.Brain(RunnerGuest, cfg.ScareDist)
	if err != nil {
		t.Fatalf("Brain: %v", err)
	}
	loopErr := make(chan error, 1)
	go func() {
		loopErr <- guest.Loop(ctx, w.Listener, brain, cfg.GuestSeed(RunnerGuest))
	}()

	if err := h.StartGuest(ctx, HunterGuest, h.LocalHunter()); err != nil {
		t.Fatalf("start hunter: %v", err)
	}
	if err := h.Init(ctx); err != nil {
		t.Fatalf("init broadcast: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := h.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	// Writes made through the attached mapping must be visible host-side.
	for i := 0; i < cfg.Runners; i++ {
		r, err := h.Actors().Runner(i)
		if err != nil {
			t.Fatalf("runner %d: %v", i, err)
		}
		if r.X < 1 || r.X > cfg.GridW-2 || r.Y < 1 || r.Y > cfg.GridH-2 {
			t.Fatalf("runner %d at (%d, %d), outside the interior", i, r.X, r.Y)
		}
	}

	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-loopErr; err != nil {
		t.Fatalf("attached guest loop: %v", err)
	}
	if err := h.Err(); err != nil {
		t.Fatalf("guest loops reported: %v", err)
	}
}
