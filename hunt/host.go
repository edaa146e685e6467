package hunt

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/guest"
	"github.com/wippyai/wasm-bridge/region"
	"github.com/wippyai/wasm-bridge/signal"
)

// Guest slots, fixed by the wire layout: one signal word per guest in
// this order at the front of the actors region.
const (
	HunterGuest = 0
	RunnerGuest = 1
	GuestCount  = 2
)

// Region names within the demo's shared set.
const (
	GridRegion   = "grid"
	ActorsRegion = "actors"
)

// Default world dimensions.
const (
	DefaultGridW     = 50
	DefaultGridH     = 30
	DefaultBlocks    = 150
	DefaultRunners   = 15
	DefaultScareDist = 10
)

// drainTimeout bounds how long Shutdown waits for guest loops to leave
// the worker pool after their exit acks.
const drainTimeout = 3 * time.Second

// Config parameterizes a hunt world. The zero value gets the defaults; a
// zero Seed draws one from the clock.
type Config struct {
	GridW, GridH int32
	Blocks       int
	Runners      int
	ScareDist    int32

	// Seed drives the host's grid RNG; guests derive their own seeds
	// from it, so a fixed seed replays the whole hunt.
	Seed int64

	// Prefix names the backing shared objects so other processes can
	// attach. Empty means anonymous memfd regions, visible only to
	// in-process guests.
	Prefix string

	Signal signal.Config
}

func (c Config) withDefaults() Config {
	if c.GridW == 0 {
		c.GridW = DefaultGridW
	}
	if c.GridH == 0 {
		c.GridH = DefaultGridH
	}
	if c.Blocks == 0 {
		c.Blocks = DefaultBlocks
	}
	if c.Runners == 0 {
		c.Runners = DefaultRunners
	}
	if c.ScareDist == 0 {
		c.ScareDist = DefaultScareDist
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Specs returns the region specs a world with this config occupies, in
// the order guests must map them. External guests build the same list to
// attach to a named world.
func (c Config) Specs() []region.Spec {
	c = c.withDefaults()
	return []region.Spec{
		{Name: GridRegion, Size: uintptr(GridBytes(c.GridW, c.GridH)), Access: region.ReadOnly},
		{Name: ActorsRegion, Size: uintptr(signal.BlockSize(GuestCount) + ActorsSize(c.Runners)), Access: region.ReadWrite},
	}
}

// GuestSeed derives the seed handed to a guest slot's Init. Keeping the
// derivation here means process guests on the far side of an exec get
// the same value in-process brains do.
func (c Config) GuestSeed(idx int) int32 {
	return int32(c.Seed) + int32(idx) + 1
}

// Host owns a hunt world: it creates the shared regions, frames the grid
// and actor table, and drives the guests over the signal channel.
type Host struct {
	cfg     Config
	set     *region.Set
	channel *signal.Channel
	grid    *Grid
	actors  *Actors
	rng     *rand.Rand
	pool    *ants.Pool

	mu       sync.Mutex
	started  [GuestCount]bool
	guestErr error
}

// NewHost creates the shared regions per cfg, builds the world map, and
// stands up the signal channel. Guests are not started; callers wire
// those with StartGuest or by spawning processes against cfg.Prefix.
func NewHost(cfg Config) (*Host, error) {
	cfg = cfg.withDefaults()

	var (
		set *region.Set
		err error
	)
	if cfg.Prefix != "" {
		set, err = region.CreateSet(cfg.Prefix, cfg.Specs()...)
	} else {
		set, err = region.CreateAnonymousSet(cfg.Specs()...)
	}
	if err != nil {
		return nil, err
	}

	h := &Host{cfg: cfg, set: set, rng: rand.New(rand.NewSource(cfg.Seed))}
	if err := h.frame(); err != nil {
		set.Close()
		return nil, err
	}
	if err := h.grid.Init(h.rng, cfg.Blocks); err != nil {
		set.Close()
		return nil, err
	}

	pool, err := ants.NewPool(GuestCount)
	if err != nil {
		set.Close()
		return nil, errors.Internal(errors.PhaseHunt, "guest worker pool", err)
	}
	h.pool = pool

	Logger().Info("hunt world ready",
		zap.Int32("w", cfg.GridW), zap.Int32("h", cfg.GridH),
		zap.Int("runners", cfg.Runners),
		zap.Int64("seed", cfg.Seed),
		zap.String("prefix", cfg.Prefix))
	return h, nil
}

// frame builds the host-side channel, grid and actor framings over the
// freshly mapped set.
func (h *Host) frame() error {
	rw, err := h.set.Region(ActorsRegion)
	if err != nil {
		return err
	}
	block := signal.BlockSize(GuestCount)

	h.channel, err = signal.NewChannel(rw.Bytes()[:block], GuestCount, h.cfg.Signal)
	if err != nil {
		return err
	}
	payload, err := rw.View(block, ActorsSize(h.cfg.Runners))
	if err != nil {
		return err
	}
	h.actors, err = NewActors(payload, h.cfg.Runners)
	if err != nil {
		return err
	}
	gridView, err := h.set.View(GridRegion, 0, GridBytes(h.cfg.GridW, h.cfg.GridH))
	if err != nil {
		return err
	}
	h.grid, err = NewGrid(gridView, h.cfg.GridW, h.cfg.GridH)
	return err
}

// Config returns the effective, default-filled configuration.
func (h *Host) Config() Config { return h.cfg }

// Grid returns the host's writable framing of the world map.
func (h *Host) Grid() *Grid { return h.grid }

// Actors returns the host's framing of the actor table. Read it between
// roundtrips only; mid-roundtrip the guests own their records.
func (h *Host) Actors() *Actors { return h.actors }

// GuestSignal reports what currently sits in a guest's signal word.
func (h *Host) GuestSignal(idx int) (signal.Signal, error) {
	return h.channel.Peek(idx)
}

// LocalHunter builds the in-process hunter handler over the host's own
// mappings. Being host-side it writes the grid through the writable
// mapping, so for this guest the modify-grid command succeeds instead of
// faulting.
func (h *Host) LocalHunter() guest.Handler {
	return NewHunterBrain(h.grid, h.actors)
}

// LocalRunners builds the in-process runner handler.
func (h *Host) LocalRunners() guest.Handler {
	return NewRunnerBrain(h.grid, h.actors, h.cfg.ScareDist)
}

// StartGuest runs a guest command loop on the worker pool. idx selects
// the signal word; handler is one of the Local* brains or a WASM guest's
// handler. Loop failures are collected and surface through Err.
func (h *Host) StartGuest(ctx context.Context, idx int, handler guest.Handler) error {
	if idx < 0 || idx >= GuestCount {
		return errors.InvalidInput(errors.PhaseHunt, fmt.Sprintf("guest slot %d outside 0..%d", idx, GuestCount-1))
	}
	rw, err := h.set.Region(ActorsRegion)
	if err != nil {
		return err
	}
	lst, err := signal.NewListener(rw.Bytes()[:signal.BlockSize(GuestCount)], idx, GuestCount, h.cfg.Signal)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.started[idx] {
		h.mu.Unlock()
		return errors.InvalidInput(errors.PhaseHunt, fmt.Sprintf("guest slot %d already started", idx))
	}
	h.started[idx] = true
	h.mu.Unlock()

	seed := h.cfg.GuestSeed(idx)
	err = h.pool.Submit(func() {
		if err := guest.Loop(ctx, lst, handler, seed); err != nil {
			Logger().Warn("guest loop exited", zap.Int("guest", idx), zap.Error(err))
			h.mu.Lock()
			h.guestErr = multierr.Append(h.guestErr, err)
			h.mu.Unlock()
		}
	})
	if err != nil {
		h.mu.Lock()
		h.started[idx] = false
		h.mu.Unlock()
		return errors.Internal(errors.PhaseHunt, "guest worker pool submit", err)
	}
	return nil
}

// Err returns errors guest loops have surfaced so far.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.guestErr
}

// Init seeds every guest's world state with a joint broadcast. The hunter
// guest touches only the hunter pair and the runner guest only its own
// records, so this is the one command safe to run on both guests at once.
func (h *Host) Init(ctx context.Context) error {
	return h.channel.BroadcastWait(ctx, signal.Init)
}

// Tick advances the world one step: hunter first, then runners. The two
// roundtrips are deliberately sequential. Each guest reads records the
// other writes, so overlapping them would let a reader chase a record
// mid-write.
func (h *Host) Tick(ctx context.Context) error {
	if err := h.channel.Roundtrip(ctx, HunterGuest, signal.Tick); err != nil {
		return err
	}
	return h.channel.Roundtrip(ctx, RunnerGuest, signal.Tick)
}

// ModifyTerrain flips a few interior walls through the host's writable
// mapping, between roundtrips.
func (h *Host) ModifyTerrain() error {
	return h.grid.Modify(h.rng)
}

// SendModifyGrid commands a guest to write into the read-only region. An
// in-process guest shares the host's writable mapping and succeeds; a
// process guest faults on its read-only one and dies mid-roundtrip,
// which comes back as a signal timeout.
func (h *Host) SendModifyGrid(ctx context.Context, idx int) error {
	return h.channel.Roundtrip(ctx, idx, signal.ModifyGrid)
}

// SendLargeAlloc commands a guest to allocate far beyond its working set.
func (h *Host) SendLargeAlloc(ctx context.Context, idx int) error {
	return h.channel.Roundtrip(ctx, idx, signal.LargeAlloc)
}

// Shutdown broadcasts exit, waits for the acks, and drains the worker
// pool. Guests that already died still get their word polled, so the
// error reports every straggler rather than the first.
func (h *Host) Shutdown(ctx context.Context) error {
	errs := h.channel.Broadcast(signal.Exit)
	errs = multierr.Append(errs, h.channel.WaitAll(ctx))
	if err := h.pool.ReleaseTimeout(drainTimeout); err != nil && err != ants.ErrPoolClosed {
		errs = multierr.Append(errs, errors.Internal(errors.PhaseHunt, "guest worker pool drain", err))
	}
	return errs
}

// Close releases the shared regions. Call it after Shutdown, once no
// guest is mapped to the set.
func (h *Host) Close() error {
	return h.set.Close()
}

// World is a guest-side framing of the hunt regions: the map, the actor
// table, and the guest's own listener.
type World struct {
	Grid     *Grid
	Actors   *Actors
	Listener *signal.Listener
}

// Attach frames an opened region set from guest slot idx's point of
// view. The set usually comes from region.OpenSet in another process or
// from a fixed mapping inside a WASM guest; cfg must match the host's.
func Attach(set *region.Set, cfg Config, idx int) (*World, error) {
	cfg = cfg.withDefaults()

	rw, err := set.Region(ActorsRegion)
	if err != nil {
		return nil, err
	}
	block := signal.BlockSize(GuestCount)
	lst, err := signal.NewListener(rw.Bytes()[:block], idx, GuestCount, cfg.Signal)
	if err != nil {
		return nil, err
	}
	payload, err := rw.View(block, ActorsSize(cfg.Runners))
	if err != nil {
		return nil, err
	}
	actors, err := NewActors(payload, cfg.Runners)
	if err != nil {
		return nil, err
	}
	gridView, err := set.View(GridRegion, 0, GridBytes(cfg.GridW, cfg.GridH))
	if err != nil {
		return nil, err
	}
	grid, err := NewGrid(gridView, cfg.GridW, cfg.GridH)
	if err != nil {
		return nil, err
	}
	return &World{Grid: grid, Actors: actors, Listener: lst}, nil
}

// Brain builds the native brain for a guest slot over this world.
func (w *World) Brain(idx int, scareDist int32) (guest.Handler, error) {
	switch idx {
	case HunterGuest:
		return NewHunterBrain(w.Grid, w.Actors), nil
	case RunnerGuest:
		return NewRunnerBrain(w.Grid, w.Actors, scareDist), nil
	default:
		return nil, errors.InvalidInput(errors.PhaseHunt, fmt.Sprintf("guest slot %d outside 0..%d", idx, GuestCount-1))
	}
}

// WasmLayout derives the guest ABI layout from a set fixed-mapped into a
// WASM guest's linear memory: the grid as the read-only range, the actor
// payload past the signal block as the read-write one. The signal block
// stays with the listener on this side of the ABI.
func WasmLayout(set *region.Set) (guest.Layout, error) {
	grid, err := set.Region(GridRegion)
	if err != nil {
		return guest.Layout{}, err
	}
	actors, err := set.Region(ActorsRegion)
	if err != nil {
		return guest.Layout{}, err
	}
	block := signal.BlockSize(GuestCount)
	if actors.Size() <= int(block) {
		return guest.Layout{}, errors.InvalidInput(errors.PhaseHunt, "actors region smaller than its signal block")
	}
	return guest.Layout{
		RO: guest.Descriptor{Offset: grid.GuestOffset(), Length: uint32(grid.Size())},
		RW: guest.Descriptor{Offset: actors.GuestOffset() + block, Length: uint32(actors.Size()) - block},
	}, nil
}
