package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/guest"
	"github.com/wippyai/wasm-bridge/hunt"
	"github.com/wippyai/wasm-bridge/region"
	"github.com/wippyai/wasm-bridge/signal"
)

// container is one hunt guest in its own process. It attaches to the
// host's named shared regions, serves its signal word until the exit
// command, and leaves. The grid arrives through a read-only mapping, so
// a modify-grid command faults the process instead of the world map;
// run it under a host that expects casualties.
func main() {
	var (
		prefix   = flag.String("prefix", "", "Shared object prefix of the hunt world (required)")
		guestIdx = flag.Int("guest", hunt.HunterGuest, "Guest slot: 0 hunter, 1 runners")
		gridW    = flag.Int("grid-w", hunt.DefaultGridW, "World width in cells, must match the host")
		gridH    = flag.Int("grid-h", hunt.DefaultGridH, "World height in cells, must match the host")
		runners  = flag.Int("runners", hunt.DefaultRunners, "Runner count, must match the host")
		scare    = flag.Int("scare", hunt.DefaultScareDist, "Runner scare distance in cells")
		seed     = flag.Int64("seed", 0, "World seed, must match the host")
		wasmFile = flag.String("wasm", "", "Serve the slot with this WASM module instead of the native brain")
		debug    = flag.Bool("debug", false, "Verbose logging to stderr")
	)
	flag.Parse()

	if *prefix == "" {
		fmt.Fprintln(os.Stderr, "Usage: container -prefix <name> -seed <n> [-guest 0|1] [-wasm <file.wasm>]")
		os.Exit(1)
	}

	if *debug {
		if log, err := zap.NewDevelopment(); err == nil {
			hunt.SetLogger(log.Named("hunt"))
			guest.SetLogger(log.Named("guest"))
			signal.SetLogger(log.Named("signal"))
			region.SetLogger(log.Named("region"))
			engine.SetLogger(log.Named("engine"))
		}
	}

	cfg := hunt.Config{
		GridW:     int32(*gridW),
		GridH:     int32(*gridH),
		Runners:   *runners,
		ScareDist: int32(*scare),
		Seed:      *seed,
	}
	if err := run(cfg, *prefix, *guestIdx, *wasmFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg hunt.Config, prefix string, idx int, wasmFile string) error {
	ctx := context.Background()

	// Adopt whatever sizes the host created; the shape flags are checked
	// when the world is framed on top.
	specs := cfg.Specs()
	for i := range specs {
		specs[i].Size = 0
	}

	if wasmFile != "" {
		return runWasm(ctx, cfg, prefix, idx, specs, wasmFile)
	}

	set, err := region.OpenSet(prefix, specs...)
	if err != nil {
		return err
	}
	defer set.Close()

	w, err := hunt.Attach(set, cfg, idx)
	if err != nil {
		return err
	}
	brain, err := w.Brain(idx, cfg.ScareDist)
	if err != nil {
		return err
	}
	return guest.Loop(ctx, w.Listener, brain, cfg.GuestSeed(idx))
}

// runWasm serves the slot with a WASM module: the shared regions are
// fixed-mapped into its linear memory and commands dispatch through the
// guest ABI. The module carries its own world constants, so it must be
// built for the same grid shape the host runs.
func runWasm(ctx context.Context, cfg hunt.Config, prefix string, idx int, specs []region.Spec, wasmFile string) error {
	wasmBytes, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}

	eng, err := engine.New(ctx, engine.Config{PinnedMemory: true, MemoryLimitPages: 1024}, nil)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	g, err := eng.LoadGuest(ctx, fmt.Sprintf("hunt-guest-%d", idx), wasmBytes)
	if err != nil {
		return err
	}

	objs, err := region.OpenObjects(prefix, specs...)
	if err != nil {
		return err
	}
	set, err := region.NewMapper(g, g).Map(objs, specs)
	if err != nil {
		return err
	}
	defer set.Close()

	layout, err := hunt.WasmLayout(set)
	if err != nil {
		return err
	}
	if err := g.CreateContext(ctx, layout); err != nil {
		return err
	}
	if _, err := g.RecordBase(); err != nil {
		return err
	}

	// This process still polls its own signal word; the module only sees
	// the payload past the block.
	actors, err := set.Region(hunt.ActorsRegion)
	if err != nil {
		return err
	}
	lst, err := signal.NewListener(actors.Bytes()[:signal.BlockSize(hunt.GuestCount)], idx, hunt.GuestCount, cfg.Signal)
	if err != nil {
		return err
	}
	return guest.Loop(ctx, lst, g.Handler(ctx), cfg.GuestSeed(idx))
}
