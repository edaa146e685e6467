package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/guest"
	"github.com/wippyai/wasm-bridge/hunt"
	"github.com/wippyai/wasm-bridge/region"
	"github.com/wippyai/wasm-bridge/signal"
)

func main() {
	// Optional .env for the HUNT_* defaults; flags still win.
	_ = godotenv.Load()

	var (
		gridW        = flag.Int("grid-w", hunt.DefaultGridW, "World width in cells")
		gridH        = flag.Int("grid-h", hunt.DefaultGridH, "World height in cells")
		blocks       = flag.Int("blocks", hunt.DefaultBlocks, "Random interior walls")
		runners      = flag.Int("runners", hunt.DefaultRunners, "Runner count")
		scare        = flag.Int("scare", hunt.DefaultScareDist, "Runner scare distance in cells")
		seed         = flag.Int64("seed", envInt64("HUNT_SEED", 0), "World seed (0 draws from the clock)")
		prefix       = flag.String("prefix", os.Getenv("HUNT_PREFIX"), "Shared object prefix (derived from the pid if needed)")
		procs        = flag.Bool("procs", false, "Run guests as external container processes")
		containerBin = flag.String("container", envOr("HUNT_CONTAINER", "container"), "Container binary for -procs")
		wasmFile     = flag.String("wasm", os.Getenv("HUNT_WASM"), "Serve the hunter slot with this WASM module")
		tick         = flag.Duration("tick", 150*time.Millisecond, "Simulation step interval")
		ticks        = flag.Int("ticks", 0, "Run this many steps headless and exit")
		debug        = flag.Bool("debug", false, "Development logging to -log")
		logFile      = flag.String("log", "hunt.log", "Log file for -debug")
	)
	flag.Parse()

	if *debug {
		zcfg := zap.NewDevelopmentConfig()
		zcfg.OutputPaths = []string{*logFile}
		zcfg.ErrorOutputPaths = []string{*logFile}
		if log, err := zcfg.Build(); err == nil {
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
		Blocks:    *blocks,
		Runners:   *runners,
		ScareDist: int32(*scare),
		Seed:      *seed,
		Prefix:    *prefix,
	}
	if err := run(cfg, *procs, *containerBin, *wasmFile, *tick, *ticks); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg hunt.Config, procs bool, containerBin, wasmFile string, tick time.Duration, ticks int) error {
	// External processes and mapper-attached modules need named objects.
	if (procs || wasmFile != "") && cfg.Prefix == "" {
		cfg.Prefix = fmt.Sprintf("hunt.%d", os.Getpid())
	}

	h, err := hunt.NewHost(cfg)
	if err != nil {
		return err
	}
	defer h.Close()
	ctx := context.Background()

	switch {
	case procs:
		if err := spawnContainers(h, containerBin, wasmFile); err != nil {
			return err
		}
	case wasmFile != "":
		cleanup, err := startWasmHunter(ctx, h, wasmFile)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := h.StartGuest(ctx, hunt.RunnerGuest, h.LocalRunners()); err != nil {
			return err
		}
	default:
		if err := h.StartGuest(ctx, hunt.HunterGuest, h.LocalHunter()); err != nil {
			return err
		}
		if err := h.StartGuest(ctx, hunt.RunnerGuest, h.LocalRunners()); err != nil {
			return err
		}
	}

	if err := h.Init(ctx); err != nil {
		return err
	}

	if ticks > 0 {
		return runHeadless(h, ticks)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal; use -ticks <n> for a headless run")
	}
	p := tea.NewProgram(newHuntModel(h, tick), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(*huntModel); ok && m.exitErr != nil {
		return m.exitErr
	}
	return nil
}

// runHeadless steps the world without a screen and prints the outcome.
func runHeadless(h *hunt.Host, ticks int) error {
	ctx := context.Background()
	for i := 0; i < ticks; i++ {
		if err := h.Tick(ctx); err != nil {
			return fmt.Errorf("tick %d: %w", i, err)
		}
	}
	live, err := h.Actors().Live()
	if err != nil {
		return err
	}
	hx, hy := h.Actors().Hunter()
	fmt.Printf("ticks: %d\n", ticks)
	fmt.Printf("hunter: (%d, %d)\n", hx, hy)
	fmt.Printf("runners alive: %d/%d\n", live, h.Config().Runners)
	return h.Shutdown(ctx)
}

// spawnContainers starts one container process per guest slot. The hunter
// slot gets the WASM module when one is given; processes exit on the
// host's exit broadcast and are reaped in the background.
func spawnContainers(h *hunt.Host, bin, wasmFile string) error {
	cfg := h.Config()
	var started []*exec.Cmd
	for idx := 0; idx < hunt.GuestCount; idx++ {
		args := []string{
			"-prefix", cfg.Prefix,
			"-guest", strconv.Itoa(idx),
			"-grid-w", strconv.Itoa(int(cfg.GridW)),
			"-grid-h", strconv.Itoa(int(cfg.GridH)),
			"-runners", strconv.Itoa(cfg.Runners),
			"-scare", strconv.Itoa(int(cfg.ScareDist)),
			"-seed", strconv.FormatInt(cfg.Seed, 10),
		}
		if idx == hunt.HunterGuest && wasmFile != "" {
			args = append(args, "-wasm", wasmFile)
		}
		cmd := exec.Command(bin, args...)
		if err := cmd.Start(); err != nil {
			for _, c := range started {
				_ = c.Process.Kill()
			}
			return fmt.Errorf("start %s: %w", bin, err)
		}
		started = append(started, cmd)
		go func(c *exec.Cmd) { _ = c.Wait() }(cmd)
	}
	return nil
}

// startWasmHunter loads the module, fixed-maps the world into its linear
// memory, and puts it on the hunter slot. The returned cleanup tears down
// the mappings and the engine; run it after the host shuts down.
func startWasmHunter(ctx context.Context, h *hunt.Host, file string) (func(), error) {
	wasmBytes, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	eng, err := engine.New(ctx, engine.Config{PinnedMemory: true, MemoryLimitPages: 1024}, nil)
	if err != nil {
		return nil, err
	}
	g, err := eng.LoadGuest(ctx, "hunter", wasmBytes)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}

	cfg := h.Config()
	specs := cfg.Specs()
	for i := range specs {
		specs[i].Size = 0
	}
	objs, err := region.OpenObjects(cfg.Prefix, specs...)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}
	set, err := region.NewMapper(g, g).Map(objs, specs)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}
	cleanup := func() {
		set.Close()
		eng.Close(ctx)
	}

	layout, err := hunt.WasmLayout(set)
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := g.CreateContext(ctx, layout); err != nil {
		cleanup()
		return nil, err
	}
	if _, err := g.RecordBase(); err != nil {
		cleanup()
		return nil, err
	}
	if err := h.StartGuest(ctx, hunt.HunterGuest, g.Handler(ctx)); err != nil {
		cleanup()
		return nil, err
	}
	return cleanup, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
