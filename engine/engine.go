package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/query"
)

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages caps guest linear memory in 64KB pages.
	// 0 means wazero's default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// PinnedMemory reserves each guest memory's maximum size up front at
	// a fixed address, so memory.grow never relocates the base. Shared
	// regions mapped into the guest arena stay valid across growth.
	// Without it the default slice-backed memory may move when it grows.
	PinnedMemory bool
}

// Engine wraps a wazero runtime with the bridge's host module installed.
// One engine hosts any number of guests; they share the runtime's
// compilation cache and the resolver behind env.lookup.
type Engine struct {
	runtime wazero.Runtime
	cfg     Config
}

// New creates an engine. The resolver answers the guests' env.lookup
// call-outs; nil behaves like an empty table (every key misses).
func New(ctx context.Context, cfg Config, resolver query.Resolver) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if err := instantiateEnv(ctx, runtime, resolver); err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "instantiate env host module")
	}

	Logger().Debug("engine created",
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.Bool("pinned_memory", cfg.PinnedMemory))
	return &Engine{runtime: runtime, cfg: cfg}, nil
}

// LoadGuest compiles and instantiates a guest module. The name shows up
// in the guest's print diagnostics and must be unique per engine unless
// empty.
func (e *Engine) LoadGuest(ctx context.Context, name string, wasmBytes []byte) (*Guest, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "compile guest module")
	}

	instCtx := ctx
	if e.cfg.PinnedMemory {
		instCtx = experimental.WithMemoryAllocator(ctx, pinnedAllocator{})
	}

	// Guests are reactors driven through exported functions; nothing runs
	// at instantiation.
	modConfig := wazero.NewModuleConfig().WithName(name).WithStartFunctions()
	instance, err := e.runtime.InstantiateModule(instCtx, compiled, modConfig)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "instantiate guest module")
	}

	g, err := newGuest(name, instance)
	if err != nil {
		_ = instance.Close(ctx)
		return nil, err
	}
	Logger().Info("guest loaded",
		zap.String("guest", name),
		zap.Uint32("memory_bytes", g.Size()))
	return g, nil
}

// Close tears down the runtime and every guest instantiated from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
