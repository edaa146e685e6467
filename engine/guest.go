package engine

import (
	"context"
	"sync"
	"unsafe"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/guest"
)

// Guest ABI export names.
const (
	exportMalloc        = "malloc_"
	exportCreateContext = "create_context"
	exportUpdateContext = "update_context"
	exportInit          = "init"
	exportTick          = "tick"
	exportModifyGrid    = "modify_grid"
	exportLargeAlloc    = "large_alloc"
)

// Guest is one instantiated WASM module. It satisfies the bridge's
// LinearMemory and Allocator interfaces, so the fixed mapper can place
// shared regions inside its arena, and wraps the guest ABI exports.
type Guest struct {
	name     string
	instance api.Module
	mem      api.Memory

	mallocFn     api.Function
	createCtxFn  api.Function
	updateCtxFn  api.Function
	initFn       api.Function
	tickFn       api.Function
	modifyGridFn api.Function
	largeAllocFn api.Function

	// handle is the guest-chosen context token threaded through every
	// lifecycle call; 0 until create_context succeeds.
	handle int32
	// base is the memory base recorded by RecordBase; 0 disables the
	// pre-dispatch drift check.
	base uintptr

	stackMu  sync.Mutex
	stackBuf []uint64
}

func newGuest(name string, instance api.Module) (*Guest, error) {
	mem := instance.Memory()
	if mem == nil {
		return nil, errors.InvalidData(errors.PhaseEngine, "guest module exports no memory")
	}
	malloc := instance.ExportedFunction(exportMalloc)
	if malloc == nil {
		return nil, errors.NotFound(errors.PhaseEngine, "export", exportMalloc)
	}
	return &Guest{
		name:         name,
		instance:     instance,
		mem:          mem,
		mallocFn:     malloc,
		createCtxFn:  instance.ExportedFunction(exportCreateContext),
		updateCtxFn:  instance.ExportedFunction(exportUpdateContext),
		initFn:       instance.ExportedFunction(exportInit),
		tickFn:       instance.ExportedFunction(exportTick),
		modifyGridFn: instance.ExportedFunction(exportModifyGrid),
		largeAllocFn: instance.ExportedFunction(exportLargeAlloc),
		stackBuf:     make([]uint64, 8),
	}, nil
}

// Name returns the module name given at load time.
func (g *Guest) Name() string { return g.name }

// Close releases the instance.
func (g *Guest) Close(ctx context.Context) error {
	return g.instance.Close(ctx)
}

// Read returns a view of guest memory. The slice aliases live memory and
// is valid only until the memory grows.
func (g *Guest) Read(offset, length uint32) ([]byte, error) {
	data, ok := g.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseEngine, uint64(offset), uint64(length), uint64(g.mem.Size()))
	}
	return data, nil
}

// Write copies data into guest memory.
func (g *Guest) Write(offset uint32, data []byte) error {
	if !g.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseEngine, uint64(offset), uint64(len(data)), uint64(g.mem.Size()))
	}
	return nil
}

// ReadU32 reads a little-endian u32 from guest memory.
func (g *Guest) ReadU32(offset uint32) (uint32, error) {
	val, ok := g.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseEngine, uint64(offset), 4, uint64(g.mem.Size()))
	}
	return val, nil
}

// WriteU32 writes a little-endian u32 into guest memory.
func (g *Guest) WriteU32(offset, value uint32) error {
	if !g.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseEngine, uint64(offset), 4, uint64(g.mem.Size()))
	}
	return nil
}

// Size returns the current linear memory size in bytes.
func (g *Guest) Size() uint32 {
	return g.mem.Size()
}

// Buffer returns the whole linear memory as one view.
func (g *Guest) Buffer() ([]byte, error) {
	size := g.mem.Size()
	if size == 0 {
		return nil, errors.InvalidData(errors.PhaseEngine, "guest linear memory is empty")
	}
	buf, ok := g.mem.Read(0, size)
	if !ok {
		return nil, errors.Internal(errors.PhaseEngine, "linear memory refused a full-size view", nil)
	}
	return buf, nil
}

// Alloc calls the guest's exported malloc_ and returns the guest offset.
func (g *Guest) Alloc(size uint32) (uint32, error) {
	g.stackMu.Lock()
	defer g.stackMu.Unlock()

	g.stackBuf[0] = uint64(size)
	if err := g.mallocFn.CallWithStack(context.Background(), g.stackBuf[:1]); err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEngine, uint64(size), err)
	}
	return api.DecodeU32(g.stackBuf[0]), nil
}

// Base derives the current host address of guest memory offset 0.
func (g *Guest) Base() (uintptr, error) {
	buf, err := g.Buffer()
	if err != nil {
		return 0, err
	}
	return uintptr(unsafe.Pointer(&buf[0])), nil
}

// RecordBase snapshots the current memory base. Call it right after
// mapping shared regions into the arena; every subsequent dispatch then
// verifies the mappings are still where the guest thinks they are.
func (g *Guest) RecordBase() (uintptr, error) {
	base, err := g.Base()
	if err != nil {
		return 0, err
	}
	g.base = base
	Logger().Debug("guest memory base recorded",
		zap.String("guest", g.name),
		zap.Uintptr("base", base))
	return base, nil
}

// CheckBase re-derives the memory base and fails if it moved from prev.
func (g *Guest) CheckBase(prev uintptr) error {
	cur, err := g.Base()
	if err != nil {
		return err
	}
	if cur != prev {
		return errors.New(errors.PhaseEngine, errors.KindAddressMismatch).
			Addr(cur).
			Detail("guest %q linear memory moved from %#x to %#x, fixed mappings are stale", g.name, prev, cur).
			Build()
	}
	return nil
}

// checkRecordedBase guards a dispatch when RecordBase has been called.
func (g *Guest) checkRecordedBase() error {
	if g.base == 0 {
		return nil
	}
	return g.CheckBase(g.base)
}

// call runs one cached export with the shared stack buffer. fn may be nil
// when the guest does not export the name.
func (g *Guest) call(ctx context.Context, fn api.Function, name string, args ...uint64) (uint64, error) {
	if fn == nil {
		return 0, errors.NotFound(errors.PhaseEngine, "export", name)
	}

	g.stackMu.Lock()
	defer g.stackMu.Unlock()

	copy(g.stackBuf, args)
	for i := len(args); i < len(g.stackBuf); i++ {
		g.stackBuf[i] = 0
	}
	if err := fn.CallWithStack(ctx, g.stackBuf[:max(len(args), 1)]); err != nil {
		return 0, errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "guest call "+name)
	}
	return g.stackBuf[0], nil
}

// Call invokes an arbitrary export by name, for entry points outside the
// bridge ABI (benchmark and verification hooks).
func (g *Guest) Call(ctx context.Context, name string, args ...uint64) (uint64, error) {
	return g.call(ctx, g.instance.ExportedFunction(name), name, args...)
}

// CreateContext hands the guest its region layout; the guest returns an
// opaque positive handle identifying the context it built.
func (g *Guest) CreateContext(ctx context.Context, l guest.Layout) error {
	if err := l.Check(g.Size()); err != nil {
		return err
	}
	res, err := g.call(ctx, g.createCtxFn, exportCreateContext,
		uint64(l.RO.Offset), uint64(l.RO.Length), uint64(l.RW.Offset), uint64(l.RW.Length))
	if err != nil {
		return err
	}
	handle := api.DecodeI32(res)
	if handle <= 0 {
		return errors.Protocol(errors.PhaseEngine, "guest %q rejected its context (returned %d)", g.name, handle)
	}
	g.handle = handle
	return nil
}

// UpdateContext refreshes the guest's region layout after re-planning.
func (g *Guest) UpdateContext(ctx context.Context, l guest.Layout) error {
	if err := g.requireHandle(exportUpdateContext); err != nil {
		return err
	}
	if err := l.Check(g.Size()); err != nil {
		return err
	}
	res, err := g.call(ctx, g.updateCtxFn, exportUpdateContext,
		uint64(uint32(g.handle)), uint64(l.RO.Offset), uint64(l.RO.Length), uint64(l.RW.Offset), uint64(l.RW.Length))
	if err != nil {
		return err
	}
	if status := api.DecodeI32(res); status != 0 {
		return errors.Protocol(errors.PhaseEngine, "guest %q rejected the context update (returned %d)", g.name, status)
	}
	return nil
}

// Init dispatches the init entry point with the world seed.
func (g *Guest) Init(ctx context.Context, seed int32) error {
	return g.dispatch(ctx, g.initFn, exportInit, uint64(uint32(seed)))
}

// Tick dispatches one simulation step.
func (g *Guest) Tick(ctx context.Context) error {
	return g.dispatch(ctx, g.tickFn, exportTick)
}

// ModifyGrid dispatches a world mutation step.
func (g *Guest) ModifyGrid(ctx context.Context) error {
	return g.dispatch(ctx, g.modifyGridFn, exportModifyGrid)
}

// LargeAlloc asks the guest to allocate enough to force linear memory
// growth. With unpinned memory the next dispatch is expected to fail the
// base check; that is the point.
func (g *Guest) LargeAlloc(ctx context.Context) error {
	return g.dispatch(ctx, g.largeAllocFn, exportLargeAlloc)
}

func (g *Guest) dispatch(ctx context.Context, fn api.Function, name string, extra ...uint64) error {
	if err := g.requireHandle(name); err != nil {
		return err
	}
	if err := g.checkRecordedBase(); err != nil {
		return err
	}
	args := append([]uint64{uint64(uint32(g.handle))}, extra...)
	_, err := g.call(ctx, fn, name, args...)
	return err
}

func (g *Guest) requireHandle(op string) error {
	if g.handle == 0 {
		return errors.Protocol(errors.PhaseEngine, "%s before create_context on guest %q", op, g.name)
	}
	return nil
}

// handlerAdapter forwards command-loop dispatches to the guest ABI.
type handlerAdapter struct {
	ctx context.Context
	g   *Guest
}

func (a handlerAdapter) Init(seed int32) error { return a.g.Init(a.ctx, seed) }
func (a handlerAdapter) Tick() error           { return a.g.Tick(a.ctx) }
func (a handlerAdapter) ModifyGrid() error     { return a.g.ModifyGrid(a.ctx) }
func (a handlerAdapter) LargeAlloc() error     { return a.g.LargeAlloc(a.ctx) }

// Handler adapts the guest's ABI exports to the native command-loop
// handler, so a WASM guest serves a signal channel the same way an
// in-process Go guest does. ctx applies to every dispatched call.
func (g *Guest) Handler(ctx context.Context) guest.Handler {
	return handlerAdapter{ctx: ctx, g: g}
}

var (
	_ wasmbridge.LinearMemory = (*Guest)(nil)
	_ wasmbridge.Allocator    = (*Guest)(nil)
)
