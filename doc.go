// Package wasmbridge provides a shared-memory bridge between a host process
// and sandboxed WASM guests.
//
// The host creates POSIX shared-memory objects and maps them into its own
// address space; guests map the same objects at page-aligned fixed addresses
// inside their linear memory, so both sides see the same bytes at stable
// offsets. Coordination runs over lock-free polled signal words, bulk data
// through the regions themselves: a read-only packed hash index plus a
// read-write application area. Values too large for a guest-side buffer go
// through a host-mediated lookup with a single sized retry.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmbridge/          Root package with Memory, MemoryBuffer and Allocator interfaces
//	├── shm/             POSIX shared-memory objects: create, open, map, map-fixed, unlink
//	├── region/          Page alignment, placement planning, region sets, bounds-checked views
//	├── signal/          Signal words: host channel and guest listener, bounded polling
//	├── index/           Packed hash index: builder and zero-copy reader
//	├── query/           Host query service and guest client with one sized retry
//	├── guest/           Guest execution context and signal-driven run loop
//	├── engine/          wazero-backed guest engine with the bridge host call-outs
//	├── hunt/            Predator/prey demo domain built on the bridge
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Host side, sharing a grid with two guests:
//
//	set, err := region.CreateSet("demo",
//	    region.Spec{Name: "grid", Size: gridBytes, Access: region.ReadOnly},
//	    region.Spec{Name: "actors", Size: actorBytes, Access: region.ReadWrite},
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer set.Close()
//
//	actors, err := set.Region("actors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ch, err := signal.NewChannel(actors.Bytes(), 2, signal.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := ch.BroadcastWait(ctx, signal.Init); err != nil {
//	    log.Fatal(err)
//	}
//
// A guest maps the same objects into its linear memory through region.Mapper
// and answers each command by writing Idle back to its signal word.
//
// # Signal Protocol
//
// Each guest owns one 4-byte little-endian word at the front of the
// read-write region. The host writes commands (Init, Tick, LargeAlloc,
// ModifyGrid, Exit), the guest writes exactly one Idle back per command.
// Both sides poll with a bounded constant backoff; exhaustion surfaces as a
// signal timeout rather than a hang.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink, and growth may relocate
// the backing buffer. Fixed mappings are valid only while the base address
// is stable, so the engine records the base at map time and fails fast if a
// later call observes a different one. Guests must not grow memory while
// regions are mapped; the demo LargeAlloc command exists to provoke this
// failure deliberately.
package wasmbridge
