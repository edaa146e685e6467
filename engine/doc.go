// Package engine hosts WASM guests on wazero and adapts them to the
// bridge's collaborator interfaces.
//
// Engine wraps one wazero runtime plus the "env" host module every guest
// imports: print (guest diagnostics through the engine logger) and lookup
// (the host-mediated query protocol, bound to a query.Resolver at engine
// construction).
//
// Guest wraps one instantiated module. It exposes the guest's linear
// memory as bounds-checked typed access, as a whole-buffer view for
// base-address derivation, and as an allocator backed by the guest's
// exported malloc_. Typed wrappers cover the bridge ABI the guests
// export:
//
//	malloc_(size) -> ptr
//	create_context(roOff, roLen, rwOff, rwLen) -> handle
//	update_context(handle, roOff, roLen, rwOff, rwLen) -> status
//	init(handle, seed)  tick(handle)  modify_grid(handle)  large_alloc(handle)
//
// Fixed mappings inside the guest arena survive only while the linear
// memory's base address holds still. Guest records the base after mapping
// and re-derives it before every dispatch; drift fails fast instead of
// letting a guest touch memory the mappings have left. Config.PinnedMemory
// removes the hazard by reserving the memory's maximum up front at a fixed
// address, at the cost of address space.
package engine
