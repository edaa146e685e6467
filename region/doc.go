// Package region places and maps shared-memory regions for the bridge.
//
// A Spec names a region, its size, and the access guests get. The host
// creates the backing objects and maps them wherever the kernel likes
// (CreateSet); a guest-side Mapper instead allocates one arena inside guest
// linear memory and maps every object at a page-aligned fixed address in
// it, so host-visible addresses and guest offsets stay in lockstep.
//
// Alignment math is explicit and testable: Align rounds an address up to
// the next page boundary (aligned stays put), ArenaSize bounds the arena a
// guest must allocate, Plan turns a base address plus specs into concrete
// placements.
//
// Regions hand out bounds-checked little-endian Views instead of raw
// pointers; all view accesses return out-of-bounds errors rather than
// panicking.
package region
