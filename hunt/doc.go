// Package hunt is the bridge's demonstration world: a hunter chases
// runners across a walled grid, with every moving piece living in shared
// memory.
//
// The world occupies two regions:
//
//	grid    read-only    W×H int32 cells in row-major order
//	actors  read-write   [signal block][hunter x,y][runner x,y,state ...]
//
// The host builds the grid, scatters the actors' initial state through
// the guests' Init, and then drives the simulation over the signal
// channel. Write ownership is fixed: the host owns the grid, the hunter
// guest owns the hunter pair, the runner guest owns every runner record.
// Ticks run hunter first, then runners, so a guest reading the other
// side's records never races a concurrent writer.
//
// Guests come in three shapes behind the same Handler interface:
// in-process brains on the host's worker pool, external processes
// attached to the named regions, and WASM modules with the regions
// fixed-mapped into linear memory. The protocol cannot tell them apart.
package hunt
