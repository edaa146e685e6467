// Package shm manages POSIX shared-memory objects for the bridge.
//
// Objects live on /dev/shm and are visible to other processes by name, or
// are anonymous memfds for single-process setups. An Object owns the file
// descriptor from creation until Close; mappings taken from it outlive the
// descriptor.
//
// Two mapping modes exist. Map lets the kernel pick the address and returns
// a byte slice (host side). MapFixed places the object at an exact,
// page-aligned address with MAP_FIXED (guest side, inside linear memory)
// and fails if the kernel reports any other address. Fixed mappings are
// released with UnmapFixed, which installs fresh anonymous pages over the
// range instead of punching a hole into the surrounding allocation.
package shm
