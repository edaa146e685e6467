// Package query implements the host-mediated lookup protocol, the slow
// path guests use when a key is not worth resolving through the packed
// index mapped into their memory.
//
// The host keeps the authoritative table in a concurrent map and exposes
// one operation: resolve a key into a caller-provided buffer. The answer
// is a status word plus a capacity contract:
//
//	Success        value copied, written bytes valid
//	BufferTooSmall nothing copied, buffer cannot hold the value
//	NotFound       key absent
//
// Whenever the key exists the host reports the true value length back
// through the capacity channel, even alongside BufferTooSmall. A caller
// therefore never guesses twice: the first undersized attempt learns the
// exact size, the retry succeeds. Client encodes that discipline and
// treats a second BufferTooSmall as a broken host.
package query
