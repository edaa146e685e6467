// Package signal implements the bridge's lock-free command protocol.
//
// Each guest owns one 4-byte signal word at the front of the shared
// read-write region. The host stores a command into the word and polls for
// the guest to store Idle back; the guest polls for a command, acts, and
// acks with Idle. The host never writes Idle, the guest never writes
// anything else, so a word always has exactly one writer for any value in
// flight and plain atomic loads and stores suffice.
//
// Polling on both sides is bounded: a constant interval times a maximum
// number of attempts, after which the waiter gives up with a timeout error
// instead of hanging on a dead peer.
//
// Words are accessed with native 32-bit atomics. The bridge targets
// little-endian hosts, which is also WASM's byte order, so the in-memory
// and on-the-wire layouts coincide.
package signal
