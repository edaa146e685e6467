package index

import "github.com/cespare/xxhash/v2"

// Hash maps a key to a 64-bit digest. Builder and Reader must use the same
// function over the same data or probes will land in the wrong slots.
type Hash func(key []byte) uint64

// DefaultHash is xxhash, a fast non-cryptographic hash with good
// distribution over short keys.
func DefaultHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

func slotOf(h Hash, key []byte, slots int) int {
	return int(h(key) % uint64(slots))
}
