// Package index builds and reads the packed hash index, the binary lookup
// table the bridge serializes into a shared read-only region so guests can
// resolve keys by walking mapped memory directly.
//
// Layout, all integers little-endian:
//
//	[u32 x slotCount]  slot table; slot s holds the offset of its chain, 0 = empty
//	[1 byte]           bumper, keeps live chain offsets non-zero
//	[chains]           one block per used slot
//
//	chain := u32 pairCount,
//	         pairCount x (u32 keyLen, key bytes, u32 valueLen, value bytes)
//
// Slot offsets are relative to the first byte after the slot table, which
// the bumper occupies, so the first chain lives at offset 1 and a zero slot
// always means empty.
//
// A key hashes to slot hash(key) % slotCount. Within a chain, pairs are
// sorted by key length and then by key bytes, so a probe can skip an entry
// on a length mismatch alone and stop walking once entry keys outgrow the
// probe key.
//
// Builder and Reader must agree on the hash function. The default is
// xxhash; tests inject degenerate hashes to force collisions.
package index
