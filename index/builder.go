package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/wippyai/wasm-bridge/errors"
)

// Stats summarizes a serialized block.
type Stats struct {
	Entries   int // key/value pairs stored
	Slots     int // slot table width
	UsedSlots int // slots with a non-empty chain
	MaxChain  int // longest chain, in pairs
	Bytes     int // total serialized size
}

// Builder accumulates key/value pairs and serializes them into a packed
// block. Slots must be positive before Build. A nil Hash means DefaultHash.
type Builder struct {
	Slots int
	Hash  Hash

	entries map[string][]byte
}

// Add stages one pair. Keys must be non-empty and unique; values may be
// empty. Both slices are copied, so callers may reuse them.
func (b *Builder) Add(key, value []byte) error {
	if len(key) == 0 {
		return errors.InvalidInput(errors.PhaseIndex, "empty key")
	}
	if b.entries == nil {
		b.entries = make(map[string][]byte)
	}
	k := string(key)
	if _, ok := b.entries[k]; ok {
		return errors.InvalidInput(errors.PhaseIndex, fmt.Sprintf("duplicate key %q", k))
	}
	b.entries[k] = append([]byte(nil), value...)
	return nil
}

// Len reports the number of staged pairs.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Size reports the exact number of bytes Build will produce for the
// current contents, or 0 if Slots is not positive.
func (b *Builder) Size() int {
	if b.Slots <= 0 {
		return 0
	}
	hash := b.hash()
	used := make([]bool, b.Slots)
	size := b.Slots*4 + 1
	for k, v := range b.entries {
		s := slotOf(hash, []byte(k), b.Slots)
		if !used[s] {
			used[s] = true
			size += 4 // pairCount
		}
		size += 8 + len(k) + len(v)
	}
	return size
}

// Build serializes the staged pairs into a freshly allocated block.
func (b *Builder) Build() ([]byte, Stats, error) {
	buf := make([]byte, b.Size())
	n, st, err := b.BuildInto(buf)
	if err != nil {
		return nil, Stats{}, err
	}
	return buf[:n], st, nil
}

// BuildInto serializes the staged pairs into buf, typically a mapped
// shared-region slice, and reports the bytes written. A target smaller
// than Size() fails with a buffer_too_small error carrying the required
// size before anything is written.
func (b *Builder) BuildInto(buf []byte) (int, Stats, error) {
	if b.Slots <= 0 {
		return 0, Stats{}, errors.InvalidInput(errors.PhaseIndex, fmt.Sprintf("slot count %d, need at least 1", b.Slots))
	}

	// Bucket the pairs and order each chain before writing anything.
	hash := b.hash()
	chains := make([][]pair, b.Slots)
	need := b.Slots*4 + 1
	for k, v := range b.entries {
		kb := []byte(k)
		s := slotOf(hash, kb, b.Slots)
		if len(chains[s]) == 0 {
			need += 4
		}
		chains[s] = append(chains[s], pair{key: kb, val: v})
		need += 8 + len(kb) + len(v)
	}
	if need > math.MaxUint32 {
		return 0, Stats{}, errors.InvalidInput(errors.PhaseIndex, fmt.Sprintf("block size %d exceeds the 32-bit offset space", need))
	}
	if need > len(buf) {
		return 0, Stats{}, errors.TooSmall(errors.PhaseIndex, uint32(need))
	}

	// buf may be a reused region, so the table and bumper are cleared
	// rather than assumed zero.
	table := b.Slots * 4
	clear(buf[:table+1])

	st := Stats{Entries: len(b.entries), Slots: b.Slots}
	le := binary.LittleEndian
	w := table + 1
	for s, chain := range chains {
		if len(chain) == 0 {
			continue
		}
		sortChain(chain)

		// Slot offsets are relative to the end of the table, where the
		// bumper sits at 0, so live chains start at 1.
		le.PutUint32(buf[s*4:], uint32(w-table))
		le.PutUint32(buf[w:], uint32(len(chain)))
		w += 4
		for _, p := range chain {
			le.PutUint32(buf[w:], uint32(len(p.key)))
			w += 4
			copy(buf[w:], p.key)
			w += len(p.key)
			le.PutUint32(buf[w:], uint32(len(p.val)))
			w += 4
			copy(buf[w:], p.val)
			w += len(p.val)
		}

		st.UsedSlots++
		if len(chain) > st.MaxChain {
			st.MaxChain = len(chain)
		}
	}
	st.Bytes = w
	return w, st, nil
}

func (b *Builder) hash() Hash {
	if b.Hash != nil {
		return b.Hash
	}
	return DefaultHash
}

type pair struct {
	key []byte
	val []byte
}

// sortChain orders pairs by key length, then by key bytes. Length-first
// ordering lets a probe skip entries on length alone and stop once chain
// keys outgrow the probe key.
func sortChain(chain []pair) {
	sort.Slice(chain, func(i, j int) bool {
		ki, kj := chain[i].key, chain[j].key
		if len(ki) != len(kj) {
			return len(ki) < len(kj)
		}
		return bytes.Compare(ki, kj) < 0
	})
}
