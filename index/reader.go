package index

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
)

// Reader resolves keys against a packed block in place, without copying or
// decoding it up front. This is the guest's direct-memory lookup path: buf
// is typically a view of the mapped read-only region.
type Reader struct {
	buf   []byte
	slots int
	hash  Hash
}

// New wraps a packed block. slots and hash must match the builder that
// produced it.
func New(buf []byte, slots int, hash Hash) (*Reader, error) {
	if slots <= 0 {
		return nil, errors.InvalidInput(errors.PhaseIndex, fmt.Sprintf("slot count %d, need at least 1", slots))
	}
	if need := slots*4 + 1; len(buf) < need {
		return nil, errors.InvalidData(errors.PhaseIndex, fmt.Sprintf("block is %d bytes, slot table and bumper alone need %d", len(buf), need))
	}
	if hash == nil {
		hash = DefaultHash
	}
	return &Reader{buf: buf, slots: slots, hash: hash}, nil
}

// Lookup returns the value stored under key. The result aliases the
// underlying block; callers that retain it must copy. A miss is a
// not_found error, a malformed block an invalid_data error.
func (r *Reader) Lookup(key []byte) ([]byte, error) {
	slot := slotOf(r.hash, key, r.slots)
	off := binary.LittleEndian.Uint32(r.buf[slot*4:])
	if off == 0 {
		return nil, errors.NotFound(errors.PhaseIndex, "key", string(key))
	}

	c := cursor{buf: r.buf[r.slots*4:], off: int(off)}
	pairs, err := c.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < pairs; i++ {
		klen, err := c.u32()
		if err != nil {
			return nil, err
		}
		// Chains are sorted by key length first, so once entry keys
		// outgrow the probe there is nothing left to match.
		if int(klen) > len(key) {
			break
		}
		if int(klen) < len(key) {
			if err := c.skip(int(klen)); err != nil {
				return nil, err
			}
			if err := c.skipValue(); err != nil {
				return nil, err
			}
			continue
		}
		kb, err := c.bytes(int(klen))
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(kb, key) {
			if err := c.skipValue(); err != nil {
				return nil, err
			}
			continue
		}
		vlen, err := c.u32()
		if err != nil {
			return nil, err
		}
		return c.bytes(int(vlen))
	}
	return nil, errors.NotFound(errors.PhaseIndex, "key", string(key))
}

// cursor walks a chain with bounds checks so truncated or corrupt blocks
// surface errors instead of panics.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) u32() (uint32, error) {
	if c.off+4 > len(c.buf) {
		return 0, c.truncated(4)
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, c.truncated(n)
	}
	b := c.buf[c.off : c.off+n : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) skip(n int) error {
	if n < 0 || c.off+n > len(c.buf) {
		return c.truncated(n)
	}
	c.off += n
	return nil
}

func (c *cursor) skipValue() error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	return c.skip(int(n))
}

func (c *cursor) truncated(n int) error {
	return errors.InvalidData(errors.PhaseIndex, fmt.Sprintf("chain truncated: need %d bytes at offset %d of %d", n, c.off, len(c.buf)))
}
