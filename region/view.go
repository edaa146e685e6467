package region

import (
	"encoding/binary"

	"github.com/wippyai/wasm-bridge/errors"
)

// View is bounds-checked little-endian access to a byte range. The zero
// View is empty and rejects every access.
type View struct {
	buf []byte
}

// NewView wraps buf in a View. The View aliases buf; it copies nothing.
func NewView(buf []byte) View {
	return View{buf: buf}
}

// Len returns the view length in bytes.
func (v View) Len() int { return len(v.buf) }

func (v View) check(off, n uint32) error {
	end := uint64(off) + uint64(n)
	if end > uint64(len(v.buf)) {
		return errors.OutOfBounds(errors.PhaseGuest, uint64(off), uint64(n), uint64(len(v.buf)))
	}
	return nil
}

// Bytes returns the subslice [off, off+n). The result aliases the view.
func (v View) Bytes(off, n uint32) ([]byte, error) {
	if err := v.check(off, n); err != nil {
		return nil, err
	}
	return v.buf[off : off+n : off+n], nil
}

// Slice returns a narrowed View over [off, off+n).
func (v View) Slice(off, n uint32) (View, error) {
	b, err := v.Bytes(off, n)
	if err != nil {
		return View{}, err
	}
	return View{buf: b}, nil
}

// U32 reads a little-endian uint32 at off.
func (v View) U32(off uint32) (uint32, error) {
	if err := v.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v.buf[off:]), nil
}

// PutU32 writes a little-endian uint32 at off.
func (v View) PutU32(off, val uint32) error {
	if err := v.check(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(v.buf[off:], val)
	return nil
}

// I32 reads a little-endian int32 at off.
func (v View) I32(off uint32) (int32, error) {
	u, err := v.U32(off)
	return int32(u), err
}

// PutI32 writes a little-endian int32 at off.
func (v View) PutI32(off uint32, val int32) error {
	return v.PutU32(off, uint32(val))
}

// U8 reads the byte at off.
func (v View) U8(off uint32) (uint8, error) {
	if err := v.check(off, 1); err != nil {
		return 0, err
	}
	return v.buf[off], nil
}

// PutU8 writes the byte at off.
func (v View) PutU8(off uint32, val uint8) error {
	if err := v.check(off, 1); err != nil {
		return err
	}
	v.buf[off] = val
	return nil
}
