package region

import (
	"errors"
	"testing"

	bridgeerr "github.com/wippyai/wasm-bridge/errors"
)

func TestViewRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	v := NewView(buf)

	if err := v.PutU32(0, 0xdeadbeef); err != nil {
		t.Fatalf("PutU32: %v", err)
	}
	if got, err := v.U32(0); err != nil || got != 0xdeadbeef {
		t.Fatalf("U32 = %#x, %v", got, err)
	}

	// Little-endian on the wire.
	if buf[0] != 0xef || buf[3] != 0xde {
		t.Fatalf("byte order wrong: % x", buf[:4])
	}

	if err := v.PutI32(4, -7); err != nil {
		t.Fatalf("PutI32: %v", err)
	}
	if got, err := v.I32(4); err != nil || got != -7 {
		t.Fatalf("I32 = %d, %v", got, err)
	}

	if err := v.PutU8(15, 0x42); err != nil {
		t.Fatalf("PutU8: %v", err)
	}
	if got, err := v.U8(15); err != nil || got != 0x42 {
		t.Fatalf("U8 = %#x, %v", got, err)
	}
}

func TestViewBounds(t *testing.T) {
	v := NewView(make([]byte, 8))

	cases := []struct {
		name string
		call func() error
	}{
		{"U32 past end", func() error { _, err := v.U32(5); return err }},
		{"U32 at end", func() error { _, err := v.U32(8); return err }},
		{"PutU32 past end", func() error { return v.PutU32(6, 1) }},
		{"U8 at end", func() error { _, err := v.U8(8); return err }},
		{"Bytes past end", func() error { _, err := v.Bytes(4, 5); return err }},
		{"huge offset", func() error { _, err := v.U32(0xffffffff); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if err == nil {
				t.Fatal("expected out-of-bounds error")
			}
			var be *bridgeerr.Error
			if !errors.As(err, &be) || be.Kind != bridgeerr.KindOutOfBounds {
				t.Fatalf("want out_of_bounds, got %v", err)
			}
		})
	}

	// Boundary accesses succeed.
	if _, err := v.U32(4); err != nil {
		t.Errorf("U32 at last word: %v", err)
	}
	if _, err := v.Bytes(0, 8); err != nil {
		t.Errorf("Bytes full range: %v", err)
	}
}

func TestViewSliceAliases(t *testing.T) {
	buf := make([]byte, 12)
	v := NewView(buf)

	sub, err := v.Slice(4, 8)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if sub.Len() != 8 {
		t.Fatalf("sub view length = %d, want 8", sub.Len())
	}
	if err := sub.PutU32(0, 0x01020304); err != nil {
		t.Fatalf("PutU32 on sub view: %v", err)
	}
	if got, err := v.U32(4); err != nil || got != 0x01020304 {
		t.Fatalf("write through sub view not visible: %#x, %v", got, err)
	}

	if _, err := sub.U32(8); err == nil {
		t.Fatal("sub view should not reach past its window")
	}

	b, err := sub.Bytes(0, 4)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	b[0] = 0xff
	if buf[4] != 0xff {
		t.Fatal("Bytes result should alias the backing buffer")
	}
}

func TestZeroView(t *testing.T) {
	var v View
	if v.Len() != 0 {
		t.Fatalf("zero view length = %d", v.Len())
	}
	if _, err := v.U8(0); err == nil {
		t.Fatal("zero view should reject access")
	}
}
