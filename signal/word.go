package signal

import (
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/wasm-bridge/errors"
)

// WordSize is the wire width of one guest's signal word in bytes.
const WordSize = 4

// BlockSize returns the byte length of the signal block for n guests. The
// block sits at the front of the shared read-write region; application
// payload starts after it.
func BlockSize(guests int) uint32 { return uint32(guests * WordSize) }

// word is one atomically accessed u32 inside mapped memory.
type word struct{ p *uint32 }

func (w word) load() uint32   { return atomic.LoadUint32(w.p) }
func (w word) store(v uint32) { atomic.StoreUint32(w.p, v) }

// words carves one word per guest out of the front of buf. The block must
// be 4-byte aligned, which page-aligned regions always satisfy.
func words(buf []byte, guests int) ([]word, error) {
	if guests <= 0 {
		return nil, errors.InvalidInput(errors.PhaseSignal, "guest count must be positive")
	}
	if need := guests * WordSize; len(buf) < need {
		return nil, errors.New(errors.PhaseSignal, errors.KindInvalidInput).
			Detail("signal block needs %d bytes, have %d", need, len(buf)).
			Build()
	}
	if uintptr(unsafe.Pointer(&buf[0]))%WordSize != 0 {
		return nil, errors.InvalidInput(errors.PhaseSignal, "signal block must be 4-byte aligned")
	}

	ws := make([]word, guests)
	for i := range ws {
		ws[i] = word{p: (*uint32)(unsafe.Pointer(&buf[i*WordSize]))}
	}
	return ws, nil
}
