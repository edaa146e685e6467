package query

import (
	"github.com/valyala/bytebufferpool"

	"github.com/wippyai/wasm-bridge/errors"
)

// DefaultCapacity is the first-attempt buffer size. Most values in the
// bridge's workloads fit, so the common case resolves in one call.
const DefaultCapacity = 100

// bufs holds per-lookup destination buffers. Lookup copies results out
// before releasing, so pooled memory never escapes.
var bufs bytebufferpool.Pool

// Client is the guest side of the protocol for native guests; WASM guests
// implement the same discipline inside the module. It offers a small
// buffer first and retries exactly once with the size the host reported.
type Client struct {
	// Resolver answers the lookups, usually a *Service or an engine
	// shim that forwards to one.
	Resolver Resolver
	// Capacity overrides DefaultCapacity for the first attempt.
	Capacity int
}

// Lookup resolves key and returns a copy of the value. Missing keys fail
// with a not_found error. A host that reports BufferTooSmall twice in a
// row breaks the capacity contract and fails with a protocol error.
func (c *Client) Lookup(key []byte) ([]byte, error) {
	capacity := c.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	bb := bufs.Get()
	defer bufs.Put(bb)

	var lastRequired uint32
	for attempt := 0; attempt < 2; attempt++ {
		dst := sized(bb, capacity)
		status, written, required := c.Resolver.Resolve(key, dst)
		switch status {
		case Success:
			return append([]byte(nil), dst[:written]...), nil
		case NotFound:
			return nil, errors.NotFound(errors.PhaseQuery, "key", string(key))
		case BufferTooSmall:
			// The host told us the real size; one retry must succeed.
			capacity = int(required)
			lastRequired = required
		default:
			return nil, errors.Protocol(errors.PhaseQuery, "lookup returned unknown status %d", int32(status))
		}
	}
	return nil, errors.New(errors.PhaseQuery, errors.KindProtocol).
		Key(string(key)).
		Required(lastRequired).
		Detail("host reported buffer_too_small twice, second time for the %d-byte buffer it asked for", lastRequired).
		Build()
}

// sized returns bb's storage as a slice of exactly n bytes, growing it if
// the pooled capacity is short.
func sized(bb *bytebufferpool.ByteBuffer, n int) []byte {
	if cap(bb.B) < n {
		bb.B = make([]byte, n)
	}
	bb.B = bb.B[:n]
	return bb.B
}
