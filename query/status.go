package query

import "github.com/wippyai/wasm-bridge/errors"

// Status is the lookup result code. It crosses the host/guest boundary as
// a 32-bit signed integer, so the values are wire contract.
type Status int32

const (
	// Success means the value was copied into the destination buffer.
	Success Status = 0
	// BufferTooSmall means the value exists but exceeds the offered
	// capacity; nothing was copied and the required size was reported.
	BufferTooSmall Status = 1
	// NotFound means the key is absent from the table.
	NotFound Status = 2
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case BufferTooSmall:
		return "buffer_too_small"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// DecodeStatus validates a status word received over the wire.
func DecodeStatus(v int32) (Status, error) {
	switch s := Status(v); s {
	case Success, BufferTooSmall, NotFound:
		return s, nil
	default:
		return 0, errors.Protocol(errors.PhaseQuery, "unknown lookup status %d", v)
	}
}
