package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseAlign  Phase = "align"  // page alignment and placement planning
	PhaseMap    Phase = "map"    // shared-memory object creation and mapping
	PhaseSignal Phase = "signal" // signal word send/wait
	PhaseIndex  Phase = "index"  // packed hash index build/read
	PhaseQuery  Phase = "query"  // host-mediated lookup
	PhaseGuest  Phase = "guest"  // guest context and run loop
	PhaseEngine Phase = "engine" // WASM engine and guest ABI
	PhaseHunt   Phase = "hunt"   // hunt demo grid, actors and orchestration
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation      Kind = "allocation"
	KindMapping         Kind = "mapping"
	KindAddressMismatch Kind = "address_mismatch"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindTimeout         Kind = "timeout"
	KindProtocol        Kind = "protocol"
	KindBufferTooSmall  Kind = "buffer_too_small"
	KindNotFound        Kind = "not_found"
	KindInvalidInput    Kind = "invalid_input"
	KindInvalidData     Kind = "invalid_data"
	KindInternal        Kind = "internal"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Region   string // shared region name, when known
	Key      string // lookup key, when known
	Detail   string
	Addr     uintptr // host address involved, when relevant
	Required uint32  // true capacity for buffer_too_small errors
	Guest    int     // guest index, informational; folded into Detail by constructors
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Region != "" {
		b.WriteString(" at region ")
		fmt.Fprintf(&b, "%q", e.Region)
	}
	if e.Key != "" {
		b.WriteString(" key ")
		fmt.Fprintf(&b, "%q", e.Key)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Region sets the shared region name
func (b *Builder) Region(name string) *Builder {
	b.err.Region = name
	return b
}

// Key sets the lookup key
func (b *Builder) Key(k string) *Builder {
	b.err.Key = k
	return b
}

// Guest sets the guest index
func (b *Builder) Guest(i int) *Builder {
	b.err.Guest = i
	return b
}

// Addr sets the host address involved
func (b *Builder) Addr(a uintptr) *Builder {
	b.err.Addr = a
	return b
}

// Required sets the true capacity for buffer_too_small errors
func (b *Builder) Required(n uint32) *Builder {
	b.err.Required = n
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint64, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// MappingFailed creates a mapping failure error for a named region
func MappingFailed(region, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseMap,
		Kind:   KindMapping,
		Region: region,
		Detail: detail,
		Cause:  cause,
	}
}

// AddressMismatch reports a fixed mapping landing somewhere other than requested
func AddressMismatch(region string, want, got uintptr) *Error {
	return &Error{
		Phase:  PhaseMap,
		Kind:   KindAddressMismatch,
		Region: region,
		Addr:   got,
		Detail: fmt.Sprintf("mapped at %#x, requested %#x", got, want),
	}
}

// SignalTimeout reports bounded polling exhaustion on a guest's signal word
func SignalTimeout(guest int, attempts uint64, last uint32) *Error {
	return &Error{
		Phase:  PhaseSignal,
		Kind:   KindTimeout,
		Guest:  guest,
		Detail: fmt.Sprintf("guest %d: signal word still %d after %d polls", guest, last, attempts),
	}
}

// Protocol creates a protocol violation error
func Protocol(phase Phase, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  phase,
		Kind:   KindProtocol,
		Detail: detail,
	}
}

// TooSmall creates a buffer_too_small error carrying the true capacity needed
func TooSmall(phase Phase, required uint32) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindBufferTooSmall,
		Required: required,
		Detail:   fmt.Sprintf("need %d bytes", required),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// OutOfBounds creates an out of bounds error for a byte range
func OutOfBounds(phase Phase, offset, count, size uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) outside buffer of %d bytes", offset, offset+count, size),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Internal creates an internal error
func Internal(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsKind reports whether err (or anything it wraps) is a bridge error of kind k
func IsKind(err error, k Kind) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == k
}

// RequiredSize extracts the true capacity reported by the host from a
// bridge error that carries one, such as buffer_too_small or the protocol
// error a Client raises when a host reports buffer_too_small twice. The
// second return is false if err carries no capacity report.
func RequiredSize(err error) (uint32, bool) {
	var e *Error
	if stderrors.As(err, &e) && e.Required > 0 {
		return e.Required, true
	}
	return 0, false
}
