package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseMap,
				Kind:   KindAddressMismatch,
				Region: "grid",
				Detail: "mapped at 0x2000, requested 0x1000",
			},
			contains: []string{"[map]", "address_mismatch", `region "grid"`, "0x2000", "0x1000"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseSignal,
				Kind:  KindTimeout,
			},
			contains: []string{"[signal]", "timeout"},
		},
		{
			name: "error with key and cause",
			err: &Error{
				Phase:  PhaseQuery,
				Kind:   KindNotFound,
				Key:    "user:42",
				Detail: "resident table miss",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[query]", "not_found", `key "user:42"`, "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseMap,
		Kind:  KindMapping,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseMap,
		Kind:   KindAddressMismatch,
		Region: "actors",
	}

	if !err.Is(&Error{Phase: PhaseMap, Kind: KindAddressMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseSignal, Kind: KindAddressMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseMap, Kind: KindMapping}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseMap, Kind: KindAddressMismatch}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseSignal, KindTimeout).
		Region("actors").
		Guest(3).
		Addr(0xdead000).
		Required(128).
		Cause(cause).
		Detail("word stuck at %d after %d polls", 2, 300).
		Build()

	if err.Phase != PhaseSignal {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseSignal)
	}
	if err.Kind != KindTimeout {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTimeout)
	}
	if err.Region != "actors" {
		t.Errorf("Region = %v, want 'actors'", err.Region)
	}
	if err.Guest != 3 {
		t.Errorf("Guest = %v, want 3", err.Guest)
	}
	if err.Addr != 0xdead000 {
		t.Errorf("Addr = %#x, want 0xdead000", err.Addr)
	}
	if err.Required != 128 {
		t.Errorf("Required = %v, want 128", err.Required)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "word stuck at 2 after 300 polls" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseMap, 65536, nil)
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !strings.Contains(err.Detail, "65536") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
	})

	t.Run("MappingFailed", func(t *testing.T) {
		cause := errors.New("EEXIST")
		err := MappingFailed("grid", "mmap fixed", cause)
		if err.Kind != KindMapping || err.Phase != PhaseMap {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
		if err.Region != "grid" {
			t.Errorf("Region = %q, want grid", err.Region)
		}
		if !errors.Is(err, &Error{Phase: PhaseMap, Kind: KindMapping}) {
			t.Error("errors.Is should match mapping failure")
		}
	})

	t.Run("AddressMismatch", func(t *testing.T) {
		err := AddressMismatch("grid", 0x1000, 0x2000)
		if err.Kind != KindAddressMismatch {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAddressMismatch)
		}
		if err.Addr != 0x2000 {
			t.Errorf("Addr = %#x, want the actual address", err.Addr)
		}
		if !strings.Contains(err.Error(), "0x1000") {
			t.Errorf("message should carry requested address: %v", err)
		}
	})

	t.Run("SignalTimeout", func(t *testing.T) {
		err := SignalTimeout(2, 300, 4)
		if err.Kind != KindTimeout || err.Phase != PhaseSignal {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
		if err.Guest != 2 {
			t.Errorf("Guest = %d, want 2", err.Guest)
		}
		for _, s := range []string{"guest 2", "300", "4"} {
			if !strings.Contains(err.Detail, s) {
				t.Errorf("Detail %q missing %q", err.Detail, s)
			}
		}
	})

	t.Run("Protocol", func(t *testing.T) {
		err := Protocol(PhaseSignal, "signal word %d out of range", 9)
		if err.Kind != KindProtocol {
			t.Errorf("Kind = %v, want %v", err.Kind, KindProtocol)
		}
		if err.Detail != "signal word 9 out of range" {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("TooSmall", func(t *testing.T) {
		err := TooSmall(PhaseQuery, 50)
		if err.Kind != KindBufferTooSmall {
			t.Errorf("Kind = %v, want %v", err.Kind, KindBufferTooSmall)
		}
		if err.Required != 50 {
			t.Errorf("Required = %d, want 50", err.Required)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseIndex, "key", "404 not found")
		if err.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
		}
		if !strings.Contains(err.Detail, "404 not found") {
			t.Errorf("Detail = %v", err.Detail)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseGuest, 96, 8, 100)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		for _, s := range []string{"96", "104", "100"} {
			if !strings.Contains(err.Detail, s) {
				t.Errorf("Detail %q missing %q", err.Detail, s)
			}
		}
	})
}

func TestIsKind(t *testing.T) {
	inner := TooSmall(PhaseQuery, 50)
	wrapped := Wrap(PhaseGuest, KindInternal, inner, "retry bookkeeping")

	if !IsKind(inner, KindBufferTooSmall) {
		t.Error("IsKind should match direct error")
	}
	if !IsKind(wrapped, KindInternal) {
		t.Error("IsKind should match outermost kind")
	}
	if IsKind(errors.New("plain"), KindBufferTooSmall) {
		t.Error("IsKind should reject non-bridge errors")
	}
}

func TestRequiredSize(t *testing.T) {
	if n, ok := RequiredSize(TooSmall(PhaseQuery, 50)); !ok || n != 50 {
		t.Errorf("RequiredSize = %d, %v; want 50, true", n, ok)
	}

	// Wrapped buffer_too_small is still extractable via errors.As.
	wrapped := Wrap(PhaseGuest, KindBufferTooSmall, TooSmall(PhaseQuery, 50), "first attempt")
	wrapped.Required = 50
	if n, ok := RequiredSize(wrapped); !ok || n != 50 {
		t.Errorf("RequiredSize(wrapped) = %d, %v; want 50, true", n, ok)
	}

	// The double-report protocol error keeps the capacity extractable.
	broken := New(PhaseQuery, KindProtocol).Required(64).Detail("reported too small twice").Build()
	if n, ok := RequiredSize(broken); !ok || n != 64 {
		t.Errorf("RequiredSize(protocol) = %d, %v; want 64, true", n, ok)
	}

	if _, ok := RequiredSize(NotFound(PhaseQuery, "key", "x")); ok {
		t.Error("RequiredSize should reject errors without a capacity report")
	}
	if _, ok := RequiredSize(errors.New("plain")); ok {
		t.Error("RequiredSize should reject non-bridge errors")
	}
}
