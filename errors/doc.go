// Package errors provides structured error types for the wasm-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes bridge context: region name, guest index,
// lookup key, host address, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMap, errors.KindAddressMismatch).
//		Region("grid").
//		Addr(got).
//		Detail("kernel mapped %#x, wanted %#x", got, want).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AddressMismatch("grid", want, got)
//	err := errors.SignalTimeout(guestIdx, attempts, lastWord)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind, so sentinels can be built inline:
//
//	errors.Is(err, &errors.Error{Phase: errors.PhaseQuery, Kind: errors.KindNotFound})
package errors
