package guest

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signal"
)

// Handler reacts to host commands. One Handler instance serves one guest.
type Handler interface {
	Init(seed int32) error
	Tick() error
	ModifyGrid() error
	LargeAlloc() error
}

// Loop runs a native guest's command loop: wait for a command, dispatch
// it, acknowledge with idle, repeat until Exit. The seed is forwarded to
// the handler's Init, mirroring how process guests receive it on their
// command line.
//
// A handler error is acknowledged first, then returned, so the host's
// idle wait completes and the failure surfaces out of band. A command
// that does not decode is not acknowledged at all; the host's wait times
// out and recovery is its call.
func Loop(ctx context.Context, lst *signal.Listener, h Handler, seed int32) error {
	log := Logger().With(zap.Int("guest", lst.Guest()))
	for {
		sig, err := lst.Wait(ctx)
		if err != nil {
			return err
		}
		log.Debug("command received", zap.Stringer("signal", sig))

		var herr error
		switch sig {
		case signal.Exit:
			lst.AckIdle()
			return nil
		case signal.Init:
			herr = h.Init(seed)
		case signal.Tick:
			herr = h.Tick()
		case signal.ModifyGrid:
			herr = h.ModifyGrid()
		case signal.LargeAlloc:
			herr = h.LargeAlloc()
		default:
			// Wait filters Idle and rejects junk, so this is a bug in the
			// signal layer, not on the wire.
			return errors.Protocol(errors.PhaseGuest, "loop dispatched impossible signal %d", uint32(sig))
		}

		lst.AckIdle()
		if herr != nil {
			log.Warn("handler failed", zap.Stringer("signal", sig), zap.Error(herr))
			return herr
		}
	}
}
