package signal

import (
	"context"
	stderrors "errors"

	"github.com/cenkalti/backoff/v4"

	"github.com/wippyai/wasm-bridge/errors"
)

var errStillIdle = stderrors.New("no command pending")

// Listener is the guest side of the protocol: it owns exactly one word,
// waits for commands on it, and acks each with Idle.
type Listener struct {
	w     word
	cfg   Config
	guest int
}

// NewListener attaches guest number guest (of guests total) to its word in
// the signal block at the front of buf.
func NewListener(buf []byte, guest, guests int, cfg Config) (*Listener, error) {
	ws, err := words(buf, guests)
	if err != nil {
		return nil, err
	}
	if guest < 0 || guest >= guests {
		return nil, errors.New(errors.PhaseSignal, errors.KindInvalidInput).
			Guest(guest).Detail("guest %d outside 0..%d", guest, guests-1).Build()
	}
	return &Listener{w: ws[guest], cfg: cfg.withDefaults(), guest: guest}, nil
}

// Guest returns this listener's index.
func (l *Listener) Guest() int { return l.guest }

// Wait polls until a command arrives and decodes it. Out-of-range words are
// protocol violations and must not be acked: the host's own wait will time
// out and surface the dead guest. Bounded like the host side; a silent host
// yields a timeout error.
func (l *Listener) Wait(ctx context.Context) (Signal, error) {
	var got uint32
	poll := func() error {
		if got = l.w.load(); got == uint32(Idle) {
			return errStillIdle
		}
		return nil
	}
	err := backoff.Retry(poll, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.cfg.Interval), l.cfg.Attempts), ctx))
	if err != nil {
		if stderrors.Is(err, errStillIdle) {
			return 0, errors.SignalTimeout(l.guest, l.cfg.Attempts, got)
		}
		return 0, err
	}
	return Decode(got)
}

// AckIdle marks the current command consumed. Exactly one ack per received
// command; Idle is the only value a guest ever stores.
func (l *Listener) AckIdle() {
	l.w.store(uint32(Idle))
}
