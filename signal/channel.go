package signal

import (
	"context"
	stderrors "errors"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// errNotIdle keeps the poll loop retrying; it never escapes this package.
var errNotIdle = stderrors.New("signal word not idle")

// Channel is the host side of the protocol: one word per guest, commands
// out, idle acks back. A Channel is safe for concurrent use as long as no
// two callers target the same guest at once.
type Channel struct {
	words []word
	cfg   Config
}

// NewChannel lays the channel over the first BlockSize(guests) bytes of a
// shared read-write mapping.
func NewChannel(buf []byte, guests int, cfg Config) (*Channel, error) {
	ws, err := words(buf, guests)
	if err != nil {
		return nil, err
	}
	return &Channel{words: ws, cfg: cfg.withDefaults()}, nil
}

// Guests returns the number of guest words.
func (c *Channel) Guests() int { return len(c.words) }

func (c *Channel) word(guest int) (word, error) {
	if guest < 0 || guest >= len(c.words) {
		return word{}, errors.New(errors.PhaseSignal, errors.KindInvalidInput).
			Guest(guest).Detail("guest %d outside 0..%d", guest, len(c.words)-1).Build()
	}
	return c.words[guest], nil
}

// Peek decodes a guest's current word without touching it.
func (c *Channel) Peek(guest int) (Signal, error) {
	w, err := c.word(guest)
	if err != nil {
		return 0, err
	}
	return Decode(w.load())
}

// Send stores a command into a guest's word. The word must currently read
// Idle: overwriting an unconsumed command would corrupt the protocol, so
// that is refused, not retried.
func (c *Channel) Send(guest int, sig Signal) error {
	w, err := c.word(guest)
	if err != nil {
		return err
	}
	if sig == Idle || sig > Exit {
		return errors.Protocol(errors.PhaseSignal, "host may not send %v", sig)
	}
	if cur := w.load(); cur != uint32(Idle) {
		return errors.Protocol(errors.PhaseSignal,
			"guest %d still holds %d, command %v refused", guest, cur, sig)
	}
	w.store(uint32(sig))
	Logger().Debug("sent signal", zap.Int("guest", guest), zap.Stringer("signal", sig))
	return nil
}

// Wait polls until the guest's word reads Idle again. Polling is bounded by
// the channel config; exhaustion is a timeout error carrying the last value
// seen. Context cancellation aborts early.
func (c *Channel) Wait(ctx context.Context, guest int) error {
	w, err := c.word(guest)
	if err != nil {
		return err
	}

	var last uint32
	poll := func() error {
		if last = w.load(); last != uint32(Idle) {
			return errNotIdle
		}
		return nil
	}
	err = backoff.Retry(poll, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.Interval), c.cfg.Attempts), ctx))
	if err == nil {
		return nil
	}
	if stderrors.Is(err, errNotIdle) {
		return errors.SignalTimeout(guest, c.cfg.Attempts, last)
	}
	return err
}

// Roundtrip sends one command and waits for the ack.
func (c *Channel) Roundtrip(ctx context.Context, guest int, sig Signal) error {
	if err := c.Send(guest, sig); err != nil {
		return err
	}
	return c.Wait(ctx, guest)
}

// Broadcast sends the command to every guest. All words are attempted;
// failures are aggregated so one busy guest cannot shadow the rest.
func (c *Channel) Broadcast(sig Signal) error {
	var errs error
	for guest := range c.words {
		if err := c.Send(guest, sig); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// WaitAll waits for every guest to ack. All words are polled even after a
// failure, so slow guests still get their full window.
func (c *Channel) WaitAll(ctx context.Context) error {
	var errs error
	for guest := range c.words {
		if err := c.Wait(ctx, guest); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// BroadcastWait broadcasts one command and jointly waits for all acks.
func (c *Channel) BroadcastWait(ctx context.Context, sig Signal) error {
	if err := c.Broadcast(sig); err != nil {
		return err
	}
	return c.WaitAll(ctx)
}
