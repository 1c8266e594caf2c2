package datacenter

import (
	"context"
	"time"

	"github.com/teranos/mtcore/errors"
	"github.com/teranos/mtcore/logger"
)

// Handshaker performs the actual Diffie-Hellman key exchange against one
// datacenter address. It is an external collaborator (§1: "the DH
// handshake itself") — this package only supervises the result, the way
// qntx-atproto/session.go's createSession holds an *xrpc.Client and
// refreshSession renews it on expiry, generalized from an HTTP/JWT
// session to an in-process auth key.
type Handshaker interface {
	Handshake(ctx context.Context, addr Address, slot KeySlot) (AuthKey, error)
}

// HandshakeSupervisor drives BeginHandshake/CompleteHandshake/FailHandshake
// against a Datacenter using a Handshaker, retrying with backoff the same
// way a session-refresh loop retries a failed token renewal.
type HandshakeSupervisor struct {
	dc         *Datacenter
	handshaker Handshaker

	retryBackoff time.Duration
	maxBackoff   time.Duration
}

// NewHandshakeSupervisor returns a supervisor for dc using handshaker.
func NewHandshakeSupervisor(dc *Datacenter, handshaker Handshaker) *HandshakeSupervisor {
	return &HandshakeSupervisor{
		dc:           dc,
		handshaker:   handshaker,
		retryBackoff: time.Second,
		maxBackoff:   30 * time.Second,
	}
}

// Ensure obtains a usable key for slot, performing a handshake if one is
// not already Done and not already in progress. It mirrors
// createSession's "issue once, hold the result" shape: if a handshake for
// this slot is already running elsewhere, Ensure returns immediately
// without starting a second one (§3 "at most one in-flight handshake per
// key slot").
func (h *HandshakeSupervisor) Ensure(ctx context.Context, addr Address, slot KeySlot) error {
	if h.dc.HandshakeStateFor(slot) == HandshakeDone {
		return nil
	}
	if !h.dc.BeginHandshake(slot) {
		return nil
	}

	key, err := h.handshaker.Handshake(ctx, addr, slot)
	if err != nil {
		h.dc.FailHandshake(slot)
		logger.HandshakeInfow("handshake failed", "dc", h.dc.ID, "media", slot.Media, "err", err)
		return errors.Wrapf(err, "datacenter %d: handshake failed", h.dc.ID)
	}

	h.dc.CompleteHandshake(slot, key)
	return nil
}

// Refresh forces a new handshake for slot even if one previously
// succeeded, analogous to refreshSession re-issuing a token before it
// expires — used when a key is invalidated by a -404 or bad-msg time-skew
// notification (§4.D).
func (h *HandshakeSupervisor) Refresh(ctx context.Context, addr Address, slot KeySlot) error {
	h.dc.ClearEphemeralKey(slot)
	return h.Ensure(ctx, addr, slot)
}

// RetryLoop runs Ensure until it succeeds or ctx is done, backing off
// between attempts. It is meant to be launched as its own goroutine by
// the coordinator when a request needs a key that is not yet available.
func (h *HandshakeSupervisor) RetryLoop(ctx context.Context, addr Address, slot KeySlot) error {
	backoff := h.retryBackoff
	for {
		err := h.Ensure(ctx, addr, slot)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > h.maxBackoff {
			backoff = h.maxBackoff
		}
	}
}
