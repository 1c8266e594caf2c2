// Package transport defines the Pipe contract a raw-socket and
// transport-obfuscation layer must satisfy (spec §1: "the raw-socket +
// transport-obfuscation layer" is an external collaborator) and ships one
// concrete default implementation over WebSocket for hosts that don't
// bring their own.
package transport

import "context"

// Pipe is a framed, ordered, bidirectional byte-message channel to one
// datacenter endpoint. Implementations may add obfuscation (MTProto
// proxy secrets, padding, TLS-in-TLS) below this interface; the
// connection package only depends on the methods below.
type Pipe interface {
	// Dial establishes the underlying transport to addr. It must not
	// block past ctx's deadline.
	Dial(ctx context.Context, addr string) error

	// Send writes one framed message. Implementations are responsible
	// for their own write deadline.
	Send(frame []byte) error

	// Recv blocks until one framed message arrives, ctx is cancelled, or
	// the pipe errs out.
	Recv(ctx context.Context) ([]byte, error)

	// Close releases the underlying transport. Idempotent.
	Close() error
}

// State mirrors the observable connection states from spec §6.
type State int32

const (
	WaitingForNetwork State = iota
	Connecting
	ConnectingViaProxy
	Connected
)

func (s State) String() string {
	switch s {
	case WaitingForNetwork:
		return "waiting_for_network"
	case Connecting:
		return "connecting"
	case ConnectingViaProxy:
		return "connecting_via_proxy"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}
