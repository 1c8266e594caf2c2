package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/mtcore/errors"
)

// WebSocket pump timing constants, matching the shape of
// server/client.go's readPump/writePump (write deadline, pong wait, ping
// period) generalized from a browser-facing graph server to an outbound
// datacenter pipe.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// maxMessageSize bounds a single incoming frame; datacenter payloads
	// are batched to ~3 KiB (connection.MaxBatchBytes) but a single large
	// download/upload chunk can be much bigger.
	maxMessageSize = 2 * 1024 * 1024
)

// WSPipe is the default Pipe implementation over gorilla/websocket. It is
// not obfuscated — hosts that need MTProto-proxy secrets or padded
// transports provide their own Pipe.
type WSPipe struct {
	mu   sync.Mutex
	conn *websocket.Conn

	recvCh chan []byte
	errCh  chan error
	done   chan struct{}
}

// NewWSPipe returns an unconnected WSPipe; call Dial before use.
func NewWSPipe() *WSPipe {
	return &WSPipe{
		recvCh: make(chan []byte, 64),
		errCh:  make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Dial opens the WebSocket connection and starts the read pump.
func (p *WSPipe) Dial(ctx context.Context, addr string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return errors.Wrapf(err, "wspipe: dial %s", addr)
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	go p.readPump()
	go p.writePingLoop()

	return nil
}

// readPump mirrors server/client.go's readPump: sets the read limit and
// pong-driven deadline, and forwards each frame to recvCh.
func (p *WSPipe) readPump() {
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			select {
			case p.errCh <- errors.Wrap(err, "wspipe: read failed"):
			default:
			}
			close(p.done)
			return
		}
		select {
		case p.recvCh <- data:
		case <-p.done:
			return
		}
	}
}

// writePingLoop mirrors server/client.go's writePump ping ticker,
// keeping the connection alive independent of outbound traffic.
func (p *WSPipe) writePingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			conn := p.conn
			p.mu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

// Send writes one frame as a binary WebSocket message.
func (p *WSPipe) Send(frame []byte) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return errors.New("wspipe: not connected")
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errors.Wrap(err, "wspipe: write failed")
	}
	return nil
}

// Recv blocks for the next frame, respecting ctx cancellation.
func (p *WSPipe) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.recvCh:
		return data, nil
	case err := <-p.errCh:
		return nil, err
	case <-p.done:
		return nil, errors.New("wspipe: closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the underlying WebSocket connection. Safe to call more
// than once.
func (p *WSPipe) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return conn.Close()
}
