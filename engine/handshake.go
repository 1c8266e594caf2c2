package engine

import (
	"context"

	"github.com/teranos/mtcore/datacenter"
	"github.com/teranos/mtcore/logger"
)

// SetHandshaker installs the collaborator that performs the actual DH
// exchange. Like AuthExporter in migration.go, the exchange itself lives
// outside this package (§1); the coordinator only needs to know when to
// ask for one.
func (c *Coordinator) SetHandshaker(h datacenter.Handshaker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshaker = h
}

// ensureHandshake starts a permanent-key handshake for dc in the
// background if one isn't already done or in progress.
// HandshakeSupervisor.Ensure is itself the idempotency guard, so calling
// this from every scheduler pass that finds dc keyless is cheap (§3 "at
// most one in-flight handshake per key slot").
func (c *Coordinator) ensureHandshake(dc *datacenter.Datacenter) {
	c.mu.Lock()
	handshaker := c.handshaker
	c.mu.Unlock()
	if handshaker == nil || len(dc.Addresses) == 0 {
		return
	}
	if dc.HandshakeStateFor(datacenter.PermanentKeySlot) != datacenter.HandshakeNone {
		return
	}

	addr := dc.Addresses[0]
	sup := datacenter.NewHandshakeSupervisor(dc, handshaker)
	c.submit(func() {
		if err := sup.Ensure(context.Background(), addr, datacenter.PermanentKeySlot); err != nil {
			logger.HandshakeInfow("handshake ensure failed", "dc", dc.ID, "err", err)
		}
	})
}
