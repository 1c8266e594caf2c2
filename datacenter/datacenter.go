// Package datacenter models per-shard protocol state: addresses, auth
// keys, salt pool, session ids per connection class, and handshake
// orchestration (spec §3 Datacenter, §4.D). The Diffie-Hellman handshake
// itself is an external collaborator (§1); this package only supervises
// it — issuing a handshake, holding its result, and reacting to key-loss
// notifications the way an HTTP client holds and refreshes a session.
package datacenter

import (
	"sync"
	"time"

	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/logger"
)

// HandshakeState is the per-key-slot state machine of §4.D.
type HandshakeState int32

const (
	HandshakeNone HandshakeState = iota
	HandshakeInProgress
	HandshakeDone
)

// KeySlot identifies one of a datacenter's key slots: the permanent key,
// or one of up to two ephemeral keys distinguished by the media flag and
// bound/unbound status (§3 Datacenter).
type KeySlot struct {
	Media bool
	Bound bool
}

var PermanentKeySlot = KeySlot{}

// AuthKey is an opaque long-lived shared secret plus its 64-bit key id.
type AuthKey struct {
	Key   []byte
	KeyID int64
}

// Address is one bootstrap or learned endpoint for a datacenter.
type Address struct {
	Host  string
	Port  int
	IPv6  bool
	Media bool
}

// Datacenter is the per-shard state described by spec §3/§4.D.
type Datacenter struct {
	mu sync.Mutex

	ID        int32
	Addresses []Address
	IsCDN     bool

	permanentKey *AuthKey
	ephemeral    map[KeySlot]*AuthKey

	handshakeState map[KeySlot]HandshakeState
	handshakeSince map[KeySlot]time.Time

	salts *SaltPool

	connections map[connection.Class]*connection.Connection

	// lastInitVersion records the last app version initConnection was
	// sent for, per (media) tuple, so it's only sent once per version
	// (§3 "last-init version per media-flag").
	lastInitVersion map[bool]string

	authorizedForUser bool
}

// New constructs an empty Datacenter with no keys, salts, or connections.
func New(id int32, addrs []Address) *Datacenter {
	return &Datacenter{
		ID:              id,
		Addresses:       addrs,
		ephemeral:       make(map[KeySlot]*AuthKey),
		handshakeState:  make(map[KeySlot]HandshakeState),
		handshakeSince:  make(map[KeySlot]time.Time),
		salts:           NewSaltPool(),
		connections:     make(map[connection.Class]*connection.Connection),
		lastInitVersion: make(map[bool]string),
	}
}

// GetConnectionByType returns (creating if requested) the connection for
// class (§4.D getConnectionByType).
func (d *Datacenter) GetConnectionByType(class connection.Class, create bool) *connection.Connection {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.connections[class]; ok {
		return c
	}
	if !create {
		return nil
	}
	c := connection.New(d.ID, class)
	d.connections[class] = c
	return c
}

// HasAuthKey reports whether a usable key exists for class. The unbound
// ephemeral key is only usable when canUseUnbound is set (§4.D, §3
// Request flag UseUnboundKey).
func (d *Datacenter) HasAuthKey(class connection.Class, canUseUnbound bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.permanentKey != nil {
		return true
	}

	media := class == connection.GenericMedia || class == connection.Download || class == connection.Upload
	if bound := d.ephemeral[KeySlot{Media: media, Bound: true}]; bound != nil {
		return true
	}
	if canUseUnbound {
		if unbound := d.ephemeral[KeySlot{Media: media, Bound: false}]; unbound != nil {
			return true
		}
	}
	return false
}

// BeginHandshake records that a handshake for slot is now in progress,
// delegating the actual DH exchange to an external Handshaker
// (handshake.go). Returns false if one is already in progress for this
// slot (§3 "at most one in-flight handshake per key slot").
func (d *Datacenter) BeginHandshake(slot KeySlot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handshakeState[slot] == HandshakeInProgress {
		return false
	}
	d.handshakeState[slot] = HandshakeInProgress
	d.handshakeSince[slot] = time.Now()
	logger.HandshakeInfow("handshake started", "dc", d.ID, "media", slot.Media, "bound", slot.Bound)
	return true
}

// CompleteHandshake records a successful handshake result for slot.
func (d *Datacenter) CompleteHandshake(slot KeySlot, key AuthKey) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if slot == PermanentKeySlot {
		d.permanentKey = &key
	} else {
		d.ephemeral[slot] = &key
	}
	d.handshakeState[slot] = HandshakeDone
	logger.HandshakeInfow("handshake completed", "dc", d.ID, "media", slot.Media, "bound", slot.Bound, "key_id", key.KeyID)
}

// FailHandshake resets slot back to HandshakeNone so it can be retried.
func (d *Datacenter) FailHandshake(slot KeySlot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handshakeState[slot] = HandshakeNone
}

// HandshakeStateFor returns the current state for slot.
func (d *Datacenter) HandshakeStateFor(slot KeySlot) HandshakeState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handshakeState[slot]
}

// ClearEphemeralKey resets an ephemeral slot to None without touching the
// permanent key, per the Done->None transition on -404 (§4.D).
func (d *Datacenter) ClearEphemeralKey(slot KeySlot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.ephemeral, slot)
	d.handshakeState[slot] = HandshakeNone
}

// ResetOnBadMsgTimeSkew clears every ephemeral slot's handshake state,
// used for bad-msg-notification codes {16,17,19,32,33,64} (§4.D).
func (d *Datacenter) ResetOnBadMsgTimeSkew() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for slot := range d.handshakeState {
		if slot != PermanentKeySlot {
			d.handshakeState[slot] = HandshakeNone
			delete(d.ephemeral, slot)
		}
	}
}

// Salts exposes the datacenter's salt pool.
func (d *Datacenter) Salts() *SaltPool {
	return d.salts
}

// AuthorizedForUser reports whether this dc has imported the current
// user's authorization (§3 Datacenter "authorized-for-user flag").
func (d *Datacenter) AuthorizedForUser() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authorizedForUser
}

// SetAuthorizedForUser updates the authorized-for-user flag.
func (d *Datacenter) SetAuthorizedForUser(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authorizedForUser = v
}

// LastInitVersion returns the last app version initConnection was sent
// with for the given media flag, and whether it has ever been sent.
func (d *Datacenter) LastInitVersion(media bool) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.lastInitVersion[media]
	return v, ok
}

// SetLastInitVersion records that initConnection has been sent for
// (media, version) so it is not repeated until the version changes.
func (d *Datacenter) SetLastInitVersion(media bool, version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastInitVersion[media] = version
}

// RecreateSessions rotates session ids for every connection of this
// datacenter, as used on server-side session-drop notifications (§4.D
// recreateSessions).
func (d *Datacenter) RecreateSessions() {
	d.mu.Lock()
	conns := make([]*connection.Connection, 0, len(d.connections))
	for _, c := range d.connections {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		c.RecreateSession()
	}
}
