package datacenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mtcore/connection"
)

func TestHasAuthKeyFalseUntilHandshakeCompletes(t *testing.T) {
	dc := New(2, []Address{{Host: "149.154.167.50", Port: 443}})
	assert.False(t, dc.HasAuthKey(connection.Generic, false))

	ok := dc.BeginHandshake(PermanentKeySlot)
	require.True(t, ok)

	dc.CompleteHandshake(PermanentKeySlot, AuthKey{Key: []byte("k"), KeyID: 42})
	assert.True(t, dc.HasAuthKey(connection.Generic, false))
}

func TestBeginHandshakeRejectsConcurrentAttempt(t *testing.T) {
	dc := New(2, nil)
	slot := KeySlot{Media: true, Bound: false}

	assert.True(t, dc.BeginHandshake(slot))
	assert.False(t, dc.BeginHandshake(slot), "a second handshake for the same slot must not start")
}

func TestResetOnBadMsgTimeSkewClearsEphemeralNotPermanent(t *testing.T) {
	dc := New(2, nil)
	dc.BeginHandshake(PermanentKeySlot)
	dc.CompleteHandshake(PermanentKeySlot, AuthKey{Key: []byte("perm"), KeyID: 1})

	ephemeral := KeySlot{Media: false, Bound: true}
	dc.BeginHandshake(ephemeral)
	dc.CompleteHandshake(ephemeral, AuthKey{Key: []byte("eph"), KeyID: 2})

	dc.ResetOnBadMsgTimeSkew()

	assert.Equal(t, HandshakeDone, dc.HandshakeStateFor(PermanentKeySlot))
	assert.Equal(t, HandshakeNone, dc.HandshakeStateFor(ephemeral))
	assert.True(t, dc.HasAuthKey(connection.Generic, false), "permanent key survives a time-skew reset")
}

func TestNeedsInitConnectionOncePerVersion(t *testing.T) {
	dc := New(2, nil)
	params := InitConnectionParams{AppVersion: "1.2.3"}

	need, err := dc.NeedsInitConnection(false, params)
	require.NoError(t, err)
	assert.True(t, need)

	dc.MarkInitConnectionSent(false, params)

	need, err = dc.NeedsInitConnection(false, params)
	require.NoError(t, err)
	assert.False(t, need)

	need, err = dc.NeedsInitConnection(false, InitConnectionParams{AppVersion: "1.2.4"})
	require.NoError(t, err)
	assert.True(t, need, "a version bump must trigger a fresh initConnection")
}

func TestGetConnectionByTypeCreatesOnce(t *testing.T) {
	dc := New(2, nil)
	assert.Nil(t, dc.GetConnectionByType(connection.Download, false))

	c1 := dc.GetConnectionByType(connection.Download, true)
	require.NotNil(t, c1)

	c2 := dc.GetConnectionByType(connection.Download, true)
	assert.Same(t, c1, c2)
}
