package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/datacenter"
	"github.com/teranos/mtcore/request"
	"github.com/teranos/mtcore/wire"
)

func TestMaybeSendGenericPingOnlyFiresOnceWithinInterval(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := withAuthedDC(c, 2)
	conn := dc.GetConnectionByType(connection.Generic, true)

	c.MaybeSendGenericPing(dc)
	assert.Equal(t, 1, conn.Batcher().Count())

	c.MaybeSendGenericPing(dc)
	assert.Equal(t, 1, conn.Batcher().Count(), "a second call within the interval must not send another ping")
}

func TestMaybeSleepSkipsWhileDownloadRunning(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)

	r := request.New(wire.Unparsed{}, 2, connection.Download, 0)
	c.Registry.Enqueue(r)
	c.Registry.PromoteToRunning(r.Token)

	c.pingOnce.Do(func() { c.ping = newPingState() })
	c.ping.lastResumeAt = time.Now().Add(-time.Hour)
	c.ping.nextSleepTimeout = time.Minute

	c.MaybeSleep()

	assert.False(t, c.NetworkPaused())
}

func TestMaybeSleepPausesWhenIdle(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := withAuthedDC(c, 2)
	dc.GetConnectionByType(connection.Generic, true)
	dc.Salts().Add(datacenter.Salt{ValidSince: 0, ValidUntil: 0x7fffffff, Value: 1})

	c.pingOnce.Do(func() { c.ping = newPingState() })
	c.ping.lastResumeAt = time.Now().Add(-time.Hour)
	c.ping.nextSleepTimeout = time.Minute

	c.MaybeSleep()

	assert.True(t, c.NetworkPaused())
}

func TestSendProxyProbeTagsPingWithCorrelationID(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := withAuthedDC(c, 2)
	conn := dc.GetConnectionByType(connection.Proxy, true)

	probeID, ok := c.SendProxyProbe(dc)
	require.True(t, ok)
	assert.NotEqual(t, uuid.Nil, probeID)
	assert.Equal(t, 1, conn.Batcher().Count())
}

func TestSendProxyProbeWithoutConnectionFails(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := withAuthedDC(c, 2) // no Proxy connection created

	_, ok := c.SendProxyProbe(dc)
	assert.False(t, ok)
}

func TestResumeClearsPausedState(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)

	c.pingOnce.Do(func() { c.ping = newPingState() })
	c.ping.networkPaused = true

	c.Resume()

	require.False(t, c.NetworkPaused())
}
