package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mtcore/connection"
)

func TestEnqueuePromoteRemove(t *testing.T) {
	reg := NewRegistry()
	r := New(nil, 2, connection.Generic, 0)

	reg.Enqueue(r)
	assert.Len(t, reg.Queued(), 1)
	assert.Len(t, reg.Running(), 0)

	reg.PromoteToRunning(r.Token)
	assert.Len(t, reg.Queued(), 0)
	assert.Len(t, reg.Running(), 1)

	reg.Remove(r.Token)
	_, ok := reg.Get(r.Token)
	assert.False(t, ok)
}

func TestGuidGroupingAndRemoval(t *testing.T) {
	reg := NewRegistry()
	r1 := New(nil, 2, connection.Generic, 0)
	r2 := New(nil, 2, connection.Generic, 0)

	reg.Enqueue(r1)
	reg.Enqueue(r2)
	reg.BindToGuid(r1.Token, 42)
	reg.BindToGuid(r2.Token, 42)

	tokens := reg.TokensForGuid(42)
	assert.ElementsMatch(t, []Token{r1.Token, r2.Token}, tokens)

	reg.Remove(r1.Token)
	tokens = reg.TokensForGuid(42)
	assert.Equal(t, []Token{r2.Token}, tokens)

	reg.Remove(r2.Token)
	assert.Empty(t, reg.TokensForGuid(42))
}

func TestQuickAckDeliveredOnce(t *testing.T) {
	reg := NewRegistry()
	r := New(nil, 2, connection.Generic, 0)
	fired := 0
	r.OnQuickAck = func() { fired++ }

	reg.Enqueue(r)
	reg.RegisterQuickAck(99, r.Token)

	reg.NotifyQuickAck(99)
	assert.Equal(t, 1, fired)

	reg.NotifyQuickAck(99)
	assert.Equal(t, 1, fired, "a quick-ack key is consumed on first delivery")
}

func TestRunningCountFiltersByClassAndDc(t *testing.T) {
	reg := NewRegistry()
	r1 := New(nil, 2, connection.Download, 0)
	r2 := New(nil, 4, connection.Download, 0)
	r3 := New(nil, 2, connection.Generic, 0)

	for _, r := range []*Request{r1, r2, r3} {
		reg.Enqueue(r)
		reg.PromoteToRunning(r.Token)
	}

	assert.Equal(t, 2, reg.RunningCount(0, connection.Download))
	assert.Equal(t, 1, reg.RunningCount(2, connection.Download))
	assert.Equal(t, 1, reg.RunningCount(0, connection.Generic))
}

func TestAdmissionCapForceDownload(t *testing.T) {
	require.Equal(t, MaxDownloadRunningPerDc, AdmissionCap(connection.Download, 0))
	require.Equal(t, MaxDownloadForced, AdmissionCap(connection.Download, ForceDownload))
	require.Equal(t, MaxUploadRunning, AdmissionCap(connection.Upload, 0))
	require.Equal(t, MaxGenericRunning, AdmissionCap(connection.Generic, 0))
}
