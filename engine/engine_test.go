package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/datacenter"
	"github.com/teranos/mtcore/request"
	"github.com/teranos/mtcore/wire"
)

type fakeDelegate struct {
	sessionsCreated []int32
	loggedOut       bool
	unparsed        []wire.Object
}

func (f *fakeDelegate) OnUpdate(obj wire.Object)                                           {}
func (f *fakeDelegate) OnSessionCreated(dc int32)                                          { f.sessionsCreated = append(f.sessionsCreated, dc) }
func (f *fakeDelegate) OnConnectionStateChanged(dc int32, class connection.Class, s int32) {}
func (f *fakeDelegate) OnUnparsedMessageReceived(obj wire.Object)                          { f.unparsed = append(f.unparsed, obj) }
func (f *fakeDelegate) OnLogout()                                                          { f.loggedOut = true }
func (f *fakeDelegate) OnProxyError(err error)                                             {}
func (f *fakeDelegate) OnInternalPushReceived(obj wire.Object)                             {}

func withAuthedDC(c *Coordinator, id int32) *datacenter.Datacenter {
	dc := datacenter.New(id, nil)
	dc.CompleteHandshake(datacenter.PermanentKeySlot, datacenter.AuthKey{Key: make([]byte, 256), KeyID: 1})
	c.AddDatacenter(dc)
	return dc
}

func TestQueuedAdmissionPromotesUpToCap(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)

	for i := 0; i < 3; i++ {
		r := request.New(wire.Unparsed{}, 2, connection.Generic, 0)
		c.SendRequest(r)
	}

	c.ProcessRequestQueue()

	assert.Len(t, c.Registry.Running(), 3)
	assert.Len(t, c.Registry.Queued(), 0)
}

func TestQueuedAdmissionRespectsDownloadCap(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)

	var tokens []request.Token
	for i := 0; i < request.MaxDownloadRunningPerDc+2; i++ {
		r := request.New(wire.Unparsed{}, 2, connection.Download, 0)
		tokens = append(tokens, c.SendRequest(r))
	}

	c.ProcessRequestQueue()

	assert.Equal(t, request.MaxDownloadRunningPerDc, c.Registry.RunningCount(2, connection.Download))
	assert.Len(t, c.Registry.Queued(), 2)
}

func TestRunningReviewDemotesTryDifferentDcPastTimeout(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)

	r := request.New(wire.Unparsed{}, 2, connection.Generic, request.TryDifferentDc)
	r.Status = request.StatusRunning
	r.StartedAt = time.Now().Add(-time.Hour)
	c.Registry.Enqueue(r)
	c.Registry.PromoteToRunning(r.Token)

	batches := newDispatchBatches()
	c.phase1RunningReview(time.Now(), batches)

	running := c.Registry.Running()
	assert.Len(t, running, 0)
	queued := c.Registry.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, request.StatusQueued, queued[0].Status)
}

func TestRunningReviewSkipsRequestsWithoutAuthKey(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := datacenter.New(2, nil) // no auth key completed
	c.AddDatacenter(dc)

	r := request.New(wire.Unparsed{}, 2, connection.Generic, 0)
	r.Status = request.StatusRunning
	r.StartedAt = time.Now().Add(-time.Hour)
	c.Registry.Enqueue(r)
	c.Registry.PromoteToRunning(r.Token)

	batches := newDispatchBatches()
	c.phase1RunningReview(time.Now(), batches)

	assert.Len(t, c.Registry.Running(), 1, "a request on a keyless dc stays running, pending a handshake")
}

func TestDownloadRetryLimitFailsRequest(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)

	var gotErr error
	r := request.New(wire.Unparsed{}, 2, connection.Download, 0)
	r.Status = request.StatusRunning
	r.StartedAt = time.Now().Add(-time.Hour)
	r.RetryCount = request.MaxDownloadRunningPerDc + 1
	r.OnComplete = func(result wire.Object, err error) { gotErr = err }
	c.Registry.Enqueue(r)
	c.Registry.PromoteToRunning(r.Token)

	batches := newDispatchBatches()
	c.phase1RunningReview(time.Now(), batches)

	require.Error(t, gotErr)
	_, ok := c.Registry.Get(r.Token)
	assert.False(t, ok)
}

func TestUploadRetryLimitFailsRequest(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)

	var gotErr error
	r := request.New(wire.Unparsed{}, 2, connection.Upload, 0)
	r.Status = request.StatusRunning
	r.StartedAt = time.Now().Add(-time.Hour)
	r.RetryCount = request.MaxDownloadRunningPerDc + 1
	r.OnComplete = func(result wire.Object, err error) { gotErr = err }
	c.Registry.Enqueue(r)
	c.Registry.PromoteToRunning(r.Token)

	batches := newDispatchBatches()
	c.phase1RunningReview(time.Now(), batches)

	require.Error(t, gotErr, "uploads hit the same retry ceiling as downloads")
	_, ok := c.Registry.Get(r.Token)
	assert.False(t, ok)
}

// TestUnknownDatacenterQueuesConfigFetchSentinelExactlyOnce covers §4.G
// Phase 1/5: a running request targeting a datacenter id the coordinator
// hasn't registered gets recorded, and a subsequent scheduler pass queues
// a single config-fetch sentinel for it — not one per offending request,
// and not a duplicate on the next pass.
func TestUnknownDatacenterQueuesConfigFetchSentinelExactlyOnce(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 1)

	r := request.New(wire.Unparsed{}, 99, connection.Generic, 0)
	r.Status = request.StatusRunning
	c.Registry.Enqueue(r)
	c.Registry.PromoteToRunning(r.Token)

	countSentinels := func() int {
		n := 0
		for _, qr := range append(c.Registry.Queued(), c.Registry.Running()...) {
			if qr.Kind == request.KindHelpGetConfig {
				n++
			}
		}
		return n
	}

	c.ProcessRequestQueue()
	require.Equal(t, 1, countSentinels(), "exactly one config-fetch sentinel is queued for the unresolvable dc")

	c.ProcessRequestQueue()
	assert.Equal(t, 1, countSentinels(), "a second scheduler pass must not queue a duplicate sentinel")
}

func TestSessionDestroyPiggybackRespectsMinGap(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := withAuthedDC(c, 2)
	dc.GetConnectionByType(connection.Generic, true)

	c.QueueSessionDestroy(555)

	batches := newDispatchBatches()
	c.phase2SessionDestroyPiggyback(time.Now(), batches)
	assert.Len(t, batches.generic[2], 1)

	c.QueueSessionDestroy(556)
	batches2 := newDispatchBatches()
	c.phase2SessionDestroyPiggyback(time.Now(), batches2)
	assert.Len(t, batches2.generic[2], 0, "second destroy within the min gap is deferred")
}

func TestQueuedAdmissionRespectsPacingLimit(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)
	c.SetAdmissionRate(0, 2) // burst of 2, no refill

	for i := 0; i < 5; i++ {
		r := request.New(wire.Unparsed{}, 2, connection.Generic, 0)
		c.SendRequest(r)
	}

	c.ProcessRequestQueue()

	assert.Len(t, c.Registry.Running(), 2, "only the pacing burst may promote this pass")
	assert.Len(t, c.Registry.Queued(), 3)
}

func TestCancelRequestRemovesFromRegistry(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)

	r := request.New(wire.Unparsed{}, 2, connection.Generic, 0)
	c.SendRequest(r)

	c.CancelRequest(r.Token, false)

	_, ok := c.Registry.Get(r.Token)
	assert.False(t, ok)
	assert.Equal(t, request.StatusCancelled, r.Status)
}
