package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mtcore/clock"
	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/request"
	"github.com/teranos/mtcore/wire"
)

// TestScenarioMigrationOn303 covers §8 scenario 1.
func TestScenarioMigrationOn303(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 2)
	withAuthedDC(c, 5)
	c.SetUserSet(true)

	conn := c.Datacenter(2).GetConnectionByType(connection.Generic, true)

	exp := &fakeExporter{exportBytes: []byte("auth-bytes")}
	c.SetAuthExporter(exp)
	c.SetCurrentUserID(99)

	var gotErr error
	r := request.New(wire.Unparsed{Payload: []byte("getState")}, 2, connection.Generic, 0)
	r.OnComplete = func(result wire.Object, err error) { gotErr = err }
	c.Registry.Enqueue(r)
	r.Dispatch(7000, 1, conn.Token())
	c.Registry.PromoteToRunning(r.Token)

	c.Dispatch(wire.RpcResult{ReqMsgID: 7000, Result: wire.RpcError{ErrorCode: 303, ErrorText: "USER_MIGRATE_5"}}, c.Datacenter(2), conn)
	assert.NoError(t, gotErr, "a 303 must not surface as a callback error")

	assert.Equal(t, int32(5), c.CurrentDatacenter().ID, "the coordinator migrates on its own, without the caller calling MigrateOnNetworkCode")
	assert.True(t, exp.imported, "import must follow export on the target dc")

	var resubErr error
	resubmitted := request.New(r.RawPayload, 5, connection.Generic, 0)
	resubmitted.OnComplete = func(result wire.Object, err error) { resubErr = err }
	c.SendRequest(resubmitted)
	c.ProcessRequestQueue()

	assert.Equal(t, request.StatusRunning, resubmitted.Status, "the resubmitted request runs on the new current dc")
	assert.NoError(t, resubErr)
}

// TestScenarioBadSaltRetriesAllWithoutPenalty covers §8 scenario 2.
func TestScenarioBadSaltRetriesAllWithoutPenalty(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := withAuthedDC(c, 2)
	conn := dc.GetConnectionByType(connection.Download, true)

	var reqs []*request.Request
	for i := 0; i < 3; i++ {
		r := request.New(wire.Unparsed{}, 2, connection.Download, 0)
		c.Registry.Enqueue(r)
		r.Dispatch(int64(9000+i*4), 1, conn.Token())
		r.FailedByFloodWait = 9 // stand-in prior penalty state the salt error must clear
		c.Registry.PromoteToRunning(r.Token)
		reqs = append(reqs, r)
	}

	c.Dispatch(wire.BadServerSalt{BadMsgID: 9000, ErrorCode: 48, NewSalt: 555}, dc, conn)

	salt, ok := dc.Salts().Current(int32(time.Now().Unix()))
	require.True(t, ok)
	assert.EqualValues(t, 555, salt.Value)

	for _, r := range reqs {
		assert.EqualValues(t, 0, r.FailedByFloodWait, "bad salt forces a no-penalty retry")
		assert.True(t, r.MinStartTime.IsZero())
		assert.Equal(t, 0, r.RetryCount, "retryCount must not be incremented by a salt-triggered retry")
	}
}

// TestScenarioFloodWaitReschedulesAfterDelay covers §8 scenario 3.
func TestScenarioFloodWaitReschedulesAfterDelay(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := withAuthedDC(c, 2)
	conn := dc.GetConnectionByType(connection.Generic, true)

	var completed bool
	r := request.New(wire.Unparsed{}, 2, connection.Generic, 0)
	r.OnComplete = func(result wire.Object, err error) { completed = true }
	c.SendRequest(r)
	c.ProcessRequestQueue()
	msgID1 := r.MessageID
	require.NotZero(t, msgID1)

	c.Dispatch(wire.RpcResult{ReqMsgID: msgID1, Result: wire.RpcError{ErrorCode: 420, ErrorText: "FLOOD_WAIT_7"}}, dc, conn)

	assert.False(t, completed, "no callback fires while flood-waited")
	assert.WithinDuration(t, time.Now().Add(7*time.Second), r.MinStartTime, time.Second)

	// simulate 7 s elapsing since the flood-wait was recorded
	r.LastResendAt = time.Now().Add(-8 * time.Second)

	batches := newDispatchBatches()
	c.phase1RunningReview(time.Now(), batches)

	assert.NotEqual(t, msgID1, r.MessageID, "the retry after the flood-wait window carries a fresh message id")
	assert.False(t, completed)
}

// TestScenarioCancelDuringInFlightEmitsDropAnswer covers §8 scenario 4.
func TestScenarioCancelDuringInFlightEmitsDropAnswer(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := withAuthedDC(c, 2)

	var completed bool
	r := request.New(wire.Unparsed{}, 2, connection.Generic, 0)
	r.OnComplete = func(result wire.Object, err error) { completed = true }
	c.SendRequest(r)
	c.ProcessRequestQueue()
	require.Equal(t, request.StatusRunning, r.Status)

	conn := dc.GetConnectionByType(connection.Generic, false)
	before := conn.Batcher().Count()

	c.CancelRequest(r.Token, true)

	_, tracked := c.Registry.Get(r.Token)
	assert.False(t, tracked, "a cancelled in-flight request leaves the registry")
	assert.Equal(t, before+1, conn.Batcher().Count(), "rpc_drop_answer must be batched on the same dc's generic connection")
	assert.False(t, completed, "completion callback never fires for a cancelled request")
}

// TestScenarioPingBasedTimeSyncAdjustsOffset covers §8 scenario 5.
func TestScenarioPingBasedTimeSyncAdjustsOffset(t *testing.T) {
	c := New(&fakeDelegate{})
	dc := withAuthedDC(c, 2)
	conn := dc.GetConnectionByType(connection.Generic, true)

	c.Clock.SetTimeOffset(120) // local clock runs 120s ahead of the server

	c.MaybeSendGenericPing(dc)
	pingID := c.ping.lastGenericPingID
	require.NotZero(t, pingID)

	serverMsgID := clock.New().GenerateMessageID() // an id reflecting true (unshifted) wall time, standing in for the server's own clock
	c.Dispatch(wire.Pong{MsgID: serverMsgID, PingID: pingID}, dc, conn)

	assert.InDelta(t, 0, c.Clock.TimeOffset(), 5, "offset must settle within ±5s of the server's clock")

	nextID := c.Clock.GenerateMessageID()
	assert.WithinDuration(t, time.Now(), clock.MessageIDTime(nextID), 5*time.Second)
}

// TestScenarioSessionResetIdempotency covers §8 scenario 6.
func TestScenarioSessionResetIdempotency(t *testing.T) {
	del := &fakeDelegate{}
	c := New(del)
	dc := withAuthedDC(c, 2)
	conn := dc.GetConnectionByType(connection.Generic, true)

	c.Dispatch(wire.NewSessionCreated{FirstMsgID: 100, UniqueID: 42, ServerSalt: 1}, dc, conn)
	assert.Equal(t, []int32{2}, del.sessionsCreated, "first occurrence notifies the delegate once")

	c.Dispatch(wire.NewSessionCreated{FirstMsgID: 100, UniqueID: 42, ServerSalt: 1}, dc, conn)
	assert.Equal(t, []int32{2}, del.sessionsCreated, "the repeated unique_id must not notify a second time")
}
