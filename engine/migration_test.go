package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/request"
	"github.com/teranos/mtcore/wire"
)

type fakeExporter struct {
	exportBytes []byte
	exportErr   error
	importErr   error
	imported    bool
}

func (f *fakeExporter) ExportAuthorization(dcID int32) ([]byte, error) {
	return f.exportBytes, f.exportErr
}

func (f *fakeExporter) ImportAuthorization(dcID int32, userID int64, bytes []byte) error {
	f.imported = true
	return f.importErr
}

func TestMoveToDatacenterWithoutUserCompletesImmediately(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 1)
	withAuthedDC(c, 2)

	c.MoveToDatacenter(2, &fakeExporter{}, 0)

	assert.Equal(t, int32(2), c.CurrentDatacenter().ID)
}

func TestMoveToDatacenterExportsAndImportsWhenUserSet(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 1)
	withAuthedDC(c, 2)
	c.SetUserSet(true)

	exp := &fakeExporter{exportBytes: []byte("auth-bytes")}
	c.MoveToDatacenter(2, exp, 42)

	assert.True(t, exp.imported)
	assert.Equal(t, int32(2), c.CurrentDatacenter().ID)
}

func TestMoveToDatacenterStaysPutOnExportFailure(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 1)
	withAuthedDC(c, 2)
	c.SetUserSet(true)

	exp := &fakeExporter{exportErr: errors.New("network down")}
	c.MoveToDatacenter(2, exp, 42)

	assert.False(t, exp.imported)
	assert.Equal(t, int32(1), c.CurrentDatacenter().ID, "a failed export leaves the current dc unchanged")
}

func TestClearPendingRequestsOnCancelsMatchingRequests(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 1)
	withAuthedDC(c, 2)

	r1 := request.New(wire.Unparsed{}, 1, connection.Generic, 0)
	r2 := request.New(wire.Unparsed{}, 2, connection.Generic, 0)
	c.Registry.Enqueue(r1)
	c.Registry.Enqueue(r2)

	c.clearPendingRequestsOn(1)

	_, ok1 := c.Registry.Get(r1.Token)
	_, ok2 := c.Registry.Get(r2.Token)
	require.False(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, request.StatusCancelled, r1.Status)
}

// TestClearPendingRequestsOnResolvesPlaceholderDatacenter verifies that a
// placeholder (dc 0, "current") request is only swept when the cleared
// datacenter is actually the current one — clearing a non-current
// datacenter (e.g. in response to a bad-msg notification from a download
// dc) must leave requests targeting the current dc alone.
func TestClearPendingRequestsOnResolvesPlaceholderDatacenter(t *testing.T) {
	c := New(&fakeDelegate{})
	withAuthedDC(c, 1) // becomes current
	withAuthedDC(c, 2)

	placeholder := request.New(wire.Unparsed{}, 0, connection.Generic, 0)
	onDC2 := request.New(wire.Unparsed{}, 2, connection.Generic, 0)
	c.Registry.Enqueue(placeholder)
	c.Registry.Enqueue(onDC2)

	c.clearPendingRequestsOn(2)

	_, stillTracked := c.Registry.Get(placeholder.Token)
	_, dc2Tracked := c.Registry.Get(onDC2.Token)
	assert.True(t, stillTracked, "a placeholder request targets the current dc, not the one being cleared")
	assert.False(t, dc2Tracked)

	c.clearPendingRequestsOn(1)

	_, stillTracked = c.Registry.Get(placeholder.Token)
	assert.False(t, stillTracked, "clearing the actual current dc sweeps placeholder requests too")
}
