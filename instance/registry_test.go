package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/engine"
	"github.com/teranos/mtcore/wire"
)

type noopDelegate struct{}

func (noopDelegate) OnUpdate(obj wire.Object)                                          {}
func (noopDelegate) OnSessionCreated(dc int32)                                         {}
func (noopDelegate) OnConnectionStateChanged(dc int32, class connection.Class, s int32) {}
func (noopDelegate) OnUnparsedMessageReceived(obj wire.Object)                         {}
func (noopDelegate) OnLogout()                                                         {}
func (noopDelegate) OnProxyError(err error)                                            {}
func (noopDelegate) OnInternalPushReceived(obj wire.Object)                            {}

func TestGetLazilyCreatesOnePerInstanceNum(t *testing.T) {
	var built []int32
	reg := New(func(n int32) *engine.Coordinator {
		built = append(built, n)
		return engine.New(noopDelegate{})
	})

	a := reg.Get(7)
	b := reg.Get(7)
	c := reg.Get(8)

	assert.Same(t, a, b, "repeated Get for the same instanceNum must not rebuild")
	assert.NotSame(t, a, c)
	assert.Equal(t, []int32{7, 8}, built)
}

func TestRemoveDropsInstance(t *testing.T) {
	reg := New(func(n int32) *engine.Coordinator { return engine.New(noopDelegate{}) })

	reg.Get(1)
	require.Equal(t, 1, reg.Len())

	reg.Remove(1)
	assert.Equal(t, 0, reg.Len())
}

func TestInstancesListsEveryKnownNum(t *testing.T) {
	reg := New(func(n int32) *engine.Coordinator { return engine.New(noopDelegate{}) })

	reg.Get(3)
	reg.Get(5)

	assert.ElementsMatch(t, []int32{3, 5}, reg.Instances())
}
