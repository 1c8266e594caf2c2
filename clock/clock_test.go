package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMessageIDMonotoneAndAligned(t *testing.T) {
	c := New()

	const n = 100000
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = c.GenerateMessageID()
	}

	seen := make(map[int64]struct{}, n)
	for i, id := range ids {
		require.Equal(t, int64(0), id%4, "id %d not aligned mod 4", id)
		if i > 0 {
			assert.Greater(t, id, ids[i-1], "ids must be strictly increasing")
		}
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
}

func TestSetTimeOffsetShiftsCurrentTime(t *testing.T) {
	c := New()
	before := c.CurrentTime()
	c.SetTimeOffset(120)
	after := c.CurrentTime()
	assert.WithinDuration(t, before.Add(120*1000000000), after, 5*1000000000)
}

func TestAdjustTimeOffsetAccumulates(t *testing.T) {
	c := New()
	c.SetTimeOffset(10)
	c.AdjustTimeOffset(5)
	assert.Equal(t, 15.0, c.TimeOffset())
}
