package datacenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaltPoolOrdersByValidSince(t *testing.T) {
	p := NewSaltPool()
	p.Add(Salt{ValidSince: 200, ValidUntil: 300, Value: 2})
	p.Add(Salt{ValidSince: 100, ValidUntil: 200, Value: 1})
	p.Add(Salt{ValidSince: 300, ValidUntil: 400, Value: 3})

	assert.Equal(t, 3, p.Len())

	s, ok := p.Current(150)
	assert.True(t, ok)
	assert.Equal(t, int64(1), s.Value)

	s, ok = p.Current(250)
	assert.True(t, ok)
	assert.Equal(t, int64(2), s.Value)
}

func TestSaltPoolRejectsExactDuplicates(t *testing.T) {
	p := NewSaltPool()
	p.Add(Salt{ValidSince: 100, ValidUntil: 200, Value: 1})
	p.Add(Salt{ValidSince: 100, ValidUntil: 200, Value: 1})
	assert.Equal(t, 1, p.Len())
}

func TestSaltPoolMergeDedups(t *testing.T) {
	p := NewSaltPool()
	p.Merge([]Salt{
		{ValidSince: 100, ValidUntil: 200, Value: 1},
		{ValidSince: 200, ValidUntil: 300, Value: 2},
	})
	p.Merge([]Salt{
		{ValidSince: 100, ValidUntil: 200, Value: 1},
		{ValidSince: 300, ValidUntil: 400, Value: 3},
	})
	assert.Equal(t, 3, p.Len())
}

func TestSaltPoolPruneExpired(t *testing.T) {
	p := NewSaltPool()
	p.Add(Salt{ValidSince: 100, ValidUntil: 200, Value: 1})
	p.Add(Salt{ValidSince: 200, ValidUntil: 300, Value: 2})

	p.PruneExpired(250)
	assert.Equal(t, 1, p.Len())

	_, ok := p.Current(150)
	assert.False(t, ok)
}

func TestSaltPoolClear(t *testing.T) {
	p := NewSaltPool()
	p.Add(Salt{ValidSince: 100, ValidUntil: 200, Value: 1})
	p.Clear()
	assert.Equal(t, 0, p.Len())
}
