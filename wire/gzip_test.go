package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanCompressRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("mtcore payload segment ", 64))

	compressed, ok := CanCompress(payload)
	require.True(t, ok, "highly repetitive payload should compress")
	assert.Less(t, len(compressed), len(payload))

	out, err := Inflate(compressed)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(out, payload))
}

func TestCanCompressRejectsSmallGain(t *testing.T) {
	// Small random-ish payload: gzip overhead means it won't shrink by
	// MinCompressionGain bytes.
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	_, ok := CanCompress(payload)
	assert.False(t, ok)
}
