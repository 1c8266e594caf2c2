package wire

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/teranos/mtcore/errors"
)

// MinCompressionGain is the number of bytes a gzip attempt must save
// before the client substitutes the compressed body (§3 Request flags,
// `CanCompress`; §8 round-trip law "deflate that grows payload by < 5
// bytes must be rejected").
const MinCompressionGain = 5

// CanCompress gzips payload and returns it only if the result is at least
// MinCompressionGain bytes smaller; otherwise it returns the original
// payload unchanged and ok=false.
func CanCompress(payload []byte) (compressed []byte, ok bool) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return payload, false
	}
	if err := w.Close(); err != nil {
		return payload, false
	}

	if len(payload)-buf.Len() < MinCompressionGain {
		return payload, false
	}
	return buf.Bytes(), true
}

// Inflate reverses CanCompress. Per §7, inflate failure on a server
// response that must succeed is a fatal condition; callers at the
// protocol boundary should treat an error here as unrecoverable for that
// frame rather than silently dropping it.
func Inflate(packed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, errors.Wrap(err, "gzip: invalid packed stream")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "gzip: inflate failed")
	}
	return out, nil
}
