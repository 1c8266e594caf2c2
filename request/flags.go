package request

// Flags is the bit set attached to a Request at submission time (§3
// "Request flags").
type Flags uint32

const (
	// WithoutLogin is allowed before a user id is set.
	WithoutLogin Flags = 1 << iota
	// EnableUnauthorized accepts responses on an unauthorized datacenter.
	EnableUnauthorized
	// FailOnServerErrors disables retry on 5xx/transport faults; the
	// error surfaces to the caller instead.
	FailOnServerErrors
	// Immediate triggers a scheduler pass at submission time rather than
	// waiting for the next tick.
	Immediate
	// InvokeAfter serializes this request with other InvokeAfter
	// requests on the same connection.
	InvokeAfter
	// NeedQuickAck requests an early abbreviated server acknowledgement.
	NeedQuickAck
	// CanCompress attempts gzip of the wrapped body before sending.
	CanCompress
	// UseUnboundKey permits an ephemeral key not yet bound to the
	// permanent key.
	UseUnboundKey
	// TryDifferentDc moves the request to a random non-CDN datacenter if
	// no response arrives within the timeout (§3).
	TryDifferentDc
	// ForceDownload raises the download retry ceiling from 6 to 10.
	ForceDownload
)

// Has reports whether all bits in want are set in f.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}
