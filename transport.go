package codegrid

import "sync"

// tlsState is what the client currently knows about the server's transport:
// nothing yet, encrypted, or plaintext.
type tlsState int

const (
	tlsUnknown tlsState = iota
	tlsEnabled
	tlsDisabled
)

// transportNegotiator discovers whether a host speaks the encrypted variant
// of a base protocol and caches the answer. One instance is shared between
// the HTTP accessors (http/https) and the socket (ws/wss) so a probe on
// either side settles the question for both.
type transportNegotiator struct {
	mu    sync.Mutex
	state tlsState
}

// schemes returns the candidate schemes for base ("ws" or "http") in
// preference order. While the transport is unknown both variants are
// returned, secure first; callers must try them in order.
func (t *transportNegotiator) schemes(base string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case tlsEnabled:
		return []string{base + "s"}
	case tlsDisabled:
		return []string{base}
	default:
		return []string{base + "s", base}
	}
}

// observe records a successful attempt. Only successes settle the state; a
// failed secure attempt alone proves nothing until the insecure fallback
// succeeds.
func (t *transportNegotiator) observe(secure bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if secure {
		t.state = tlsEnabled
	} else {
		t.state = tlsDisabled
	}
}

// reset forgets the cached answer so the next attempt re-probes. Called
// when every candidate scheme failed.
func (t *transportNegotiator) reset() {
	t.mu.Lock()
	t.state = tlsUnknown
	t.mu.Unlock()
}

// secure reports whether the scheme is an encrypted variant.
func secureScheme(scheme string) bool {
	return scheme == "https" || scheme == "wss"
}
