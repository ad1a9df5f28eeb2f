package codegrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemesUnknownTriesSecureFirst(t *testing.T) {
	tn := &transportNegotiator{}
	assert.Equal(t, []string{"wss", "ws"}, tn.schemes("ws"))
	assert.Equal(t, []string{"https", "http"}, tn.schemes("http"))
}

func TestSchemesAfterInsecureSuccess(t *testing.T) {
	tn := &transportNegotiator{}

	// Secure attempt failed, insecure succeeded.
	tn.observe(false)
	assert.Equal(t, []string{"ws"}, tn.schemes("ws"))
	assert.Equal(t, []string{"http"}, tn.schemes("http"))
}

func TestSchemesAfterSecureSuccess(t *testing.T) {
	tn := &transportNegotiator{}
	tn.observe(true)
	assert.Equal(t, []string{"wss"}, tn.schemes("ws"))
}

func TestResetReturnsToProbing(t *testing.T) {
	tn := &transportNegotiator{}
	tn.observe(true)
	tn.reset()
	assert.Equal(t, []string{"wss", "ws"}, tn.schemes("ws"))
}
