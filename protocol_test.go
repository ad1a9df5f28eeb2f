package codegrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameWrappedDelivery(t *testing.T) {
	origin, ev, err := decodeFrame([]byte(`{"origin":"p1","event":{"name":"cg_new_player","data":{"username":"alice"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", origin)
	assert.Equal(t, EventNewPlayer, ev.Name)

	var data NewPlayerData
	require.NoError(t, ev.UnmarshalData(&data))
	assert.Equal(t, "alice", data.Username)
}

func TestDecodeFrameBareEnvelopeAttributedToServer(t *testing.T) {
	origin, ev, err := decodeFrame([]byte(`{"name":"cg_error","data":{"message":"game full"}}`))
	require.NoError(t, err)
	assert.Equal(t, OriginServer, origin)
	assert.Equal(t, EventError, ev.Name)
}

func TestDecodeFrameMalformed(t *testing.T) {
	_, _, err := decodeFrame([]byte(`not json`))
	assert.ErrorIs(t, err, ErrProtocol)

	_, _, err = decodeFrame([]byte(`{"data":{"x":1}}`))
	assert.ErrorIs(t, err, ErrProtocol, "envelope without a name")
}

func TestEventWithoutPayload(t *testing.T) {
	ev, err := newEvent(EventLeave, nil)
	require.NoError(t, err)
	assert.Nil(t, ev.Data)

	var ignored struct{}
	assert.NoError(t, ev.UnmarshalData(&ignored))
}
