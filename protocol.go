package codegrid

import (
	"encoding/json"
	"fmt"
)

// EventName identifies an event exchanged with the server or synthesized
// locally. Game-specific events share the same namespace; the cg_ prefix is
// reserved for the protocol.
type EventName string

// Protocol events. The exact strings are stable across the protocol.
const (
	EventJoin      EventName = "cg_join"
	EventJoined    EventName = "cg_joined"
	EventNewPlayer EventName = "cg_new_player"
	EventLeave     EventName = "cg_leave"
	EventLeft      EventName = "cg_left"
	EventConnect   EventName = "cg_connect"
	EventConnected EventName = "cg_connected"
	EventSpectate  EventName = "cg_spectate"
	EventInfo      EventName = "cg_info"
	EventError     EventName = "cg_error"
)

// Local lifecycle events. These never travel over the wire; they are
// dispatched through the same listener registry as protocol events.
const (
	// EventReady fires after the socket transitions to open.
	EventReady EventName = "ready"
	// EventClose fires after the socket is gone, whether closed locally
	// or dropped by the server.
	EventClose EventName = "close"
)

// OriginServer is the origin attached to events produced by the server
// itself rather than relayed from a specific player.
const OriginServer = "server"

// Event is the wire envelope: one JSON object per message.
type Event struct {
	Name EventName       `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalData decodes the event payload into v. Events without a payload
// decode into the zero value.
func (e Event) UnmarshalData(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

// newEvent builds an envelope with an encoded payload. A nil payload leaves
// the data field absent.
func newEvent(name EventName, payload any) (Event, error) {
	ev := Event{Name: name}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	ev.Data = data
	return ev, nil
}

// serverMessage is the server-to-client delivery wrapper, carrying the
// sender identity separately from the payload.
type serverMessage struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// decodeFrame parses an inbound frame. Both the wrapped delivery shape and
// a bare envelope are accepted; bare envelopes are attributed to the server.
func decodeFrame(data []byte) (origin string, ev Event, err error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err == nil && msg.Event.Name != "" {
		origin = msg.Origin
		if origin == "" {
			origin = OriginServer
		}
		return origin, msg.Event, nil
	}
	if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
		return "", Event{}, fmt.Errorf("%w: %s", ErrProtocol, data)
	}
	return OriginServer, ev, nil
}

// JoinData requests membership in a game. The player credentials are the
// ones issued by the players endpoint; the socket authenticates with them.
type JoinData struct {
	GameID       string `json:"game_id"`
	Username     string `json:"username"`
	PlayerID     string `json:"player_id,omitempty"`
	PlayerSecret string `json:"player_secret,omitempty"`
}

// JoinedData confirms a join and carries the reconnect secret.
type JoinedData struct {
	Secret string `json:"secret"`
}

// ConnectData resumes an existing player identity.
type ConnectData struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Secret   string `json:"secret"`
}

// ConnectedData confirms a resumed connection.
type ConnectedData struct {
	Username string `json:"username"`
}

// SpectateData requests read-only access to a game.
type SpectateData struct {
	GameID string `json:"game_id"`
}

// InfoData is the roster snapshot sent to every newly connected or
// spectating party: player id to username.
type InfoData struct {
	Players map[string]string `json:"players"`
}

// NewPlayerData announces a player joining; the player id travels as the
// event origin.
type NewPlayerData struct {
	Username string `json:"username"`
}

// ErrorData carries a server-supplied rejection or failure message.
type ErrorData struct {
	Message string `json:"message"`
}
