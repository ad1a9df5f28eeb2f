package codegrid

import "errors"

var (
	// ErrNetwork indicates the server was unreachable on every candidate
	// transport. The operation is not retried automatically.
	ErrNetwork = errors.New("codegrid: server unreachable")

	// ErrProtocol indicates a malformed inbound message. The message is
	// dropped and the connection stays up.
	ErrProtocol = errors.New("codegrid: malformed message")

	// ErrConfig indicates bad call-site input, such as a missing game id.
	ErrConfig = errors.New("codegrid: invalid configuration")

	// ErrNotConnected is returned when an operation requires an open
	// socket but none is available.
	ErrNotConnected = errors.New("codegrid: not connected")

	// ErrSessionNotFound is returned by RestoreSession when no session is
	// persisted for the given host and username.
	ErrSessionNotFound = errors.New("codegrid: no stored session")

	// ErrPlayerNotFound is returned when a player id cannot be resolved
	// to a username.
	ErrPlayerNotFound = errors.New("codegrid: player not found")

	// ErrGameNotFound is returned when the server has no game with the
	// requested id.
	ErrGameNotFound = errors.New("codegrid: game not found")

	// ErrInvalidSecretOrFull is returned when a join is rejected because
	// the join secret is wrong or the game is full.
	ErrInvalidSecretOrFull = errors.New("codegrid: invalid join secret or game full")

	// ErrConfigLimit is returned when the server refuses to create a game
	// because a quota was exceeded.
	ErrConfigLimit = errors.New("codegrid: game limit exceeded")

	// ErrServerInternal indicates a technical failure on the server side.
	ErrServerInternal = errors.New("codegrid: internal server error")
)

// ServerError carries a rejection message supplied by the server through a
// cg_error event. It is returned by operations whose triggering request was
// explicitly refused.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "codegrid: server rejected request: " + e.Message
}
