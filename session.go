package codegrid

import (
	"encoding/json"
	"fmt"
)

// Session is the credential triple identifying a specific player in a
// specific game. It is sufficient on its own to perform a full reconnect
// without re-entering a username.
type Session struct {
	GameID       string `json:"game_id"`
	PlayerID     string `json:"player_id"`
	PlayerSecret string `json:"player_secret"`
	Username     string `json:"username"`
}

// DataStore is the persistence collaborator the client uses to keep
// reconnect credentials across restarts. Records are keyed by an ordered
// list of path segments; directory creation, file formats, and storage
// engine specifics are the implementation's responsibility.
//
// Read returns (nil, nil) when no record exists under the path. Delete of a
// missing record is a no-op.
type DataStore interface {
	Read(path ...string) ([]byte, error)
	Write(data []byte, path ...string) error
	Delete(path ...string) error
}

// sessionPathBase is the first path segment of every persisted session
// record; host and username follow.
const sessionPathBase = "codegrid"

func (c *Client) sessionPath(username string) []string {
	return []string{sessionPathBase, c.cfg.Host, username}
}

// saveSession persists the session under (host, username). A client without
// a store runs fine, it just cannot restore sessions later.
func (c *Client) saveSession(s Session) {
	if c.cfg.Store == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode session")
		return
	}
	if err := c.cfg.Store.Write(data, c.sessionPath(s.Username)...); err != nil {
		c.log.Error().Err(err).Str("username", s.Username).Msg("failed to persist session")
		return
	}
	c.log.Debug().
		Str("game_id", s.GameID).
		Str("username", s.Username).
		Msg("session persisted")
}

// loadSession reads the session persisted for (host, username).
func (c *Client) loadSession(username string) (Session, error) {
	if c.cfg.Store == nil {
		return Session{}, ErrSessionNotFound
	}
	data, err := c.cfg.Store.Read(c.sessionPath(username)...)
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	if data == nil {
		return Session{}, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if s.Username == "" {
		s.Username = username
	}
	return s, nil
}

// deleteSession removes the persisted record, if any.
func (c *Client) deleteSession(username string) {
	if c.cfg.Store == nil || username == "" {
		return
	}
	if err := c.cfg.Store.Delete(c.sessionPath(username)...); err != nil {
		c.log.Warn().Err(err).Str("username", username).Msg("failed to delete persisted session")
	}
}
