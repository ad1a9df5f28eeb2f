package codegrid

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config carries the client's collaborators. Everything environment
// specific is injected here; the client never sniffs its surroundings.
type Config struct {
	// Host is the server address without scheme, e.g. "games.example.com"
	// or "localhost:8080". The transport scheme is negotiated.
	Host string

	// Logger receives structured client logs. Defaults to a no-op logger.
	Logger *zerolog.Logger

	// Store persists reconnect credentials keyed by (host, username).
	// Optional; without it RestoreSession always fails.
	Store DataStore

	// HTTPClient overrides the client used for the API endpoints.
	HTTPClient *http.Client

	// Dialer overrides the WebSocket dialer.
	Dialer *websocket.Dialer

	// UsernameCacheTTL bounds how long resolved usernames are kept.
	UsernameCacheTTL time.Duration
}

// Client connects to a CodeGrid game server: it creates, joins, resumes,
// and spectates game sessions, exchanges named events over a persistent
// socket, and resolves player ids to usernames.
//
// A Client owns at most one physical socket at any time. Reconnection is
// never automatic; after a connection loss the caller decides when to call
// Connect or RestoreSession again.
type Client struct {
	cfg Config
	log zerolog.Logger

	tn         *transportNegotiator
	dispatcher *dispatcher
	api        *apiClient
	resolver   *identityResolver
	sock       *socket

	mu         sync.Mutex
	session    Session
	spectating bool

	connMu        sync.Mutex
	connListeners []CallbackID
}

// New creates a client for the given server host.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host must not be empty", ErrConfig)
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	c := &Client{
		cfg: cfg,
		log: log,
		tn:  &transportNegotiator{},
	}
	c.dispatcher = newDispatcher(log)
	c.api = newAPIClient(cfg.Host, log, c.tn, cfg.HTTPClient)
	c.resolver = newIdentityResolver(log, c.api, cfg.UsernameCacheTTL)
	c.sock = newSocket(cfg.Host, log, c.tn, c.dispatcher, cfg.Dialer)
	c.sock.onReplace = c.dropConnectionListeners

	c.registerRosterListeners()
	return c, nil
}

// registerRosterListeners keeps the username cache in sync with membership
// traffic: roster snapshots seed it, join broadcasts extend it, leave
// broadcasts drain it.
func (c *Client) registerRosterListeners() {
	c.dispatcher.register(EventInfo, func(_ string, ev Event) {
		var info InfoData
		if err := ev.UnmarshalData(&info); err != nil {
			c.log.Warn().Err(err).Msg("bad roster snapshot")
			return
		}
		c.resolver.ingest(info.Players)
	}, false)

	c.dispatcher.register(EventNewPlayer, func(origin string, ev Event) {
		var data NewPlayerData
		if err := ev.UnmarshalData(&data); err != nil || origin == "" || origin == OriginServer {
			return
		}
		c.resolver.put(origin, data.Username)
	}, false)

	c.dispatcher.register(EventLeft, func(origin string, _ Event) {
		if origin != "" && origin != OriginServer {
			c.resolver.evict(origin)
		}
	}, false)
}

// On registers a listener for every occurrence of the named event.
func (c *Client) On(name EventName, cb EventCallback) CallbackID {
	return c.dispatcher.register(name, cb, false)
}

// Once registers a listener that is removed after its first invocation.
func (c *Client) Once(name EventName, cb EventCallback) CallbackID {
	return c.dispatcher.register(name, cb, true)
}

// OnConnection registers a listener tied to the lifetime of the current
// physical socket: when the connection is closed or replaced on reconnect,
// the listener is invalidated and must be registered again.
func (c *Client) OnConnection(name EventName, cb EventCallback) CallbackID {
	id := c.dispatcher.register(name, cb, false)
	c.connMu.Lock()
	c.connListeners = append(c.connListeners, id)
	c.connMu.Unlock()
	return id
}

// dropConnectionListeners invalidates every connection-scoped listener.
// Called by the socket whenever the physical connection goes away.
func (c *Client) dropConnectionListeners() {
	c.connMu.Lock()
	ids := c.connListeners
	c.connListeners = nil
	c.connMu.Unlock()

	for _, id := range ids {
		c.dispatcher.remove(id)
	}
}

// RemoveCallback removes a listener by id. Removing an unknown id is a
// safe no-op and returns false.
func (c *Client) RemoveCallback(id CallbackID) bool {
	return c.dispatcher.remove(id)
}

// Emit dispatches a locally synthesized event through the same listener
// registry as wire events and reports whether anyone handled it. Nothing is
// sent to the server.
func (c *Client) Emit(name EventName, payload any) (bool, error) {
	ev, err := newEvent(name, payload)
	if err != nil {
		return false, err
	}
	return c.dispatcher.dispatch("", ev), nil
}

// Send transmits a named event with an optional payload. Fire-and-forget:
// if the socket is not open the event is dropped with an error.
func (c *Client) Send(name EventName, payload any) error {
	return c.sock.send(name, payload)
}

// Session returns the active session. The zero value means the client is
// not joined to any game.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connected reports whether the socket is currently open.
func (c *Client) Connected() bool {
	return c.sock.isOpen()
}

// Username resolves a player id to a username using the roster cache,
// falling back to one network query. The second return is false when the
// player is unknown; failures never propagate.
func (c *Client) Username(ctx context.Context, playerID string) (string, bool) {
	c.mu.Lock()
	gameID := c.session.GameID
	c.mu.Unlock()
	return c.resolver.username(ctx, gameID, playerID)
}

// FetchInfo returns the server's self-description.
func (c *Client) FetchInfo(ctx context.Context) (ServerInfo, error) {
	return c.api.fetchInfo(ctx)
}

// FetchGameMetadata returns a game's metadata including its game-specific
// config blob.
func (c *Client) FetchGameMetadata(ctx context.Context, gameID string) (GameMetadata, error) {
	if gameID == "" {
		return GameMetadata{}, fmt.Errorf("%w: game id must not be empty", ErrConfig)
	}
	return c.api.fetchGameMetadata(ctx, gameID)
}

// Create asks the server for a new game and returns its id, plus a join
// secret when the game is protected. No socket is opened; follow up with
// Join or Spectate.
func (c *Client) Create(ctx context.Context, public, protected bool, config any) (GameCreated, error) {
	created, err := c.api.createGame(ctx, public, protected, config)
	if err != nil {
		return GameCreated{}, err
	}
	c.log.Info().Str("game_id", created.GameID).Msg("game created")
	return created, nil
}

// Join creates a player identity in the game over HTTP, opens the socket
// authenticated with the returned credentials, and awaits the server's
// confirmation. On success the session is persisted under (host, username).
func (c *Client) Join(ctx context.Context, gameID, username, joinSecret string) (Session, error) {
	if gameID == "" || username == "" {
		return Session{}, fmt.Errorf("%w: game id and username are required", ErrConfig)
	}

	created, err := c.api.createPlayer(ctx, gameID, username, joinSecret)
	if err != nil {
		return Session{}, err
	}

	if err := c.sock.open(ctx); err != nil {
		return Session{}, err
	}

	join := JoinData{
		GameID:       gameID,
		Username:     username,
		PlayerID:     created.PlayerID,
		PlayerSecret: created.PlayerSecret,
	}
	ev, err := c.await(ctx, EventJoined, func() error {
		return c.sock.send(EventJoin, join)
	})
	if err != nil {
		c.sock.close()
		return Session{}, err
	}

	var joined JoinedData
	if err := ev.UnmarshalData(&joined); err != nil {
		c.sock.close()
		return Session{}, err
	}
	secret := joined.Secret
	if secret == "" {
		secret = created.PlayerSecret
	}

	session := Session{
		GameID:       gameID,
		PlayerID:     created.PlayerID,
		PlayerSecret: secret,
		Username:     username,
	}
	c.adoptSession(ctx, session)
	return session, nil
}

// Connect resumes an existing player identity with stored credentials.
// Resolving the player's username is a precondition; when that fails the
// operation reports ErrPlayerNotFound without touching the socket.
func (c *Client) Connect(ctx context.Context, gameID, playerID, secret string) (Session, error) {
	if gameID == "" || playerID == "" {
		return Session{}, fmt.Errorf("%w: game id and player id are required", ErrConfig)
	}

	username, ok := c.resolver.username(ctx, gameID, playerID)
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	if err := c.sock.open(ctx); err != nil {
		return Session{}, err
	}

	connect := ConnectData{GameID: gameID, PlayerID: playerID, Secret: secret}
	ev, err := c.await(ctx, EventConnected, func() error {
		return c.sock.send(EventConnect, connect)
	})
	if err != nil {
		c.sock.close()
		return Session{}, err
	}

	var connected ConnectedData
	if err := ev.UnmarshalData(&connected); err == nil && connected.Username != "" {
		username = connected.Username
	}

	session := Session{
		GameID:       gameID,
		PlayerID:     playerID,
		PlayerSecret: secret,
		Username:     username,
	}
	c.adoptSession(ctx, session)
	return session, nil
}

// RestoreSession reads the session persisted for (host, username) and
// resumes it via Connect.
func (c *Client) RestoreSession(ctx context.Context, username string) (Session, error) {
	stored, err := c.loadSession(username)
	if err != nil {
		return Session{}, err
	}
	return c.Connect(ctx, stored.GameID, stored.PlayerID, stored.PlayerSecret)
}

// Spectate opens the socket in read-only mode. Spectators have no identity
// to resume, so no session is created or persisted; the roster snapshot
// confirms the subscription.
func (c *Client) Spectate(ctx context.Context, gameID string) error {
	if gameID == "" {
		return fmt.Errorf("%w: game id must not be empty", ErrConfig)
	}

	if err := c.sock.open(ctx); err != nil {
		return err
	}

	_, err := c.await(ctx, EventInfo, func() error {
		return c.sock.send(EventSpectate, SpectateData{GameID: gameID})
	})
	if err != nil {
		c.sock.close()
		return err
	}

	c.mu.Lock()
	c.session = Session{}
	c.spectating = true
	c.mu.Unlock()

	c.log.Info().Str("game_id", gameID).Msg("spectating")
	return nil
}

// Leave announces departure from the game (best-effort, the protocol does
// not acknowledge it), deletes the persisted session, and tears the socket
// down. Use Disconnect to drop the connection while keeping the session
// resumable.
func (c *Client) Leave() {
	c.mu.Lock()
	session := c.session
	c.session = Session{}
	c.spectating = false
	c.mu.Unlock()

	if c.sock.isOpen() {
		// Fire-and-forget by design; the session is gone either way.
		_ = c.sock.send(EventLeave, nil)
	}
	c.deleteSession(session.Username)
	c.resolver.clear()
	c.sock.close()

	if session.GameID != "" {
		c.log.Info().Str("game_id", session.GameID).Msg("left game")
	}
}

// Disconnect closes the socket without deleting the session, so a later
// Connect or RestoreSession can resume it.
func (c *Client) Disconnect() {
	c.sock.close()
}

// adoptSession installs and persists the session after a confirmed join or
// reconnect, then warms the username cache for the game.
func (c *Client) adoptSession(ctx context.Context, s Session) {
	c.mu.Lock()
	c.session = s
	c.spectating = false
	c.mu.Unlock()

	c.saveSession(s)
	if err := c.resolver.refreshAll(ctx, s.GameID); err != nil {
		c.log.Warn().Err(err).Str("game_id", s.GameID).Msg("roster refresh failed")
	}
}

// await implements the request/confirm/error pattern every operation uses:
// register a one-shot success listener and a one-shot cg_error listener,
// send the triggering request, and settle on whichever fires first. The
// losing listener is removed so nothing leaks, and the buffered channel
// guards against double settlement.
func (c *Client) await(ctx context.Context, success EventName, send func() error) (Event, error) {
	type outcome struct {
		ev  Event
		err error
	}
	results := make(chan outcome, 3)

	okID := c.dispatcher.register(success, func(_ string, ev Event) {
		results <- outcome{ev: ev}
	}, true)
	errID := c.dispatcher.register(EventError, func(_ string, ev Event) {
		var data ErrorData
		if err := ev.UnmarshalData(&data); err != nil {
			results <- outcome{err: err}
			return
		}
		results <- outcome{err: &ServerError{Message: data.Message}}
	}, true)
	closeID := c.dispatcher.register(EventClose, func(_ string, _ Event) {
		results <- outcome{err: fmt.Errorf("%w: connection closed before %s", ErrNetwork, success)}
	}, true)

	defer func() {
		c.dispatcher.remove(okID)
		c.dispatcher.remove(errID)
		c.dispatcher.remove(closeID)
	}()

	if err := send(); err != nil {
		return Event{}, err
	}

	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case res := <-results:
		return res.ev, res.err
	}
}
