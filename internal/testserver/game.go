package testserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	codegrid "github.com/codegrid-project/codegrid-go"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// registry is the thread-safe game index.
type registry struct {
	mu    sync.Mutex
	games map[string]*game
}

func newRegistry() *registry {
	return &registry{games: make(map[string]*game)}
}

func (r *registry) add(g *game) {
	r.mu.Lock()
	r.games[g.id] = g
	r.mu.Unlock()
}

func (r *registry) get(id string) (*game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	return g, ok
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.games)
}

// player is one identity in a game. conn is nil until the player's socket
// authenticates.
type player struct {
	id       string
	username string
	secret   string

	mu   sync.Mutex
	conn *websocket.Conn
}

// game is one running game: players, spectators, and the relay between
// them.
type game struct {
	log zerolog.Logger

	id         string
	public     bool
	protected  bool
	joinSecret string
	config     json.RawMessage

	mu         sync.Mutex
	players    map[string]*player
	spectators map[*remote]struct{}
}

// remote serializes writes to one spectator connection.
type remote struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newGame(log zerolog.Logger, public, protected bool, config json.RawMessage) *game {
	g := &game{
		log:        log,
		id:         newID(),
		public:     public,
		protected:  protected,
		config:     config,
		players:    make(map[string]*player),
		spectators: make(map[*remote]struct{}),
	}
	if protected {
		g.joinSecret = uuid.NewString()
	}
	return g
}

func (g *game) createPlayer(username string) *player {
	p := &player{
		id:       newID(),
		username: username,
		secret:   uuid.NewString(),
	}
	g.mu.Lock()
	g.players[p.id] = p
	g.mu.Unlock()
	return p
}

func (g *game) player(id string) (*player, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.players[id]
	return p, ok
}

func (g *game) playerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

func (g *game) roster() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	players := make(map[string]string, len(g.players))
	for id, p := range g.players {
		players[id] = p.username
	}
	return players
}

// handleSocket upgrades the connection and runs the auth handshake: the
// first event must be cg_join, cg_connect, or cg_spectate.
func (s *Server) handleSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	var ev codegrid.Event
	if err := conn.ReadJSON(&ev); err != nil {
		_ = conn.Close()
		return
	}

	switch ev.Name {
	case codegrid.EventJoin:
		s.handleJoin(conn, ev)
	case codegrid.EventConnect:
		s.handleConnect(conn, ev)
	case codegrid.EventSpectate:
		s.handleSpectate(conn, ev)
	default:
		sendError(conn, "expected cg_join, cg_connect or cg_spectate")
		_ = conn.Close()
	}
}

func (s *Server) handleJoin(conn *websocket.Conn, ev codegrid.Event) {
	var join codegrid.JoinData
	if err := ev.UnmarshalData(&join); err != nil {
		sendError(conn, "invalid cg_join payload")
		_ = conn.Close()
		return
	}

	g, ok := s.registry.get(join.GameID)
	if !ok {
		sendError(conn, "game not found")
		_ = conn.Close()
		return
	}
	p, ok := g.player(join.PlayerID)
	if !ok || p.secret != join.PlayerSecret {
		sendError(conn, "invalid player credentials")
		_ = conn.Close()
		return
	}

	p.mu.Lock()
	// Close-then-reopen on the client side makes the old conn stale.
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn = conn
	p.mu.Unlock()

	p.send(codegrid.OriginServer, mustEvent(codegrid.EventJoined, codegrid.JoinedData{Secret: p.secret}))
	p.send(codegrid.OriginServer, mustEvent(codegrid.EventInfo, codegrid.InfoData{Players: g.roster()}))
	g.broadcast(p.id, p.id, mustEvent(codegrid.EventNewPlayer, codegrid.NewPlayerData{Username: p.username}))

	s.log.Info().Str("game_id", g.id).Str("player_id", p.id).Msg("player joined")
	g.serve(p)
}

func (s *Server) handleConnect(conn *websocket.Conn, ev codegrid.Event) {
	var connect codegrid.ConnectData
	if err := ev.UnmarshalData(&connect); err != nil {
		sendError(conn, "invalid cg_connect payload")
		_ = conn.Close()
		return
	}

	g, ok := s.registry.get(connect.GameID)
	if !ok {
		sendError(conn, "game not found")
		_ = conn.Close()
		return
	}
	p, ok := g.player(connect.PlayerID)
	if !ok || p.secret != connect.Secret {
		sendError(conn, "invalid player credentials")
		_ = conn.Close()
		return
	}

	p.mu.Lock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn = conn
	p.mu.Unlock()

	p.send(codegrid.OriginServer, mustEvent(codegrid.EventConnected, codegrid.ConnectedData{Username: p.username}))
	p.send(codegrid.OriginServer, mustEvent(codegrid.EventInfo, codegrid.InfoData{Players: g.roster()}))

	s.log.Info().Str("game_id", g.id).Str("player_id", p.id).Msg("player reconnected")
	g.serve(p)
}

func (s *Server) handleSpectate(conn *websocket.Conn, ev codegrid.Event) {
	var spectate codegrid.SpectateData
	if err := ev.UnmarshalData(&spectate); err != nil {
		sendError(conn, "invalid cg_spectate payload")
		_ = conn.Close()
		return
	}

	g, ok := s.registry.get(spectate.GameID)
	if !ok {
		sendError(conn, "game not found")
		_ = conn.Close()
		return
	}

	r := &remote{conn: conn}
	g.mu.Lock()
	g.spectators[r] = struct{}{}
	g.mu.Unlock()

	r.send(codegrid.OriginServer, mustEvent(codegrid.EventInfo, codegrid.InfoData{Players: g.roster()}))

	s.log.Info().Str("game_id", g.id).Msg("spectator attached")
	g.serveSpectator(r)
}

// serve relays a player's events until the connection drops or the player
// leaves.
func (g *game) serve(p *player) {
	conn := p.currentConn()
	for {
		var ev codegrid.Event
		if err := conn.ReadJSON(&ev); err != nil {
			g.detach(p, conn)
			return
		}

		if ev.Name == codegrid.EventLeave {
			g.removePlayer(p)
			_ = conn.Close()
			return
		}

		// Game-specific event: relay to everyone else with the sender
		// as origin.
		g.broadcast(p.id, p.id, ev)
	}
}

func (g *game) serveSpectator(r *remote) {
	for {
		var ev codegrid.Event
		if err := r.conn.ReadJSON(&ev); err != nil {
			g.mu.Lock()
			delete(g.spectators, r)
			g.mu.Unlock()
			return
		}
		// Spectators are read-only; inbound events are dropped.
	}
}

// detach clears the player's connection without removing the identity, so
// a later cg_connect can resume it.
func (g *game) detach(p *player, conn *websocket.Conn) {
	p.mu.Lock()
	if p.conn == conn {
		p.conn = nil
	}
	p.mu.Unlock()
}

// removePlayer drops the identity and announces the departure.
func (g *game) removePlayer(p *player) {
	g.mu.Lock()
	delete(g.players, p.id)
	g.mu.Unlock()

	p.mu.Lock()
	p.conn = nil
	p.mu.Unlock()

	g.broadcast(p.id, p.id, codegrid.Event{Name: codegrid.EventLeft})
	g.log.Info().Str("game_id", g.id).Str("player_id", p.id).Msg("player left")
}

// broadcast delivers an event to every member except the sender, plus all
// spectators.
func (g *game) broadcast(origin, exceptPlayerID string, ev codegrid.Event) {
	g.mu.Lock()
	targets := make([]*player, 0, len(g.players))
	for id, p := range g.players {
		if id == exceptPlayerID {
			continue
		}
		targets = append(targets, p)
	}
	watchers := make([]*remote, 0, len(g.spectators))
	for r := range g.spectators {
		watchers = append(watchers, r)
	}
	g.mu.Unlock()

	for _, p := range targets {
		p.send(origin, ev)
	}
	for _, r := range watchers {
		r.send(origin, ev)
	}
}

func (p *player) currentConn() *websocket.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *player) send(origin string, ev codegrid.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return
	}
	_ = p.conn.WriteJSON(wireMessage{Origin: origin, Event: ev})
}

func (r *remote) send(origin string, ev codegrid.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.conn.WriteJSON(wireMessage{Origin: origin, Event: ev})
}

// wireMessage is the server-to-client delivery wrapper.
type wireMessage struct {
	Origin string         `json:"origin"`
	Event  codegrid.Event `json:"event"`
}

func sendTo(conn *websocket.Conn, origin string, ev codegrid.Event) {
	_ = conn.WriteJSON(wireMessage{Origin: origin, Event: ev})
}

func sendError(conn *websocket.Conn, message string) {
	ev := mustEvent(codegrid.EventError, codegrid.ErrorData{Message: message})
	sendTo(conn, codegrid.OriginServer, ev)
}

func mustEvent(name codegrid.EventName, payload any) codegrid.Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return codegrid.Event{Name: name, Data: data}
}
