// Package testserver implements an in-process CodeGrid game server: the
// HTTP game/player endpoints plus the WebSocket event protocol. It backs
// the client's integration tests and the codegrid-server development
// binary. It relays game events between members but attaches no meaning to
// them.
package testserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures the server.
type Options struct {
	// MaxGames caps concurrently existing games; 0 means unlimited.
	// Exceeding the cap fails game creation with 429.
	MaxGames int

	// Logger receives server logs. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Server holds the game registry and the HTTP router.
type Server struct {
	log    zerolog.Logger
	opts   Options
	router *gin.Engine

	registry *registry
}

// New creates a server ready to serve via Handler or Run.
func New(opts Options) *Server {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		log:      log,
		opts:     opts,
		registry: newRegistry(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the router for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until the context is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", addr).Msg("codegrid server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	api := r.Group("/api")
	{
		api.GET("/info", s.handleInfo)
		api.POST("/games", s.handleCreateGame)
		api.GET("/games/:id", s.handleGameMetadata)
		api.POST("/games/:id/players", s.handleCreatePlayer)
		api.GET("/games/:id/players", s.handleRoster)
		api.GET("/games/:id/players/:playerId", s.handlePlayer)
	}

	r.GET("/ws", s.handleSocket)
	return r
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":       "codegrid-testserver",
		"cg_version": "1.0",
	})
}

type createGameRequest struct {
	Public    bool            `json:"public"`
	Protected bool            `json:"protected"`
	Config    json.RawMessage `json:"config"`
}

func (s *Server) handleCreateGame(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	if s.opts.MaxGames > 0 && s.registry.count() >= s.opts.MaxGames {
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "game limit reached"})
		return
	}

	g := newGame(s.log, req.Public, req.Protected, req.Config)
	s.registry.add(g)

	s.log.Info().Str("game_id", g.id).Bool("protected", g.protected).Msg("game created")

	resp := gin.H{"game_id": g.id}
	if g.protected {
		resp["join_secret"] = g.joinSecret
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGameMetadata(c *gin.Context) {
	g, ok := s.registry.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "game not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        g.id,
		"players":   g.playerCount(),
		"protected": g.protected,
		"config":    g.config,
	})
}

type createPlayerRequest struct {
	Username   string `json:"username"`
	JoinSecret string `json:"join_secret"`
}

func (s *Server) handleCreatePlayer(c *gin.Context) {
	g, ok := s.registry.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "game not found"})
		return
	}

	var req createPlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username is required"})
		return
	}

	if g.protected && req.JoinSecret != g.joinSecret {
		c.JSON(http.StatusForbidden, gin.H{"message": "invalid join secret"})
		return
	}

	p := g.createPlayer(req.Username)
	c.JSON(http.StatusCreated, gin.H{
		"player_id":     p.id,
		"player_secret": p.secret,
	})
}

func (s *Server) handleRoster(c *gin.Context) {
	g, ok := s.registry.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "game not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": g.roster()})
}

func (s *Server) handlePlayer(c *gin.Context) {
	g, ok := s.registry.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "game not found"})
		return
	}
	p, ok := g.player(c.Param("playerId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "player not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": p.username})
}

func newID() string {
	return uuid.NewString()[:8]
}
