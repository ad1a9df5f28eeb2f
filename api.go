package codegrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const apiRequestTimeout = 30 * time.Second

// apiClient wraps the server's HTTP endpoints in typed accessors. It shares
// the transport negotiator with the socket so the http/https question is
// answered once per host.
type apiClient struct {
	host string
	log  zerolog.Logger
	tn   *transportNegotiator
	hc   *http.Client
}

func newAPIClient(host string, log zerolog.Logger, tn *transportNegotiator, hc *http.Client) *apiClient {
	if hc == nil {
		hc = &http.Client{
			Timeout: apiRequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}
	return &apiClient{host: host, log: log, tn: tn, hc: hc}
}

// ServerInfo is the response of GET /api/info.
type ServerInfo struct {
	Name      string `json:"name"`
	CGVersion string `json:"cg_version"`
}

// GameCreated is the response of POST /api/games.
type GameCreated struct {
	GameID     string `json:"game_id"`
	JoinSecret string `json:"join_secret,omitempty"`
}

// PlayerCreated is the response of POST /api/games/{id}/players.
type PlayerCreated struct {
	PlayerID     string `json:"player_id"`
	PlayerSecret string `json:"player_secret"`
}

// GameMetadata is the response of GET /api/games/{id}. Config is the
// game-specific blob, left undecoded for the caller.
type GameMetadata struct {
	ID        string          `json:"id"`
	Players   int             `json:"players"`
	Protected bool            `json:"protected"`
	Config    json.RawMessage `json:"config,omitempty"`
}

type createGameRequest struct {
	Public    bool `json:"public"`
	Protected bool `json:"protected"`
	Config    any  `json:"config,omitempty"`
}

type createPlayerRequest struct {
	Username   string `json:"username"`
	JoinSecret string `json:"join_secret,omitempty"`
}

type rosterResponse struct {
	Players map[string]string `json:"players"`
}

func (a *apiClient) fetchInfo(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := a.do(ctx, http.MethodGet, "/api/info", nil, &info)
	return info, err
}

func (a *apiClient) createGame(ctx context.Context, public, protected bool, config any) (GameCreated, error) {
	var created GameCreated
	req := createGameRequest{Public: public, Protected: protected, Config: config}
	err := a.do(ctx, http.MethodPost, "/api/games", req, &created)
	return created, err
}

func (a *apiClient) createPlayer(ctx context.Context, gameID, username, joinSecret string) (PlayerCreated, error) {
	var created PlayerCreated
	req := createPlayerRequest{Username: username, JoinSecret: joinSecret}
	err := a.do(ctx, http.MethodPost, "/api/games/"+gameID+"/players", req, &created)
	return created, err
}

func (a *apiClient) fetchUsername(ctx context.Context, gameID, playerID string) (string, error) {
	var resp struct {
		Username string `json:"username"`
	}
	path := "/api/games/" + gameID + "/players/" + playerID
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		// A 404 on this endpoint means the player, not the game.
		if errors.Is(err, ErrGameNotFound) {
			return "", fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
		}
		return "", err
	}
	return resp.Username, nil
}

func (a *apiClient) fetchPlayers(ctx context.Context, gameID string) (map[string]string, error) {
	var resp rosterResponse
	if err := a.do(ctx, http.MethodGet, "/api/games/"+gameID+"/players", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Players, nil
}

func (a *apiClient) fetchGameMetadata(ctx context.Context, gameID string) (GameMetadata, error) {
	var meta GameMetadata
	err := a.do(ctx, http.MethodGet, "/api/games/"+gameID, nil, &meta)
	return meta, err
}

// do runs one request against the candidate schemes in negotiated order.
// The first scheme that yields an HTTP response settles the transport
// state, whatever the status code; exhausting all candidates resets the
// negotiator and reports ErrNetwork.
func (a *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for _, scheme := range a.tn.schemes("http") {
		url := scheme + "://" + a.host + path

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := a.hc.Do(req)
		if err != nil {
			a.log.Debug().Err(err).Str("url", url).Msg("request attempt failed")
			lastErr = err
			continue
		}

		a.tn.observe(secureScheme(scheme))
		return a.handleResponse(resp, out)
	}

	a.tn.reset()
	return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, lastErr)
}

// handleResponse normalizes HTTP status codes into the client's error
// taxonomy and decodes the body on success.
func (a *apiClient) handleResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrProtocol, err)
		}
		return nil
	}

	// Servers put a human-readable message in the body on rejection.
	var rejection ErrorData
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		_ = json.Unmarshal(data, &rejection)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrGameNotFound, rejection.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrInvalidSecretOrFull, rejection.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrConfigLimit, rejection.Message)
	default:
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d: %s", ErrServerInternal, resp.StatusCode, rejection.Message)
		}
		if rejection.Message != "" {
			return &ServerError{Message: rejection.Message}
		}
		return fmt.Errorf("%w: unexpected status %d", ErrServerInternal, resp.StatusCode)
	}
}
