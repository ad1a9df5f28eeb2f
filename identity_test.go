package codegrid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCountingAPI spins up a roster endpoint that counts how often the
// network is hit.
func newCountingAPI(t *testing.T, players map[string]string, calls *atomic.Int64) *apiClient {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/games/g1/players", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"players": players})
	})
	mux.HandleFunc("/api/games/g1/players/", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		id := strings.TrimPrefix(r.URL.Path, "/api/games/g1/players/")
		name, ok := players[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "player not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"username": name})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tn := &transportNegotiator{}
	tn.observe(false) // plain http, skip the wss probe in tests
	host := strings.TrimPrefix(srv.URL, "http://")
	return newAPIClient(host, zerolog.Nop(), tn, nil)
}

func TestUsernameCacheHitSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	api := newCountingAPI(t, map[string]string{"p1": "alice"}, &calls)
	r := newIdentityResolver(zerolog.Nop(), api, 0)

	r.put("p1", "alice")

	name, ok := r.username(context.Background(), "g1", "p1")
	require.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.Equal(t, int64(0), calls.Load(), "cached lookup must not touch the network")
}

func TestUsernameFallsBackToNetworkOnce(t *testing.T) {
	var calls atomic.Int64
	api := newCountingAPI(t, map[string]string{"p2": "bob"}, &calls)
	r := newIdentityResolver(zerolog.Nop(), api, 0)

	name, ok := r.username(context.Background(), "g1", "p2")
	require.True(t, ok)
	assert.Equal(t, "bob", name)
	assert.Equal(t, int64(1), calls.Load())

	// Second lookup is a cache hit.
	_, ok = r.username(context.Background(), "g1", "p2")
	require.True(t, ok)
	assert.Equal(t, int64(1), calls.Load())
}

func TestUsernameUnknownPlayerDegradesGracefully(t *testing.T) {
	var calls atomic.Int64
	api := newCountingAPI(t, map[string]string{}, &calls)
	r := newIdentityResolver(zerolog.Nop(), api, 0)

	name, ok := r.username(context.Background(), "g1", "ghost")
	assert.False(t, ok)
	assert.Empty(t, name)
}

func TestRefreshAllPrimesTheCache(t *testing.T) {
	var calls atomic.Int64
	api := newCountingAPI(t, map[string]string{"p1": "alice", "p2": "bob"}, &calls)
	r := newIdentityResolver(zerolog.Nop(), api, 0)

	require.NoError(t, r.refreshAll(context.Background(), "g1"))
	assert.Equal(t, int64(1), calls.Load())

	for id, want := range map[string]string{"p1": "alice", "p2": "bob"} {
		name, ok := r.username(context.Background(), "g1", id)
		require.True(t, ok)
		assert.Equal(t, want, name)
	}
	assert.Equal(t, int64(1), calls.Load(), "all lookups served from cache")
}

func TestEvictRemovesDepartedPlayer(t *testing.T) {
	var calls atomic.Int64
	api := newCountingAPI(t, map[string]string{}, &calls)
	r := newIdentityResolver(zerolog.Nop(), api, 0)

	r.put("p1", "alice")
	r.evict("p1")

	_, ok := r.username(context.Background(), "g1", "p1")
	assert.False(t, ok)
	assert.Equal(t, int64(1), calls.Load(), "eviction forces a re-fetch attempt")
}
