package codegrid

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const defaultUsernameTTL = 12 * time.Hour

// identityResolver maps opaque player ids to usernames. Lookups are
// cache-first with a single-player network query as fallback; failures
// degrade to an empty result, never an error. The cache is fed by roster
// snapshots, join broadcasts, and on-demand fetches, and drained by leave
// broadcasts.
type identityResolver struct {
	log   zerolog.Logger
	api   *apiClient
	cache *gocache.Cache
}

func newIdentityResolver(log zerolog.Logger, api *apiClient, ttl time.Duration) *identityResolver {
	if ttl <= 0 {
		ttl = defaultUsernameTTL
	}
	return &identityResolver{
		log:   log,
		api:   api,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// username resolves a player id within the given game. The second return
// is false when the player is unknown; a network failure or a missing
// player is logged, not returned.
func (r *identityResolver) username(ctx context.Context, gameID, playerID string) (string, bool) {
	if cached, ok := r.cache.Get(playerID); ok {
		return cached.(string), true
	}

	name, err := r.api.fetchUsername(ctx, gameID, playerID)
	if err != nil {
		if errors.Is(err, ErrPlayerNotFound) {
			r.log.Warn().
				Str("game_id", gameID).
				Str("player_id", playerID).
				Msg("player not found on server")
		} else {
			r.log.Error().Err(err).
				Str("player_id", playerID).
				Msg("username lookup failed")
		}
		return "", false
	}

	r.cache.SetDefault(playerID, name)
	return name, true
}

// refreshAll fetches the full roster in one round trip so subsequent
// per-player lookups are cache hits. Called as soon as a game id is known.
func (r *identityResolver) refreshAll(ctx context.Context, gameID string) error {
	roster, err := r.api.fetchPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	r.ingest(roster)
	return nil
}

// ingest merges a roster snapshot into the cache.
func (r *identityResolver) ingest(roster map[string]string) {
	for id, name := range roster {
		r.cache.SetDefault(id, name)
	}
}

func (r *identityResolver) put(playerID, username string) {
	r.cache.SetDefault(playerID, username)
}

func (r *identityResolver) evict(playerID string) {
	r.cache.Delete(playerID)
}

func (r *identityResolver) clear() {
	r.cache.Flush()
}
