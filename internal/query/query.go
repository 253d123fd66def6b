// Package query is the read layer sitting in front of a Store: it
// resolves ID-preferred/name-fallback filter precedence, derives the
// team list for a group, and read-through caches the list-style
// lookups a browser calendar view repeats constantly.
package query

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/domain"
	"github.com/ibasketcal/core/internal/store"
)

// Layer is the query boundary used by internal/httpapi. It never
// mutates the Store.
type Layer struct {
	st       store.Store
	cache    *cache
	ttl      time.Duration
	matchTTL time.Duration
	log      *zap.Logger
}

// New builds a Layer. redisURL may be empty to run without a cache,
// the way a single-process deployment with a fast embedded store
// would.
func New(st store.Store, redisURL string, ttl, matchTTL time.Duration, log *zap.Logger) (*Layer, error) {
	l := &Layer{st: st, ttl: ttl, matchTTL: matchTTL, log: log}
	if redisURL == "" {
		return l, nil
	}
	c, err := newCache(redisURL)
	if err != nil {
		log.Warn("query: cache unavailable, continuing without it", zap.Error(err))
		return l, nil
	}
	l.cache = c
	return l, nil
}

func (l *Layer) Close() error {
	if l.cache == nil {
		return nil
	}
	return l.cache.close()
}

func (l *Layer) ListSeasons(ctx context.Context) ([]domain.Season, error) {
	return cached(ctx, l, "seasons", l.ttl, func() ([]domain.Season, error) { return l.st.ListSeasons(ctx) })
}

func (l *Layer) ListCompetitions(ctx context.Context, seasonID string) ([]domain.Competition, error) {
	return cached(ctx, l, "competitions:"+seasonID, l.ttl, func() ([]domain.Competition, error) {
		return l.st.ListCompetitions(ctx, seasonID)
	})
}

func (l *Layer) ListGroups(ctx context.Context, competitionID string) ([]domain.Group, error) {
	return cached(ctx, l, "groups:"+competitionID, l.ttl, func() ([]domain.Group, error) {
		return l.st.ListGroups(ctx, competitionID)
	})
}

// ListTeamsForGroup returns every team appearing in groupID's matches,
// as listed by the Store's ListTeams.
func (l *Layer) ListTeamsForGroup(ctx context.Context, groupID string) ([]domain.Team, error) {
	return cached(ctx, l, "teams:"+groupID, l.ttl, func() ([]domain.Team, error) {
		return l.st.ListTeams(ctx, groupID)
	})
}

// ResolveFilter applies the ID-preferred/name-fallback precedence rule
// defensively: if both an ID and a name are set for the same
// dimension, the ID wins and the name is dropped.
func ResolveFilter(f domain.MatchFilter) domain.MatchFilter {
	if f.GroupID != "" {
		f.CompetitionName = ""
	}
	if f.TeamID != "" {
		f.TeamName = ""
	}
	return f
}

// FindMatches caches only the common ID-and-status filtered case (no
// date bounds, no name substrings) at matchTTL; anything more
// specific always hits the store, since the cardinality of possible
// filter combinations makes caching them pointless.
func (l *Layer) FindMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error) {
	resolved := ResolveFilter(filter)

	if !cacheable(resolved) {
		return l.st.FindMatches(ctx, resolved)
	}
	key := "matches:" + resolved.SeasonID + ":" + resolved.GroupID + ":" + resolved.TeamID + ":" + string(resolved.Status)
	return cached(ctx, l, key, l.matchTTL, func() ([]domain.Match, error) { return l.st.FindMatches(ctx, resolved) })
}

func cacheable(f domain.MatchFilter) bool {
	return f.DateFrom.IsZero() && f.DateTo.IsZero() && f.CompetitionName == "" && f.TeamName == ""
}

func (l *Layer) ListStandings(ctx context.Context, groupID string) ([]domain.Standing, error) {
	return l.st.ListStandings(ctx, groupID)
}

// CacheInfo reports freshness for the /api/cache-info response:
// whether a snapshot exists, its age, and whether it's past
// the configured staleness threshold.
type CacheInfo struct {
	Exists     bool
	Stale      bool
	LastUpdate time.Time
	AgeMinutes int
}

func (l *Layer) CacheInfo(ctx context.Context, staleAfter time.Duration) (CacheInfo, error) {
	t, ok, err := store.LastScrapeCompletedAt(ctx, l.st)
	if err != nil {
		return CacheInfo{}, err
	}
	if !ok {
		return CacheInfo{Exists: false, Stale: true}, nil
	}
	age := time.Since(t)
	return CacheInfo{
		Exists:     true,
		Stale:      age > staleAfter,
		LastUpdate: t,
		AgeMinutes: int(age.Minutes()),
	}, nil
}

func cached[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if l.cache == nil {
		return fetch()
	}
	if raw, ok, err := l.cache.getBytes(ctx, key); err == nil && ok {
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			return v, nil
		}
	}
	v, err := fetch()
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		_ = l.cache.setBytes(ctx, key, raw, ttl)
	}
	return v, nil
}
