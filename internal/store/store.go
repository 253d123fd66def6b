// Package store defines the persistence boundary and its three
// implementations (filedb, rowstore, edgesql). Callers depend only on
// the Store interface; main wiring picks the concrete type from config.
package store

import (
	"context"
	"time"

	"github.com/ibasketcal/core/internal/domain"
)

// Store is the persistence boundary. Every method is safe for
// concurrent use. BulkReplace is the only write path that replaces the
// whole entity graph; readers must never observe a partial replace.
type Store interface {
	ListSeasons(ctx context.Context) ([]domain.Season, error)
	ListCompetitions(ctx context.Context, seasonID string) ([]domain.Competition, error)
	ListGroups(ctx context.Context, competitionID string) ([]domain.Group, error)
	ListTeams(ctx context.Context, groupID string) ([]domain.Team, error)
	FindMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error)
	ListStandings(ctx context.Context, groupID string) ([]domain.Standing, error)

	// ListGroupIDs and ListTeamIDs return every stored group or team ID,
	// ordered by ID, without a full snapshot read.
	ListGroupIDs(ctx context.Context) ([]string, error)
	ListTeamIDs(ctx context.Context) ([]string, error)

	// BulkReplace atomically swaps the entire entity graph for one
	// scrape pass's snapshot.
	BulkReplace(ctx context.Context, snapshot domain.Snapshot) error

	// UpsertMatchesOnly supports the cheaper match-only refresh path:
	// it updates matches belonging to groupID without touching the
	// season/competition/group/team tables.
	UpsertMatchesOnly(ctx context.Context, groupID string, matches []domain.Match) error

	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string) error

	// DatabaseSizeBytes reports on-disk size where meaningful; nil for
	// backends where the concept doesn't apply (e.g. a remote edge-sql
	// service that doesn't expose it).
	DatabaseSizeBytes(ctx context.Context) (*int64, error)

	Vacuum(ctx context.Context) error
	ClearAll(ctx context.Context) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// LastScrapeCompletedAt is a small convenience wrapper read by the
// refresh controller and query layer's cache-info response.
func LastScrapeCompletedAt(ctx context.Context, s Store) (time.Time, bool, error) {
	v, ok, err := s.GetMetadata(ctx, domain.MetaKeyLastScrapeCompletedAt)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
