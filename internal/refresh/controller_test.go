package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/ibasketcal/core/internal/domain"
	"github.com/ibasketcal/core/internal/errs"
)

// fakeStore is a minimal in-memory store.Store used only to drive the
// controller's metadata checks; every method other than the metadata
// pair returns zero values and a nil error.
type fakeStore struct {
	meta map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{meta: map[string]string{}} }

func (f *fakeStore) ListSeasons(ctx context.Context) ([]domain.Season, error)              { return nil, nil }
func (f *fakeStore) ListCompetitions(ctx context.Context, s string) ([]domain.Competition, error) {
	return nil, nil
}
func (f *fakeStore) ListGroups(ctx context.Context, c string) ([]domain.Group, error) { return nil, nil }
func (f *fakeStore) ListTeams(ctx context.Context, g string) ([]domain.Team, error)   { return nil, nil }
func (f *fakeStore) FindMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error) {
	return nil, nil
}
func (f *fakeStore) ListStandings(ctx context.Context, g string) ([]domain.Standing, error) {
	return nil, nil
}
func (f *fakeStore) ListGroupIDs(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeStore) ListTeamIDs(ctx context.Context) ([]string, error)  { return nil, nil }
func (f *fakeStore) BulkReplace(ctx context.Context, snapshot domain.Snapshot) error {
	return nil
}
func (f *fakeStore) UpsertMatchesOnly(ctx context.Context, groupID string, matches []domain.Match) error {
	return nil
}
func (f *fakeStore) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.meta[key]
	return v, ok, nil
}
func (f *fakeStore) SetMetadata(ctx context.Context, key, value string) error {
	f.meta[key] = value
	return nil
}
func (f *fakeStore) DatabaseSizeBytes(ctx context.Context) (*int64, error) { return nil, nil }
func (f *fakeStore) Vacuum(ctx context.Context) error                     { return nil }
func (f *fakeStore) ClearAll(ctx context.Context) error                  { return nil }
func (f *fakeStore) HealthCheck(ctx context.Context) error               { return nil }
func (f *fakeStore) Close() error                                        { return nil }

func TestStatus_ZeroValue(t *testing.T) {
	t.Parallel()

	c := New(newFakeStore(), nil, time.Minute, nil)
	st := c.Status()
	if st.Scraping || !st.LastCompletedAt.IsZero() || st.LastError != "" {
		t.Fatalf("expected zero-value status for a fresh controller, got %+v", st)
	}
}

func TestEnsureFresh_SkipsWhenStoreAlreadyScraped(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fs.meta[domain.MetaKeyLastScrapeCompletedAt] = time.Now().UTC().Format(time.RFC3339)

	// orchestrator is nil: if EnsureFresh tried to scrape, this would
	// panic, so a clean return proves the empty-store check short-circuits.
	c := New(fs, nil, time.Minute, nil)
	if err := c.EnsureFresh(context.Background()); err != nil {
		t.Fatalf("EnsureFresh returned error: %v", err)
	}
}

func TestRequestRefresh_RateLimitedDuringCooldown(t *testing.T) {
	t.Parallel()

	c := New(newFakeStore(), nil, time.Minute, nil)
	c.cooldownDeadline = time.Now().Add(30 * time.Second)

	err := c.RequestRefresh(context.Background())
	limited, ok := errs.AsRefreshRateLimited(err)
	if !ok {
		t.Fatalf("expected a RefreshRateLimited error, got %v", err)
	}
	if limited.RetryAfter <= 0 || limited.RetryAfter > 30*time.Second {
		t.Fatalf("unexpected RetryAfter: %s", limited.RetryAfter)
	}
}

func TestRequestRefresh_RateLimitedWhileScrapingInFlight(t *testing.T) {
	t.Parallel()

	c := New(newFakeStore(), nil, 300*time.Second, nil)

	// Simulate a scrape that started 10s ago and is still running:
	// orchestrator is nil and unused because runScrape must return
	// before ever reaching doScrape.
	c.scraping = true
	c.cooldownDeadline = time.Now().Add(290 * time.Second)

	done := make(chan error, 1)
	go func() { done <- c.RequestRefresh(context.Background()) }()

	select {
	case err := <-done:
		limited, ok := errs.AsRefreshRateLimited(err)
		if !ok {
			t.Fatalf("expected a RefreshRateLimited error, got %v", err)
		}
		if limited.RetryAfter <= 0 || limited.RetryAfter > 290*time.Second {
			t.Fatalf("unexpected RetryAfter: %s", limited.RetryAfter)
		}
	case <-time.After(time.Second):
		t.Fatalf("RequestRefresh blocked instead of returning immediately while a scrape is in flight")
	}
}
