package filedb

import (
	"context"
	"testing"
	"time"

	"github.com/ibasketcal/core/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshot() domain.Snapshot {
	home, away := 90, 85
	return domain.Snapshot{
		Seasons:      []domain.Season{{ID: "s-1", Name: "2025-26"}},
		Competitions: []domain.Competition{{ID: "c-1", SeasonID: "s-1", Name: "Premier League"}},
		Groups:       []domain.Group{{ID: "g-1", CompetitionID: "c-1", SeasonID: "s-1", Name: "Regular", Type: domain.GroupTypeLeague}},
		Teams: []domain.Team{
			{ID: "t-1", Name: "Maccabi Tel Aviv"},
			{ID: "t-2", Name: "Hapoel Jerusalem"},
		},
		Matches: []domain.Match{{
			ID: "m-1", SeasonID: "s-1", CompetitionID: "c-1", CompetitionName: "Premier League",
			GroupID: "g-1", GroupName: "Regular",
			HomeTeamID: "t-1", HomeTeamName: "Maccabi Tel Aviv",
			AwayTeamID: "t-2", AwayTeamName: "Hapoel Jerusalem",
			Date: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), Status: domain.StatusClosed,
			HomeScore: &home, AwayScore: &away,
		}},
		Standings: []domain.Standing{{GroupID: "g-1", TeamID: "t-1", Position: 1}},
	}
}

func TestBulkReplace_RoundTrip(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.BulkReplace(ctx, testSnapshot()); err != nil {
		t.Fatalf("BulkReplace returned error: %v", err)
	}

	seasons, err := db.ListSeasons(ctx)
	if err != nil || len(seasons) != 1 || seasons[0].ID != "s-1" {
		t.Fatalf("ListSeasons = %+v, err %v", seasons, err)
	}

	matches, err := db.FindMatches(ctx, domain.MatchFilter{GroupID: "g-1"})
	if err != nil {
		t.Fatalf("FindMatches returned error: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "m-1" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
	if matches[0].HomeScore == nil || *matches[0].HomeScore != 90 {
		t.Fatalf("expected home score 90, got %v", matches[0].HomeScore)
	}

	teams, err := db.ListTeams(ctx, "g-1")
	if err != nil || len(teams) != 2 {
		t.Fatalf("ListTeams = %+v, err %v", teams, err)
	}

	standings, err := db.ListStandings(ctx, "g-1")
	if err != nil || len(standings) != 1 || standings[0].Position != 1 {
		t.Fatalf("ListStandings = %+v, err %v", standings, err)
	}
}

func TestListTeams_LocaleAwareOrdering(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	snap := testSnapshot()
	snap.Teams = append(snap.Teams,
		domain.Team{ID: "t-3", Name: "בני הרצליה"},
		domain.Team{ID: "t-4", Name: "הפועל ירושלים"},
	)
	if err := db.BulkReplace(ctx, snap); err != nil {
		t.Fatalf("BulkReplace returned error: %v", err)
	}

	teams, err := db.ListTeams(ctx, "")
	if err != nil {
		t.Fatalf("ListTeams returned error: %v", err)
	}
	if len(teams) != 4 {
		t.Fatalf("expected 4 teams, got %+v", teams)
	}

	got := make([]string, len(teams))
	for i, tm := range teams {
		got[i] = tm.Name
	}
	want := []string{"בני הרצליה", "הפועל ירושלים", "Hapoel Jerusalem", "Maccabi Tel Aviv"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListTeams order = %v, want %v", got, want)
		}
	}
}

func TestBulkReplace_ClearsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.BulkReplace(ctx, testSnapshot()); err != nil {
		t.Fatalf("first BulkReplace: %v", err)
	}
	if err := db.BulkReplace(ctx, domain.Snapshot{}); err != nil {
		t.Fatalf("second BulkReplace: %v", err)
	}

	seasons, err := db.ListSeasons(ctx)
	if err != nil {
		t.Fatalf("ListSeasons returned error: %v", err)
	}
	if len(seasons) != 0 {
		t.Fatalf("expected an empty snapshot to clear prior seasons, got %+v", seasons)
	}
}

func TestMetadata_SetAndGet(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetMetadata(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected (false, nil) for unset key, got ok=%v err=%v", ok, err)
	}

	if err := db.SetMetadata(ctx, domain.MetaKeyLastScrapeCompletedAt, "2026-03-01T00:00:00Z"); err != nil {
		t.Fatalf("SetMetadata returned error: %v", err)
	}
	v, ok, err := db.GetMetadata(ctx, domain.MetaKeyLastScrapeCompletedAt)
	if err != nil || !ok || v != "2026-03-01T00:00:00Z" {
		t.Fatalf("GetMetadata = (%q, %v), err %v", v, ok, err)
	}
}

func TestUpsertMatchesOnly_LeavesOtherTablesUntouched(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.BulkReplace(ctx, testSnapshot()); err != nil {
		t.Fatalf("BulkReplace: %v", err)
	}

	updated := testSnapshot().Matches[0]
	updated.Status = domain.StatusLive
	if err := db.UpsertMatchesOnly(ctx, "g-1", []domain.Match{updated}); err != nil {
		t.Fatalf("UpsertMatchesOnly returned error: %v", err)
	}

	matches, err := db.FindMatches(ctx, domain.MatchFilter{GroupID: "g-1"})
	if err != nil || len(matches) != 1 || matches[0].Status != domain.StatusLive {
		t.Fatalf("unexpected matches after upsert: %+v, err %v", matches, err)
	}

	seasons, err := db.ListSeasons(ctx)
	if err != nil || len(seasons) != 1 {
		t.Fatalf("expected seasons untouched by match-only upsert, got %+v, err %v", seasons, err)
	}
}

func TestClearAll_RemovesEverything(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.BulkReplace(ctx, testSnapshot()); err != nil {
		t.Fatalf("BulkReplace: %v", err)
	}
	if err := db.SetMetadata(ctx, domain.MetaKeyLastScrapeCompletedAt, "2026-03-01T00:00:00Z"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	if err := db.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll returned error: %v", err)
	}

	seasons, err := db.ListSeasons(ctx)
	if err != nil || len(seasons) != 0 {
		t.Fatalf("expected no seasons after ClearAll, got %+v, err %v", seasons, err)
	}
	if _, ok, err := db.GetMetadata(ctx, domain.MetaKeyLastScrapeCompletedAt); err != nil || ok {
		t.Fatalf("expected metadata cleared, got ok=%v err=%v", ok, err)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}
