package httpapi

import (
	"net/http/httptest"
	"testing"

	"github.com/ibasketcal/core/internal/domain"
)

func TestFilterFromQuery_GroupIDWinsOverCompetitionName(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/api/matches?group_id=g-1&competition=Premier+League&team_id=t-1&team=Maccabi", nil)
	filter := filterFromQuery(r)

	if filter.GroupID != "g-1" || filter.TeamID != "t-1" {
		t.Fatalf("expected ID fields preserved, got %+v", filter)
	}
	if filter.CompetitionName != "" || filter.TeamName != "" {
		t.Fatalf("expected name fields cleared when IDs are present, got %+v", filter)
	}
}

func TestFilterFromQuery_StatusAndSeasonPassThrough(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/api/matches?season=2025-26&status=LIVE", nil)
	filter := filterFromQuery(r)

	if filter.SeasonID != "2025-26" {
		t.Fatalf("SeasonID = %q, want 2025-26", filter.SeasonID)
	}
	if filter.Status != domain.MatchStatus("LIVE") {
		t.Fatalf("Status = %q, want LIVE", filter.Status)
	}
}

func TestFilterFromQuery_EmptyRequestYieldsEmptyFilter(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/api/matches", nil)
	filter := filterFromQuery(r)

	if filter != (domain.MatchFilter{}) {
		t.Fatalf("expected zero-value filter for a request with no query params, got %+v", filter)
	}
}
