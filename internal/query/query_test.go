package query

import (
	"testing"
	"time"

	"github.com/ibasketcal/core/internal/domain"
)

func TestResolveFilter_IDWinsOverName(t *testing.T) {
	t.Parallel()

	filter := domain.MatchFilter{
		GroupID:         "g-1",
		CompetitionName: "Premier League",
		TeamID:          "t-1",
		TeamName:        "Maccabi",
	}

	resolved := ResolveFilter(filter)

	if resolved.CompetitionName != "" {
		t.Fatalf("expected CompetitionName cleared when GroupID set, got %q", resolved.CompetitionName)
	}
	if resolved.TeamName != "" {
		t.Fatalf("expected TeamName cleared when TeamID set, got %q", resolved.TeamName)
	}
	if resolved.GroupID != "g-1" || resolved.TeamID != "t-1" {
		t.Fatalf("expected ID fields preserved, got %+v", resolved)
	}
}

func TestResolveFilter_NamesPreservedWithoutIDs(t *testing.T) {
	t.Parallel()

	filter := domain.MatchFilter{CompetitionName: "Premier League", TeamName: "Maccabi"}
	resolved := ResolveFilter(filter)

	if resolved.CompetitionName != "Premier League" || resolved.TeamName != "Maccabi" {
		t.Fatalf("expected names preserved when no IDs set, got %+v", resolved)
	}
}

func TestCacheable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		f    domain.MatchFilter
		want bool
	}{
		{"empty filter", domain.MatchFilter{}, true},
		{"group id only", domain.MatchFilter{GroupID: "g-1"}, true},
		{"date bound", domain.MatchFilter{DateFrom: time.Now()}, false},
		{"competition name", domain.MatchFilter{CompetitionName: "x"}, false},
		{"team name", domain.MatchFilter{TeamName: "x"}, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := cacheable(tc.f); got != tc.want {
				t.Fatalf("cacheable(%+v) = %v, want %v", tc.f, got, tc.want)
			}
		})
	}
}
