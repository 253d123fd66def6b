package scrape

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ibasketcal/core/internal/domain"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]domain.MatchStatus{
		"LIVE":      domain.StatusLive,
		"CLOSED":    domain.StatusClosed,
		"FINISHED":  domain.StatusClosed,
		"CANCELLED": domain.StatusCancelled,
		"CANCELED":  domain.StatusCancelled,
		"SCHEDULED": domain.StatusNotStarted,
		"":          domain.StatusNotStarted,
	}
	for in, want := range cases {
		if got := classifyStatus(in); got != want {
			t.Fatalf("classifyStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassifyGroupType(t *testing.T) {
	t.Parallel()

	cases := map[string]domain.GroupType{
		"PLAYOFF":  domain.GroupTypePlayoff,
		"PLAYOFFS": domain.GroupTypePlayoff,
		"LEAGUE":   domain.GroupTypeLeague,
		"REGULAR":  domain.GroupTypeLeague,
		"WEIRD":    domain.GroupTypeOther,
	}
	for in, want := range cases {
		if got := classifyGroupType(in); got != want {
			t.Fatalf("classifyGroupType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLenient(t *testing.T) {
	t.Parallel()

	if got := parseLenient(""); !got.IsZero() {
		t.Fatalf("expected zero time for empty input, got %v", got)
	}

	rfc3339, err := time.Parse(time.RFC3339, "2026-03-01T18:00:00Z")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if got := parseLenient("2026-03-01T18:00:00Z"); !got.Equal(rfc3339) {
		t.Fatalf("RFC3339 parse mismatch: got %v want %v", got, rfc3339)
	}

	dateOnly, err := time.Parse("2006-01-02", "2026-03-01")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if got := parseLenient("2026-03-01"); !got.Equal(dateOnly) {
		t.Fatalf("date-only parse mismatch: got %v want %v", got, dateOnly)
	}

	if got := parseLenient("not a date"); !got.IsZero() {
		t.Fatalf("expected zero time for unparseable input, got %v", got)
	}
}

func TestDecodeMatch(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"id": "m-1",
		"date": "2026-03-01T18:00:00Z",
		"status": "CLOSED",
		"homeTeam": {"id": "h-1", "name": "Maccabi"},
		"awayTeam": {"id": "a-1", "name": "Hapoel"},
		"court": {"place": "Arena", "address": "123 St"},
		"score": {"totals": [{"teamId": "h-1", "total": 90}, {"teamId": "a-1", "total": 85}]}
	}`)

	task := groupTask{seasonID: "s-1", competitionID: "c-1", competitionName: "Premier League", groupID: "g-1", groupName: "Regular"}

	m, err := decodeMatch(raw, task)
	if err != nil {
		t.Fatalf("decodeMatch returned error: %v", err)
	}
	if m.ID != "m-1" || m.Status != domain.StatusClosed {
		t.Fatalf("unexpected decoded match: %+v", m)
	}
	if m.HomeScore == nil || *m.HomeScore != 90 {
		t.Fatalf("expected home score 90, got %v", m.HomeScore)
	}
	if m.AwayScore == nil || *m.AwayScore != 85 {
		t.Fatalf("expected away score 85, got %v", m.AwayScore)
	}
	if m.CompetitionName != "Premier League" || m.GroupName != "Regular" {
		t.Fatalf("expected parent names copied from task, got %+v", m)
	}
}

func TestDecodeMatch_MissingID(t *testing.T) {
	t.Parallel()

	_, err := decodeMatch(json.RawMessage(`{"date":"2026-01-01T00:00:00Z"}`), groupTask{})
	if err == nil {
		t.Fatalf("expected error for match with no id")
	}
}
