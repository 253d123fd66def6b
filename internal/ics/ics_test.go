package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/ibasketcal/core/internal/domain"
)

func TestEscapeText(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Maccabi, Tel Aviv":  `Maccabi\, Tel Aviv`,
		"Group; A":           `Group\; A`,
		"line1\nline2":       `line1\nline2`,
		`back\slash`:         `back\\slash`,
		"carriage\rreturn\n": `carriagereturn\n`,
		"":                   "",
	}

	for in, want := range cases {
		if got := escapeText(in); got != want {
			t.Fatalf("escapeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFoldLine(t *testing.T) {
	t.Parallel()

	short := "DTSTART:20260101T120000Z"
	if got := foldLine(short); got != short {
		t.Fatalf("short line should not fold, got %q", got)
	}

	long := "DESCRIPTION:" + strings.Repeat("a", 120)
	folded := foldLine(long)
	lines := strings.Split(folded, crlf)
	if len(lines) < 2 {
		t.Fatalf("expected a long line to fold into multiple segments, got %d", len(lines))
	}
	for i, l := range lines[1:] {
		if !strings.HasPrefix(l, " ") {
			t.Fatalf("continuation line %d does not start with a space: %q", i+1, l)
		}
	}
	rejoined := strings.ReplaceAll(folded, crlf+" ", "")
	if rejoined != long {
		t.Fatalf("unfolding did not reproduce original line:\ngot:  %q\nwant: %q", rejoined, long)
	}
}

func TestGenerateUID_Stable(t *testing.T) {
	t.Parallel()

	a := GenerateUID("match-42", "ibasketball.calendar")
	b := GenerateUID("match-42", "ibasketball.calendar")
	if a != b {
		t.Fatalf("expected UID generation to be deterministic")
	}
	if a != "match-42@ibasketball.calendar" {
		t.Fatalf("unexpected UID: %s", a)
	}
}

func TestAssemble_ContainsExpectedComponents(t *testing.T) {
	t.Parallel()

	match := domain.Match{
		ID:              "m-1",
		CompetitionName: "Premier League",
		GroupName:       "Regular",
		SeasonID:        "2025-26",
		HomeTeamName:    "Maccabi Tel Aviv",
		AwayTeamName:    "Hapoel Jerusalem",
		Date:            time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		Status:          domain.StatusNotStarted,
	}

	body, err := Assemble([]domain.Match{match}, Options{CalendarName: "Test Calendar", HostID: "ibasketball.calendar"})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"X-WR-TIMEZONE:Asia/Jerusalem",
		"BEGIN:VTIMEZONE",
		"UID:m-1@ibasketball.calendar",
		"DTSTART:20260301T180000Z",
		"SUMMARY:Maccabi Tel Aviv vs Hapoel Jerusalem",
		"SEQUENCE:0",
		"STATUS:CONFIRMED",
		"TRANSP:OPAQUE",
		"END:VCALENDAR",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected assembled calendar to contain %q; got:\n%s", want, body)
		}
	}

	if !strings.Contains(body, "\r\n") {
		t.Fatalf("expected CRLF line endings")
	}
}

func TestAssemble_StatusDrivenSummaryAndSequence(t *testing.T) {
	t.Parallel()

	home, away := 88, 81
	closed := domain.Match{
		ID: "m-2", HomeTeamName: "A", AwayTeamName: "B",
		Date: time.Now().UTC(), Status: domain.StatusClosed,
		HomeScore: &home, AwayScore: &away,
	}
	body, err := Assemble([]domain.Match{closed}, Options{})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if !strings.Contains(body, "SUMMARY:A 88:81 B [FINAL]") {
		t.Fatalf("expected closed-match score summary, got:\n%s", body)
	}
	if !strings.Contains(body, "SEQUENCE:2") {
		t.Fatalf("expected SEQUENCE:2 for a closed match")
	}
}

func TestAssemble_PlayerModeShiftsStart(t *testing.T) {
	t.Parallel()

	tipoff := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)
	match := domain.Match{ID: "m-3", Date: tipoff, Status: domain.StatusNotStarted}

	spectator, err := Assemble([]domain.Match{match}, Options{Mode: ModeSpectator})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	player, err := Assemble([]domain.Match{match}, Options{Mode: ModePlayer, Prep: 45 * time.Minute})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if !strings.Contains(spectator, "DTSTART:20260501T190000Z") {
		t.Fatalf("spectator mode should keep tip-off time, got:\n%s", spectator)
	}
	if !strings.Contains(player, "DTSTART:20260501T181500Z") {
		t.Fatalf("player mode should shift DTSTART 45m earlier, got:\n%s", player)
	}
	if !strings.Contains(player, "DTEND:20260501T210000Z") {
		t.Fatalf("player mode should not shift DTEND, got:\n%s", player)
	}
}

func TestAssemble_LocalTimezoneUsesTZIDForm(t *testing.T) {
	t.Parallel()

	match := domain.Match{ID: "m-4", Date: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), Status: domain.StatusNotStarted}

	body, err := Assemble([]domain.Match{match}, Options{TZID: "Asia/Jerusalem"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(body, "DTSTART;TZID=Asia/Jerusalem:") {
		t.Fatalf("expected a TZID-qualified DTSTART when tz is requested, got:\n%s", body)
	}
}
