// Package ics assembles RFC 5545 iCalendar documents from matches.
// Every VEVENT uses CRLF line endings and folds lines at the 75-octet
// boundary, matching the original PUBLISH-method calendar.
package ics

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ibasketcal/core/internal/domain"
)

const (
	crlf          = "\r\n"
	maxLineOctets = 75
)

// asiaJerusalemVTimezone mirrors the block the widget's own calendar
// export carries: DTSTART/RRULE ahead of the offset/name fields, no
// X-LIC-LOCATION line. DST transition dates are expressed as RRULEs so
// they stay correct indefinitely.
const asiaJerusalemVTimezone = "BEGIN:VTIMEZONE" + crlf +
	"TZID:Asia/Jerusalem" + crlf +
	"BEGIN:STANDARD" + crlf +
	"DTSTART:19701025T020000" + crlf +
	"RRULE:FREQ=YEARLY;BYMONTH=10;BYDAY=-1SU" + crlf +
	"TZOFFSETFROM:+0300" + crlf +
	"TZOFFSETTO:+0200" + crlf +
	"TZNAME:IST" + crlf +
	"END:STANDARD" + crlf +
	"BEGIN:DAYLIGHT" + crlf +
	"DTSTART:19700329T020000" + crlf +
	"RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=-1FR" + crlf +
	"TZOFFSETFROM:+0200" + crlf +
	"TZOFFSETTO:+0300" + crlf +
	"TZNAME:IDT" + crlf +
	"END:DAYLIGHT" + crlf +
	"END:VTIMEZONE"

// Mode selects how DTSTART is rendered relative to tip-off.
type Mode string

const (
	// ModeSpectator renders DTSTART at tip-off, unchanged.
	ModeSpectator Mode = "spectator"
	// ModePlayer shifts DTSTART earlier by Options.Prep so a roster
	// member's calendar reminds them to arrive before tip-off; DTEND
	// still anchors to the real end of play.
	ModePlayer Mode = "player"
)

// Options configures one assembly pass.
type Options struct {
	CalendarName string
	Mode         Mode
	Prep         time.Duration // only consulted when Mode == ModePlayer
	TZID         string        // IANA zone name; empty means UTC/Zulu output
	HostID       string        // UID domain suffix
}

// Assemble renders matches into a complete VCALENDAR document.
func Assemble(matches []domain.Match, opts Options) (string, error) {
	if opts.CalendarName == "" {
		opts.CalendarName = "Israeli Basketball"
	}
	if opts.HostID == "" {
		opts.HostID = "ibasketball.calendar"
	}
	wrTimezone := opts.TZID
	if wrTimezone == "" {
		wrTimezone = "Asia/Jerusalem"
	}

	// Events themselves render in Zulu time regardless of X-WR-TIMEZONE
	// unless a caller explicitly asked for local-time output via tz —
	// matching the upstream export's own VEVENT formatting, which never
	// references the VTIMEZONE block it ships.
	var loc *time.Location
	useTZID := opts.TZID != "" && opts.TZID != "UTC"
	if useTZID {
		l, err := time.LoadLocation(opts.TZID)
		if err != nil {
			return "", fmt.Errorf("ics: load location %q: %w", opts.TZID, err)
		}
		loc = l
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Israeli Basketball Calendar//ibasketcal//EN",
		"X-WR-CALNAME:" + escapeText(opts.CalendarName),
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-TIMEZONE:" + wrTimezone,
	}
	lines = append(lines, vTimezoneFor(wrTimezone))

	now := time.Now().UTC()
	for _, m := range matches {
		lines = append(lines, buildVEvent(m, opts, loc, now)...)
	}
	lines = append(lines, "END:VCALENDAR")

	folded := make([]string, len(lines))
	for i, l := range lines {
		folded[i] = foldLine(l)
	}
	return strings.Join(folded, crlf), nil
}

// vTimezoneFor returns the known Asia/Jerusalem block verbatim, or a
// minimal TZID-only block for any other requested zone — we don't
// carry DST rule tables for zones outside the primary deployment
// target.
func vTimezoneFor(tzid string) string {
	if tzid == "Asia/Jerusalem" {
		return asiaJerusalemVTimezone
	}
	return "BEGIN:VTIMEZONE" + crlf + "TZID:" + tzid + crlf + "END:VTIMEZONE"
}

func buildVEvent(m domain.Match, opts Options, loc *time.Location, now time.Time) []string {
	uid := GenerateUID(m.ID, opts.HostID)

	start := m.Date
	end := start.Add(2 * time.Hour)
	if opts.Mode == ModePlayer && opts.Prep > 0 {
		start = start.Add(-opts.Prep)
	}

	var dtstamp, dtstart, dtend string
	if loc != nil {
		dtstamp = formatLocal(now.In(loc))
		dtstart = "TZID=" + opts.TZID + ":" + formatLocal(start.In(loc))
		dtend = "TZID=" + opts.TZID + ":" + formatLocal(end.In(loc))
	} else {
		dtstamp = formatZulu(now)
		dtstart = formatZulu(start)
		dtend = formatZulu(end)
	}

	lines := []string{
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:" + dtstamp,
	}
	if loc != nil {
		lines = append(lines, "DTSTART;"+dtstart)
		lines = append(lines, "DTEND;"+dtend)
	} else {
		lines = append(lines, "DTSTART:"+dtstart)
		lines = append(lines, "DTEND:"+dtend)
	}

	lines = append(lines, "SUMMARY:"+escapeText(summaryFor(m)))

	if desc := descriptionFor(m); desc != "" {
		lines = append(lines, "DESCRIPTION:"+escapeText(desc))
	}
	if loc := locationFor(m); loc != "" {
		lines = append(lines, "LOCATION:"+escapeText(loc))
	}

	lines = append(lines, fmt.Sprintf("SEQUENCE:%d", sequenceFor(m.Status)))
	lines = append(lines, "STATUS:CONFIRMED")
	lines = append(lines, "TRANSP:OPAQUE")
	lines = append(lines, "END:VEVENT")
	return lines
}

func summaryFor(m domain.Match) string {
	home := orTBD(m.HomeTeamName)
	away := orTBD(m.AwayTeamName)
	switch m.Status {
	case domain.StatusClosed:
		hs, as := 0, 0
		if m.HomeScore != nil {
			hs = *m.HomeScore
		}
		if m.AwayScore != nil {
			as = *m.AwayScore
		}
		return fmt.Sprintf("%s %d:%d %s [FINAL]", home, hs, as, away)
	case domain.StatusLive:
		return fmt.Sprintf("LIVE: %s vs %s", home, away)
	default:
		return fmt.Sprintf("%s vs %s", home, away)
	}
}

func orTBD(s string) string {
	if s == "" {
		return "TBD"
	}
	return s
}

func descriptionFor(m domain.Match) string {
	var parts []string
	if m.CompetitionName != "" {
		parts = append(parts, "Competition: "+m.CompetitionName)
	}
	if m.GroupName != "" {
		parts = append(parts, "Group: "+m.GroupName)
	}
	if m.SeasonID != "" {
		parts = append(parts, "Season: "+m.SeasonID)
	}
	if m.Status != "" {
		parts = append(parts, "Status: "+string(m.Status))
	}
	return strings.Join(parts, "\n")
}

func locationFor(m domain.Match) string {
	var parts []string
	if m.Venue != "" {
		parts = append(parts, m.Venue)
	}
	if m.VenueAddress != "" {
		parts = append(parts, m.VenueAddress)
	}
	if len(parts) == 0 {
		return "TBD"
	}
	return strings.Join(parts, ", ")
}

// sequenceFor gives the calendar client a signal that an event changed
// materially: 0 while scheduled, bumped once it's live, bumped again
// once it closes.
func sequenceFor(status domain.MatchStatus) int {
	switch status {
	case domain.StatusClosed:
		return 2
	case domain.StatusLive:
		return 1
	default:
		return 0
	}
}

// GenerateUID derives a stable UID from the match ID so re-publishing
// the same match never creates a duplicate event in a subscribed
// client.
func GenerateUID(matchID, hostID string) string {
	return matchID + "@" + hostID
}

// StableHash returns the first 8 bytes of the SHA-1 of s, hex-encoded.
// GenerateUID does not use it, and nothing else in this module calls it.
func StableHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func formatZulu(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func formatLocal(t time.Time) string {
	return t.Format("20060102T150405")
}

// escapeText applies the RFC 5545 TEXT escaping rules: backslash
// first, then the structural delimiters, then newlines; bare CR is
// dropped since CRLF is already the line terminator.
func escapeText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, ";", `\;`)
	s = strings.ReplaceAll(s, ",", `\,`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

// foldLine wraps a content line at 75 octets per RFC 5545 §3.1,
// counting UTF-8 bytes rather than runes so multi-byte Hebrew team
// names fold at a valid boundary.
func foldLine(line string) string {
	if len(line) <= maxLineOctets {
		return line
	}

	var result []string
	var current strings.Builder
	for _, r := range line {
		rb := len(string(r))
		if current.Len()+rb > maxLineOctets {
			result = append(result, current.String())
			current.Reset()
			current.WriteByte(' ')
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return strings.Join(result, crlf)
}
