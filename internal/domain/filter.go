package domain

import "time"

// MatchFilter configures Store.FindMatches. All fields are optional and
// combined with AND logic. When both an ID and a name filter are present
// for the same dimension, the ID wins — callers should not set both, but
// Store implementations must apply this precedence defensively.
type MatchFilter struct {
	SeasonID        string
	GroupID         string
	CompetitionName string // case-insensitive substring, used only if GroupID is empty
	TeamID          string
	TeamName        string // case-insensitive substring on either side, used only if TeamID is empty
	Status          MatchStatus
	DateFrom        time.Time
	DateTo          time.Time
}

// Snapshot is the full payload of a single scrape pass, handed to
// Store.BulkReplace as one logical transaction.
type Snapshot struct {
	Seasons      []Season
	Competitions []Competition
	Groups       []Group
	Teams        []Team
	Matches      []Match
	Standings    []Standing
}
