// Package edgesql is the remote edge-SQL Store backend: a thin
// net/http JSON client against a hosted SQL-over-HTTP endpoint
// (Turso-style). No Go driver for that wire protocol exists in the
// dependency set available to this module, so the backend talks plain
// JSON over HTTPS the same way internal/upstream talks to the upstream
// basketball API — a remote API client, not a persistence driver.
package edgesql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/domain"
	"github.com/ibasketcal/core/internal/errs"
)

// DB talks to a remote edge-SQL HTTP execute endpoint that accepts a
// single SQL statement plus positional args and returns rows as JSON.
type DB struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

type execRequest struct {
	Statements []statement `json:"statements"`
}

type statement struct {
	SQL  string        `json:"sql"`
	Args []interface{} `json:"args"`
}

type execResponse struct {
	Results []struct {
		Columns []string        `json:"columns"`
		Rows    [][]interface{} `json:"rows"`
	} `json:"results"`
	Error string `json:"error"`
}

// Open returns a DB bound to baseURL with bearer auth token. No network
// call is made here; schema is assumed managed out-of-band for a
// hosted edge database.
func Open(baseURL, token string, log *zap.Logger) *DB {
	return &DB{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

func (db *DB) exec(ctx context.Context, sql string, args ...interface{}) (*execResponse, error) {
	body, err := json.Marshal(execRequest{Statements: []statement{{SQL: sql, Args: args}}})
	if err != nil {
		return nil, errors.Wrap(err, "edgesql: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, db.baseURL+"/v2/pipeline", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "edgesql: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if db.token != "" {
		req.Header.Set("Authorization", "Bearer "+db.token)
	}

	resp, err := db.client.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "edgesql: request"), errs.ErrStoreUnavailable)
	}
	defer resp.Body.Close()

	var out execResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "edgesql: decode response")
	}
	if resp.StatusCode >= 400 || out.Error != "" {
		return nil, errors.Mark(fmt.Errorf("edgesql: remote error status=%d: %s", resp.StatusCode, out.Error), errs.ErrStoreUnavailable)
	}
	return &out, nil
}

func (db *DB) HealthCheck(ctx context.Context) error {
	_, err := db.exec(ctx, "SELECT 1")
	return err
}

func (db *DB) Close() error { return nil }

func (db *DB) DatabaseSizeBytes(ctx context.Context) (*int64, error) {
	return nil, nil // not exposed by the hosted service
}

func (db *DB) Vacuum(ctx context.Context) error {
	_, err := db.exec(ctx, "VACUUM")
	return err
}

func (db *DB) ClearAll(ctx context.Context) error {
	for _, table := range []string{"standings", "matches", "teams", "groups", "competitions", "seasons"} {
		if _, err := db.exec(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	_, err := db.exec(ctx, "DELETE FROM metadata WHERE key IN (?, ?)",
		domain.MetaKeyLastScrapeCompletedAt, domain.MetaKeyLastMatchScrapeAt)
	return err
}

func (db *DB) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	resp, err := db.exec(ctx, "SELECT value FROM metadata WHERE key = ?", key)
	if err != nil {
		return "", false, err
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Rows) == 0 {
		return "", false, nil
	}
	v, _ := resp.Results[0].Rows[0][0].(string)
	return v, true, nil
}

func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := db.exec(ctx, `
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (db *DB) ListGroupIDs(ctx context.Context) ([]string, error) {
	resp, err := db.exec(ctx, "SELECT id FROM groups ORDER BY id")
	if err != nil {
		return nil, err
	}
	return stringColumn(resp, 0), nil
}

func (db *DB) ListTeamIDs(ctx context.Context) ([]string, error) {
	resp, err := db.exec(ctx, "SELECT id FROM teams ORDER BY id")
	if err != nil {
		return nil, err
	}
	return stringColumn(resp, 0), nil
}

func stringColumn(resp *execResponse, col int) []string {
	if len(resp.Results) == 0 {
		return nil
	}
	out := make([]string, 0, len(resp.Results[0].Rows))
	for _, row := range resp.Results[0].Rows {
		if s, ok := row[col].(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// The read methods below each round-trip a single SQL statement and
// decode rows column-by-column the same way GetMetadata does above.
// BulkReplace and UpsertMatchesOnly send one request per statement.
func (db *DB) ListSeasons(ctx context.Context) ([]domain.Season, error) {
	resp, err := db.exec(ctx, "SELECT id, name, start_date, end_date, data FROM seasons ORDER BY name DESC")
	if err != nil {
		return nil, err
	}
	var out []domain.Season
	for _, row := range rowsOf(resp) {
		out = append(out, domain.Season{
			ID:        str(row[0]),
			Name:      str(row[1]),
			StartDate: parseTime(str(row[2])),
			EndDate:   parseTime(str(row[3])),
			Raw:       []byte(str(row[4])),
		})
	}
	return out, nil
}

func (db *DB) ListCompetitions(ctx context.Context, seasonID string) ([]domain.Competition, error) {
	resp, err := db.exec(ctx, "SELECT id, season_id, name, data FROM competitions WHERE season_id = ? ORDER BY name", seasonID)
	if err != nil {
		return nil, err
	}
	var out []domain.Competition
	for _, row := range rowsOf(resp) {
		out = append(out, domain.Competition{ID: str(row[0]), SeasonID: str(row[1]), Name: str(row[2]), Raw: []byte(str(row[3]))})
	}
	return out, nil
}

func (db *DB) ListGroups(ctx context.Context, competitionID string) ([]domain.Group, error) {
	resp, err := db.exec(ctx, "SELECT id, competition_id, season_id, name, type, data FROM groups WHERE competition_id = ? ORDER BY name", competitionID)
	if err != nil {
		return nil, err
	}
	var out []domain.Group
	for _, row := range rowsOf(resp) {
		out = append(out, domain.Group{
			ID: str(row[0]), CompetitionID: str(row[1]), SeasonID: str(row[2]), Name: str(row[3]),
			Type: domain.GroupType(str(row[4])), Raw: []byte(str(row[5])),
		})
	}
	return out, nil
}

func (db *DB) ListTeams(ctx context.Context, groupID string) ([]domain.Team, error) {
	var resp *execResponse
	var err error
	if groupID == "" {
		resp, err = db.exec(ctx, "SELECT id, name, logo FROM teams ORDER BY name")
	} else {
		resp, err = db.exec(ctx,
			"SELECT DISTINCT t.id, t.name, t.logo FROM teams t JOIN matches m ON (t.id = m.home_team_id OR t.id = m.away_team_id) WHERE m.group_id = ? ORDER BY t.name", groupID)
	}
	if err != nil {
		return nil, err
	}
	var out []domain.Team
	for _, row := range rowsOf(resp) {
		out = append(out, domain.Team{ID: str(row[0]), Name: str(row[1]), LogoURL: str(row[2])})
	}
	domain.SortTeams(out)
	return out, nil
}

func (db *DB) ListStandings(ctx context.Context, groupID string) ([]domain.Standing, error) {
	resp, err := db.exec(ctx, "SELECT group_id, team_id, position, data FROM standings WHERE group_id = ? ORDER BY position", groupID)
	if err != nil {
		return nil, err
	}
	var out []domain.Standing
	for _, row := range rowsOf(resp) {
		pos, _ := row[2].(float64)
		out = append(out, domain.Standing{GroupID: str(row[0]), TeamID: str(row[1]), Position: int(pos), Raw: []byte(str(row[3]))})
	}
	return out, nil
}

func (db *DB) FindMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error) {
	sqlStr := `SELECT id, season_id, competition_id, competition_name, group_id, group_name,
		home_team_id, home_team_name, away_team_id, away_team_name, date, status,
		home_score, away_score, venue, venue_address, data FROM matches WHERE 1=1`
	var args []interface{}

	if filter.SeasonID != "" {
		sqlStr += " AND season_id = ?"
		args = append(args, filter.SeasonID)
	}
	if filter.GroupID != "" {
		sqlStr += " AND group_id = ?"
		args = append(args, filter.GroupID)
	} else if filter.CompetitionName != "" {
		sqlStr += " AND competition_name LIKE ?"
		args = append(args, "%"+filter.CompetitionName+"%")
	}
	if filter.TeamID != "" {
		sqlStr += " AND (home_team_id = ? OR away_team_id = ?)"
		args = append(args, filter.TeamID, filter.TeamID)
	} else if filter.TeamName != "" {
		sqlStr += " AND (home_team_name LIKE ? OR away_team_name LIKE ?)"
		args = append(args, "%"+filter.TeamName+"%", "%"+filter.TeamName+"%")
	}
	if filter.Status != "" {
		sqlStr += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if !filter.DateFrom.IsZero() {
		sqlStr += " AND date >= ?"
		args = append(args, filter.DateFrom.UTC().Format(time.RFC3339))
	}
	if !filter.DateTo.IsZero() {
		sqlStr += " AND date <= ?"
		args = append(args, filter.DateTo.UTC().Format(time.RFC3339))
	}
	sqlStr += " ORDER BY date ASC"

	resp, err := db.exec(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}

	var out []domain.Match
	for _, row := range rowsOf(resp) {
		m := domain.Match{
			ID: str(row[0]), SeasonID: str(row[1]), CompetitionID: str(row[2]), CompetitionName: str(row[3]),
			GroupID: str(row[4]), GroupName: str(row[5]), HomeTeamID: str(row[6]), HomeTeamName: str(row[7]),
			AwayTeamID: str(row[8]), AwayTeamName: str(row[9]), Date: parseTime(str(row[10])),
			Status: domain.MatchStatus(str(row[11])), Venue: str(row[14]), VenueAddress: str(row[15]), Raw: []byte(str(row[16])),
		}
		if row[12] != nil {
			v := int(row[12].(float64))
			m.HomeScore = &v
		}
		if row[13] != nil {
			v := int(row[13].(float64))
			m.AwayScore = &v
		}
		out = append(out, m)
	}
	return out, nil
}

func (db *DB) BulkReplace(ctx context.Context, snap domain.Snapshot) error {
	for _, table := range []string{"standings", "matches", "teams", "groups", "competitions", "seasons"} {
		if _, err := db.exec(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	for _, s := range snap.Seasons {
		if _, err := db.exec(ctx, `INSERT INTO seasons (id, name, start_date, end_date, data) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name=excluded.name, start_date=excluded.start_date, end_date=excluded.end_date, data=excluded.data`,
			s.ID, s.Name, formatTimeOrNil(s.StartDate), formatTimeOrNil(s.EndDate), string(s.Raw)); err != nil {
			return err
		}
	}
	for _, c := range snap.Competitions {
		if _, err := db.exec(ctx, `INSERT INTO competitions (id, season_id, name, data) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET season_id=excluded.season_id, name=excluded.name, data=excluded.data`,
			c.ID, c.SeasonID, c.Name, string(c.Raw)); err != nil {
			return err
		}
	}
	for _, g := range snap.Groups {
		if _, err := db.exec(ctx, `INSERT INTO groups (id, competition_id, season_id, name, type, data) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET competition_id=excluded.competition_id, season_id=excluded.season_id, name=excluded.name, type=excluded.type, data=excluded.data`,
			g.ID, g.CompetitionID, g.SeasonID, g.Name, string(g.Type), string(g.Raw)); err != nil {
			return err
		}
	}
	for _, t := range snap.Teams {
		if _, err := db.exec(ctx, `INSERT INTO teams (id, name, logo) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name=excluded.name, logo=excluded.logo`, t.ID, t.Name, t.LogoURL); err != nil {
			return err
		}
	}
	if err := db.UpsertMatchesOnly(ctx, "", snap.Matches); err != nil {
		return err
	}
	for _, s := range snap.Standings {
		if s.TeamID == "" {
			continue
		}
		if _, err := db.exec(ctx, `INSERT INTO standings (group_id, team_id, position, data) VALUES (?, ?, ?, ?)
			ON CONFLICT(group_id, team_id) DO UPDATE SET position=excluded.position, data=excluded.data`,
			s.GroupID, s.TeamID, s.Position, string(s.Raw)); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) UpsertMatchesOnly(ctx context.Context, groupID string, matches []domain.Match) error {
	for _, m := range matches {
		if m.ID == "" {
			continue
		}
		if _, err := db.exec(ctx, `INSERT INTO matches
			(id, season_id, competition_id, competition_name, group_id, group_name,
			 home_team_id, home_team_name, away_team_id, away_team_name,
			 date, status, home_score, away_score, venue, venue_address, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				season_id=excluded.season_id, competition_id=excluded.competition_id, competition_name=excluded.competition_name,
				group_id=excluded.group_id, group_name=excluded.group_name, home_team_id=excluded.home_team_id,
				home_team_name=excluded.home_team_name, away_team_id=excluded.away_team_id, away_team_name=excluded.away_team_name,
				date=excluded.date, status=excluded.status, home_score=excluded.home_score, away_score=excluded.away_score,
				venue=excluded.venue, venue_address=excluded.venue_address, data=excluded.data`,
			m.ID, m.SeasonID, m.CompetitionID, m.CompetitionName, m.GroupID, m.GroupName,
			m.HomeTeamID, m.HomeTeamName, m.AwayTeamID, m.AwayTeamName,
			formatTimeOrNil(m.Date), string(m.Status), scorePtr(m.HomeScore), scorePtr(m.AwayScore),
			m.Venue, m.VenueAddress, string(m.Raw)); err != nil {
			return err
		}
	}
	return nil
}

func rowsOf(resp *execResponse) [][]interface{} {
	if len(resp.Results) == 0 {
		return nil
	}
	return resp.Results[0].Rows
}

func str(v interface{}) string {
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func formatTimeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func scorePtr(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
