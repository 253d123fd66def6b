// Package filedb is the embedded Store backend: a single SQLite file
// under Config.DataDir, opened WAL-mode via mattn/go-sqlite3 and
// jmoiron/sqlx. It is the default backend and the one exercised by the
// one-process, single-machine deployment.
package filedb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/domain"
	"github.com/ibasketcal/core/internal/errs"
)

// DB wraps a *sqlx.DB opened against a file under dataDir.
type DB struct {
	conn    *sqlx.DB
	path    string
	log     *zap.Logger
}

// Open creates dataDir if needed and opens (or initializes) the
// database file inside it.
func Open(ctx context.Context, dataDir string, log *zap.Logger) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "filedb: create data dir")
	}
	path := filepath.Join(dataDir, "ibasketcal.db")

	conn, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "filedb: open")
	}
	conn.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "filedb: apply %q", pragma)
		}
	}

	db := &DB{conn: conn, path: path, log: log}
	if err := db.initSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS seasons (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	start_date TEXT,
	end_date TEXT,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS competitions (
	id TEXT PRIMARY KEY,
	season_id TEXT NOT NULL,
	name TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS groups (
	id TEXT PRIMARY KEY,
	competition_id TEXT NOT NULL,
	season_id TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS matches (
	id TEXT PRIMARY KEY,
	season_id TEXT,
	competition_id TEXT,
	competition_name TEXT,
	group_id TEXT,
	group_name TEXT,
	home_team_id TEXT,
	home_team_name TEXT,
	away_team_id TEXT,
	away_team_name TEXT,
	date TEXT,
	status TEXT,
	home_score INTEGER,
	away_score INTEGER,
	venue TEXT,
	venue_address TEXT,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	logo TEXT
);
CREATE TABLE IF NOT EXISTS standings (
	group_id TEXT NOT NULL,
	team_id TEXT NOT NULL,
	position INTEGER,
	data TEXT NOT NULL,
	PRIMARY KEY (group_id, team_id)
);
CREATE INDEX IF NOT EXISTS idx_matches_season ON matches(season_id);
CREATE INDEX IF NOT EXISTS idx_matches_competition ON matches(competition_name);
CREATE INDEX IF NOT EXISTS idx_matches_group ON matches(group_id);
CREATE INDEX IF NOT EXISTS idx_matches_date ON matches(date);
CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);
CREATE INDEX IF NOT EXISTS idx_matches_home_team ON matches(home_team_name);
CREATE INDEX IF NOT EXISTS idx_matches_away_team ON matches(away_team_name);
CREATE INDEX IF NOT EXISTS idx_groups_season ON groups(season_id);
CREATE INDEX IF NOT EXISTS idx_competitions_season ON competitions(season_id);
`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "filedb: init schema")
	}
	return nil
}

func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return errors.Mark(errors.Wrap(err, "filedb: ping"), errs.ErrStoreUnavailable)
	}
	return nil
}

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) DatabaseSizeBytes(ctx context.Context) (*int64, error) {
	info, err := os.Stat(db.path)
	if err != nil {
		if os.IsNotExist(err) {
			var zero int64
			return &zero, nil
		}
		return nil, errors.Wrap(err, "filedb: stat")
	}
	size := info.Size()
	return &size, nil
}

func (db *DB) Vacuum(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "VACUUM")
	return errors.Wrap(err, "filedb: vacuum")
}

func (db *DB) ClearAll(ctx context.Context) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"standings", "matches", "teams", "groups", "competitions", "seasons"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM metadata WHERE key IN (?, ?)",
			domain.MetaKeyLastScrapeCompletedAt, domain.MetaKeyLastMatchScrapeAt)
		return err
	})
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "filedb: begin tx")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "filedb: commit")
}

func (db *DB) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM metadata WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "filedb: get metadata")
	}
	return value, true, nil
}

func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	return errors.Wrap(err, "filedb: set metadata")
}

func (db *DB) ListSeasons(ctx context.Context) ([]domain.Season, error) {
	rows, err := db.conn.QueryxContext(ctx, "SELECT id, name, start_date, end_date, data FROM seasons ORDER BY name DESC")
	if err != nil {
		return nil, errors.Wrap(err, "filedb: list seasons")
	}
	defer rows.Close()

	var out []domain.Season
	for rows.Next() {
		var (
			id, name           string
			startDate, endDate sql.NullString
			raw                string
		)
		if err := rows.Scan(&id, &name, &startDate, &endDate, &raw); err != nil {
			return nil, errors.Wrap(err, "filedb: scan season")
		}
		out = append(out, domain.Season{
			ID:        id,
			Name:      name,
			StartDate: parseDateOrZero(startDate.String),
			EndDate:   parseDateOrZero(endDate.String),
			Raw:       []byte(raw),
		})
	}
	return out, rows.Err()
}

func (db *DB) ListCompetitions(ctx context.Context, seasonID string) ([]domain.Competition, error) {
	rows, err := db.conn.QueryxContext(ctx,
		"SELECT id, season_id, name, data FROM competitions WHERE season_id = ? ORDER BY name", seasonID)
	if err != nil {
		return nil, errors.Wrap(err, "filedb: list competitions")
	}
	defer rows.Close()

	var out []domain.Competition
	for rows.Next() {
		var c domain.Competition
		var raw string
		if err := rows.Scan(&c.ID, &c.SeasonID, &c.Name, &raw); err != nil {
			return nil, errors.Wrap(err, "filedb: scan competition")
		}
		c.Raw = []byte(raw)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) ListGroups(ctx context.Context, competitionID string) ([]domain.Group, error) {
	rows, err := db.conn.QueryxContext(ctx,
		"SELECT id, competition_id, season_id, name, type, data FROM groups WHERE competition_id = ? ORDER BY name", competitionID)
	if err != nil {
		return nil, errors.Wrap(err, "filedb: list groups")
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var g domain.Group
		var raw string
		var gtype sql.NullString
		if err := rows.Scan(&g.ID, &g.CompetitionID, &g.SeasonID, &g.Name, &gtype, &raw); err != nil {
			return nil, errors.Wrap(err, "filedb: scan group")
		}
		g.Type = domain.GroupType(gtype.String)
		g.Raw = []byte(raw)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (db *DB) ListGroupIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := db.conn.SelectContext(ctx, &ids, "SELECT id FROM groups ORDER BY id")
	return ids, errors.Wrap(err, "filedb: list group ids")
}

func (db *DB) ListTeamIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := db.conn.SelectContext(ctx, &ids, "SELECT id FROM teams ORDER BY id")
	return ids, errors.Wrap(err, "filedb: list team ids")
}

func (db *DB) ListTeams(ctx context.Context, groupID string) ([]domain.Team, error) {
	var rows *sqlx.Rows
	var err error
	if groupID == "" {
		rows, err = db.conn.QueryxContext(ctx, "SELECT id, name, logo FROM teams ORDER BY name")
	} else {
		query := "SELECT DISTINCT t.id, t.name, t.logo FROM teams t JOIN matches m ON (t.id = m.home_team_id OR t.id = m.away_team_id) WHERE m.group_id = ? ORDER BY t.name"
		rows, err = db.conn.QueryxContext(ctx, query, groupID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "filedb: list teams")
	}
	defer rows.Close()

	var out []domain.Team
	for rows.Next() {
		var t domain.Team
		var logo sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &logo); err != nil {
			return nil, errors.Wrap(err, "filedb: scan team")
		}
		t.LogoURL = logo.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	domain.SortTeams(out)
	return out, nil
}

func (db *DB) ListStandings(ctx context.Context, groupID string) ([]domain.Standing, error) {
	rows, err := db.conn.QueryxContext(ctx,
		"SELECT group_id, team_id, position, data FROM standings WHERE group_id = ? ORDER BY position", groupID)
	if err != nil {
		return nil, errors.Wrap(err, "filedb: list standings")
	}
	defer rows.Close()

	var out []domain.Standing
	for rows.Next() {
		var s domain.Standing
		var raw string
		var pos sql.NullInt64
		if err := rows.Scan(&s.GroupID, &s.TeamID, &pos, &raw); err != nil {
			return nil, errors.Wrap(err, "filedb: scan standing")
		}
		s.Position = int(pos.Int64)
		s.Raw = []byte(raw)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) FindMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, season_id, competition_id, competition_name, group_id, group_name,
		home_team_id, home_team_name, away_team_id, away_team_name, date, status,
		home_score, away_score, venue, venue_address, data FROM matches WHERE 1=1`)
	var args []interface{}

	if filter.SeasonID != "" {
		b.WriteString(" AND season_id = ?")
		args = append(args, filter.SeasonID)
	}
	if filter.GroupID != "" {
		b.WriteString(" AND group_id = ?")
		args = append(args, filter.GroupID)
	} else if filter.CompetitionName != "" {
		b.WriteString(" AND competition_name LIKE ? COLLATE NOCASE")
		args = append(args, "%"+filter.CompetitionName+"%")
	}
	if filter.TeamID != "" {
		b.WriteString(" AND (home_team_id = ? OR away_team_id = ?)")
		args = append(args, filter.TeamID, filter.TeamID)
	} else if filter.TeamName != "" {
		b.WriteString(" AND (home_team_name LIKE ? COLLATE NOCASE OR away_team_name LIKE ? COLLATE NOCASE)")
		args = append(args, "%"+filter.TeamName+"%", "%"+filter.TeamName+"%")
	}
	if filter.Status != "" {
		b.WriteString(" AND status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.DateFrom.IsZero() {
		b.WriteString(" AND date >= ?")
		args = append(args, filter.DateFrom.UTC().Format(time.RFC3339))
	}
	if !filter.DateTo.IsZero() {
		b.WriteString(" AND date <= ?")
		args = append(args, filter.DateTo.UTC().Format(time.RFC3339))
	}
	b.WriteString(" ORDER BY date ASC")

	rows, err := db.conn.QueryxContext(ctx, b.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "filedb: find matches")
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMatch(rows *sqlx.Rows) (domain.Match, error) {
	var (
		m                             domain.Match
		dateStr, status               sql.NullString
		homeScore, awayScore          sql.NullInt64
		venue, venueAddress           sql.NullString
		raw                           string
	)
	if err := rows.Scan(&m.ID, &m.SeasonID, &m.CompetitionID, &m.CompetitionName, &m.GroupID, &m.GroupName,
		&m.HomeTeamID, &m.HomeTeamName, &m.AwayTeamID, &m.AwayTeamName, &dateStr, &status,
		&homeScore, &awayScore, &venue, &venueAddress, &raw); err != nil {
		return m, errors.Wrap(err, "filedb: scan match")
	}
	m.Date = parseDateOrZero(dateStr.String)
	m.Status = domain.MatchStatus(status.String)
	if homeScore.Valid {
		v := int(homeScore.Int64)
		m.HomeScore = &v
	}
	if awayScore.Valid {
		v := int(awayScore.Int64)
		m.AwayScore = &v
	}
	m.Venue = venue.String
	m.VenueAddress = venueAddress.String
	m.Raw = []byte(raw)
	return m, nil
}

func parseDateOrZero(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}

// BulkReplace swaps the entire entity graph in one transaction. SQLite's
// transaction isolation gives readers either the pre- or post-image,
// never a mix, satisfying the atomicity requirement without any extra
// locking on our part.
func (db *DB) BulkReplace(ctx context.Context, snap domain.Snapshot) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"standings", "matches", "teams", "groups", "competitions", "seasons"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		if err := insertSeasons(ctx, tx, snap.Seasons); err != nil {
			return err
		}
		if err := insertCompetitions(ctx, tx, snap.Competitions); err != nil {
			return err
		}
		if err := insertGroups(ctx, tx, snap.Groups); err != nil {
			return err
		}
		if err := insertTeams(ctx, tx, snap.Teams); err != nil {
			return err
		}
		if err := insertMatches(ctx, tx, snap.Matches); err != nil {
			return err
		}
		if err := insertStandings(ctx, tx, snap.Standings); err != nil {
			return err
		}
		return nil
	})
}

func (db *DB) UpsertMatchesOnly(ctx context.Context, groupID string, matches []domain.Match) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		return insertMatches(ctx, tx, matches)
	})
}

func insertSeasons(ctx context.Context, tx *sqlx.Tx, seasons []domain.Season) error {
	stmt := `INSERT OR REPLACE INTO seasons (id, name, start_date, end_date, data) VALUES (?, ?, ?, ?, ?)`
	for _, s := range seasons {
		if _, err := tx.ExecContext(ctx, stmt, s.ID, s.Name, formatDateOrNil(s.StartDate), formatDateOrNil(s.EndDate), string(s.Raw)); err != nil {
			return errors.Wrap(err, "filedb: insert season")
		}
	}
	return nil
}

func insertCompetitions(ctx context.Context, tx *sqlx.Tx, comps []domain.Competition) error {
	stmt := `INSERT OR REPLACE INTO competitions (id, season_id, name, data) VALUES (?, ?, ?, ?)`
	for _, c := range comps {
		if _, err := tx.ExecContext(ctx, stmt, c.ID, c.SeasonID, c.Name, string(c.Raw)); err != nil {
			return errors.Wrap(err, "filedb: insert competition")
		}
	}
	return nil
}

func insertGroups(ctx context.Context, tx *sqlx.Tx, groups []domain.Group) error {
	stmt := `INSERT OR REPLACE INTO groups (id, competition_id, season_id, name, type, data) VALUES (?, ?, ?, ?, ?, ?)`
	for _, g := range groups {
		if _, err := tx.ExecContext(ctx, stmt, g.ID, g.CompetitionID, g.SeasonID, g.Name, string(g.Type), string(g.Raw)); err != nil {
			return errors.Wrap(err, "filedb: insert group")
		}
	}
	return nil
}

func insertTeams(ctx context.Context, tx *sqlx.Tx, teams []domain.Team) error {
	stmt := `INSERT OR REPLACE INTO teams (id, name, logo) VALUES (?, ?, ?)`
	for _, t := range teams {
		if _, err := tx.ExecContext(ctx, stmt, t.ID, t.Name, t.LogoURL); err != nil {
			return errors.Wrap(err, "filedb: insert team")
		}
	}
	return nil
}

func insertMatches(ctx context.Context, tx *sqlx.Tx, matches []domain.Match) error {
	stmt := `INSERT OR REPLACE INTO matches
		(id, season_id, competition_id, competition_name, group_id, group_name,
		 home_team_id, home_team_name, away_team_id, away_team_name,
		 date, status, home_score, away_score, venue, venue_address, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, m := range matches {
		if m.ID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt,
			m.ID, m.SeasonID, m.CompetitionID, m.CompetitionName, m.GroupID, m.GroupName,
			m.HomeTeamID, m.HomeTeamName, m.AwayTeamID, m.AwayTeamName,
			formatDateOrNil(m.Date), string(m.Status), scorePtr(m.HomeScore), scorePtr(m.AwayScore),
			m.Venue, m.VenueAddress, string(m.Raw)); err != nil {
			return errors.Wrap(err, "filedb: insert match")
		}
	}
	return nil
}

func insertStandings(ctx context.Context, tx *sqlx.Tx, standings []domain.Standing) error {
	stmt := `INSERT OR REPLACE INTO standings (group_id, team_id, position, data) VALUES (?, ?, ?, ?)`
	for _, s := range standings {
		if s.TeamID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt, s.GroupID, s.TeamID, s.Position, string(s.Raw)); err != nil {
			return errors.Wrap(err, "filedb: insert standing")
		}
	}
	return nil
}

func formatDateOrNil(t time.Time) interface{} {
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
