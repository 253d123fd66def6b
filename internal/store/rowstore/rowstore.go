// Package rowstore is the Postgres-backed Store, modeled on a managed
// row-store deployment (Supabase-style) reached over a plain DSN.
// Schema changes ship as golang-migrate migrations embedded in the
// binary.
package rowstore

import (
	"context"
	"database/sql"
	"embed"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ibasketcal/core/internal/domain"
	"github.com/ibasketcal/core/internal/errs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the Postgres Store implementation.
type DB struct {
	conn *sqlx.DB
	log  *zap.Logger
}

// Open connects to dsn, tunes the pool the way minerva's database.go
// does, and runs pending migrations before returning.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "rowstore: connect")
	}
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	db := &DB{conn: conn, log: log}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "rowstore: load embedded migrations")
	}
	driver, err := postgres.WithInstance(db.conn.DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "rowstore: migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "rowstore: init migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "rowstore: run migrations")
	}
	return nil
}

func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return errors.Mark(errors.Wrap(err, "rowstore: ping"), errs.ErrStoreUnavailable)
	}
	return nil
}

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) DatabaseSizeBytes(ctx context.Context) (*int64, error) {
	var size int64
	err := db.conn.GetContext(ctx, &size, "SELECT pg_database_size(current_database())")
	if err != nil {
		return nil, errors.Wrap(err, "rowstore: database size")
	}
	return &size, nil
}

func (db *DB) Vacuum(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "VACUUM ANALYZE")
	return errors.Wrap(err, "rowstore: vacuum")
}

func (db *DB) ClearAll(ctx context.Context) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"standings", "matches", "teams", "groups", "competitions", "seasons"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM metadata WHERE key = ANY($1)",
			[]string{domain.MetaKeyLastScrapeCompletedAt, domain.MetaKeyLastMatchScrapeAt})
		return err
	})
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "rowstore: begin tx")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "rowstore: commit")
}

func (db *DB) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM metadata WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "rowstore: get metadata")
	}
	return value, true, nil
}

func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return errors.Wrap(err, "rowstore: set metadata")
}

func (db *DB) ListSeasons(ctx context.Context) ([]domain.Season, error) {
	rows, err := db.conn.QueryxContext(ctx, "SELECT id, name, start_date, end_date, data FROM seasons ORDER BY name DESC")
	if err != nil {
		return nil, errors.Wrap(err, "rowstore: list seasons")
	}
	defer rows.Close()

	var out []domain.Season
	for rows.Next() {
		var (
			id, name string
			start, end sql.NullTime
			raw        datatypes.JSON
		)
		if err := rows.Scan(&id, &name, &start, &end, &raw); err != nil {
			return nil, errors.Wrap(err, "rowstore: scan season")
		}
		out = append(out, domain.Season{ID: id, Name: name, StartDate: start.Time, EndDate: end.Time, Raw: []byte(raw)})
	}
	return out, rows.Err()
}

func (db *DB) ListCompetitions(ctx context.Context, seasonID string) ([]domain.Competition, error) {
	rows, err := db.conn.QueryxContext(ctx,
		"SELECT id, season_id, name, data FROM competitions WHERE season_id = $1 ORDER BY name", seasonID)
	if err != nil {
		return nil, errors.Wrap(err, "rowstore: list competitions")
	}
	defer rows.Close()

	var out []domain.Competition
	for rows.Next() {
		var c domain.Competition
		var raw datatypes.JSON
		if err := rows.Scan(&c.ID, &c.SeasonID, &c.Name, &raw); err != nil {
			return nil, errors.Wrap(err, "rowstore: scan competition")
		}
		c.Raw = []byte(raw)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) ListGroups(ctx context.Context, competitionID string) ([]domain.Group, error) {
	rows, err := db.conn.QueryxContext(ctx,
		"SELECT id, competition_id, season_id, name, type, data FROM groups WHERE competition_id = $1 ORDER BY name", competitionID)
	if err != nil {
		return nil, errors.Wrap(err, "rowstore: list groups")
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var g domain.Group
		var raw datatypes.JSON
		var gtype sql.NullString
		if err := rows.Scan(&g.ID, &g.CompetitionID, &g.SeasonID, &g.Name, &gtype, &raw); err != nil {
			return nil, errors.Wrap(err, "rowstore: scan group")
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
	return ids, errors.Wrap(err, "rowstore: list group ids")
}

func (db *DB) ListTeamIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := db.conn.SelectContext(ctx, &ids, "SELECT id FROM teams ORDER BY id")
	return ids, errors.Wrap(err, "rowstore: list team ids")
}

func (db *DB) ListTeams(ctx context.Context, groupID string) ([]domain.Team, error) {
	var rows *sqlx.Rows
	var err error
	if groupID == "" {
		rows, err = db.conn.QueryxContext(ctx, "SELECT id, name, logo FROM teams ORDER BY name")
	} else {
		rows, err = db.conn.QueryxContext(ctx,
			"SELECT DISTINCT t.id, t.name, t.logo FROM teams t JOIN matches m ON (t.id = m.home_team_id OR t.id = m.away_team_id) WHERE m.group_id = $1 ORDER BY t.name", groupID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "rowstore: list teams")
	}
	defer rows.Close()

	var out []domain.Team
	for rows.Next() {
		var t domain.Team
		var logo sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &logo); err != nil {
			return nil, errors.Wrap(err, "rowstore: scan team")
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
		"SELECT group_id, team_id, position, data FROM standings WHERE group_id = $1 ORDER BY position", groupID)
	if err != nil {
		return nil, errors.Wrap(err, "rowstore: list standings")
	}
	defer rows.Close()

	var out []domain.Standing
	for rows.Next() {
		var s domain.Standing
		var raw datatypes.JSON
		var pos sql.NullInt64
		if err := rows.Scan(&s.GroupID, &s.TeamID, &pos, &raw); err != nil {
			return nil, errors.Wrap(err, "rowstore: scan standing")
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
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.SeasonID != "" {
		b.WriteString(" AND season_id = " + arg(filter.SeasonID))
	}
	if filter.GroupID != "" {
		b.WriteString(" AND group_id = " + arg(filter.GroupID))
	} else if filter.CompetitionName != "" {
		b.WriteString(" AND competition_name ILIKE " + arg("%"+filter.CompetitionName+"%"))
	}
	if filter.TeamID != "" {
		p := arg(filter.TeamID)
		b.WriteString(" AND (home_team_id = " + p + " OR away_team_id = " + p + ")")
	} else if filter.TeamName != "" {
		p := arg("%" + filter.TeamName + "%")
		b.WriteString(" AND (home_team_name ILIKE " + p + " OR away_team_name ILIKE " + p + ")")
	}
	if filter.Status != "" {
		b.WriteString(" AND status = " + arg(string(filter.Status)))
	}
	if !filter.DateFrom.IsZero() {
		b.WriteString(" AND date >= " + arg(filter.DateFrom.UTC()))
	}
	if !filter.DateTo.IsZero() {
		b.WriteString(" AND date <= " + arg(filter.DateTo.UTC()))
	}
	b.WriteString(" ORDER BY date ASC")

	rows, err := db.conn.QueryxContext(ctx, b.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "rowstore: find matches")
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
		m                    domain.Match
		date                 sql.NullTime
		status               sql.NullString
		homeScore, awayScore sql.NullInt64
		venue, venueAddress  sql.NullString
		raw                  datatypes.JSON
	)
	if err := rows.Scan(&m.ID, &m.SeasonID, &m.CompetitionID, &m.CompetitionName, &m.GroupID, &m.GroupName,
		&m.HomeTeamID, &m.HomeTeamName, &m.AwayTeamID, &m.AwayTeamName, &date, &status,
		&homeScore, &awayScore, &venue, &venueAddress, &raw); err != nil {
		return m, errors.Wrap(err, "rowstore: scan match")
	}
	m.Date = date.Time
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

// BulkReplace relies on Postgres's default read-committed isolation: the
// delete+insert runs inside one transaction, so concurrent readers see
// either the full pre-image or the full post-image.
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
		return insertStandings(ctx, tx, snap.Standings)
	})
}

func (db *DB) UpsertMatchesOnly(ctx context.Context, groupID string, matches []domain.Match) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		return insertMatches(ctx, tx, matches)
	})
}

func insertSeasons(ctx context.Context, tx *sqlx.Tx, seasons []domain.Season) error {
	stmt := `INSERT INTO seasons (id, name, start_date, end_date, data) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, start_date = excluded.start_date,
			end_date = excluded.end_date, data = excluded.data`
	for _, s := range seasons {
		if _, err := tx.ExecContext(ctx, stmt, s.ID, s.Name, nullTime(s.StartDate), nullTime(s.EndDate), datatypes.JSON(s.Raw)); err != nil {
			return errors.Wrap(err, "rowstore: insert season")
		}
	}
	return nil
}

func insertCompetitions(ctx context.Context, tx *sqlx.Tx, comps []domain.Competition) error {
	stmt := `INSERT INTO competitions (id, season_id, name, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET season_id = excluded.season_id, name = excluded.name, data = excluded.data`
	for _, c := range comps {
		if _, err := tx.ExecContext(ctx, stmt, c.ID, c.SeasonID, c.Name, datatypes.JSON(c.Raw)); err != nil {
			return errors.Wrap(err, "rowstore: insert competition")
		}
	}
	return nil
}

func insertGroups(ctx context.Context, tx *sqlx.Tx, groups []domain.Group) error {
	stmt := `INSERT INTO groups (id, competition_id, season_id, name, type, data) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET competition_id = excluded.competition_id, season_id = excluded.season_id,
			name = excluded.name, type = excluded.type, data = excluded.data`
	for _, g := range groups {
		if _, err := tx.ExecContext(ctx, stmt, g.ID, g.CompetitionID, g.SeasonID, g.Name, string(g.Type), datatypes.JSON(g.Raw)); err != nil {
			return errors.Wrap(err, "rowstore: insert group")
		}
	}
	return nil
}

func insertTeams(ctx context.Context, tx *sqlx.Tx, teams []domain.Team) error {
	stmt := `INSERT INTO teams (id, name, logo) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, logo = excluded.logo`
	for _, t := range teams {
		if _, err := tx.ExecContext(ctx, stmt, t.ID, t.Name, t.LogoURL); err != nil {
			return errors.Wrap(err, "rowstore: insert team")
		}
	}
	return nil
}

func insertMatches(ctx context.Context, tx *sqlx.Tx, matches []domain.Match) error {
	stmt := `INSERT INTO matches
		(id, season_id, competition_id, competition_name, group_id, group_name,
		 home_team_id, home_team_name, away_team_id, away_team_name,
		 date, status, home_score, away_score, venue, venue_address, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			season_id = excluded.season_id, competition_id = excluded.competition_id,
			competition_name = excluded.competition_name, group_id = excluded.group_id,
			group_name = excluded.group_name, home_team_id = excluded.home_team_id,
			home_team_name = excluded.home_team_name, away_team_id = excluded.away_team_id,
			away_team_name = excluded.away_team_name, date = excluded.date, status = excluded.status,
			home_score = excluded.home_score, away_score = excluded.away_score, venue = excluded.venue,
			venue_address = excluded.venue_address, data = excluded.data`
	for _, m := range matches {
		if m.ID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt,
			m.ID, m.SeasonID, m.CompetitionID, m.CompetitionName, m.GroupID, m.GroupName,
			m.HomeTeamID, m.HomeTeamName, m.AwayTeamID, m.AwayTeamName,
			nullTime(m.Date), string(m.Status), scorePtr(m.HomeScore), scorePtr(m.AwayScore),
			m.Venue, m.VenueAddress, datatypes.JSON(m.Raw)); err != nil {
			return errors.Wrap(err, "rowstore: insert match")
		}
	}
	return nil
}

func insertStandings(ctx context.Context, tx *sqlx.Tx, standings []domain.Standing) error {
	stmt := `INSERT INTO standings (group_id, team_id, position, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, team_id) DO UPDATE SET position = excluded.position, data = excluded.data`
	for _, s := range standings {
		if s.TeamID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt, s.GroupID, s.TeamID, s.Position, datatypes.JSON(s.Raw)); err != nil {
			return errors.Wrap(err, "rowstore: insert standing")
		}
	}
	return nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func scorePtr(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
