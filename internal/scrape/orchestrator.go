// Package scrape walks the upstream entity graph — seasons,
// competitions, groups, matches, standings — and assembles a
// domain.Snapshot for one scrape pass. Per-group fetches fan out over
// a bounded worker pool; the orchestrator retries exactly once on
// AuthExpired by re-harvesting a token.
package scrape

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/domain"
	"github.com/ibasketcal/core/internal/errs"
	"github.com/ibasketcal/core/internal/harvester"
	"github.com/ibasketcal/core/internal/upstream"
)

const totalScrapeTimeout = 15 * time.Minute

// Progress is delivered to a Reporter as the orchestrator walks
// groups.
type Progress struct {
	CurrentSeason string
	GroupsDone    int
	GroupsTotal   int
}

// Reporter receives progress callbacks. Any method may be nil-checked
// away by passing NoopReporter{}.
type Reporter interface {
	OnProgress(p Progress)
	OnError(err error)
}

// NoopReporter discards all callbacks.
type NoopReporter struct{}

func (NoopReporter) OnProgress(Progress) {}
func (NoopReporter) OnError(error)       {}

// Orchestrator runs one full scrape pass end to end.
type Orchestrator struct {
	upstreamClient *upstream.Client
	harvest        *harvester.Harvester
	concurrency    int
	log            *zap.Logger
}

// New builds an Orchestrator with the given per-group fan-out width.
func New(upstreamClient *upstream.Client, harvest *harvester.Harvester, concurrency int, log *zap.Logger) *Orchestrator {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Orchestrator{upstreamClient: upstreamClient, harvest: harvest, concurrency: concurrency, log: log}
}

// groupTask is one unit of fan-out work: fetch calendar+standings for
// a single group, enriched with its parent names.
type groupTask struct {
	seasonID        string
	competitionID   string
	competitionName string
	groupID         string
	groupName       string
	groupType       domain.GroupType
}

// RunFull walks every season and competition and fetches every
// group's calendar and standings, returning a complete snapshot.
func (o *Orchestrator) RunFull(ctx context.Context, reporter Reporter) (domain.Snapshot, error) {
	if reporter == nil {
		reporter = NoopReporter{}
	}
	ctx, cancel := context.WithTimeout(ctx, totalScrapeTimeout)
	defer cancel()

	token, err := o.harvest.Acquire(ctx)
	if err != nil {
		return domain.Snapshot{}, errors.Wrap(err, "scrape: acquire token")
	}

	snap := domain.Snapshot{}

	seasonsResult, err := o.withReauth(ctx, &token, func(tok string) (interface{}, error) {
		comps, raws, err := o.upstreamClient.FetchSeasons(ctx, tok)
		return seasonsPair{comps, raws}, err
	})
	if err != nil {
		return domain.Snapshot{}, errors.Wrap(err, "scrape: fetch seasons")
	}
	seasonPair := seasonsResult.(seasonsPair)
	wireSeasons := seasonPair.seasons

	var tasks []groupTask
	for i, s := range wireSeasons {
		snap.Seasons = append(snap.Seasons, domain.Season{
			ID:        s.ID,
			Name:      s.Name,
			StartDate: parseLenient(s.StartDate),
			EndDate:   parseLenient(s.EndDate),
			Raw:       seasonPair.raws[i],
		})

		compsResult, err := o.withReauth(ctx, &token, func(tok string) (interface{}, error) {
			comps, raws, err := o.upstreamClient.FetchCompetitions(ctx, tok, s.ID)
			return competitionsPair{comps, raws}, err
		})
		if err != nil {
			reporter.OnError(errors.Wrapf(err, "scrape: fetch competitions for season %s", s.ID))
			continue
		}
		pair := compsResult.(competitionsPair)
		comps := pair.competitions
		rawComps := pair.raws

		for j, c := range comps {
			snap.Competitions = append(snap.Competitions, domain.Competition{
				ID: c.ID, SeasonID: s.ID, Name: c.Name, Raw: rawComps[j],
			})
			for _, g := range c.Groups {
				if g.ID == "" {
					continue
				}
				gtype := classifyGroupType(g.Type)
				groupJSON, _ := json.Marshal(g)
				snap.Groups = append(snap.Groups, domain.Group{
					ID: g.ID, CompetitionID: c.ID, SeasonID: s.ID, Name: g.Name, Type: gtype, Raw: groupJSON,
				})
				tasks = append(tasks, groupTask{
					seasonID: s.ID, competitionID: c.ID, competitionName: c.Name,
					groupID: g.ID, groupName: g.Name, groupType: gtype,
				})
			}
		}
	}

	matches, standings, err := o.fanOutGroups(ctx, &token, tasks, reporter)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Matches = matches
	snap.Standings = standings

	teamSet := map[string]domain.Team{}
	for _, m := range snap.Matches {
		if m.HomeTeamID != "" {
			teamSet[m.HomeTeamID] = domain.Team{ID: m.HomeTeamID, Name: m.HomeTeamName}
		}
		if m.AwayTeamID != "" {
			teamSet[m.AwayTeamID] = domain.Team{ID: m.AwayTeamID, Name: m.AwayTeamName}
		}
	}
	for _, t := range teamSet {
		snap.Teams = append(snap.Teams, t)
	}

	return snap, nil
}

type seasonsPair struct {
	seasons []upstream.WireSeason
	raws    []json.RawMessage
}

type competitionsPair struct {
	competitions []upstream.WireCompetition
	raws         []json.RawMessage
}

// withReauth calls fn with the current token; on errs.ErrAuthExpired it
// harvests exactly one replacement token and retries once.
func (o *Orchestrator) withReauth(ctx context.Context, token *string, fn func(tok string) (interface{}, error)) (interface{}, error) {
	v, err := fn(*token)
	if errors.Is(err, errs.ErrAuthExpired) {
		newTok, reauthErr := o.harvest.Acquire(ctx)
		if reauthErr != nil {
			return nil, errors.Wrap(reauthErr, "scrape: re-harvest token")
		}
		*token = newTok
		v, err = fn(*token)
	}
	return v, err
}

func (o *Orchestrator) fanOutGroups(ctx context.Context, token *string, tasks []groupTask, reporter Reporter) ([]domain.Match, []domain.Standing, error) {
	var (
		mu        sync.Mutex
		allMatch  []domain.Match
		allStand  []domain.Standing
		done      int
		tokenLock sync.Mutex
	)

	pool, err := ants.NewPool(o.concurrency)
	if err != nil {
		return nil, nil, errors.Wrap(err, "scrape: build worker pool")
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, t := range tasks {
		t := t
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			tokenLock.Lock()
			tok := *token
			tokenLock.Unlock()

			matches, standings, err := o.fetchGroup(ctx, &tok, t)

			tokenLock.Lock()
			*token = tok
			tokenLock.Unlock()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				reporter.OnError(errors.Wrapf(err, "scrape: group %s", t.groupID))
			} else {
				allMatch = append(allMatch, matches...)
				allStand = append(allStand, standings...)
			}
			done++
			reporter.OnProgress(Progress{CurrentSeason: t.seasonID, GroupsDone: done, GroupsTotal: len(tasks)})
		})
		if submitErr != nil {
			wg.Done()
			reporter.OnError(errors.Wrap(submitErr, "scrape: submit group task"))
		}
	}
	wg.Wait()

	return allMatch, allStand, nil
}

// GroupRefreshRequest identifies the single group a match-only refresh
// should re-fetch, with the parent names needed to enrich each match.
type GroupRefreshRequest struct {
	SeasonID        string
	CompetitionID   string
	CompetitionName string
	GroupID         string
	GroupName       string
}

// RunGroup re-fetches one group's calendar and standings without
// walking the rest of the entity graph, the cheaper path behind a
// match-only refresh request.
func (o *Orchestrator) RunGroup(ctx context.Context, req GroupRefreshRequest) ([]domain.Match, []domain.Standing, error) {
	token, err := o.harvest.Acquire(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "scrape: acquire token")
	}
	return o.fetchGroup(ctx, &token, groupTask{
		seasonID:        req.SeasonID,
		competitionID:   req.CompetitionID,
		competitionName: req.CompetitionName,
		groupID:         req.GroupID,
		groupName:       req.GroupName,
	})
}

func (o *Orchestrator) fetchGroup(ctx context.Context, token *string, t groupTask) ([]domain.Match, []domain.Standing, error) {
	cal, err := o.upstreamClient.FetchCalendar(ctx, *token, t.groupID)
	if errors.Is(err, errs.ErrAuthExpired) {
		newTok, reauthErr := o.harvest.Acquire(ctx)
		if reauthErr != nil {
			return nil, nil, errors.Wrap(reauthErr, "scrape: re-harvest token mid-fanout")
		}
		*token = newTok
		cal, err = o.upstreamClient.FetchCalendar(ctx, *token, t.groupID)
	}
	if err != nil {
		return nil, nil, err
	}

	var matches []domain.Match
	for _, round := range cal.Rounds {
		for _, raw := range round.Matches {
			m, err := decodeMatch(raw, t)
			if err != nil {
				continue
			}
			matches = append(matches, m)
		}
	}

	rawStandings, err := o.upstreamClient.FetchStandings(ctx, *token, t.groupID)
	if err != nil {
		return matches, nil, nil // standings are best-effort, per upstream's own empty-on-failure behavior
	}
	var standings []domain.Standing
	for _, raw := range rawStandings {
		var s struct {
			TeamID   string `json:"teamId"`
			Position int    `json:"position"`
		}
		if err := json.Unmarshal(raw, &s); err != nil || s.TeamID == "" {
			continue
		}
		standings = append(standings, domain.Standing{GroupID: t.groupID, TeamID: s.TeamID, Position: s.Position, Raw: raw})
	}
	return matches, standings, nil
}

type wireTeam struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}

type wireScoreTotal struct {
	TeamID string `json:"teamId"`
	Total  *int   `json:"total"`
}

type wireMatch struct {
	ID        string   `json:"id"`
	Date      string   `json:"date"`
	Status    string   `json:"status"`
	HomeTeam  wireTeam `json:"homeTeam"`
	AwayTeam  wireTeam `json:"awayTeam"`
	Court     struct {
		Place   string `json:"place"`
		Address string `json:"address"`
	} `json:"court"`
	Score struct {
		Totals []wireScoreTotal `json:"totals"`
	} `json:"score"`
}

func decodeMatch(raw json.RawMessage, t groupTask) (domain.Match, error) {
	var wm wireMatch
	if err := json.Unmarshal(raw, &wm); err != nil {
		return domain.Match{}, err
	}
	if wm.ID == "" {
		return domain.Match{}, errors.New("scrape: match missing id")
	}

	m := domain.Match{
		ID:              wm.ID,
		SeasonID:        t.seasonID,
		CompetitionID:   t.competitionID,
		CompetitionName: t.competitionName,
		GroupID:         t.groupID,
		GroupName:       t.groupName,
		HomeTeamID:      wm.HomeTeam.ID,
		HomeTeamName:    wm.HomeTeam.Name,
		AwayTeamID:      wm.AwayTeam.ID,
		AwayTeamName:    wm.AwayTeam.Name,
		Date:            parseLenient(wm.Date),
		Status:          classifyStatus(wm.Status),
		Venue:           wm.Court.Place,
		VenueAddress:    wm.Court.Address,
		Raw:             raw,
	}
	for _, total := range wm.Score.Totals {
		switch total.TeamID {
		case wm.HomeTeam.ID:
			m.HomeScore = total.Total
		case wm.AwayTeam.ID:
			m.AwayScore = total.Total
		}
	}
	return m, nil
}

func classifyStatus(s string) domain.MatchStatus {
	switch s {
	case "LIVE":
		return domain.StatusLive
	case "CLOSED", "FINISHED":
		return domain.StatusClosed
	case "CANCELLED", "CANCELED":
		return domain.StatusCancelled
	default:
		return domain.StatusNotStarted
	}
}

func classifyGroupType(s string) domain.GroupType {
	switch s {
	case "PLAYOFF", "PLAYOFFS":
		return domain.GroupTypePlayoff
	case "LEAGUE", "REGULAR":
		return domain.GroupTypeLeague
	default:
		return domain.GroupTypeOther
	}
}

func parseLenient(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.000Z", s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}
