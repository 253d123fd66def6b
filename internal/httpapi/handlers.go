package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/config"
	"github.com/ibasketcal/core/internal/domain"
	"github.com/ibasketcal/core/internal/errs"
	"github.com/ibasketcal/core/internal/ics"
	"github.com/ibasketcal/core/internal/query"
	"github.com/ibasketcal/core/internal/refresh"
)

// Handler holds the dependencies every route needs: the read layer, the
// refresh controller, and static config for things like the app title
// baked into the calendar's X-WR-CALNAME.
type Handler struct {
	query   *query.Layer
	refresh *refresh.Controller
	cfg     *config.Config
	log     *zap.Logger
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListSeasons(w http.ResponseWriter, r *http.Request) {
	seasons, err := h.query.ListSeasons(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"seasons": seasons})
}

func (h *Handler) ListCompetitions(w http.ResponseWriter, r *http.Request) {
	seasonID := r.URL.Query().Get("season")
	if seasonID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter 'season'", nil)
		return
	}
	competitions, err := h.query.ListCompetitions(r.Context(), seasonID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"competitions": competitions})
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	competitionID := r.URL.Query().Get("competition")
	if competitionID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter 'competition'", nil)
		return
	}
	groups, err := h.query.ListGroups(r.Context(), competitionID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter 'group_id'", nil)
		return
	}
	teams, err := h.query.ListTeamsForGroup(r.Context(), groupID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"teams": teams})
}

func (h *Handler) ListStandings(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter 'group_id'", nil)
		return
	}
	standings, err := h.query.ListStandings(r.Context(), groupID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"standings": standings})
}

func (h *Handler) FindMatches(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	matches, err := h.query.FindMatches(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"matches": matches, "count": len(matches)})
}

// Calendar renders the filtered match set as an RFC 5545 feed. The
// calendar is deliberately public and unauthenticated, the same as the
// widget's own export — ICS subscriptions are read-only and carry no
// credentials of their own.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	matches, err := h.query.FindMatches(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	opts := ics.Options{
		CalendarName: h.cfg.AppTitle,
		HostID:       h.cfg.HostIdentifier,
		Mode:         ics.ModeSpectator,
		TZID:         r.URL.Query().Get("tz"),
	}
	if r.URL.Query().Get("mode") == string(ics.ModePlayer) {
		opts.Mode = ics.ModePlayer
		if prepStr := r.URL.Query().Get("prep"); prepStr != "" {
			if mins, convErr := strconv.Atoi(prepStr); convErr == nil && mins > 0 && mins <= 240 {
				opts.Prep = time.Duration(mins) * time.Minute
			}
		}
	}

	body, err := ics.Assemble(matches, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not build calendar", err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func (h *Handler) CacheInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.query.CacheInfo(r.Context(), h.cfg.CacheTTL)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *Handler) RequestRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresh.RequestRefresh(r.Context()); err != nil {
		if limited, ok := errs.AsRefreshRateLimited(err); ok {
			w.Header().Set("Retry-After", limited.RetryAfter.String())
			writeError(w, http.StatusTooManyRequests, "refresh already in progress or cooling down", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "refresh failed", err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "refreshed"})
}

func (h *Handler) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.refresh.Status())
}

func filterFromQuery(r *http.Request) domain.MatchFilter {
	q := r.URL.Query()
	filter := domain.MatchFilter{
		SeasonID:        q.Get("season"),
		GroupID:         q.Get("group_id"),
		CompetitionName: q.Get("competition"),
		TeamID:          q.Get("team_id"),
		TeamName:        q.Get("team"),
		Status:          domain.MatchStatus(q.Get("status")),
	}
	return query.ResolveFilter(filter)
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
	case errors.Is(err, errs.ErrSnapshotEmpty):
		writeError(w, http.StatusNotFound, "no data scraped yet", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{"error": message, "status": status}
	if err != nil {
		body["details"] = err.Error()
	}
	json.NewEncoder(w).Encode(body)
}
