// Package httpapi is the thin HTTP binding over the query layer, the
// refresh controller and the ics assembler. It never touches a Store
// directly.
package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/config"
	"github.com/ibasketcal/core/internal/query"
	"github.com/ibasketcal/core/internal/refresh"
)

// Server is the process's external HTTP listener.
type Server struct {
	httpServer *http.Server
}

// NewServer wires the router: health, listing endpoints, match search,
// the .ics feed, cache introspection and refresh control.
func NewServer(cfg *config.Config, q *query.Layer, rc *refresh.Controller, log *zap.Logger) *Server {
	h := &Handler{query: q, refresh: rc, cfg: cfg, log: log}

	router := mux.NewRouter()
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware)

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/seasons", h.ListSeasons).Methods(http.MethodGet)
	api.HandleFunc("/competitions", h.ListCompetitions).Methods(http.MethodGet)
	api.HandleFunc("/groups", h.ListGroups).Methods(http.MethodGet)
	api.HandleFunc("/teams", h.ListTeams).Methods(http.MethodGet)
	api.HandleFunc("/matches", h.FindMatches).Methods(http.MethodGet)
	api.HandleFunc("/standings", h.ListStandings).Methods(http.MethodGet)
	api.HandleFunc("/cache-info", h.CacheInfo).Methods(http.MethodGet)
	api.HandleFunc("/refresh", h.RequestRefresh).Methods(http.MethodPost)
	api.HandleFunc("/refresh/status", h.RefreshStatus).Methods(http.MethodGet)

	router.HandleFunc("/calendar.ics", h.Calendar).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
			Handler: tracingMiddleware(router),
		},
	}
}

// Start blocks serving HTTP until the listener fails or is shut down.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
