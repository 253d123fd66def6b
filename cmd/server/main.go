// Command server runs the HTTP-facing process: it opens the configured
// Store backend, wires the query layer, refresh controller and HTTP
// binding, ensures a first scrape on an empty store, and serves until
// interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/config"
	"github.com/ibasketcal/core/internal/harvester"
	"github.com/ibasketcal/core/internal/httpapi"
	"github.com/ibasketcal/core/internal/logging"
	"github.com/ibasketcal/core/internal/query"
	"github.com/ibasketcal/core/internal/refresh"
	"github.com/ibasketcal/core/internal/scrape"
	"github.com/ibasketcal/core/internal/store"
	"github.com/ibasketcal/core/internal/store/edgesql"
	"github.com/ibasketcal/core/internal/store/filedb"
	"github.com/ibasketcal/core/internal/store/rowstore"
	"github.com/ibasketcal/core/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(os.Getenv("DEBUG") == "true")
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting ibasketcal server", zap.String("db_type", string(cfg.DBType)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	upstreamClient := upstream.New(cfg.UpstreamAPIBase, cfg.UpstreamOrigin, logger)
	harvest := harvester.New(cfg.WidgetURL, cfg.UpstreamAPIBase, cfg.ScraperHeadless, logger)
	defer harvest.Close()

	orchestrator := scrape.New(upstreamClient, harvest, cfg.ScrapeGroupConcurrency, logger)
	refreshController := refresh.New(st, orchestrator, cfg.RefreshCooldown, logger)

	queryLayer, err := query.New(st, cfg.RedisURL, cfg.CacheTTL, cfg.MatchCacheTTL, logger)
	if err != nil {
		logger.Fatal("query layer", zap.Error(err))
	}
	defer queryLayer.Close()

	go func() {
		if err := refreshController.EnsureFresh(ctx); err != nil {
			logger.Warn("initial scrape failed, continuing with empty store", zap.Error(err))
		}
	}()

	httpServer := httpapi.NewServer(cfg, queryLayer, refreshController, logger)
	go func() {
		logger.Info("http server listening", zap.String("port", cfg.HTTPPort))
		if err := httpServer.Start(); err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.DBType {
	case config.DBTypeRowStore:
		return rowstore.Open(ctx, cfg.RowStoreDSN, logger)
	case config.DBTypeEdgeSQL:
		return edgesql.Open(cfg.EdgeSQLURL, cfg.EdgeSQLToken, logger), nil
	default:
		return filedb.Open(ctx, cfg.DataDir, logger)
	}
}
