// Command scrape runs a single full scrape pass against the configured
// Store and exits — the cron-friendly counterpart to the server
// process, which scrapes only on an empty store at startup and on
// refresh requests.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/config"
	"github.com/ibasketcal/core/internal/harvester"
	"github.com/ibasketcal/core/internal/logging"
	"github.com/ibasketcal/core/internal/refresh"
	"github.com/ibasketcal/core/internal/scrape"
	"github.com/ibasketcal/core/internal/store"
	"github.com/ibasketcal/core/internal/store/edgesql"
	"github.com/ibasketcal/core/internal/store/filedb"
	"github.com/ibasketcal/core/internal/store/rowstore"
	"github.com/ibasketcal/core/internal/upstream"
)

const appName = "ibasketcal-scrape"

func main() {
	dryRun := flag.Bool("dry-run", false, "scrape upstream but skip writing to the store")
	flag.Parse()

	log.Printf("=== %s ===", appName)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(os.Getenv("DEBUG") == "true")
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	upstreamClient := upstream.New(cfg.UpstreamAPIBase, cfg.UpstreamOrigin, logger)
	harvest := harvester.New(cfg.WidgetURL, cfg.UpstreamAPIBase, cfg.ScraperHeadless, logger)
	defer harvest.Close()

	orchestrator := scrape.New(upstreamClient, harvest, cfg.ScrapeGroupConcurrency, logger)
	reporter := &consoleReporter{}

	if *dryRun {
		snap, err := orchestrator.RunFull(ctx, reporter)
		if err != nil {
			log.Fatalf("scrape failed: %v", err)
		}
		log.Printf("dry run complete: %d seasons, %d matches, %d standings rows",
			len(snap.Seasons), len(snap.Matches), len(snap.Standings))
		return
	}

	controller := refresh.New(st, orchestrator, cfg.RefreshCooldown, logger)
	if err := controller.RequestRefresh(ctx); err != nil {
		log.Fatalf("refresh failed: %v", err)
	}

	log.Println("scrape complete")
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

type consoleReporter struct{}

func (c *consoleReporter) OnProgress(p scrape.Progress) {
	log.Printf("season %s: %d/%d groups done", p.CurrentSeason, p.GroupsDone, p.GroupsTotal)
}

func (c *consoleReporter) OnError(err error) {
	log.Printf("scrape error: %v", err)
}
