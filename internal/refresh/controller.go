// Package refresh is the single-writer scrape controller: it enforces
// one scrape in flight at a time, a cooldown between manual triggers,
// and auto-scrapes once on an empty store regardless of cooldown.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/domain"
	"github.com/ibasketcal/core/internal/errs"
	"github.com/ibasketcal/core/internal/scrape"
	"github.com/ibasketcal/core/internal/store"
)

// Status is the snapshot returned to callers asking whether a refresh
// is in progress.
type Status struct {
	Scraping         bool
	LastCompletedAt  time.Time
	LastError        string
	CooldownDeadline time.Time
}

// Controller is a process-wide singleton; construct exactly one per
// Store and share it across the HTTP layer and any background ticker.
type Controller struct {
	st           store.Store
	orchestrator *scrape.Orchestrator
	cooldown     time.Duration
	log          *zap.Logger

	mu               sync.Mutex
	scraping         bool
	lastCompletedAt  time.Time
	lastError        string
	cooldownDeadline time.Time

	idle chan struct{}
}

// New builds a Controller. cooldown bounds how often RequestRefresh
// may start a new full scrape.
func New(st store.Store, orchestrator *scrape.Orchestrator, cooldown time.Duration, log *zap.Logger) *Controller {
	c := &Controller{st: st, orchestrator: orchestrator, cooldown: cooldown, log: log, idle: make(chan struct{}, 1)}
	c.idle <- struct{}{}
	return c
}

// Status returns a point-in-time snapshot of controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Scraping:         c.scraping,
		LastCompletedAt:  c.lastCompletedAt,
		LastError:        c.lastError,
		CooldownDeadline: c.cooldownDeadline,
	}
}

// EnsureFresh triggers a scrape if the store is empty, bypassing
// cooldown — the documented "auto-scrape on empty store" behavior.
func (c *Controller) EnsureFresh(ctx context.Context) error {
	_, ok, err := store.LastScrapeCompletedAt(ctx, c.st)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return c.runScrape(ctx, true)
}

// RequestRefresh starts a full scrape unless one is already running
// or the cooldown hasn't elapsed, in which case it returns
// errs.RefreshRateLimited with the remaining wait.
func (c *Controller) RequestRefresh(ctx context.Context) error {
	return c.runScrape(ctx, false)
}

func (c *Controller) runScrape(ctx context.Context, bypassCooldown bool) error {
	c.mu.Lock()
	if c.scraping {
		retryAfter := time.Until(c.cooldownDeadline).Round(time.Second)
		c.mu.Unlock()
		return errs.NewRefreshRateLimited(retryAfter)
	}
	if !bypassCooldown && !c.cooldownDeadline.IsZero() && time.Now().Before(c.cooldownDeadline) {
		retryAfter := time.Until(c.cooldownDeadline).Round(time.Second)
		c.mu.Unlock()
		return errs.NewRefreshRateLimited(retryAfter)
	}
	c.scraping = true
	c.cooldownDeadline = time.Now().Add(c.cooldown)
	<-c.idle
	c.mu.Unlock()

	return c.doScrape(ctx)
}

func (c *Controller) doScrape(ctx context.Context) error {
	defer func() {
		c.mu.Lock()
		c.scraping = false
		c.idle <- struct{}{}
		c.mu.Unlock()
	}()

	snap, err := c.orchestrator.RunFull(ctx, scrape.NoopReporter{})
	if err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
		return err
	}
	if len(snap.Matches) == 0 && len(snap.Seasons) == 0 {
		c.mu.Lock()
		c.lastError = errs.ErrSnapshotEmpty.Error()
		c.mu.Unlock()
		return errs.ErrSnapshotEmpty
	}

	if err := c.st.BulkReplace(ctx, snap); err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
		return errors.Wrap(err, "refresh: bulk replace")
	}

	now := time.Now().UTC()
	if err := c.st.SetMetadata(ctx, domain.MetaKeyLastScrapeCompletedAt, now.Format(time.RFC3339)); err != nil {
		return errors.Wrap(err, "refresh: record completion")
	}

	c.mu.Lock()
	c.lastCompletedAt = now
	c.lastError = ""
	c.mu.Unlock()
	return nil
}

// RequestMatchRefresh re-fetches a single group's matches, bypassing
// the full-scrape cooldown and worker pool entirely — the cheaper
// path used when a caller only cares about one competition's
// schedule. It still refuses to run concurrently with a full scrape.
func (c *Controller) RequestMatchRefresh(ctx context.Context, req scrape.GroupRefreshRequest) error {
	c.mu.Lock()
	if c.scraping {
		c.mu.Unlock()
		return errs.NewRefreshRateLimited(c.cooldown)
	}
	c.mu.Unlock()

	matches, _, err := c.orchestrator.RunGroup(ctx, req)
	if err != nil {
		return errors.Wrap(err, "refresh: match refresh")
	}
	if err := c.st.UpsertMatchesOnly(ctx, req.GroupID, matches); err != nil {
		return errors.Wrap(err, "refresh: upsert matches")
	}
	return c.st.SetMetadata(ctx, domain.MetaKeyLastMatchScrapeAt, time.Now().UTC().Format(time.RFC3339))
}

// AwaitIdle blocks until no scrape is in flight, for tests that need a
// deterministic point to assert store state. It does not itself start
// or prevent a scrape.
func (c *Controller) AwaitIdle(ctx context.Context) error {
	for {
		c.mu.Lock()
		scraping := c.scraping
		c.mu.Unlock()
		if !scraping {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}
