// Package harvester drives a headless Chrome instance to the widget
// page and recovers the short-lived bearer token the widget attaches
// to its own API calls, the same interception trick the original
// scraper performed with Playwright route handlers.
package harvester

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ibasketcal/core/internal/errs"
)

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acquireTimeout = 60 * time.Second
	settleWait     = 10 * time.Second
)

// Harvester owns the browser allocator and coalesces concurrent
// acquisitions behind a singleflight.Group, so a scrape that fans out
// across many groups never launches more than one browser at a time.
type Harvester struct {
	widgetURL  string
	apiHost    string
	headless   bool
	allocCtx   context.Context
	cancelOnce context.CancelFunc
	group      singleflight.Group
	log        *zap.Logger
}

// New builds a Harvester against widgetURL, watching requests whose
// host matches apiHost for the Authorization header.
func New(widgetURL, apiHost string, headless bool, log *zap.Logger) *Harvester {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Harvester{
		widgetURL:  widgetURL,
		apiHost:    apiHost,
		headless:   headless,
		allocCtx:   allocCtx,
		cancelOnce: cancel,
		log:        log,
	}
}

// Close tears down the shared browser allocator. Call once at process
// shutdown.
func (h *Harvester) Close() {
	h.cancelOnce()
}

// Acquire returns a fresh bearer token. Concurrent callers share a
// single in-flight browser launch.
func (h *Harvester) Acquire(ctx context.Context) (string, error) {
	v, err, _ := h.group.Do("token", func() (interface{}, error) {
		return h.acquireOnce(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (h *Harvester) acquireOnce(parent context.Context) (string, error) {
	browserCtx, cancel := chromedp.NewContext(h.allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, acquireTimeout)
	defer cancel()

	box := &tokenBox{}

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		if !strings.Contains(req.Request.URL, h.apiHost) {
			return
		}
		auth, ok := req.Request.Headers["Authorization"]
		if !ok {
			return
		}
		if s, ok := auth.(string); ok {
			box.setIfEmpty(s)
		}
	})

	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(h.widgetURL),
		chromedp.Sleep(settleWait),
	)
	token := box.get()

	if token != "" {
		return token, nil
	}

	// Fall back to a DOM scan in case the widget exposes the token in
	// a data attribute rather than only on its own XHRs.
	if err == nil {
		var html string
		if scanErr := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); scanErr == nil {
			if t := scanTokenFromHTML(html); t != "" {
				return t, nil
			}
		}
	}

	if err != nil {
		return "", errors.Wrapf(errs.ErrTokenAcquisitionFailed, "harvester: navigate: %v", err)
	}
	return "", errs.ErrTokenAcquisitionFailed
}

// scanTokenFromHTML looks for a bearer token left in a data-* attribute,
// the documented fallback when network interception misses the
// widget's first request.
func scanTokenFromHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("[data-auth-token], [data-token]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("data-auth-token"); ok && v != "" {
			found = v
			return false
		}
		if v, ok := s.Attr("data-token"); ok && v != "" {
			found = v
			return false
		}
		return true
	})
	return found
}

// tokenBox is a tiny mutex-guarded string, split out so the
// ListenTarget callback (which runs on chromedp's own goroutine) never
// races the caller reading the result.
type tokenBox struct {
	mu    sync.Mutex
	value string
}

func (b *tokenBox) get() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

func (b *tokenBox) setIfEmpty(v string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.value == "" {
		b.value = v
	}
}
