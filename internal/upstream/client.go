// Package upstream is the typed HTTP client for the NBN23 basketball
// API. It carries a short-lived bearer token supplied by
// internal/harvester and knows only GET /seasons, /competitions,
// /calendar and /standings.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ibasketcal/core/internal/errs"
)

// Client calls the upstream API with a token supplied per-request by
// the caller, mirroring how the scrape orchestrator re-fetches a token
// after AuthExpired without needing a new Client.
type Client struct {
	baseURL string
	origin  string
	http    *http.Client
	log     *zap.Logger
}

// New builds a Client against baseURL, sending Origin: origin on every
// request the way the widget's own XHRs do.
func New(baseURL, origin string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		origin:  origin,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

const maxRetries = 3

// get performs an authenticated GET with up to maxRetries attempts on
// 5xx and network failures, exponential backoff starting at 500ms.
func (c *Client) get(ctx context.Context, token, path string, params map[string]string, out interface{}) error {
	url := c.baseURL + "/" + path
	if len(params) > 0 {
		q := "?"
		first := true
		for k, v := range params {
			if !first {
				q += "&"
			}
			q += k + "=" + v
			first = false
		}
		url += q
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errors.Wrap(err, "upstream: build request")
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Origin", c.origin)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = errs.NewUpstreamUnreachable(err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = errs.NewUpstreamUnreachable(readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return errs.ErrAuthExpired
		case resp.StatusCode >= 500:
			lastErr = errs.NewUpstreamUnreachable(fmt.Errorf("status %d", resp.StatusCode))
			continue
		case resp.StatusCode >= 400:
			return errs.NewUpstreamRejected(resp.StatusCode, string(body))
		}

		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return errors.Wrapf(err, "upstream: decode %s", path)
			}
		}
		return nil
	}
	return lastErr
}

// WireSeason and friends mirror the upstream wire shape closely enough
// to pull out the fields the scrape orchestrator needs; each entity's
// full JSON object is returned alongside and stored as its Raw.
type WireSeason struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// FetchSeasons returns the decoded season list plus each season's raw
// JSON object.
func (c *Client) FetchSeasons(ctx context.Context, token string) ([]WireSeason, []json.RawMessage, error) {
	var raws []json.RawMessage
	if err := c.get(ctx, token, "seasons", nil, &raws); err != nil {
		return nil, nil, err
	}
	seasons := make([]WireSeason, len(raws))
	for i, r := range raws {
		if err := json.Unmarshal(r, &seasons[i]); err != nil {
			return nil, nil, errors.Wrap(err, "upstream: decode season")
		}
	}
	return seasons, raws, nil
}

type WireGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type WireCompetition struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Groups []WireGroup `json:"groups"`
}

// FetchCompetitions returns competitions for seasonID.
func (c *Client) FetchCompetitions(ctx context.Context, token, seasonID string) ([]WireCompetition, []json.RawMessage, error) {
	var raws []json.RawMessage
	if err := c.get(ctx, token, "competitions", map[string]string{"seasonId": seasonID}, &raws); err != nil {
		return nil, nil, err
	}
	comps := make([]WireCompetition, len(raws))
	for i, r := range raws {
		if err := json.Unmarshal(r, &comps[i]); err != nil {
			return nil, nil, errors.Wrap(err, "upstream: decode competition")
		}
	}
	return comps, raws, nil
}

// CalendarResponse is the upstream calendar-by-group payload.
type CalendarResponse struct {
	Rounds []struct {
		Matches []json.RawMessage `json:"matches"`
	} `json:"rounds"`
}

// FetchCalendar returns the raw calendar for groupID.
func (c *Client) FetchCalendar(ctx context.Context, token, groupID string) (*CalendarResponse, error) {
	var cal CalendarResponse
	if err := c.get(ctx, token, "calendar", map[string]string{"groupId": groupID}, &cal); err != nil {
		return nil, err
	}
	return &cal, nil
}

// FetchStandings returns the raw standings rows for groupID.
func (c *Client) FetchStandings(ctx context.Context, token, groupID string) ([]json.RawMessage, error) {
	var raws []json.RawMessage
	if err := c.get(ctx, token, "standings", map[string]string{"groupId": groupID}, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}
