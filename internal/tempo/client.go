// Package tempo submits and lists worklogs through the Tempo REST API.
package tempo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/timeslice/internal/config"
	"github.com/fakeyudi/timeslice/internal/remote"
	"github.com/fakeyudi/timeslice/internal/session"
)

// Payload is the body of POST /worklogs.
type Payload struct {
	Attributes       []session.Attribute `json:"attributes"`
	AuthorAccountID  string              `json:"authorAccountId"`
	BillableSeconds  int                 `json:"billableSeconds"`
	Description      string              `json:"description"`
	IssueID          int64               `json:"issueId"`
	StartDate        string              `json:"startDate"`
	StartTime        string              `json:"startTime"`
	TimeSpentSeconds int                 `json:"timeSpentSeconds"`
}

// Worklog is one remote record as returned by GET /worklogs.
type Worklog struct {
	TempoWorklogID   int64  `json:"tempoWorklogId"`
	StartDate        string `json:"startDate"`
	StartTime        string `json:"startTime"`
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
	Description      string `json:"description"`
	IssueKey         string `json:"issueKey,omitempty"`
	Issue            struct {
		ID  int64  `json:"id"`
		Key string `json:"key"`
	} `json:"issue"`
}

// Key returns the issue key of the record, whichever field carries it.
func (w Worklog) Key() string {
	if w.Issue.Key != "" {
		return w.Issue.Key
	}
	return w.IssueKey
}

// Client talks to the Tempo API for one account.
type Client struct {
	rc        *remote.Client
	accountID string
}

// New returns a Client using bearer authentication. Submissions are never
// retried at the transport level so a slow success cannot produce a
// duplicate worklog.
func New(cfg config.TempoConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tempo base URL is not configured")
	}
	token := cfg.APIToken
	rc, err := remote.New(remote.Options{
		BaseURL:   cfg.BaseURL,
		RetryMax:  0,
		Authorize: func(h http.Header) { h.Set("Authorization", "Bearer "+token) },
		Logger:    logger.With().Str("component", "tempo").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("tempo client: %w", err)
	}
	return &Client{rc: rc, accountID: cfg.AccountID}, nil
}

// AccountID returns the configured worker account.
func (c *Client) AccountID() string { return c.accountID }

// SubmitWorklog creates a worklog and returns its identifier, which may
// be empty when the response carries none.
func (c *Client) SubmitWorklog(ctx context.Context, p Payload) (string, error) {
	var resp map[string]any
	if err := c.rc.Do(ctx, http.MethodPost, "/worklogs", nil, p, &resp); err != nil {
		return "", err
	}
	for _, field := range []string{"id", "tempoWorklogId", "worklogId"} {
		if id := idString(resp[field]); id != "" {
			return id, nil
		}
	}
	return "", nil
}

// pageLimit is the page size requested from GET /worklogs.
const pageLimit = 50

// maxPages bounds pagination against a server that never ends it.
const maxPages = 200

// ListWorklogs returns the caller's worklogs between two dates (inclusive,
// YYYY-MM-DD). Pages are followed until metadata.next is empty.
func (c *Client) ListWorklogs(ctx context.Context, from, to time.Time) ([]Worklog, error) {
	q := url.Values{}
	q.Set("from", from.Format(time.DateOnly))
	q.Set("to", to.Format(time.DateOnly))
	q.Set("limit", strconv.Itoa(pageLimit))
	if c.accountID != "" {
		q.Add("worker", c.accountID)
	}

	var all []Worklog
	offset := 0
	for page := 0; page < maxPages; page++ {
		q.Set("offset", strconv.Itoa(offset))
		var resp struct {
			Metadata struct {
				Count int    `json:"count"`
				Next  string `json:"next"`
			} `json:"metadata"`
			Results []Worklog `json:"results"`
		}
		if err := c.rc.Do(ctx, http.MethodGet, "/worklogs", q, nil, &resp); err != nil {
			return nil, fmt.Errorf("listing worklogs %s..%s (offset %d): %w", q.Get("from"), q.Get("to"), offset, err)
		}
		all = append(all, resp.Results...)
		if resp.Metadata.Next == "" || len(resp.Results) == 0 {
			return all, nil
		}
		offset += len(resp.Results)
	}
	return nil, fmt.Errorf("listing worklogs %s..%s: more than %d pages", q.Get("from"), q.Get("to"), maxPages)
}

func idString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatInt(int64(x), 10)
	default:
		return ""
	}
}
