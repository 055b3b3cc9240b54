// Package jira reads the user's assigned issues from the Jira Cloud REST API.
package jira

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/timeslice/internal/config"
	"github.com/fakeyudi/timeslice/internal/remote"
)

// AssignedJQL selects the open issues assigned to the caller.
const AssignedJQL = "assignee = currentUser() AND statusCategory != Done ORDER BY updated DESC"

// Issue is the subset of a Jira issue the agent reads.
type Issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		Project struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		} `json:"project"`
	} `json:"fields"`
}

// User is the authenticated account.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Client talks to one Jira site.
type Client struct {
	rc *remote.Client

	mu  sync.Mutex
	ids map[string]string // issue key -> numeric id
}

// Options tunes the transport; zero values use the defaults.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
}

// New returns a Client authenticating with email and API token.
func New(cfg config.JiraConfig, opts Options, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL is not configured")
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}
	token := base64.StdEncoding.EncodeToString([]byte(cfg.Email + ":" + cfg.APIToken))
	rc, err := remote.New(remote.Options{
		BaseURL:      cfg.BaseURL,
		RetryMax:     opts.RetryMax,
		RetryWaitMin: opts.RetryWaitMin,
		Authorize:    func(h http.Header) { h.Set("Authorization", "Basic "+token) },
		Logger:       logger.With().Str("component", "jira").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("jira client: %w", err)
	}
	return &Client{rc: rc, ids: make(map[string]string)}, nil
}

// AssignedIssues returns up to 50 open issues assigned to the caller,
// most recently updated first.
func (c *Client) AssignedIssues(ctx context.Context) ([]Issue, error) {
	body := map[string]any{
		"jql":        AssignedJQL,
		"fields":     []string{"key", "summary", "status", "project"},
		"maxResults": 50,
	}
	var resp struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.rc.Do(ctx, http.MethodPost, "/rest/api/3/search/jql", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("fetching assigned issues: %w", err)
	}
	c.mu.Lock()
	for _, is := range resp.Issues {
		if is.ID != "" {
			c.ids[is.Key] = is.ID
		}
	}
	c.mu.Unlock()
	return resp.Issues, nil
}

// IssueID resolves an issue key to its numeric id. Ids never change, so
// they are cached for the life of the client.
func (c *Client) IssueID(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	id, ok := c.ids[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var is Issue
	path := "/rest/api/3/issue/" + url.PathEscape(key)
	if err := c.rc.Do(ctx, http.MethodGet, path, url.Values{"fields": {"key"}}, nil, &is); err != nil {
		return "", fmt.Errorf("looking up issue %s: %w", key, err)
	}
	if is.ID == "" {
		return "", fmt.Errorf("looking up issue %s: response has no id", key)
	}
	c.mu.Lock()
	c.ids[key] = is.ID
	c.mu.Unlock()
	return is.ID, nil
}

// Myself returns the authenticated user.
func (c *Client) Myself(ctx context.Context) (User, error) {
	var u User
	if err := c.rc.Do(ctx, http.MethodGet, "/rest/api/3/myself", nil, nil, &u); err != nil {
		return User{}, fmt.Errorf("fetching current user: %w", err)
	}
	return u, nil
}
