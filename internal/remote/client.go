// Package remote is the shared HTTP plumbing of the issue-tracker and
// time-logging clients: a retrying transport, JSON encoding and the
// remote error taxonomy.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/fakeyudi/timeslice/internal/logging"
)

// ValidationError is a 4xx answer: the remote rejected the request itself.
type ValidationError struct {
	Status int
	Body   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote rejected request (HTTP %d): %s", e.Status, snippet(e.Body))
}

// TransportError is a 5xx answer or a network failure.
type TransportError struct {
	Status int // zero for network failures
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote failure (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("remote unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError with the given
// status, or any ValidationError when status is zero.
func IsValidation(err error, status int) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return status == 0 || ve.Status == status
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	// Authorize sets credentials on every request.
	Authorize func(h http.Header)
	Logger    zerolog.Logger
}

// Client sends JSON requests relative to a base URL.
type Client struct {
	base      *url.URL
	http      *retryablehttp.Client
	authorize func(h http.Header)
}

// New builds a Client. The base URL must be absolute.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}

	hc := retryablehttp.NewClient()
	hc.HTTPClient = cleanhttp.DefaultPooledClient()
	hc.HTTPClient.Timeout = opts.Timeout
	if hc.HTTPClient.Timeout == 0 {
		hc.HTTPClient.Timeout = 30 * time.Second
	}
	hc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		hc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		hc.RetryWaitMax = opts.RetryWaitMax
	}
	hc.Logger = logging.Leveled{Logger: opts.Logger}
	// Hand the final response back instead of a generic "giving up" error.
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{base: base, http: hc, authorize: opts.Authorize}, nil
}

// Do sends a request and decodes a JSON answer into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
	}

	var reqBody any
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req.Header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return &TransportError{Status: resp.StatusCode, Err: errors.New(snippet(string(raw)))}
	case resp.StatusCode >= 400:
		return &ValidationError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
