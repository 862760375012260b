// Package upstream issues authenticated HTTP calls to the external
// data/scoring backend. It owns credential injection and request shaping and
// nothing else: callers decide what a given status code means.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Category-specific ingestion paths on the upstream backend.
const (
	PathDemographics = "/demographics/"
	PathAssets       = "/assets/"
	PathAgtech       = "/agtech_safe/"
	PathPsychometric = "/psychometric_info/"
)

// httpDoer abstracts the HTTP client for tests.
type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config carries the connection settings for the upstream backend.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	// HTTPClient overrides the default client; the configured Timeout is
	// ignored when set.
	HTTPClient httpDoer
}

// Response captures an upstream reply for relay to the caller.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the upstream accepted the request with a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client forwards JSON payloads to the upstream backend with basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	client   httpDoer
}

// New validates the connection settings and builds a client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("upstream: base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("upstream: base url: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(base, "/"),
		username: cfg.Username,
		password: cfg.Password,
		client:   client,
	}, nil
}

// Forward posts the raw body to the given path and captures the reply. A non-2xx
// status is not an error: the proxy relays whatever the backend said. Errors
// are reserved for transport failures and oversized or unreadable replies.
func (c *Client) Forward(ctx context.Context, path string, body []byte) (Response, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	snap := body
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(snap)), nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("upstream: request: %w", err)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	closeErr := resp.Body.Close()
	if err != nil {
		return Response{}, fmt.Errorf("upstream: read response: %w", err)
	}
	if closeErr != nil {
		return Response{}, fmt.Errorf("upstream: close response: %w", closeErr)
	}

	return Response{Status: resp.StatusCode, Body: respBody}, nil
}
