// Package backend is the HTTP client the sequential scheduler uses to reach
// the delay service.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tutu-network/shapeq/internal/domain"
)

// maxBody caps how much of a response body is read.
const maxBody = 64 << 10

var _ domain.Backend = (*Client)(nil)

// Client fetches task results over HTTP.
type Client struct {
	baseURL string
	origin  string
	http    *http.Client
}

// New creates a client for baseURL. origin is sent as the Origin header so
// the delay service's guard accepts the request; empty sends none.
//
// A nil hc gets a client without a timeout: a call lasts as long as the
// backend takes, and only the caller's ctx ends it early.
func New(baseURL, origin string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		origin:  origin,
		http:    hc,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Addr returns the host:port of the base URL, for reachability checks.
func (c *Client) Addr() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host += ":443"
		default:
			host += ":80"
		}
	}
	return host, nil
}

// Fetch issues GET {baseURL}/{kind} and returns the response body.
func (c *Client) Fetch(ctx context.Context, kind domain.TaskKind) (string, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(string(kind))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", domain.ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: GET /%s returned %d", domain.ErrBackendStatus, kind, resp.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}
