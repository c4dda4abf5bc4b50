// Package remote fetches safeguard block headers from a remote node gateway.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/codec"
	"github.com/starford/safeguard/internal/models"
)

// DefaultMaxResponseBytes caps the size of a safeguard response.
const DefaultMaxResponseBytes = 256 << 20

// Config describes where the safeguard route lives.
type Config struct {
	BaseAddress      string
	Route            string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// Client issues the safeguard range request. It does not retry; a failed
// fetch is retried by the next scheduled cycle.
type Client struct {
	http     *http.Client
	endpoint string
	timeout  time.Duration
	maxBytes int64
}

// New creates a Client. httpClient may be nil, in which case
// http.DefaultClient is used.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(cfg.BaseAddress)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote: invalid base address %q", cfg.BaseAddress)
	}
	endpoint := base.JoinPath(cfg.Route).String()
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	return &Client{
		http:     httpClient,
		endpoint: endpoint,
		timeout:  cfg.Timeout,
		maxBytes: maxBytes,
	}, nil
}

// Endpoint returns the resolved safeguard URL.
func (c *Client) Endpoint() string { return c.endpoint }

// FetchHeaders requests the safeguard header range. Errors wrap one of
// apperr.ErrCancelled, apperr.ErrNetwork or apperr.ErrDeserialization.
func (c *Client) FetchHeaders(ctx context.Context) ([]models.BlockHeader, error) {
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w: %w", apperr.ErrNetwork, err)
	}
	req.Header.Set("Accept", codec.ContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(ctx, "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("remote: %s: unexpected status %d: %w", c.endpoint, resp.StatusCode, apperr.ErrNetwork)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, c.classify(ctx, "read body", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("remote: response exceeds %d bytes: %w", c.maxBytes, apperr.ErrNetwork)
	}

	list, err := codec.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	return list.Data, nil
}

// classify separates caller cancellation from transport failure. A
// per-request timeout is a network failure, not a shutdown.
func (c *Client) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("remote: %s: %w: %w", op, apperr.ErrCancelled, ctx.Err())
	}
	return fmt.Errorf("remote: %s: %w: %w", op, apperr.ErrNetwork, err)
}
