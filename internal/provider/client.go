package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"
)

// Errors returned for non-success responses from a hub.
var (
	ErrNotFound     = errors.New("provider: resource not found")
	ErrUnauthorized = errors.New("provider: unauthorized")
	ErrForbidden    = errors.New("provider: access forbidden")
	ErrRateLimited  = errors.New("provider: rate limited")
	ErrServerError  = errors.New("provider: server error")
)

const maxRedirects = 10

// ClientOptions configures the HTTP client shared by the hub adapters.
type ClientOptions struct {
	// Timeout bounds metadata and HEAD requests. File bodies are only
	// bounded by the caller's context.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration

	UserAgent string
}

// DefaultClientOptions returns options with sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:         30 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 30 * time.Second,
		UserAgent:       "model-fetcher/1.0",
	}
}

// Client is a retrying HTTP client for hub APIs and file downloads.
type Client struct {
	client *http.Client
	head   *http.Client
	opts   ClientOptions
}

// NewClient creates a new Client with the given options.
func NewClient(opts ClientOptions) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}

	return &Client{
		client: &http.Client{Transport: transport},
		head: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		opts: opts,
	}
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url, token string, v any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.do(ctx, c.client, http.MethodGet, url, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Size returns the size of a remote file using HEAD requests.
// An X-Linked-Size header on any hop wins over Content-Length, since
// hubs put the real size of large files on the redirect response.
// The token is dropped once a redirect leaves the origin host.
func (c *Client) Size(ctx context.Context, url, token string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	origin := hostname(url)

	for range maxRedirects {
		resp, err := c.do(ctx, c.head, http.MethodHead, url, token)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()

		if linked := resp.Header.Get("X-Linked-Size"); linked != "" {
			if n, err := strconv.ParseInt(linked, 10, 64); err == nil && n >= 0 {
				return n, nil
			}
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			next, err := resp.Location()
			if err != nil {
				return 0, fmt.Errorf("redirect from %s: %w", url, err)
			}
			if !sameOrSubdomain(next.Hostname(), origin) {
				token = ""
			}
			url = next.String()
			continue
		}

		return max(resp.ContentLength, 0), nil
	}
	return 0, fmt.Errorf("head %s: too many redirects", url)
}

// Get starts a download. The caller must close the response body.
func (c *Client) Get(ctx context.Context, url, token string) (*http.Response, error) {
	return c.do(ctx, c.client, http.MethodGet, url, token)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, url, token string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if c.opts.UserAgent != "" {
			req.Header.Set("User-Agent", c.opts.UserAgent)
		}

		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			drain(resp)
			lastErr = fmt.Errorf("%w: %s", statusError(resp.StatusCode), resp.Status)
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			drain(resp)
			return nil, fmt.Errorf("%s %s: %w", method, url, err)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", method, url, c.opts.RetryAttempts+1, lastErr)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.Timeout)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func statusError(code int) error {
	if code == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return ErrServerError
}

// checkStatusCode returns an appropriate error for non-success status codes.
// Redirects are success here; only the HEAD client stops on them.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 400:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

func hostname(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// sameOrSubdomain reports whether credentials may follow a redirect to host.
// It matches the net/http rule: the same host or a subdomain of the origin.
func sameOrSubdomain(host, origin string) bool {
	host, origin = strings.ToLower(host), strings.ToLower(origin)
	if host == "" || origin == "" {
		return false
	}
	return host == origin || strings.HasSuffix(host, "."+origin)
}
