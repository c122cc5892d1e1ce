// Package fetch downloads single tile images over HTTP with bounded,
// jittered retries. Each fetch is independent; no coordination happens
// across workers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
)

// Common errors.
var (
	// ErrNotFound marks a tile that does not exist on the server;
	// retrying cannot help
	ErrNotFound = errors.New("fetch: resource not found")

	// ErrServerError marks a retryable upstream failure
	ErrServerError = errors.New("fetch: server error")
)

// Credentials holds static basic-auth credentials for the tile server.
type Credentials struct {
	Username string
	Password string
}

// Options configures the fetch client.
type Options struct {
	// MaxAttempts is the attempt bound per tile.
	// Default: 3
	MaxAttempts int

	// MaxBackoff bounds the uniformly random sleep between attempts.
	// Default: 5s
	MaxBackoff time.Duration

	// Timeout for individual requests.
	// Default: 30s
	Timeout time.Duration

	// Credentials enables basic auth when non-nil.
	Credentials *Credentials

	// OnRetry, when non-nil, is invoked with the attempt number before
	// each retry (attempts 2 and up).
	OnRetry func(attempt int)

	// Clock drives the backoff sleep; a fake clock makes retry timing
	// observable in tests. Default: the real clock.
	Clock clockwork.Clock
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		MaxBackoff:  5 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// Client fetches tile images to local files.
type Client struct {
	httpClient *http.Client
	opts       Options
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a fetch client with the given options.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		},
		opts:   opts,
		clock:  clock,
		logger: logger,
	}
}

// Fetch retrieves uri into dest. If dest already exists the fetch
// short-circuits with zero network calls (idempotent re-run semantics).
// On terminal failure no file is left at dest.
func (c *Client) Fetch(ctx context.Context, uri, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		c.logger.Debug("destination exists, skipping fetch", "path", dest)
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if c.opts.OnRetry != nil {
				c.opts.OnRetry(attempt)
			}
			if err := c.backoff(ctx); err != nil {
				return err
			}
		}

		err := c.attempt(ctx, uri, dest)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
			return err
		}

		lastErr = err
		c.logger.Warn("tile fetch attempt failed",
			"uri", uri,
			"attempt", attempt,
			"error", err,
		)
	}

	// Never leave a truncated file behind after exhausting retries
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove partial download", "path", dest, "error", err)
	}
	return fmt.Errorf("fetch failed after %d attempts: %w", c.opts.MaxAttempts, lastErr)
}

// attempt performs one GET, streaming the body to dest. The destination
// file is removed on any error so a failed attempt leaves no residue.
func (c *Client) attempt(ctx context.Context, uri, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.opts.Credentials != nil {
		req.SetBasicAuth(c.opts.Credentials.Username, c.opts.Credentials.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return err
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("stream body: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("close destination: %w", err)
	}

	return nil
}

// backoff sleeps for a uniformly random interval in [0, MaxBackoff) so
// retries across lanes do not synchronize into a storm.
func (c *Client) backoff(ctx context.Context) error {
	delay := time.Duration(rand.Int63n(int64(c.opts.MaxBackoff)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(delay):
		return nil
	}
}

// checkStatusCode maps a response status to the retry taxonomy.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrServerError, code)
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
