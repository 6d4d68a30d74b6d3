// Package harvest fetches the remote registry and turns its listing and
// detail pages into raw records. Fetching is paced and guarded so a slow or
// failing remote host degrades a harvest run without killing the process.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// because the remote host has been failing consistently.
var ErrCircuitOpen = errors.New("harvest: circuit breaker is open")

// FetchError describes a failed page fetch.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("harvest: fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("harvest: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetcherConfig holds the pacing and retry settings for a Fetcher.
type FetcherConfig struct {
	// RequestsPerSecond caps the steady-state request rate. Default: 2.
	RequestsPerSecond float64

	// MaxRetries is the number of attempts per page. Default: 3.
	MaxRetries int

	// BaseDelay is the retry backoff unit; the wait before attempt n is
	// BaseDelay * n. Default: 1s.
	BaseDelay time.Duration

	// Timeout is the per-request HTTP timeout. Default: 30s.
	Timeout time.Duration

	// BreakerFailures is the consecutive failure count that trips the
	// circuit. Default: 5.
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open. Default: 60s.
	BreakerTimeout time.Duration
}

func (c *FetcherConfig) applyDefaults() {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 60 * time.Second
	}
}

// Fetcher performs rate-limited HTTP GETs with linear retry backoff, guarded
// by a circuit breaker. A Fetcher is safe for concurrent use.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	config   FetcherConfig
	errCount atomic.Int64
}

// NewFetcher creates a Fetcher with the given configuration. Zero-valued
// fields take their defaults.
func NewFetcher(config FetcherConfig) *Fetcher {
	config.applyDefaults()

	f := &Fetcher{
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		config:  config,
	}

	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "registry-fetch",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("harvest: circuit breaker %s -> %s", from, to)
		},
	})

	return f
}

// SetTransport overrides the HTTP transport. Used by tests.
func (f *Fetcher) SetTransport(rt http.RoundTripper) {
	f.client.Transport = rt
}

// ErrorCount returns the number of pages that ultimately failed to fetch.
func (f *Fetcher) ErrorCount() int64 {
	return f.errCount.Load()
}

// Fetch retrieves one page, retrying with linear backoff on failure. Only a
// 200 response counts as success. The returned error is a *FetchError (or
// ErrCircuitOpen) once all attempts are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= f.config.MaxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := f.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			f.errCount.Add(1)
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, url)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		log.Printf("harvest: fetch failed (attempt %d/%d) for %s: %v",
			attempt, f.config.MaxRetries, url, err)

		if attempt < f.config.MaxRetries {
			select {
			case <-time.After(f.config.BaseDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.errCount.Add(1)
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	body, err := f.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &FetchError{URL: url, Err: err}
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &FetchError{URL: url, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return nil, &FetchError{URL: url, Status: resp.StatusCode}
		}

		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}
