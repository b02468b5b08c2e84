package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/joeblew999/plat-tour/internal/logging"
	"github.com/joeblew999/plat-tour/internal/metrics"
)

// UpstreamOptions configures an HTTP collaborator.
type UpstreamOptions struct {
	Timeout         time.Duration
	BreakerFailures uint32 // consecutive failures before the breaker opens
	BreakerTimeout  time.Duration
	Client          *http.Client
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.Status)
}

// Unwrap makes 5xx responses match ErrUpstream.
func (e *StatusError) Unwrap() error {
	if e.Status >= 500 {
		return ErrUpstream
	}
	return nil
}

// upstream is a JSON GET client guarded by a circuit breaker. Only
// ErrUpstream failures count toward tripping it.
type upstream struct {
	name   string
	base   string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[[]byte]
	log    zerolog.Logger
}

func newUpstream(name, base string, opts UpstreamOptions) *upstream {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	log := logging.Component("upstream").With().Str("service", name).Logger()

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUpstream)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})

	return &upstream{
		name:   name,
		base:   strings.TrimRight(base, "/"),
		client: client,
		cb:     cb,
		log:    log,
	}
}

// get fetches base+path?query and returns the response body.
func (u *upstream) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := u.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	body, err := u.cb.Execute(func() ([]byte, error) {
		return u.do(ctx, target)
	})
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(u.name, "ok").Inc()
		return body, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues(u.name, "open").Inc()
		return nil, fmt.Errorf("%s: %w: %w", u.name, ErrUpstream, err)
	case errors.Is(err, ErrUpstream):
		metrics.UpstreamRequests.WithLabelValues(u.name, "error").Inc()
		return nil, err
	default:
		metrics.UpstreamRequests.WithLabelValues(u.name, "rejected").Inc()
		return nil, err
	}
}

func (u *upstream) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %w", u.name, ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Status: resp.StatusCode, URL: target}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", u.name, ErrUpstream, err)
	}
	return body, nil
}

// State reports the breaker state for health output.
func (u *upstream) State() string {
	return u.cb.State().String()
}
