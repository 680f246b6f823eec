// Package retrieval serves stored objects to browsers. It fetches from the
// upstream store with a short retry schedule and degrades to a bundled
// placeholder image when the object cannot be fetched.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/studiocms/service/internal/metrics"
	"github.com/studiocms/service/internal/storage"
)

const defaultContentType = "image/jpeg"

var errEmptyBody = errors.New("upstream returned an empty body")

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Gateway runs the retrieval algorithm against a store.
type Gateway struct {
	store    storage.Store
	fallback FallbackSource
	policy   Policy
	sleep    SleepFunc
	logger   *slog.Logger
	secrets  []string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(g *Gateway) { g.policy = p }
}

// WithSleep replaces the real-clock wait, for tests.
func WithSleep(fn SleepFunc) Option {
	return func(g *Gateway) { g.sleep = fn }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithSecrets lists values redacted from any message shown to clients.
func WithSecrets(secrets ...string) Option {
	return func(g *Gateway) { g.secrets = append(g.secrets, secrets...) }
}

// NewGateway creates a Gateway using DefaultPolicy and the real clock.
func NewGateway(store storage.Store, fallback FallbackSource, opts ...Option) *Gateway {
	g := &Gateway{
		store:    store,
		fallback: fallback,
		policy:   DefaultPolicy(),
		sleep:    sleepContext,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Retrieve never fails: anything that goes wrong while fetching, a panic
// included, ends in the fallback step.
func (g *Gateway) Retrieve(ctx context.Context, id string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("retrieval: unexpected panic", "id", id, "panic", r)
			out = g.degrade(id, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	out, err := g.fetch(ctx, id)
	if err != nil {
		return g.degrade(id, err)
	}
	return out
}

// fetch runs the bounded retry loop. It returns the last upstream error when
// no attempt produced the object.
func (g *Gateway) fetch(ctx context.Context, id string) (Outcome, error) {
	if id == "" {
		return nil, errors.New("empty file id")
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		start := time.Now()
		obj, err := g.store.Fetch(ctx, id)
		metrics.UpstreamDuration.WithLabelValues("fetch").Observe(time.Since(start).Seconds())

		if err == nil && obj != nil && len(obj.Data) > 0 {
			metrics.UpstreamAttemptsTotal.WithLabelValues("ok").Inc()
			ct := obj.ContentType
			if ct == "" {
				ct = defaultContentType
			}
			return Success{Data: obj.Data, ContentType: ct, ContentDisposition: obj.ContentDisposition}, nil
		}
		if err == nil {
			metrics.UpstreamAttemptsTotal.WithLabelValues("empty").Inc()
			g.logger.Warn("retrieval: upstream returned an empty body", "id", id, "attempt", attempt)
			return nil, errEmptyBody
		}
		lastErr = err

		wait, retry := g.policy.Backoff(attempt, err)
		g.logAttempt(id, attempt, err, retry)

		if wait > 0 {
			if serr := g.sleep(ctx, wait); serr != nil {
				g.logger.Warn("retrieval: request cancelled while waiting to retry", "id", id, "attempt", attempt)
				return nil, lastErr
			}
		}
		if !retry {
			return nil, lastErr
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
}

func (g *Gateway) logAttempt(id string, attempt int, err error, retry bool) {
	status := storage.StatusOf(err)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		metrics.UpstreamAttemptsTotal.WithLabelValues("not_found").Inc()
		g.logger.Warn("retrieval: object not found upstream", "id", id, "status", status)
	case errors.Is(err, storage.ErrRateLimited):
		metrics.UpstreamAttemptsTotal.WithLabelValues("rate_limited").Inc()
		g.logger.Warn("retrieval: upstream rate limited", "id", id, "attempt", attempt, "retry", retry)
	case errors.Is(err, storage.ErrTransport):
		metrics.UpstreamAttemptsTotal.WithLabelValues("transport").Inc()
		if retry {
			g.logger.Warn("retrieval: upstream unreachable, retrying", "id", id, "attempt", attempt, "error", err)
		} else {
			g.logger.Error("retrieval: upstream unreachable, attempts exhausted", "id", id, "attempt", attempt, "error", err)
		}
	default:
		metrics.UpstreamAttemptsTotal.WithLabelValues("error").Inc()
		g.logger.Error("retrieval: upstream fetch failed", "id", id, "attempt", attempt, "status", status, "error", err)
	}
}

// degrade serves the placeholder, or reports the last upstream error when the
// placeholder itself cannot be read.
func (g *Gateway) degrade(id string, cause error) Outcome {
	data, err := g.fallback.Load()
	if err != nil {
		g.logger.Error("retrieval: fallback asset unavailable", "id", id, "error", err, "cause", cause)
		return Unavailable{LastError: storage.Sanitize(clientMessage(cause), g.secrets...)}
	}
	g.logger.Warn("retrieval: serving fallback", "id", id, "cause", cause)
	return Fallback{Data: data}
}

// clientMessage describes cause without upstream bodies or SDK text, which
// stay in the logs.
func clientMessage(cause error) string {
	var se *storage.Error
	switch {
	case errors.As(cause, &se):
		return se.Summary()
	case errors.Is(cause, errEmptyBody):
		return errEmptyBody.Error()
	default:
		return "fetch: unexpected failure"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
