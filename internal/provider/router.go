package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aman-churiwal/ai-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/ai-gateway/internal/credential"
	"github.com/aman-churiwal/ai-gateway/internal/metrics"
)

// CredentialResolver yields the secret for a provider or ErrNotConfigured.
type CredentialResolver interface {
	Resolve(ctx context.Context, providerID string) (credential.Secret, error)
}

// Entry is one slot in the fallback chain.
type Entry struct {
	Adapter Adapter
	Timeout time.Duration
	Breaker *circuitbreaker.CircuitBreaker
}

// Result carries the winning provider alongside its text.
type Result struct {
	Text     string
	Provider string
}

// Router tries providers strictly in order and returns the first success.
type Router struct {
	entries []Entry
	creds   CredentialResolver
	logger  *slog.Logger
}

func NewRouter(creds CredentialResolver, logger *slog.Logger, entries ...Entry) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{entries: entries, creds: creds, logger: logger}
}

// Complete walks the chain once. Providers without a credential are skipped,
// failures and timeouts advance to the next provider, and caller
// cancellation stops the walk immediately. When every provider was skipped
// for lack of a credential the error is credential.ErrNotConfigured;
// otherwise it is an *AllProvidersFailedError with one reason per provider.
func (r *Router) Complete(ctx context.Context, req Request) (Result, error) {
	failures := make([]Failure, 0, len(r.entries))
	skipped := 0

	for _, e := range r.entries {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		id := e.Adapter.ID()

		secret, err := r.creds.Resolve(ctx, id)
		if err != nil {
			if errors.Is(err, credential.ErrNotConfigured) {
				skipped++
				metrics.ProviderRequests.WithLabelValues(id, "skipped").Inc()
				failures = append(failures, Failure{Provider: id, Reason: "not configured"})
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			r.logger.Warn("provider_credential_error", "provider", id, "err", err)
			failures = append(failures, Failure{Provider: id, Reason: "credential unavailable"})
			continue
		}

		start := time.Now()
		text, err := r.call(ctx, e, secret, req)
		if err == nil {
			metrics.ProviderRequests.WithLabelValues(id, "ok").Inc()
			metrics.ProviderLatency.WithLabelValues(id).Observe(time.Since(start).Seconds())
			return Result{Text: text, Provider: id}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}

		reason, outcome := describe(err, e.Timeout)
		metrics.ProviderRequests.WithLabelValues(id, outcome).Inc()
		if outcome != "circuit_open" {
			metrics.ProviderLatency.WithLabelValues(id).Observe(time.Since(start).Seconds())
		}
		r.logger.Warn("provider_attempt_failed", "provider", id, "reason", reason, "detail", err.Error())
		failures = append(failures, Failure{Provider: id, Reason: reason})
	}

	if len(r.entries) > 0 && skipped == len(r.entries) {
		return Result{}, fmt.Errorf("%w: no provider has a usable credential", credential.ErrNotConfigured)
	}
	return Result{}, &AllProvidersFailedError{Failures: failures}
}

func (r *Router) call(ctx context.Context, e Entry, secret credential.Secret, req Request) (string, error) {
	var text string
	attempt := func() error {
		var err error
		text, err = CallWithTimeout(ctx, e.Timeout, func(callCtx context.Context) (string, error) {
			return e.Adapter.Complete(callCtx, secret, req)
		})
		return err
	}

	if e.Breaker == nil {
		return text, attempt()
	}

	err := e.Breaker.Call(attempt, func(err error) bool {
		return ctx.Err() == nil
	})
	return text, err
}

func describe(err error, timeout time.Duration) (reason, outcome string) {
	var perr *ProviderError
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit open", "circuit_open"
	case errors.Is(err, ErrProviderTimeout):
		return fmt.Sprintf("timeout after %s", timeout), "timeout"
	case errors.As(err, &perr):
		return perr.Class(), "error"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed response", "error"
	default:
		return "provider error", "error"
	}
}

// Providers returns provider ids in fallback order.
func (r *Router) Providers() []string {
	ids := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e.Adapter.ID())
	}
	return ids
}

// Ready reports nil when at least one provider has a credential and a breaker
// that is not open, without sending any request upstream.
func (r *Router) Ready(ctx context.Context) error {
	var reasons []string
	for _, e := range r.entries {
		id := e.Adapter.ID()
		if e.Breaker != nil && e.Breaker.State() == circuitbreaker.StateOpen {
			reasons = append(reasons, id+": circuit open")
			continue
		}
		if _, err := r.creds.Resolve(ctx, id); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			reasons = append(reasons, id+": no credential")
			continue
		}
		return nil
	}
	if len(reasons) == 0 {
		return errors.New("no providers configured")
	}
	return fmt.Errorf("no provider ready: %s", strings.Join(reasons, ", "))
}

// Breaker returns the breaker guarding id, or nil.
func (r *Router) Breaker(id string) *circuitbreaker.CircuitBreaker {
	for _, e := range r.entries {
		if e.Adapter.ID() == id {
			return e.Breaker
		}
	}
	return nil
}
