// Package assist turns a prompt into one normalized suggestion, retrying the
// preferred backend and falling back across the rest of the registry.
package assist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"social-post-scheduler/internal/models"
	"social-post-scheduler/internal/provider"
	"social-post-scheduler/internal/telemetry"
)

// ErrAllProvidersExhausted matches any *ExhaustedError.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

const defaultMaxRetries = 3

// Request is one generation request.
type Request struct {
	Prompt            string `json:"prompt"`
	PreferredProvider string `json:"provider,omitempty"`
	Model             string `json:"model,omitempty"`
	MaxRetries        int    `json:"maxRetries,omitempty"`
}

// Attempt is the per-provider tally carried by ExhaustedError.
type Attempt struct {
	Provider  string `json:"provider"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// ExhaustedError is returned when no provider produced a response.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers exhausted: no providers registered"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Skipped {
			parts = append(parts, fmt.Sprintf("%s: skipped (%s)", a.Provider, a.LastError))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %d attempt(s), last error: %s", a.Provider, a.Attempts, a.LastError))
	}
	return "all providers exhausted: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() error { return ErrAllProvidersExhausted }

// Options tunes an Orchestrator. Zero values pick the defaults.
type Options struct {
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	CallTimeout    time.Duration
	Logger         logrus.FieldLogger
}

// Orchestrator runs the two-phase preferred-then-fallback algorithm.
type Orchestrator struct {
	registry       *provider.Registry
	maxRetries     int
	backoffInitial time.Duration
	backoffMax     time.Duration
	callTimeout    time.Duration
	log            logrus.FieldLogger
	sleep          func(ctx context.Context, d time.Duration) error
}

func New(registry *provider.Registry, opts Options) *Orchestrator {
	o := &Orchestrator{
		registry:       registry,
		maxRetries:     opts.MaxRetries,
		backoffInitial: opts.BackoffInitial,
		backoffMax:     opts.BackoffMax,
		callTimeout:    opts.CallTimeout,
		log:            opts.Logger,
		sleep:          sleepContext,
	}
	if o.maxRetries <= 0 {
		o.maxRetries = defaultMaxRetries
	}
	if o.backoffInitial <= 0 {
		o.backoffInitial = time.Second
	}
	if o.backoffMax <= 0 {
		o.backoffMax = 30 * time.Second
	}
	if o.callTimeout <= 0 {
		o.callTimeout = 30 * time.Second
	}
	if o.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		o.log = discard
	}
	return o
}

// Registry exposes the backing registry for catalog listings.
func (o *Orchestrator) Registry() *provider.Registry { return o.registry }

// Generate produces one normalized response or an *ExhaustedError.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (provider.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.Response{}, fmt.Errorf("%w: prompt is required", models.ErrInvalidRequest)
	}
	// Callers may ask for fewer retries than configured, never more.
	retries := req.MaxRetries
	if retries <= 0 || retries > o.maxRetries {
		retries = o.maxRetries
	}

	var tally []Attempt
	tried := ""

	if req.PreferredProvider != "" {
		if p, ok := o.registry.Get(req.PreferredProvider); ok {
			tried = p.Name()
			resp, attempt, err := o.tryPreferred(ctx, p, req, retries)
			if err == nil {
				return resp, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return provider.Response{}, ctxErr
			}
			tally = append(tally, attempt)
		} else {
			o.log.WithField("provider", req.PreferredProvider).Warn("preferred provider not registered, falling back")
		}
	}

	for _, p := range o.registry.List() {
		if p.Name() == tried {
			continue
		}
		if !p.Available() {
			tally = append(tally, skipped(p.Name()))
			continue
		}
		resp, err := o.call(ctx, p, req)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return provider.Response{}, ctxErr
		}
		tally = append(tally, Attempt{Provider: p.Name(), Attempts: 1, LastError: err.Error()})
	}

	return provider.Response{}, &ExhaustedError{Attempts: tally}
}

func (o *Orchestrator) tryPreferred(ctx context.Context, p provider.Provider, req Request, retries int) (provider.Response, Attempt, error) {
	if !p.Available() {
		return provider.Response{}, skipped(p.Name()), provider.ErrNotConfigured
	}
	attempt := Attempt{Provider: p.Name()}
	var lastErr error
	for i := 1; i <= retries; i++ {
		resp, err := o.call(ctx, p, req)
		attempt.Attempts = i
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err
		attempt.LastError = err.Error()
		if i == retries {
			break
		}
		delay := backoff(o.backoffInitial, o.backoffMax, i)
		o.log.WithFields(logrus.Fields{
			"provider": p.Name(),
			"attempt":  i,
			"delay":    delay.String(),
		}).WithError(err).Warn("provider call failed, retrying")
		if err := o.sleep(ctx, delay); err != nil {
			return provider.Response{}, attempt, err
		}
	}
	return provider.Response{}, attempt, lastErr
}

func (o *Orchestrator) call(ctx context.Context, p provider.Provider, req Request) (provider.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	resp, err := p.Generate(callCtx, req.Prompt, req.Model)
	if err != nil {
		telemetry.ProviderAttempts.WithLabelValues(p.Name(), "error").Inc()
		return provider.Response{}, err
	}
	telemetry.ProviderAttempts.WithLabelValues(p.Name(), "success").Inc()
	return resp, nil
}

func skipped(name string) Attempt {
	return Attempt{Provider: name, Skipped: true, LastError: provider.ErrNotConfigured.Error()}
}

// backoff returns the wait after the given failed attempt: base, 2*base, 4*base ...
// capped at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	wait := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if wait > max || wait <= 0 {
		wait = max
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
