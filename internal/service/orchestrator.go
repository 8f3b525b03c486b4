package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"archpipe/internal/model"
	"archpipe/internal/utils"
)

// AttemptObserver receives every GenerationAttempt. It must not block for long;
// a panic inside it is recovered and logged.
type AttemptObserver func(model.GenerationAttempt)

// Job is one single-schema generation request handled by the orchestrator
type Job struct {
	RequestID string
	AgentID   string
	Schema    string
	Prompt    Prompt
	Config    GenerationConfig
	Request   model.DesignRequest
	// Base is inherited by specialist results that carry no parameters
	Base *model.ParameterResult
}

// Execution is the outcome of a Job
type Execution struct {
	Result   model.CanonicalResult
	Source   string // provider name or "fallback"
	Attempts []model.GenerationAttempt
	Fallback bool
}

// Orchestrator tries providers in priority order and falls back to local
// analysis when all of them fail. Attempts within one Job are sequential.
type Orchestrator struct {
	providers      []Client
	normalizer     *Normalizer
	fallback       *FallbackAnalyzer
	attemptTimeout time.Duration
	retryDelay     time.Duration
	observer       AttemptObserver
	logger         zerolog.Logger
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithAttemptObserver installs the attempt observer hook
func WithAttemptObserver(fn AttemptObserver) OrchestratorOption {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithAttemptTimeout bounds every single provider call
func WithAttemptTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.attemptTimeout = d }
}

// WithRetryDelay sets the pause before retrying the same provider
func WithRetryDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// NewOrchestrator creates an orchestrator over providers in priority order
func NewOrchestrator(providers []Client, normalizer *Normalizer, fallback *FallbackAnalyzer, logger zerolog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		providers:      providers,
		normalizer:     normalizer,
		fallback:       fallback,
		attemptTimeout: 20 * time.Second,
		retryDelay:     250 * time.Millisecond,
		logger:         logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Providers returns the configured providers in priority order
func (o *Orchestrator) Providers() []Client { return o.providers }

// Execute runs the provider state machine for job. Transport and parse failures
// never escape: the result is the first provider output that parses, or the
// fallback analysis. The only error returned wraps ErrConfiguration.
func (o *Orchestrator) Execute(ctx context.Context, job Job) (Execution, error) {
	var attempts []model.GenerationAttempt

	available := make([]Client, 0, len(o.providers))
	for _, p := range o.providers {
		if !p.Available() {
			o.logger.Debug().Str("provider", p.Name()).Str("request_id", job.RequestID).Msg("skipping unavailable provider")
			continue
		}
		available = append(available, p)
	}

providers:
	for i, p := range available {
		for try := 1; try <= 2; try++ {
			// the current provider and every later one still get a call
			timeout, ok := o.attemptBudget(ctx, len(available)-i)
			if !ok {
				break providers
			}
			attempt, raw, err := o.call(ctx, p, job, try, timeout)
			if err == nil {
				parsed := utils.ParseResponse(raw)
				if parsed.OK() {
					attempt.Outcome = model.OutcomeSuccess
					attempts = append(attempts, o.record(attempt))
					return Execution{
						Result:   o.normalizer.NormalizeWithBase(parsed.Payload, job.Schema, job.Base),
						Source:   p.Name(),
						Attempts: attempts,
					}, nil
				}
				// a provider that answers with unusable text is not retried
				attempt.Outcome = model.OutcomeMalformed
				attempt.RawResponse = parsed.Failure.Snippet
				attempt.Error = parsed.Failure.Reason
				attempt.ErrorKind = kindName(ErrParse)
				attempts = append(attempts, o.record(attempt))
				break
			}

			kind := ErrorKind(err)
			attempt.Error = err.Error()
			attempt.ErrorKind = kindName(kind)
			attempt.Outcome = model.OutcomeProviderError
			if kind == ErrTimeout {
				attempt.Outcome = model.OutcomeTimeout
			}
			attempts = append(attempts, o.record(attempt))

			if ctx.Err() != nil {
				break providers
			}
			if try == 1 && (kind == ErrTimeout || kind == ErrTransientNetwork) {
				if !sleepCtx(ctx, o.retryPause(ctx)) {
					break providers
				}
				continue
			}
			break
		}
	}

	result, err := o.runFallback(job)
	if err != nil {
		return Execution{Attempts: attempts}, err
	}
	o.logger.Info().
		Str("request_id", job.RequestID).
		Str("agent", job.AgentID).
		Int("attempts", len(attempts)).
		Float64("confidence", result.Confidence).
		Msg("providers exhausted, using fallback analysis")
	return Execution{Result: result, Source: model.SourceFallback, Attempts: attempts, Fallback: true}, nil
}

// call submits the prompt once. The call is abandoned, not awaited, when the
// attempt deadline passes.
func (o *Orchestrator) call(ctx context.Context, p Client, job Job, try int, timeout time.Duration) (model.GenerationAttempt, string, error) {
	attempt := model.GenerationAttempt{
		ID:        uuid.NewString(),
		RequestID: job.RequestID,
		AgentID:   job.AgentID,
		Provider:  p.Name(),
		Try:       try,
		Prompt:    job.Prompt.Text(),
		StartedAt: time.Now().UTC(),
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		raw string
		err error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		raw, err := p.Submit(callCtx, job.Prompt, job.Config)
		done <- reply{raw: raw, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-callCtx.Done():
		r.err = &ProviderError{Provider: p.Name(), Kind: ErrTimeout, Err: callCtx.Err()}
	}
	attempt.DurationMs = time.Since(attempt.StartedAt).Milliseconds()

	if r.err != nil {
		var pe *ProviderError
		if !errors.As(r.err, &pe) {
			r.err = newProviderError(p.Name(), 0, r.err)
		}
		return attempt, "", r.err
	}
	attempt.RawResponse = utils.TruncateRunes(r.raw, utils.MaxFailureSnippet)
	return attempt, r.raw, nil
}

// maxFallbackReserve caps the share of a caller deadline held back for the
// local analysis that ends an exhausted provider chain
const maxFallbackReserve = 250 * time.Millisecond

// attemptBudget returns the deadline for the next provider call: the configured
// attempt timeout, shortened to an even share of what remains of ctx across the
// planned calls. It reports false when nothing is left for another call.
func (o *Orchestrator) attemptBudget(ctx context.Context, planned int) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return o.attemptTimeout, true
	}
	remaining := time.Until(deadline)
	remaining -= min(remaining/10, maxFallbackReserve)
	share := remaining / time.Duration(max(planned, 1))
	if share <= 0 {
		return 0, false
	}
	return min(o.attemptTimeout, share), true
}

// retryPause is the retry delay, limited to a tenth of what remains of ctx
func (o *Orchestrator) retryPause(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return min(o.retryDelay, time.Until(deadline)/10)
	}
	return o.retryDelay
}

// record logs the attempt and hands it to the observer
func (o *Orchestrator) record(a model.GenerationAttempt) model.GenerationAttempt {
	ev := o.logger.Debug()
	if a.Outcome != model.OutcomeSuccess {
		ev = o.logger.Warn().Str("error_kind", a.ErrorKind).Str("error", a.Error)
	}
	ev.Str("request_id", a.RequestID).
		Str("agent", a.AgentID).
		Str("provider", a.Provider).
		Int("attempt", a.Try).
		Str("outcome", string(a.Outcome)).
		Int64("duration_ms", a.DurationMs).
		Msg("generation attempt")

	if o.observer != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error().Interface("panic", r).Msg("attempt observer panicked")
				}
			}()
			o.observer(a)
		}()
	}
	return a
}

func (o *Orchestrator) runFallback(job Job) (result model.CanonicalResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Str("request_id", job.RequestID).Msg("fallback analyzer failed")
			err = fmt.Errorf("%w: fallback analyzer failed: %v", ErrConfiguration, r)
		}
	}()
	payload := o.fallback.Payload(job.Request, job.Schema, job.Base)
	return o.normalizer.NormalizeWithBase(payload, job.Schema, job.Base), nil
}

// sleepCtx waits for d and reports false when ctx ends first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
