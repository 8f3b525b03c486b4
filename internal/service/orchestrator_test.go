package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archpipe/internal/model"
)

// step is one scripted reply of a fake provider
type step struct {
	raw   string
	err   error
	delay time.Duration
	panic bool
}

// scriptedClient replays steps in order and repeats the last one
type scriptedClient struct {
	name      string
	available bool
	steps     []step

	mu    sync.Mutex
	calls int
}

func newScripted(name string, steps ...step) *scriptedClient {
	return &scriptedClient{name: name, available: true, steps: steps}
}

func (s *scriptedClient) Name() string    { return s.name }
func (s *scriptedClient) Available() bool { return s.available }

func (s *scriptedClient) Submit(ctx context.Context, _ Prompt, _ GenerationConfig) (string, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	if len(s.steps) == 0 {
		return "", &ProviderError{Provider: s.name, Kind: ErrTransientNetwork, Err: errors.New("no script")}
	}
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	st := s.steps[i]
	if st.panic {
		panic("boom")
	}
	if st.delay > 0 {
		select {
		case <-time.After(st.delay):
		case <-ctx.Done():
			return "", &ProviderError{Provider: s.name, Kind: ErrTimeout, Err: ctx.Err()}
		}
	}
	return st.raw, st.err
}

func (s *scriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func kindErr(provider string, kind error) error {
	return &ProviderError{Provider: provider, Kind: kind, Err: errors.New("scripted")}
}

func newTestOrchestrator(providers []Client, opts ...OrchestratorOption) *Orchestrator {
	opts = append([]OrchestratorOption{WithRetryDelay(time.Millisecond), WithAttemptTimeout(time.Second)}, opts...)
	return NewOrchestrator(providers, newTestNormalizer(), newTestFallback(), zerolog.Nop(), opts...)
}

func extractJob(text string) Job {
	return Job{
		RequestID: "req-1",
		AgentID:   "architectural",
		Schema:    model.SchemaParameters,
		Prompt:    Prompt{Task: TaskExtract, System: "s", User: text},
		Request:   model.NewDesignRequest(text, "ko", "", model.DesignContext{}),
	}
}

const validParams = `{"buildingType": "APARTMENT", "totalArea": {"value": 99, "unit": "m2", "confidence": 0.9}, "rooms": [{"type": "bedroom", "count": 3, "area": 11}], "confidence": 0.92}`

func TestOrchestratorFirstProviderSucceeds(t *testing.T) {
	a := newScripted("a", step{raw: "```json\n" + validParams + "\n```"})
	b := newScripted("b", step{raw: validParams})
	o := newTestOrchestrator([]Client{a, b})

	exec, err := o.Execute(context.Background(), extractJob("x"))
	require.NoError(t, err)
	assert.Equal(t, "a", exec.Source)
	assert.False(t, exec.Fallback)
	assert.Equal(t, 99.0, exec.Result.Parameters.TotalArea.Value)
	assert.Equal(t, 0.92, exec.Result.Confidence)
	require.Len(t, exec.Attempts, 1)
	assert.Equal(t, model.OutcomeSuccess, exec.Attempts[0].Outcome)
	assert.Equal(t, 0, b.Calls())
}

func TestOrchestratorMalformedFallsThrough(t *testing.T) {
	a := newScripted("a", step{raw: "I cannot answer that in JSON, sorry."})
	b := newScripted("b", step{raw: validParams})
	o := newTestOrchestrator([]Client{a, b})

	exec, err := o.Execute(context.Background(), extractJob("x"))
	require.NoError(t, err)

	alone, err := newTestOrchestrator([]Client{newScripted("b", step{raw: validParams})}).Execute(context.Background(), extractJob("x"))
	require.NoError(t, err)

	assert.Equal(t, alone.Result, exec.Result)
	assert.Equal(t, "b", exec.Source)
	require.Len(t, exec.Attempts, 2)
	assert.Equal(t, "a", exec.Attempts[0].Provider)
	assert.Equal(t, model.OutcomeMalformed, exec.Attempts[0].Outcome)
	assert.Equal(t, "parse_failure", exec.Attempts[0].ErrorKind)
	assert.Equal(t, 1, a.Calls(), "malformed output is not retried")
	assert.Equal(t, model.OutcomeSuccess, exec.Attempts[1].Outcome)
}

func TestOrchestratorRetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		kind      error
		wantCalls int
		outcome   model.AttemptOutcome
	}{
		{"timeout retried once", ErrTimeout, 2, model.OutcomeTimeout},
		{"transient retried once", ErrTransientNetwork, 2, model.OutcomeProviderError},
		{"rate limit advances", ErrRateLimited, 1, model.OutcomeProviderError},
		{"auth failure advances", ErrAuthFailure, 1, model.OutcomeProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newScripted("a", step{err: kindErr("a", tt.kind)})
			b := newScripted("b", step{raw: validParams})
			exec, err := newTestOrchestrator([]Client{a, b}).Execute(context.Background(), extractJob("x"))
			require.NoError(t, err)

			assert.Equal(t, tt.wantCalls, a.Calls())
			assert.Equal(t, "b", exec.Source)
			require.Len(t, exec.Attempts, tt.wantCalls+1)
			for i := 0; i < tt.wantCalls; i++ {
				assert.Equal(t, tt.outcome, exec.Attempts[i].Outcome)
				assert.Equal(t, i+1, exec.Attempts[i].Try)
			}
		})
	}
}

func TestOrchestratorRetrySucceeds(t *testing.T) {
	a := newScripted("a", step{err: kindErr("a", ErrTransientNetwork)}, step{raw: validParams})
	exec, err := newTestOrchestrator([]Client{a}).Execute(context.Background(), extractJob("x"))
	require.NoError(t, err)
	assert.Equal(t, "a", exec.Source)
	require.Len(t, exec.Attempts, 2)
	assert.Equal(t, 2, exec.Attempts[1].Try)
}

func TestOrchestratorSkipsUnavailable(t *testing.T) {
	a := &unavailableClient{name: "a", reason: "A_API_KEY is not set"}
	b := newScripted("b", step{raw: validParams})
	exec, err := newTestOrchestrator([]Client{a, b}).Execute(context.Background(), extractJob("x"))
	require.NoError(t, err)
	require.Len(t, exec.Attempts, 1)
	assert.Equal(t, "b", exec.Attempts[0].Provider)
}

func TestOrchestratorTotalFailureUsesFallback(t *testing.T) {
	text := "30평 아파트, 침실 2개, 남향 거실"
	providers := []Client{
		&unavailableClient{name: "a", reason: "missing"},
		newScripted("b", step{err: kindErr("b", ErrAuthFailure)}),
		newScripted("c", step{raw: "{broken"}),
	}
	exec, err := newTestOrchestrator(providers).Execute(context.Background(), extractJob(text))
	require.NoError(t, err)

	assert.True(t, exec.Fallback)
	assert.Equal(t, model.SourceFallback, exec.Source)
	assert.Len(t, exec.Attempts, 2)

	want := newTestNormalizer().Normalize(newTestFallback().Payload(extractJob(text).Request, model.SchemaParameters, nil), model.SchemaParameters)
	assert.Equal(t, want, exec.Result)
	assert.Less(t, exec.Result.Confidence, 0.9)
	assert.Equal(t, 30.0, exec.Result.Parameters.TotalArea.Value)
}

func TestOrchestratorNoProviders(t *testing.T) {
	exec, err := newTestOrchestrator(nil).Execute(context.Background(), extractJob(""))
	require.NoError(t, err)
	assert.True(t, exec.Fallback)
	assert.Empty(t, exec.Attempts)
	assert.Equal(t, []model.Room{}, exec.Result.Parameters.Rooms)
	require.NoError(t, exec.Result.Parameters.Validate())
}

func TestOrchestratorAbandonsSlowCall(t *testing.T) {
	slow := newScripted("slow", step{raw: validParams, delay: time.Minute})
	o := newTestOrchestrator([]Client{slow}, WithAttemptTimeout(20*time.Millisecond))

	start := time.Now()
	exec, err := o.Execute(context.Background(), extractJob("x"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, exec.Fallback)
	require.Len(t, exec.Attempts, 2, "timeout is retried once")
	assert.Equal(t, model.OutcomeTimeout, exec.Attempts[0].Outcome)
}

func TestOrchestratorSplitsDeadlineAcrossProviders(t *testing.T) {
	hung := newScripted("hung", step{raw: validParams, delay: 10 * time.Second})
	good := newScripted("good", step{raw: validParams})
	o := newTestOrchestrator([]Client{hung, good}, WithAttemptTimeout(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	exec, err := o.Execute(ctx, extractJob("x"))
	require.NoError(t, err)
	assert.Equal(t, "good", exec.Source)
	assert.False(t, exec.Fallback)
	require.Len(t, exec.Attempts, 3)
	assert.Equal(t, model.OutcomeTimeout, exec.Attempts[0].Outcome)
	assert.Equal(t, model.OutcomeTimeout, exec.Attempts[1].Outcome)
	assert.Equal(t, model.OutcomeSuccess, exec.Attempts[2].Outcome)
	assert.Equal(t, 1, good.Calls())
}

func TestOrchestratorAttemptBudget(t *testing.T) {
	o := newTestOrchestrator(nil, WithAttemptTimeout(time.Second))

	d, ok := o.attemptBudget(context.Background(), 3)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d, "no deadline keeps the configured timeout")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, ok = o.attemptBudget(ctx, 2)
	assert.True(t, ok)
	assert.Less(t, d, 450*time.Millisecond, "share of the budget after the fallback reserve")
	assert.Greater(t, d, 300*time.Millisecond)

	expired, cancelExpired := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancelExpired()
	<-expired.Done()
	_, ok = o.attemptBudget(expired, 1)
	assert.False(t, ok)
}

func TestOrchestratorCancelledContext(t *testing.T) {
	a := newScripted("a", step{raw: validParams})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec, err := newTestOrchestrator([]Client{a}).Execute(ctx, extractJob("x"))
	require.NoError(t, err)
	assert.True(t, exec.Fallback)
	assert.Equal(t, 0, a.Calls())
}

func TestOrchestratorObserver(t *testing.T) {
	var seen []model.GenerationAttempt
	observer := func(a model.GenerationAttempt) {
		seen = append(seen, a)
		panic("observer failure must not leak")
	}
	a := newScripted("a", step{raw: "nope"})
	b := newScripted("b", step{raw: validParams})
	exec, err := newTestOrchestrator([]Client{a, b}, WithAttemptObserver(observer)).Execute(context.Background(), extractJob("x"))
	require.NoError(t, err)
	assert.Equal(t, exec.Attempts, seen)
	assert.Equal(t, "b", exec.Source)
	for _, att := range seen {
		assert.NotEmpty(t, att.ID)
		assert.Equal(t, "req-1", att.RequestID)
	}
}

func TestOrchestratorProviderPanic(t *testing.T) {
	a := newScripted("a", step{panic: true})
	b := newScripted("b", step{raw: validParams})
	exec, err := newTestOrchestrator([]Client{a, b}).Execute(context.Background(), extractJob("x"))
	require.NoError(t, err)
	assert.Equal(t, "b", exec.Source)
	assert.Equal(t, 2, a.Calls(), "a panic is classified as a transient failure")
}
