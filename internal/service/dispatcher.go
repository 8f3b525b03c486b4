package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"archpipe/internal/model"
)

// AgentRunner executes one agent to a terminal result
type AgentRunner func(ctx context.Context, spec model.AgentSpec) model.AgentAnalysisResult

// AgentCallback is invoked once per finished agent. Calls are serialized.
type AgentCallback func(model.AgentAnalysisResult)

// Dispatcher fans a request out to agents and aggregates their results
type Dispatcher struct {
	agentTimeout time.Duration
	margin       time.Duration
	normalizer   *Normalizer
	scorer       *Scorer
	logger       zerolog.Logger
}

// NewDispatcher creates a dispatcher. agentTimeout applies to specs without
// their own timeout; margin is added to the slowest agent timeout to form the
// outer deadline.
func NewDispatcher(agentTimeout, margin time.Duration, normalizer *Normalizer, scorer *Scorer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		agentTimeout: agentTimeout,
		margin:       margin,
		normalizer:   normalizer,
		scorer:       scorer,
		logger:       logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch runs every agent concurrently and waits for all of them. The
// composite holds exactly one entry per spec: an agent that times out or
// panics is recorded as failed with confidence 0.
func (d *Dispatcher) Dispatch(ctx context.Context, specs []model.AgentSpec, run AgentRunner, onAgent AgentCallback) (model.CompositeAnalysisResult, error) {
	if err := validateSpecs(specs); err != nil {
		return model.CompositeAnalysisResult{}, err
	}

	outer := d.agentTimeout
	for _, spec := range specs {
		outer = max(outer, d.timeoutFor(spec))
	}
	ctx, cancel := context.WithTimeout(ctx, outer+d.margin)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]model.AgentAnalysisResult, len(specs))
	g, gctx := errgroup.WithContext(ctx)

	for _, spec := range specs {
		g.Go(func() error {
			res := d.runAgent(gctx, spec, run)

			mu.Lock()
			defer mu.Unlock()
			results[spec.ID] = res
			if onAgent != nil {
				d.notify(onAgent, res)
			}
			return nil
		})
	}
	// agents never return errors; failures are recorded in their results
	_ = g.Wait()

	weights := make(map[string]float64, len(specs))
	var longest int64
	for _, spec := range specs {
		weights[spec.ID] = spec.Weight
		longest = max(longest, results[spec.ID].ProcessingTimeMs)
	}

	composite := model.CompositeAnalysisResult{
		Agents:           results,
		OverallScore:     d.scorer.OverallScore(results, weights),
		Timestamp:        time.Now().UTC(),
		ProcessingTimeMs: longest,
	}
	d.logger.Info().
		Int("agents", len(specs)).
		Float64("overall_score", composite.OverallScore).
		Int64("duration_ms", longest).
		Msg("analysis dispatched")
	return composite, nil
}

func (d *Dispatcher) timeoutFor(spec model.AgentSpec) time.Duration {
	if spec.Timeout > 0 {
		return spec.Timeout
	}
	return d.agentTimeout
}

// runAgent bounds run by the agent timeout plus half the aggregation margin. A
// runner still busy after that is abandoned and replaced by a failed placeholder.
func (d *Dispatcher) runAgent(ctx context.Context, spec model.AgentSpec, run AgentRunner) model.AgentAnalysisResult {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, d.timeoutFor(spec))
	defer cancel()

	done := make(chan model.AgentAnalysisResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Interface("panic", r).Str("agent", spec.ID).Msg("agent runner panicked")
				done <- d.placeholder(spec, start, fmt.Sprintf("agent failed: %v", r))
			}
		}()
		done <- run(actx, spec)
	}()

	select {
	case res := <-done:
		return res
	case <-actx.Done():
	}

	// a runner whose provider calls were cut short is usually finishing its
	// fallback analysis; give it part of the aggregation margin
	grace := time.NewTimer(d.margin / 2)
	defer grace.Stop()
	select {
	case res := <-done:
		return res
	case <-grace.C:
	case <-ctx.Done():
	}
	d.logger.Warn().Str("agent", spec.ID).Dur("timeout", d.timeoutFor(spec)).Msg("agent timed out")
	return d.placeholder(spec, start, "agent timed out")
}

func (d *Dispatcher) placeholder(spec model.AgentSpec, start time.Time, reason string) model.AgentAnalysisResult {
	result := d.normalizer.Normalize(nil, spec.Schema)
	result.Confidence = 0
	return model.AgentAnalysisResult{
		AgentID:          spec.ID,
		Title:            spec.Title,
		Status:           model.AgentFailed,
		Confidence:       0,
		Recommendations:  []string{},
		Result:           result,
		Source:           model.SourceNone,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Error:            reason,
	}
}

func (d *Dispatcher) notify(onAgent AgentCallback, res model.AgentAnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("agent", res.AgentID).Msg("agent callback panicked")
		}
	}()
	onAgent(res)
}

func validateSpecs(specs []model.AgentSpec) error {
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if spec.ID == "" {
			return fmt.Errorf("%w: spec %d has no id", ErrInvalidAgents, i)
		}
		if seen[spec.ID] {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalidAgents, spec.ID)
		}
		seen[spec.ID] = true
	}
	return nil
}
