package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"archpipe/internal/model"
	"archpipe/internal/utils"
)

// Cache namespaces
const (
	namespaceExtract  = "extract"
	namespaceAnalysis = "analysis"
)

// Extraction is the detailed outcome of a parameter extraction
type Extraction struct {
	Result    model.CanonicalResult     `json:"result"`
	Source    string                    `json:"source"` // provider name, "fallback" or "cache"
	CacheHash string                    `json:"cacheHash"`
	HitCount  int64                     `json:"hitCount"`
	Attempts  []model.GenerationAttempt `json:"attempts"`
	RequestID string                    `json:"requestId"`
}

// Pipeline is the entry point for all design tasks. It never returns a
// provider or parse failure; every method yields a schema-complete result.
type Pipeline struct {
	builder      *PromptBuilder
	orchestrator *Orchestrator
	dispatcher   *Dispatcher
	cache        *ResultCache
	agents       []model.AgentSpec
	genConfig    GenerationConfig
	logger       zerolog.Logger
}

// NewPipeline creates a pipeline. agents are the default specs used when a
// caller does not name any.
func NewPipeline(
	builder *PromptBuilder,
	orchestrator *Orchestrator,
	dispatcher *Dispatcher,
	cache *ResultCache,
	agents []model.AgentSpec,
	genConfig GenerationConfig,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		builder:      builder,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		cache:        cache,
		agents:       agents,
		genConfig:    genConfig,
		logger:       logger.With().Str("component", "pipeline").Logger(),
	}
}

// Cache returns the result cache
func (p *Pipeline) Cache() *ResultCache { return p.cache }

// Agents returns the default agent specs
func (p *Pipeline) Agents() []model.AgentSpec { return p.agents }

// Providers describes the configured providers in priority order
func (p *Pipeline) Providers() []ProviderStatus {
	return DescribeProviders(p.orchestrator.Providers())
}

// ExtractParameters turns a description into canonical design parameters
func (p *Pipeline) ExtractParameters(ctx context.Context, req model.DesignRequest) (model.CanonicalResult, error) {
	ext, err := p.Extract(ctx, req)
	if err != nil {
		return model.CanonicalResult{}, err
	}
	return ext.Result, nil
}

// Extract is ExtractParameters with the source, cache key and attempt log
func (p *Pipeline) Extract(ctx context.Context, req model.DesignRequest) (Extraction, error) {
	req = model.NewDesignRequest(req.Text, req.Locale, req.BuildingTypeHint, req.Context)
	reqID := uuid.NewString()
	hash := CacheKey(namespaceExtract, req)
	log := p.logger.With().Str("request_id", reqID).Str("hash", hash).Logger()

	var cached model.CanonicalResult
	if entry, ok := p.cache.Lookup(ctx, hash, &cached); ok {
		log.Debug().Int64("hit_count", entry.HitCount).Msg("extraction served from cache")
		return Extraction{
			Result:    cached,
			Source:    model.SourceCache,
			CacheHash: hash,
			HitCount:  entry.HitCount,
			Attempts:  []model.GenerationAttempt{},
			RequestID: reqID,
		}, nil
	}

	job := Job{
		RequestID: reqID,
		AgentID:   namespaceExtract,
		Schema:    model.SchemaParameters,
		Config:    p.genConfig,
		Request:   req,
	}

	var exec Execution
	var err error
	if strings.TrimSpace(req.Text) == "" {
		exec, err = p.fallbackOnly(job)
	} else {
		job.Prompt, err = p.builder.Build(TaskExtract, PromptInput{
			Text:             req.Text,
			Context:          req.Context,
			Locale:           req.Locale,
			BuildingTypeHint: req.BuildingTypeHint,
		})
		if err != nil {
			return Extraction{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		exec, err = p.orchestrator.Execute(ctx, job)
	}
	if err != nil {
		return Extraction{}, err
	}

	if strings.TrimSpace(req.Text) != "" {
		p.cache.Store(ctx, hash, req, exec.Result, exec.Result.Confidence, exec.Fallback)
	}
	log.Info().
		Str("source", exec.Source).
		Float64("confidence", exec.Result.Confidence).
		Int("attempts", len(exec.Attempts)).
		Msg("parameters extracted")

	return Extraction{
		Result:    exec.Result,
		Source:    exec.Source,
		CacheHash: hash,
		Attempts:  nonNilAttempts(exec.Attempts),
		RequestID: reqID,
	}, nil
}

// RunComprehensiveAnalysis runs every agent concurrently and aggregates them.
// A nil or empty specs list runs the default agents.
func (p *Pipeline) RunComprehensiveAnalysis(ctx context.Context, req model.DesignRequest, specs []model.AgentSpec) (model.CompositeAnalysisResult, error) {
	return p.RunComprehensiveAnalysisStream(ctx, req, specs, nil)
}

// RunComprehensiveAnalysisStream is RunComprehensiveAnalysis with onAgent
// invoked as each agent finishes. Calls are serialized; order is unspecified.
func (p *Pipeline) RunComprehensiveAnalysisStream(ctx context.Context, req model.DesignRequest, specs []model.AgentSpec, onAgent AgentCallback) (model.CompositeAnalysisResult, error) {
	if len(specs) == 0 {
		specs = p.agents
	}
	if err := validateSpecs(specs); err != nil {
		return model.CompositeAnalysisResult{}, err
	}
	req = model.NewDesignRequest(req.Text, req.Locale, req.BuildingTypeHint, req.Context)
	reqID := uuid.NewString()
	hash := CacheKey(analysisNamespace(specs), req)
	log := p.logger.With().Str("request_id", reqID).Str("hash", hash).Logger()

	var cached model.CompositeAnalysisResult
	if _, ok := p.cache.Lookup(ctx, hash, &cached); ok && len(cached.Agents) == len(specs) {
		log.Debug().Msg("analysis served from cache")
		if onAgent != nil {
			for _, id := range sortedAgentIDs(cached.Agents) {
				p.dispatcher.notify(onAgent, cached.Agents[id])
			}
		}
		return cached, nil
	}

	// specialists run alongside the architectural agent, so they start from a
	// local extraction rather than waiting for its answer
	base := p.orchestrator.normalizer.NormalizeParameters(ptr(p.orchestrator.fallback.Analyze(req)))

	run := func(actx context.Context, spec model.AgentSpec) model.AgentAnalysisResult {
		return p.runAgent(actx, reqID, req, spec, &base)
	}
	composite, err := p.dispatcher.Dispatch(ctx, specs, run, onAgent)
	if err != nil {
		return model.CompositeAnalysisResult{}, err
	}

	cacheable, fallback := true, false
	for _, a := range composite.Agents {
		if a.Status != model.AgentCompleted {
			cacheable = false
		}
		if a.Source == model.SourceFallback {
			fallback = true
		}
	}
	if cacheable && strings.TrimSpace(req.Text) != "" {
		p.cache.Store(ctx, hash, req, composite, composite.OverallScore, fallback)
	}
	return composite, nil
}

func (p *Pipeline) runAgent(ctx context.Context, reqID string, req model.DesignRequest, spec model.AgentSpec, base *model.ParameterResult) model.AgentAnalysisResult {
	start := time.Now()
	job := Job{
		RequestID: reqID,
		AgentID:   spec.ID,
		Schema:    spec.Schema,
		Config:    p.genConfig,
		Request:   req,
	}
	in := PromptInput{
		Text:             req.Text,
		Context:          req.Context,
		Locale:           req.Locale,
		BuildingTypeHint: req.BuildingTypeHint,
		AgentTitle:       spec.Title,
		Focus:            spec.Focus,
		Schema:           spec.Schema,
	}
	if spec.Schema != model.SchemaParameters {
		job.Base = base
		in.Parameters = base
	}

	var exec Execution
	var err error
	if strings.TrimSpace(req.Text) == "" {
		exec, err = p.fallbackOnly(job)
	} else if job.Prompt, err = p.builder.Build(TaskKind(spec.Task), in); err == nil {
		exec, err = p.orchestrator.Execute(ctx, job)
	}

	if err != nil {
		p.logger.Error().Err(err).Str("request_id", reqID).Str("agent", spec.ID).Msg("agent failed")
		res := p.dispatcher.placeholder(spec, start, err.Error())
		res.Attempts = nonNilAttempts(exec.Attempts)
		return res
	}
	return model.AgentAnalysisResult{
		AgentID:          spec.ID,
		Title:            spec.Title,
		Status:           model.AgentCompleted,
		Confidence:       exec.Result.Confidence,
		Recommendations:  exec.Result.Recommendations,
		Result:           exec.Result,
		Source:           exec.Source,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Attempts:         nonNilAttempts(exec.Attempts),
	}
}

// ValidateParameters reviews params for consistency and feasibility
func (p *Pipeline) ValidateParameters(ctx context.Context, params model.ParameterResult, locale string) (model.ValidationReport, error) {
	normalized := p.orchestrator.normalizer.NormalizeParameters(&params)
	req := model.NewDesignRequest(normalized.Description, locale, normalized.BuildingType, model.DesignContext{})

	exec, err := p.runTask(ctx, TaskValidate, req, &normalized, nil)
	if err != nil {
		return model.ValidationReport{}, err
	}
	f := exec.Result.Findings
	return model.ValidationReport{
		Valid:       toBool(f["valid"], false),
		Score:       clamp(toNumber(f["score"], 0), 0, 1),
		Issues:      toStringList(f["issues"], p.itemRunes()),
		Warnings:    toStringList(f["warnings"], p.itemRunes()),
		Suggestions: toStringList(f["suggestions"], p.itemRunes()),
		Summary:     exec.Result.Summary,
		Confidence:  exec.Result.Confidence,
		Source:      exec.Source,
	}, nil
}

// OptimizeParameters returns params improved toward goals. When no provider
// answers, params come back unchanged.
func (p *Pipeline) OptimizeParameters(ctx context.Context, params model.ParameterResult, goals []string, locale string) (model.ParameterResult, error) {
	normalized := p.orchestrator.normalizer.NormalizeParameters(&params)
	req := model.NewDesignRequest(normalized.Description, locale, normalized.BuildingType, model.DesignContext{})

	exec, err := p.runTask(ctx, TaskOptimize, req, &normalized, goals)
	if err != nil {
		return model.ParameterResult{}, err
	}
	return exec.Result.Parameters, nil
}

// Chat answers a question about a project
func (p *Pipeline) Chat(ctx context.Context, message string, dctx model.DesignContext, locale string) (model.ChatReply, error) {
	req := model.NewDesignRequest(message, locale, "", dctx)

	exec, err := p.runTask(ctx, TaskChat, req, nil, nil)
	if err != nil {
		return model.ChatReply{}, err
	}
	return model.ChatReply{
		Answer:      toString(exec.Result.Findings["answer"], ""),
		Suggestions: toStringList(exec.Result.Findings["suggestions"], p.itemRunes()),
		Confidence:  exec.Result.Confidence,
		Source:      exec.Source,
	}, nil
}

// runTask executes a single-schema task without caching
func (p *Pipeline) runTask(ctx context.Context, task TaskKind, req model.DesignRequest, params *model.ParameterResult, goals []string) (Execution, error) {
	reqID := uuid.NewString()
	job := Job{
		RequestID: reqID,
		AgentID:   string(task),
		Schema:    p.builder.SchemaFor(task, ""),
		Config:    p.genConfig,
		Request:   req,
		Base:      params,
	}

	if task == TaskChat && strings.TrimSpace(req.Text) == "" {
		return p.fallbackOnly(job)
	}
	prompt, err := p.builder.Build(task, PromptInput{
		Text:       req.Text,
		Context:    req.Context,
		Locale:     req.Locale,
		Parameters: params,
		Goals:      goals,
	})
	if err != nil {
		return Execution{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	job.Prompt = prompt

	exec, err := p.orchestrator.Execute(ctx, job)
	if err != nil {
		return Execution{}, err
	}
	p.logger.Info().
		Str("request_id", reqID).
		Str("task", string(task)).
		Str("source", exec.Source).
		Float64("confidence", exec.Result.Confidence).
		Msg("task completed")
	return exec, nil
}

// fallbackOnly skips the providers for input they could not improve on
func (p *Pipeline) fallbackOnly(job Job) (Execution, error) {
	result, err := p.orchestrator.runFallback(job)
	if err != nil {
		return Execution{}, err
	}
	return Execution{Result: result, Source: model.SourceFallback, Attempts: []model.GenerationAttempt{}, Fallback: true}, nil
}

func (p *Pipeline) itemRunes() int {
	return p.orchestrator.normalizer.table.Parameters.ListItemMaxRunes
}

// analysisNamespace keys a composite by every field of its specs, so a change
// of weight, title, task, focus or timeout never reuses an earlier composite
func analysisNamespace(specs []model.AgentSpec) string {
	sorted := slices.Clone(specs)
	slices.SortFunc(sorted, func(a, b model.AgentSpec) int { return strings.Compare(a.ID, b.ID) })
	// AgentSpec holds only plain fields, so marshaling cannot fail
	data, _ := json.Marshal(sorted)
	return namespaceAnalysis + ":" + utils.ContentHash(string(data))
}

func sortedAgentIDs(agents map[string]model.AgentAnalysisResult) []string {
	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func nonNilAttempts(a []model.GenerationAttempt) []model.GenerationAttempt {
	if a == nil {
		return []model.GenerationAttempt{}
	}
	return a
}

func ptr[T any](v T) *T { return &v }
