package model

import "time"

// AttemptOutcome classifies one provider call
type AttemptOutcome string

const (
	OutcomeSuccess       AttemptOutcome = "success"
	OutcomeMalformed     AttemptOutcome = "malformed"
	OutcomeTimeout       AttemptOutcome = "timeout"
	OutcomeProviderError AttemptOutcome = "provider-error"
)

// GenerationAttempt records one call to one provider. Attempts live in memory for
// the duration of a request and are emitted to the attempt observer.
type GenerationAttempt struct {
	ID          string         `json:"id"`
	RequestID   string         `json:"requestId"`
	AgentID     string         `json:"agentId,omitempty"`
	Provider    string         `json:"provider"`
	Try         int            `json:"try"` // 1 for the first call, 2 for the retry
	Prompt      string         `json:"-"`
	RawResponse string         `json:"rawResponse,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   string         `json:"errorKind,omitempty"`
	Outcome     AttemptOutcome `json:"outcome"`
	StartedAt   time.Time      `json:"startedAt"`
	DurationMs  int64          `json:"durationMs"`
}
