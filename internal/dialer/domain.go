package dialer

import (
	"time"

	"github.com/google/uuid"
)

// CallState is the lifecycle state of a call job.
type CallState string

const (
	StateQueued    CallState = "queued"
	StateCalling   CallState = "calling"
	StateActive    CallState = "active"
	StateVoicemail CallState = "voicemail"
	StateNoAnswer  CallState = "no_answer"
	StateCompleted CallState = "completed"
	StateFailed    CallState = "failed"
)

// Terminal reports whether the state accepts no further transitions.
func (s CallState) Terminal() bool {
	switch s {
	case StateVoicemail, StateNoAnswer, StateCompleted, StateFailed:
		return true
	}
	return false
}

// stateRank orders states for the forward-only transition rule.
var stateRank = map[CallState]int{
	StateQueued:    0,
	StateCalling:   1,
	StateActive:    2,
	StateVoicemail: 3,
	StateNoAnswer:  3,
	StateCompleted: 3,
	StateFailed:    3,
}

// CanTransitionTo reports whether moving to next is a legal forward
// transition. Terminal states reject everything; re-entrant updates on a
// non-terminal job (e.g. a late AMD signal after active) are allowed.
func (s CallState) CanTransitionTo(next CallState) bool {
	if s.Terminal() {
		return false
	}
	if s == next {
		return false
	}
	return stateRank[next] > stateRank[s]
}

// CallJob is one outbound call attempt. It is mutated only by the worker
// that dequeued it and, for the webhook strategy, by externally pushed
// notifications matched on ProviderCallID.
type CallJob struct {
	ID               string
	ToNumber         string
	FromNumber       string
	AgentID          string
	DynamicVariables map[string]string
	State            CallState
	ProviderCallID   string
	AMDResult        string
	HangupCause      string
	Error            string
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// NewCallJob creates a job in the queued state with a fresh id.
func NewCallJob(toNumber, fromNumber, agentID string, variables map[string]string) *CallJob {
	return &CallJob{
		ID:               uuid.New().String(),
		ToNumber:         toNumber,
		FromNumber:       fromNumber,
		AgentID:          agentID,
		DynamicVariables: variables,
		State:            StateQueued,
		CreatedAt:        time.Now().UTC(),
	}
}

// OutcomeReason is the terminal classification of an origination attempt.
type OutcomeReason string

const (
	OutcomeVoicemail  OutcomeReason = "VOICEMAIL"
	OutcomeNoAnswer   OutcomeReason = "NO_ANSWER"
	OutcomeActive     OutcomeReason = "ACTIVE"
	OutcomeCompleted  OutcomeReason = "COMPLETED"
	OutcomeTimeout    OutcomeReason = "TIMEOUT"
	OutcomeError      OutcomeReason = "ERROR"
	OutcomeOriginated OutcomeReason = "ORIGINATED"
)

// CallOutcome is the result of the origination phase, with a free-text cause.
type CallOutcome struct {
	Reason OutcomeReason
	Cause  string
}
