package dialer

import (
	"context"
	"time"

	"github.com/voxline/outdial/internal/ami"
)

// JobUpdate is a partial update of a stored job. Nil fields are untouched.
type JobUpdate struct {
	State          *CallState
	ProviderCallID *string
	AMDResult      *string
	HangupCause    *string
	Error          *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// JobStore is the ephemeral store holding live job state.
type JobStore interface {
	CreateJob(ctx context.Context, job *CallJob) error
	GetJob(ctx context.Context, jobID string) (*CallJob, error)
	UpdateJob(ctx context.Context, jobID string, upd JobUpdate) error
	BindProviderCall(ctx context.Context, jobID, providerCallID string) error
	JobIDByProviderCall(ctx context.Context, providerCallID string) (string, error)
}

// CallRecord is one row of the durable mirror.
type CallRecord struct {
	JobID           string
	ProviderCallID  string
	Phone           string
	Status          string
	DurationSeconds int
	EndReason       string
	Active          bool
}

// Mirror is the durable store. Mirror failures never fail the call flow;
// callers log and continue.
type Mirror interface {
	UpsertCall(ctx context.Context, rec CallRecord) error
	UpdateCallByProvider(ctx context.Context, providerCallID, status, endReason string, durationSeconds int, active bool) error
}

// CallRegistrar creates a call session with the voice-AI provider and
// returns the provider's call id.
type CallRegistrar interface {
	RegisterCall(ctx context.Context, toNumber, fromNumber, agentID string, variables map[string]string) (string, error)
}

// AMISession is one authenticated manager connection, consumed by a single
// origination or discovery flow and closed when it finishes.
type AMISession interface {
	Send(ctx context.Context, action ami.Action) (ami.Event, error)
	Events() <-chan ami.Event
	Close() error
}

// SessionDialer opens a fresh AMISession.
type SessionDialer func(ctx context.Context) (AMISession, error)

// OutcomeStrategy originates the call for a registered job and resolves
// its outcome. The sync strategy supervises the call on the manager
// connection; the webhook strategy returns immediately after origination.
type OutcomeStrategy interface {
	Resolve(ctx context.Context, job *CallJob) (CallOutcome, error)
}
