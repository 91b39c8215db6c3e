package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxline/outdial/internal/config"
	"github.com/voxline/outdial/internal/dialer"
	"github.com/voxline/outdial/internal/retell"
	"github.com/voxline/outdial/internal/transfer"
)

// CallQueue is the dispatch surface the call handlers need.
type CallQueue interface {
	Submit(ctx context.Context, toNumber, fromNumber, agentID string, variables map[string]string) (string, error)
	GetJob(ctx context.Context, jobID string) (*dialer.CallJob, error)
	WaitForOutcome(ctx context.Context, jobID string, wait time.Duration) (*dialer.CallJob, error)
	ActiveCount() int
	QueueDepth() int
	Concurrency() int
}

// Notifier ingests pushed call signals.
type Notifier interface {
	HandleAMDResult(ctx context.Context, providerCallID, result, cause string) error
	HandleCallStarted(ctx context.Context, providerCallID string) error
	HandleCallEnded(ctx context.Context, providerCallID string, startMS, endMS int64) error
	HandleCallAnalyzed(ctx context.Context, providerCallID string, analysis retell.CallAnalysis) error
}

// TransferService drives the agent-bridge flow.
type TransferService interface {
	Prepare(ctx context.Context, transferID, providerCallID, phone string) (*transfer.Session, error)
	Execute(ctx context.Context, transferID, agentExtension string) (*transfer.Session, error)
	Complete(ctx context.Context, transferID string, success bool) error
}

// Classifier persists line-classification verdicts.
type Classifier interface {
	SaveClassification(ctx context.Context, phone, status, cause string) error
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Config     *config.Config
	Queue      CallQueue
	Notifier   Notifier
	Transfers  TransferService
	Classifier Classifier
	Database   HealthChecker
	Redis      HealthChecker
}
