package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxline/outdial/internal/ami"
	"github.com/voxline/outdial/internal/config"
	"github.com/voxline/outdial/internal/dialer/store"
)

// Status is the lifecycle status of a transfer session.
type Status string

const (
	StatusPrepared          Status = "prepared"
	StatusPreparedNoChannel Status = "prepared_without_channel"
	StatusBridging          Status = "bridging"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

var (
	// ErrTransferNotFound means no live session exists for the transfer id.
	ErrTransferNotFound = errors.New("transfer session not found")

	// ErrChannelNotFound means the callee's channel could not be resolved
	// on the PBX, so there is nothing to bridge the agent onto.
	ErrChannelNotFound = errors.New("target channel not found")
)

// Session is a live transfer. A transfer id maps to at most one session.
type Session struct {
	TransferID     string
	ProviderCallID string
	Phone          string
	Channel        string
	AgentExtension string
	Status         Status
	PreparedAt     time.Time
}

// AMISession is a manager connection used for channel discovery and the
// bridge originate. Opened per operation, closed when it returns.
type AMISession interface {
	Send(ctx context.Context, action ami.Action) (ami.Event, error)
	CollectEvents(ctx context.Context, terminalEvent string) ([]ami.Event, error)
	Close() error
}

// SessionDialer opens a fresh AMISession.
type SessionDialer func(ctx context.Context) (AMISession, error)

// AuditStore persists transfer status changes for reporting.
type AuditStore interface {
	SaveTransfer(ctx context.Context, rec store.TransferRecord) error
}

// Orchestrator tracks live transfer sessions and drives the two-step
// bridge: resolve the callee's channel, then originate the agent leg into
// the bridge context.
type Orchestrator struct {
	dial   SessionDialer
	audit  AuditStore
	amiCfg config.AMIConfig
	cfg    config.TransferConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewOrchestrator creates a transfer orchestrator with an empty registry.
func NewOrchestrator(dial SessionDialer, audit AuditStore, amiCfg config.AMIConfig, cfg config.TransferConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		dial:     dial,
		audit:    audit,
		amiCfg:   amiCfg,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "transfer")),
		sessions: make(map[string]*Session),
	}
}

// Prepare resolves the callee's live channel for a provider call and
// registers the session. A failed resolution is not an error: the session
// is kept without a channel and Execute retries the lookup.
func (o *Orchestrator) Prepare(ctx context.Context, transferID, providerCallID, phone string) (*Session, error) {
	sess := &Session{
		TransferID:     transferID,
		ProviderCallID: providerCallID,
		Phone:          phone,
		Status:         StatusPrepared,
		PreparedAt:     time.Now().UTC(),
	}

	channel, err := o.findChannel(ctx, providerCallID)
	if err != nil {
		o.logger.Warn("channel discovery failed during prepare",
			slog.String("transfer_id", transferID),
			slog.Any("error", err),
		)
		sess.Status = StatusPreparedNoChannel
	} else {
		sess.Channel = channel
	}

	snap := *sess
	o.mu.Lock()
	o.sessions[transferID] = sess
	o.mu.Unlock()

	o.saveAudit(ctx, snap)

	o.logger.Info("transfer prepared",
		slog.String("transfer_id", transferID),
		slog.String("provider_call_id", providerCallID),
		slog.String("channel", snap.Channel),
		slog.String("status", string(snap.Status)),
	)
	return &snap, nil
}

// Execute bridges an agent onto the prepared call. When the channel was
// not resolved at prepare time, discovery is retried first. The registry
// entry is only read and written under the lock; the AMI work runs on a
// snapshot.
func (o *Orchestrator) Execute(ctx context.Context, transferID, agentExtension string) (*Session, error) {
	o.mu.Lock()
	sess, ok := o.sessions[transferID]
	if !ok {
		o.mu.Unlock()
		return nil, ErrTransferNotFound
	}
	snap := *sess
	o.mu.Unlock()

	if agentExtension == "" {
		agentExtension = o.cfg.DefaultAgentExtension
	}

	if snap.Channel == "" {
		channel, err := o.findChannel(ctx, snap.ProviderCallID)
		if err != nil {
			return &snap, ErrChannelNotFound
		}
		snap.Channel = channel
	}

	amiSess, err := o.dial(ctx)
	if err != nil {
		return &snap, fmt.Errorf("failed to open AMI session: %w", err)
	}
	defer amiSess.Close()

	action := ami.NewAction("Originate").
		Field("Channel", fmt.Sprintf("%s/%s", o.amiCfg.AgentChannelTech, agentExtension)).
		Field("Context", o.amiCfg.BridgeContext).
		Field("Exten", "s").
		Field("Priority", "1").
		Field("CallerID", fmt.Sprintf("Transfer <%s>", snap.Phone)).
		Field("Async", "true").
		Variable("TARGET_CHANNEL", snap.Channel).
		Variable("TRANSFER_ID", snap.TransferID)

	resp, err := amiSess.Send(ctx, action)
	if err != nil {
		return &snap, fmt.Errorf("failed to originate agent leg: %w", err)
	}
	if !resp.Success() {
		return &snap, fmt.Errorf("agent leg rejected: %s", resp.Get("Message"))
	}

	o.mu.Lock()
	sess.Channel = snap.Channel
	sess.AgentExtension = agentExtension
	sess.Status = StatusBridging
	snap = *sess
	o.mu.Unlock()

	o.saveAudit(ctx, snap)

	o.logger.Info("transfer bridging",
		slog.String("transfer_id", transferID),
		slog.String("agent_extension", agentExtension),
		slog.String("channel", snap.Channel),
	)
	return &snap, nil
}

// Complete closes the session and records its final outcome.
func (o *Orchestrator) Complete(ctx context.Context, transferID string, success bool) error {
	o.mu.Lock()
	sess, ok := o.sessions[transferID]
	if ok {
		delete(o.sessions, transferID)
	}
	var snap Session
	if ok {
		snap = *sess
	}
	o.mu.Unlock()
	if !ok {
		return ErrTransferNotFound
	}

	if success {
		snap.Status = StatusCompleted
	} else {
		snap.Status = StatusFailed
	}
	o.saveAudit(ctx, snap)

	o.logger.Info("transfer completed",
		slog.String("transfer_id", transferID),
		slog.Bool("success", success),
	)
	return nil
}

// Get returns a copy of the live session for the transfer id, if any.
func (o *Orchestrator) Get(transferID string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[transferID]
	if !ok {
		return nil, false
	}
	snap := *sess
	return &snap, true
}

// findChannel enumerates live channels and matches them by the
// PROVIDER_CALL_ID channel variable set at origination.
func (o *Orchestrator) findChannel(ctx context.Context, providerCallID string) (string, error) {
	timeout := o.cfg.DiscoveryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := o.dial(dctx)
	if err != nil {
		return "", fmt.Errorf("failed to open AMI session: %w", err)
	}
	defer sess.Close()

	resp, err := sess.Send(dctx, ami.NewAction("Status"))
	if err != nil {
		return "", fmt.Errorf("failed to request channel status: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("status request rejected: %s", resp.Get("Message"))
	}

	events, err := sess.CollectEvents(dctx, "StatusComplete")
	if err != nil {
		return "", fmt.Errorf("failed to enumerate channels: %w", err)
	}

	for _, evt := range events {
		if evt.Type() != "Status" {
			continue
		}
		channel := evt.Get("Channel")
		if channel == "" {
			continue
		}

		getvar := ami.NewAction("Getvar").
			Field("Channel", channel).
			Field("Variable", "PROVIDER_CALL_ID")
		varResp, err := sess.Send(dctx, getvar)
		if err != nil {
			o.logger.Debug("getvar failed for channel",
				slog.String("channel", channel),
				slog.Any("error", err),
			)
			continue
		}
		if varResp.Get("Value") == providerCallID {
			return channel, nil
		}
	}
	return "", ErrChannelNotFound
}

func (o *Orchestrator) saveAudit(ctx context.Context, sess Session) {
	rec := store.TransferRecord{
		TransferID:     sess.TransferID,
		ProviderCallID: sess.ProviderCallID,
		Phone:          sess.Phone,
		AgentExtension: sess.AgentExtension,
		Status:         string(sess.Status),
	}
	if err := o.audit.SaveTransfer(ctx, rec); err != nil {
		o.logger.Error("failed to save transfer audit record",
			slog.String("transfer_id", sess.TransferID),
			slog.Any("error", err),
		)
	}
}
