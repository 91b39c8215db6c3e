package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxline/outdial/internal/retell"
)

// The notifier methods ingest externally pushed call signals (manager
// callbacks and provider webhooks) and apply them to the matching job.
// Signals for expired or unknown provider call ids still update the durable
// mirror where possible, so reporting survives ephemeral record expiry.

// HandleAMDResult applies a machine-detection verdict pushed by the
// dialplan. result is one of VOICEMAIL, NO_ANSWER, BUSY, FAILED or HUMAN.
func (m *Manager) HandleAMDResult(ctx context.Context, providerCallID, result, cause string) error {
	jobID, err := m.store.JobIDByProviderCall(ctx, providerCallID)
	if err != nil {
		return fmt.Errorf("no job for provider call %s: %w", providerCallID, err)
	}

	var (
		next CallState
		upd  JobUpdate
	)
	switch strings.ToUpper(result) {
	case "HUMAN":
		next = StateActive
		amd := "HUMAN"
		upd.AMDResult = &amd
	case "VOICEMAIL", "MACHINE":
		next = StateVoicemail
		amd := "MACHINE"
		msg := "Voicemail: " + cause
		upd.AMDResult = &amd
		upd.Error = &msg
	case "NO_ANSWER", "BUSY":
		next = StateNoAnswer
		if cause == "" {
			cause = strings.ToUpper(result)
		}
		upd.HangupCause = &cause
	case "FAILED":
		next = StateFailed
		msg := "Origination failed: " + cause
		upd.Error = &msg
	default:
		return fmt.Errorf("unknown AMD result %q", result)
	}

	if _, err := m.transition(ctx, jobID, next, upd); err != nil && !IsTerminalStateErr(err) {
		return err
	}
	return nil
}

// HandleCallStarted marks the job active when the provider reports the
// conversation has begun.
func (m *Manager) HandleCallStarted(ctx context.Context, providerCallID string) error {
	jobID, err := m.store.JobIDByProviderCall(ctx, providerCallID)
	if err != nil {
		return fmt.Errorf("no job for provider call %s: %w", providerCallID, err)
	}

	if _, err := m.transition(ctx, jobID, StateActive, JobUpdate{}); err != nil && !IsTerminalStateErr(err) {
		return err
	}
	return nil
}

// HandleCallEnded completes the job and records the call's durable
// classification. Very short calls are flagged separately from finished
// conversations.
func (m *Manager) HandleCallEnded(ctx context.Context, providerCallID string, startMS, endMS int64) error {
	status, endReason, seconds := retell.ClassifyEnded(startMS, endMS)

	jobID, err := m.store.JobIDByProviderCall(ctx, providerCallID)
	if err != nil {
		// The ephemeral record may have expired mid-call; keep the
		// durable report accurate regardless.
		m.logger.Warn("call_ended for unknown job, updating mirror only",
			slog.String("provider_call_id", providerCallID),
		)
		return m.mirror.UpdateCallByProvider(ctx, providerCallID, status, endReason, seconds, status == "finished")
	}

	cause := endReason
	if _, err := m.transition(ctx, jobID, StateCompleted, JobUpdate{HangupCause: &cause}); err != nil && !IsTerminalStateErr(err) {
		return err
	}

	if err := m.mirror.UpdateCallByProvider(ctx, providerCallID, status, endReason, seconds, status == "finished"); err != nil {
		m.logger.Error("durable mirror update failed",
			slog.String("provider_call_id", providerCallID),
			slog.Any("error", err),
		)
	}
	return nil
}

// HandleCallAnalyzed reclassifies the durable record when the post-call
// analysis shows the contact asked to be called back. The job itself is
// already terminal by the time analysis arrives; only the durable status
// changes.
func (m *Manager) HandleCallAnalyzed(ctx context.Context, providerCallID string, analysis retell.CallAnalysis) error {
	if !retell.WantsCallback(analysis) {
		m.logger.Debug("call analysis without callback request",
			slog.String("provider_call_id", providerCallID),
		)
		return nil
	}

	m.logger.Info("callback requested by contact",
		slog.String("provider_call_id", providerCallID),
	)
	return m.mirror.UpdateCallByProvider(ctx, providerCallID, "callback", "", 0, true)
}
