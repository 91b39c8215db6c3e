package dialer

import (
	"context"
	"fmt"
	"log/slog"
)

// processCall drives a dequeued job through registration, origination and
// outcome mapping. Exactly one worker runs this per job.
func (m *Manager) processCall(ctx context.Context, jobID string) error {
	job, err := m.transition(ctx, jobID, StateCalling, JobUpdate{})
	if err != nil {
		return err
	}

	providerCallID, err := m.registrar.RegisterCall(ctx, job.ToNumber, job.FromNumber, job.AgentID, job.DynamicVariables)
	if err != nil {
		return m.failJob(ctx, jobID, fmt.Errorf("failed to register call: %w", err))
	}

	if err := m.store.BindProviderCall(ctx, jobID, providerCallID); err != nil {
		return m.failJob(ctx, jobID, fmt.Errorf("failed to bind provider call id: %w", err))
	}
	job.ProviderCallID = providerCallID
	m.mirrorJob(ctx, job)

	m.logger.Info("call registered",
		slog.String("job_id", jobID),
		slog.String("provider_call_id", providerCallID),
	)

	outcome, err := m.strategy.Resolve(ctx, job)
	if err != nil {
		return m.failJob(ctx, jobID, err)
	}

	return m.applyOutcome(ctx, jobID, outcome)
}

// applyOutcome maps an origination outcome onto the job's next state.
func (m *Manager) applyOutcome(ctx context.Context, jobID string, outcome CallOutcome) error {
	var (
		next CallState
		upd  JobUpdate
	)

	switch outcome.Reason {
	case OutcomeVoicemail:
		next = StateVoicemail
		amd := "MACHINE"
		msg := "Voicemail: " + outcome.Cause
		upd.AMDResult = &amd
		upd.Error = &msg
	case OutcomeNoAnswer:
		next = StateNoAnswer
		upd.HangupCause = &outcome.Cause
	case OutcomeCompleted:
		next = StateCompleted
		upd.HangupCause = &outcome.Cause
	case OutcomeActive, OutcomeTimeout:
		// The call outlived supervision; it stays active and counts as
		// answered for reporting purposes.
		next = StateActive
	case OutcomeOriginated:
		// Webhook strategy: the job remains in calling until push
		// notifications resolve it.
		m.logger.Debug("origination handed off to notifications", slog.String("job_id", jobID))
		return nil
	case OutcomeError:
		return m.failJob(ctx, jobID, fmt.Errorf("origination failed: %s", outcome.Cause))
	default:
		return m.failJob(ctx, jobID, fmt.Errorf("unknown outcome %q", outcome.Reason))
	}

	if _, err := m.transition(ctx, jobID, next, upd); err != nil && !IsTerminalStateErr(err) {
		return err
	}
	return nil
}

// failJob marks the job failed, preserving the triggering error for the
// status endpoint, and returns that error for the worker log.
func (m *Manager) failJob(ctx context.Context, jobID string, cause error) error {
	msg := cause.Error()
	if _, err := m.transition(ctx, jobID, StateFailed, JobUpdate{Error: &msg}); err != nil && !IsTerminalStateErr(err) {
		m.logger.Error("failed to mark job failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
	return cause
}
