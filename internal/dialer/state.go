package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// mirrorStatus maps a live state onto the durable store's status vocabulary.
func mirrorStatus(state CallState) string {
	switch state {
	case StateVoicemail, StateNoAnswer, StateFailed:
		return "canceled"
	case StateCompleted:
		return "finished"
	default:
		return string(state)
	}
}

// lockJob returns the mutex serializing transitions for one job. Entries
// are dropped once the job goes terminal; any later signal re-creates one,
// reads the terminal state and is discarded.
func (m *Manager) lockJob(jobID string) *sync.Mutex {
	v, _ := m.jobLocks.LoadOrStore(jobID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// transition moves a job to next, persisting the extra fields with it.
// Transitions are serialized per job: pushed notifications arrive on
// concurrent requests and may race the supervising worker, so the
// read-check-write below must not interleave. Updates against a terminal
// job are discarded and reported as ErrTerminalState; the caller decides
// whether that matters. Re-applying the current state is a no-op.
func (m *Manager) transition(ctx context.Context, jobID string, next CallState, extra JobUpdate) (*CallJob, error) {
	lock := m.lockJob(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.State == next && !job.State.Terminal() {
		return job, nil
	}

	if !job.State.CanTransitionTo(next) {
		if job.State.Terminal() {
			m.logger.Warn("discarding update for terminal job",
				slog.String("job_id", jobID),
				slog.String("state", string(job.State)),
				slog.String("rejected", string(next)),
			)
			return job, ErrTerminalState
		}
		return job, fmt.Errorf("illegal transition %s -> %s for job %s", job.State, next, jobID)
	}

	now := time.Now().UTC()
	upd := extra
	upd.State = &next
	if next == StateCalling && job.StartedAt == nil {
		upd.StartedAt = &now
	}
	if next.Terminal() && upd.CompletedAt == nil {
		upd.CompletedAt = &now
	}

	if err := m.store.UpdateJob(ctx, jobID, upd); err != nil {
		return nil, fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	if next.Terminal() {
		m.jobLocks.Delete(jobID)
	}

	job.apply(upd)
	m.mirrorJob(ctx, job)

	m.logger.Info("call state changed",
		slog.String("job_id", jobID),
		slog.String("state", string(next)),
	)
	return job, nil
}

// apply folds an update into the in-memory snapshot.
func (j *CallJob) apply(upd JobUpdate) {
	if upd.State != nil {
		j.State = *upd.State
	}
	if upd.ProviderCallID != nil {
		j.ProviderCallID = *upd.ProviderCallID
	}
	if upd.AMDResult != nil {
		j.AMDResult = *upd.AMDResult
	}
	if upd.HangupCause != nil {
		j.HangupCause = *upd.HangupCause
	}
	if upd.Error != nil {
		j.Error = *upd.Error
	}
	if upd.StartedAt != nil {
		j.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		j.CompletedAt = upd.CompletedAt
	}
}

// mirrorJob pushes the job snapshot to the durable store. Mirror failures
// are logged and swallowed; the ephemeral record stays authoritative.
func (m *Manager) mirrorJob(ctx context.Context, job *CallJob) {
	rec := CallRecord{
		JobID:          job.ID,
		ProviderCallID: job.ProviderCallID,
		Phone:          job.ToNumber,
		Status:         mirrorStatus(job.State),
		EndReason:      job.HangupCause,
		Active:         !job.State.Terminal() || job.State == StateCompleted,
	}
	if err := m.mirror.UpsertCall(ctx, rec); err != nil {
		m.logger.Error("durable mirror update failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}

// IsTerminalStateErr reports whether err is the discarded-update sentinel.
func IsTerminalStateErr(err error) bool {
	return errors.Is(err, ErrTerminalState)
}
