package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/voxline/outdial/internal/dialer"
)

// Durable is the Postgres-backed reporting mirror. It is written on every
// state change but never read on the call path; failures here are the
// caller's to log, not to fail on.
type Durable struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewDurable wraps a database handle as the durable mirror.
func NewDurable(db *sqlx.DB, logger *slog.Logger) *Durable {
	return &Durable{
		db:     db,
		logger: logger.With(slog.String("component", "durable_store")),
	}
}

const upsertCallQuery = `
	INSERT INTO outbound_call_queue (job_id, provider_call_id, phone, status, duration_seconds, end_reason, active, updated_at)
	VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), $7, NOW())
	ON CONFLICT (job_id) DO UPDATE SET
		provider_call_id = COALESCE(NULLIF(EXCLUDED.provider_call_id, ''), outbound_call_queue.provider_call_id),
		status           = EXCLUDED.status,
		duration_seconds = GREATEST(EXCLUDED.duration_seconds, outbound_call_queue.duration_seconds),
		end_reason       = COALESCE(NULLIF(EXCLUDED.end_reason, ''), outbound_call_queue.end_reason),
		active           = EXCLUDED.active,
		updated_at       = NOW()`

// UpsertCall writes the current snapshot of a call, keyed by job id.
func (s *Durable) UpsertCall(ctx context.Context, rec dialer.CallRecord) error {
	_, err := s.db.ExecContext(ctx, upsertCallQuery,
		rec.JobID, rec.ProviderCallID, rec.Phone, rec.Status, rec.DurationSeconds, rec.EndReason, rec.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert call record: %w", err)
	}
	return nil
}

const updateByProviderQuery = `
	UPDATE outbound_call_queue SET
		status           = $2,
		duration_seconds = GREATEST($3, duration_seconds),
		end_reason       = COALESCE(NULLIF($4, ''), end_reason),
		active           = $5,
		updated_at       = NOW()
	WHERE provider_call_id = $1`

// UpdateCallByProvider updates the record matched by provider call id.
// Empty end reasons and zero durations never clobber earlier values, so a
// late reclassification keeps the call_ended figures intact.
func (s *Durable) UpdateCallByProvider(ctx context.Context, providerCallID, status, endReason string, durationSeconds int, active bool) error {
	res, err := s.db.ExecContext(ctx, updateByProviderQuery,
		providerCallID, status, durationSeconds, endReason, active)
	if err != nil {
		return fmt.Errorf("failed to update call record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Warn("no call record for provider call id",
			slog.String("provider_call_id", providerCallID),
		)
	}
	return nil
}

// SaveClassification moves a contact between the active and inactive
// tables based on a dialplan classification verdict. Indeterminate
// verdicts leave the tables untouched.
func (s *Durable) SaveClassification(ctx context.Context, phone, status, cause string) error {
	status = strings.ToLower(status)
	if status == "indeterminate" {
		s.logger.Debug("indeterminate classification, no table change",
			slog.String("phone", phone),
		)
		return nil
	}
	if status != "active" && status != "inactive" {
		return fmt.Errorf("unknown classification status %q", status)
	}

	target, other := "contacts_active", "contacts_inactive"
	if status == "inactive" {
		target, other = other, target
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`
		INSERT INTO %s (phone, cause, updated_at) VALUES ($1, NULLIF($2, ''), NOW())
		ON CONFLICT (phone) DO UPDATE SET
			cause      = COALESCE(NULLIF(EXCLUDED.cause, ''), %s.cause),
			updated_at = NOW()`, target, target)
	if _, err := tx.ExecContext(ctx, upsert, phone, cause); err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}

	remove := fmt.Sprintf(`DELETE FROM %s WHERE phone = $1`, other)
	if _, err := tx.ExecContext(ctx, remove, phone); err != nil {
		return fmt.Errorf("failed to remove contact from %s: %w", other, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit classification: %w", err)
	}
	return nil
}

// TransferRecord is the audit row of a transfer operation.
type TransferRecord struct {
	TransferID     string
	ProviderCallID string
	Phone          string
	AgentExtension string
	Status         string
}

const upsertTransferQuery = `
	INSERT INTO transfers (transfer_id, provider_call_id, phone, agent_extension, status, updated_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, NOW())
	ON CONFLICT (transfer_id) DO UPDATE SET
		agent_extension = COALESCE(NULLIF(EXCLUDED.agent_extension, ''), transfers.agent_extension),
		status          = EXCLUDED.status,
		updated_at      = NOW()`

// SaveTransfer records a transfer's latest status.
func (s *Durable) SaveTransfer(ctx context.Context, rec TransferRecord) error {
	_, err := s.db.ExecContext(ctx, upsertTransferQuery,
		rec.TransferID, rec.ProviderCallID, rec.Phone, rec.AgentExtension, rec.Status)
	if err != nil {
		return fmt.Errorf("failed to save transfer record: %w", err)
	}
	return nil
}
