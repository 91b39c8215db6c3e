package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/voxline/outdial/internal/dialer"
	sharedredis "github.com/voxline/outdial/shared/redis"
)

const (
	jobKeyPrefix      = "call:"
	providerKeyPrefix = "call_by_provider:"
)

// Ephemeral is the Redis-backed job store. Every record carries a TTL so
// abandoned jobs age out without a sweeper.
type Ephemeral struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewEphemeral wraps a shared Redis client as a job store.
func NewEphemeral(client *sharedredis.Client, ttl time.Duration, logger *slog.Logger) *Ephemeral {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Ephemeral{
		rdb:    client.GetRDB(),
		ttl:    ttl,
		logger: logger.With(slog.String("component", "ephemeral_store")),
	}
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

func providerKey(providerCallID string) string {
	return providerKeyPrefix + providerCallID
}

// CreateJob writes the initial job hash with the configured TTL.
func (s *Ephemeral) CreateJob(ctx context.Context, job *dialer.CallJob) error {
	fields, err := jobToFields(job)
	if err != nil {
		return err
	}

	key := jobKey(job.ID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}
	return nil
}

// GetJob loads a job hash. A missing or expired record yields
// dialer.ErrJobNotFound.
func (s *Ephemeral) GetJob(ctx context.Context, jobID string) (*dialer.CallJob, error) {
	raw, err := s.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job record: %w", err)
	}
	if len(raw) == 0 {
		return nil, dialer.ErrJobNotFound
	}
	return jobFromFields(jobID, raw)
}

// UpdateJob applies a partial update to an existing job hash.
func (s *Ephemeral) UpdateJob(ctx context.Context, jobID string, upd dialer.JobUpdate) error {
	key := jobKey(jobID)

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check job record: %w", err)
	}
	if exists == 0 {
		return dialer.ErrJobNotFound
	}

	fields := updateToFields(upd)
	if len(fields) == 0 {
		return nil
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to update job record: %w", err)
	}
	return nil
}

// BindProviderCall stores the provider call id on the job and indexes the
// reverse mapping used by webhook matching.
func (s *Ephemeral) BindProviderCall(ctx context.Context, jobID, providerCallID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), "provider_call_id", providerCallID)
	pipe.Set(ctx, providerKey(providerCallID), jobID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to bind provider call id: %w", err)
	}
	return nil
}

// JobIDByProviderCall resolves a provider call id back to the job id.
func (s *Ephemeral) JobIDByProviderCall(ctx context.Context, providerCallID string) (string, error) {
	jobID, err := s.rdb.Get(ctx, providerKey(providerCallID)).Result()
	if err == goredis.Nil {
		return "", dialer.ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve provider call id: %w", err)
	}
	return jobID, nil
}

// jobToFields flattens a job into hash fields. Dynamic variables are stored
// as a JSON blob inside the hash.
func jobToFields(job *dialer.CallJob) (map[string]any, error) {
	fields := map[string]any{
		"to_number":   job.ToNumber,
		"from_number": job.FromNumber,
		"agent_id":    job.AgentID,
		"state":       string(job.State),
		"created_at":  job.CreatedAt.Format(time.RFC3339Nano),
	}
	if job.ProviderCallID != "" {
		fields["provider_call_id"] = job.ProviderCallID
	}
	if len(job.DynamicVariables) > 0 {
		blob, err := json.Marshal(job.DynamicVariables)
		if err != nil {
			return nil, fmt.Errorf("failed to encode dynamic variables: %w", err)
		}
		fields["dynamic_variables"] = string(blob)
	}
	return fields, nil
}

func updateToFields(upd dialer.JobUpdate) map[string]any {
	fields := map[string]any{}
	if upd.State != nil {
		fields["state"] = string(*upd.State)
	}
	if upd.ProviderCallID != nil {
		fields["provider_call_id"] = *upd.ProviderCallID
	}
	if upd.AMDResult != nil {
		fields["amd_result"] = *upd.AMDResult
	}
	if upd.HangupCause != nil {
		fields["hangup_cause"] = *upd.HangupCause
	}
	if upd.Error != nil {
		fields["error"] = *upd.Error
	}
	if upd.StartedAt != nil {
		fields["started_at"] = upd.StartedAt.Format(time.RFC3339Nano)
	}
	if upd.CompletedAt != nil {
		fields["completed_at"] = upd.CompletedAt.Format(time.RFC3339Nano)
	}
	return fields
}

func jobFromFields(jobID string, raw map[string]string) (*dialer.CallJob, error) {
	job := &dialer.CallJob{
		ID:             jobID,
		ToNumber:       raw["to_number"],
		FromNumber:     raw["from_number"],
		AgentID:        raw["agent_id"],
		State:          dialer.CallState(raw["state"]),
		ProviderCallID: raw["provider_call_id"],
		AMDResult:      raw["amd_result"],
		HangupCause:    raw["hangup_cause"],
		Error:          raw["error"],
	}

	if blob := raw["dynamic_variables"]; blob != "" {
		if err := json.Unmarshal([]byte(blob), &job.DynamicVariables); err != nil {
			return nil, fmt.Errorf("failed to decode dynamic variables: %w", err)
		}
	}

	if v := raw["created_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		job.CreatedAt = t
	}
	if v := raw["started_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.StartedAt = &t
		}
	}
	if v := raw["completed_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CompletedAt = &t
		}
	}
	return job, nil
}
