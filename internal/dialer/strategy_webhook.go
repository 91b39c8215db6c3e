package dialer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxline/outdial/internal/config"
)

// WebhookStrategy originates the call and returns immediately. The job stays
// in the calling state until provider webhooks and manager callbacks push
// the remaining transitions through the notifier.
type WebhookStrategy struct {
	dial   SessionDialer
	ami    config.AMIConfig
	logger *slog.Logger
}

// NewWebhookStrategy creates the fire-and-forget origination strategy.
func NewWebhookStrategy(dial SessionDialer, amiCfg config.AMIConfig, logger *slog.Logger) *WebhookStrategy {
	return &WebhookStrategy{
		dial:   dial,
		ami:    amiCfg,
		logger: logger.With(slog.String("strategy", "webhook")),
	}
}

func (s *WebhookStrategy) Resolve(ctx context.Context, job *CallJob) (CallOutcome, error) {
	sess, err := s.dial(ctx)
	if err != nil {
		return CallOutcome{Reason: OutcomeError, Cause: err.Error()}, fmt.Errorf("failed to open AMI session: %w", err)
	}
	defer sess.Close()

	if err := originate(ctx, sess, &s.ami, job); err != nil {
		return CallOutcome{Reason: OutcomeError, Cause: err.Error()}, err
	}

	s.logger.Debug("call originated, awaiting push notifications",
		slog.String("job_id", job.ID),
		slog.String("provider_call_id", job.ProviderCallID),
	)

	return CallOutcome{Reason: OutcomeOriginated}, nil
}
