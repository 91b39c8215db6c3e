package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/voxline/outdial/internal/ami"
	"github.com/voxline/outdial/internal/config"
)

// SyncStrategy originates the call and supervises it on the same manager
// session until a terminal signal or the call watchdog expires. The wait is
// event-driven: the session's event stream is consumed against per-phase
// deadline timers.
type SyncStrategy struct {
	dial   SessionDialer
	ami    config.AMIConfig
	dialer config.DialerConfig
	logger *slog.Logger
}

// NewSyncStrategy creates the supervised origination strategy.
func NewSyncStrategy(dial SessionDialer, amiCfg config.AMIConfig, dialerCfg config.DialerConfig, logger *slog.Logger) *SyncStrategy {
	return &SyncStrategy{
		dial:   dial,
		ami:    amiCfg,
		dialer: dialerCfg,
		logger: logger.With(slog.String("strategy", "sync")),
	}
}

// Resolve originates the call and waits through three phases:
// machine detection, answer, then the in-call watchdog.
func (s *SyncStrategy) Resolve(ctx context.Context, job *CallJob) (CallOutcome, error) {
	sess, err := s.dial(ctx)
	if err != nil {
		return CallOutcome{Reason: OutcomeError, Cause: err.Error()}, fmt.Errorf("failed to open AMI session: %w", err)
	}
	defer sess.Close()

	if err := originate(ctx, sess, &s.ami, job); err != nil {
		return CallOutcome{Reason: OutcomeError, Cause: err.Error()}, err
	}

	s.logger.Debug("call originated, supervising",
		slog.String("job_id", job.ID),
		slog.String("to_number", job.ToNumber),
	)

	return s.supervise(ctx, sess, job)
}

// supervise consumes session events through the phased wait.
func (s *SyncStrategy) supervise(ctx context.Context, sess AMISession, job *CallJob) (CallOutcome, error) {
	needle := channelNeedle(job.ToNumber)
	answered := false

	// Phase 1: machine detection window. An answer within the window is
	// recorded but the window runs out before the call counts as active,
	// so a slow AMD verdict still wins.
	amdTimer := time.NewTimer(s.dialer.AMDTimeout)
	defer amdTimer.Stop()

phase1:
	for {
		select {
		case evt, ok := <-sess.Events():
			if !ok {
				return CallOutcome{Reason: OutcomeError, Cause: "AMI session closed"}, nil
			}
			switch sig := classify(evt, needle); sig.kind {
			case sigMachine:
				return CallOutcome{Reason: OutcomeVoicemail, Cause: sig.cause}, nil
			case sigAnswered:
				answered = true
			case sigHangup:
				if answered {
					return CallOutcome{Reason: OutcomeCompleted, Cause: sig.cause}, nil
				}
				return CallOutcome{Reason: OutcomeNoAnswer, Cause: sig.cause}, nil
			}
		case <-amdTimer.C:
			break phase1
		case <-ctx.Done():
			return CallOutcome{Reason: OutcomeError, Cause: ctx.Err().Error()}, ctx.Err()
		}
	}

	// Phase 2: wait for the callee to answer. Skipped when the answer
	// already arrived during the detection window.
	if !answered {
		answerTimer := time.NewTimer(s.dialer.AnswerTimeout)
		defer answerTimer.Stop()

	phase2:
		for {
			select {
			case evt, ok := <-sess.Events():
				if !ok {
					return CallOutcome{Reason: OutcomeError, Cause: "AMI session closed"}, nil
				}
				switch sig := classify(evt, needle); sig.kind {
				case sigMachine:
					return CallOutcome{Reason: OutcomeVoicemail, Cause: sig.cause}, nil
				case sigAnswered:
					break phase2
				case sigHangup:
					return CallOutcome{Reason: OutcomeNoAnswer, Cause: sig.cause}, nil
				}
			case <-answerTimer.C:
				return CallOutcome{Reason: OutcomeNoAnswer, Cause: "TIMEOUT"}, nil
			case <-ctx.Done():
				return CallOutcome{Reason: OutcomeError, Cause: ctx.Err().Error()}, ctx.Err()
			}
		}
	}

	// Phase 3: the call is up. Wait for hangup until the watchdog fires;
	// a watchdog expiry is not a failure, the call simply outlived the
	// supervision window.
	callTimer := time.NewTimer(s.dialer.CallTimeout)
	defer callTimer.Stop()

	for {
		select {
		case evt, ok := <-sess.Events():
			if !ok {
				return CallOutcome{Reason: OutcomeError, Cause: "AMI session closed"}, nil
			}
			switch sig := classify(evt, needle); sig.kind {
			case sigMachine:
				return CallOutcome{Reason: OutcomeVoicemail, Cause: sig.cause}, nil
			case sigHangup:
				return CallOutcome{Reason: OutcomeCompleted, Cause: sig.cause}, nil
			}
		case <-callTimer.C:
			return CallOutcome{Reason: OutcomeTimeout, Cause: "LONG_CALL"}, nil
		case <-ctx.Done():
			return CallOutcome{Reason: OutcomeError, Cause: ctx.Err().Error()}, ctx.Err()
		}
	}
}

type signalKind int

const (
	sigNone signalKind = iota
	sigMachine
	sigAnswered
	sigHangup
)

type callSignal struct {
	kind  signalKind
	cause string
}

// classify maps a raw manager event onto a call signal for the channel
// identified by needle. Events about other channels are ignored.
func classify(evt ami.Event, needle string) callSignal {
	switch evt.Type() {
	case "UserEvent":
		if evt.Get("UserEvent") != "AMDDetection" {
			return callSignal{kind: sigNone}
		}
		if !strings.Contains(evt.Get("Channel"), needle) {
			return callSignal{kind: sigNone}
		}
		if strings.EqualFold(evt.Get("Result"), "HUMAN") {
			return callSignal{kind: sigAnswered}
		}
		cause := evt.Get("Cause")
		if cause == "" {
			cause = "AMD"
		}
		return callSignal{kind: sigMachine, cause: cause}
	case "Newstate":
		if evt.Get("ChannelStateDesc") == "Up" && strings.Contains(evt.Get("Channel"), needle) {
			return callSignal{kind: sigAnswered}
		}
	case "Hangup":
		if strings.Contains(evt.Get("Channel"), needle) {
			cause := evt.Get("Cause-txt")
			if cause == "" {
				cause = evt.Get("Cause")
			}
			return callSignal{kind: sigHangup, cause: cause}
		}
	}
	return callSignal{kind: sigNone}
}

// channelNeedle returns the substring identifying the callee's channel in
// manager events. The dialplan names local channels after the bare number.
func channelNeedle(toNumber string) string {
	return strings.TrimPrefix(toNumber, "+")
}

// originate sends the Originate action for a registered job and checks the
// immediate response. The call itself proceeds asynchronously. Only the
// identifiers the bridge dialplan reads are passed as channel variables;
// dynamic variables go to the provider at registration, never to the PBX.
func originate(ctx context.Context, sess AMISession, cfg *config.AMIConfig, job *CallJob) error {
	action := ami.NewAction("Originate").
		Field("Channel", fmt.Sprintf("Local/%s@%s", channelNeedle(job.ToNumber), cfg.OriginateChannel)).
		Field("Context", cfg.OriginateContext).
		Field("Exten", "s").
		Field("Priority", "1").
		Field("Timeout", strconv.Itoa(int(cfg.OriginateTimeout.Milliseconds()))).
		Field("CallerID", job.FromNumber).
		Field("Async", "true").
		Variable("TO_NUMBER", job.ToNumber).
		Variable("FROM_NUMBER", job.FromNumber).
		Variable("PROVIDER_CALL_ID", job.ProviderCallID)

	resp, err := sess.Send(ctx, action)
	if err != nil {
		return fmt.Errorf("failed to send Originate: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("originate rejected: %s", resp.Get("Message"))
	}
	return nil
}
