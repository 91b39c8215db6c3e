package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxline/outdial/internal/config"
)

// Manager owns the dispatch queue and its worker pool. Submissions are
// persisted to the ephemeral store before they are queued, so a job is
// never in flight without a readable record.
type Manager struct {
	cfg       config.DialerConfig
	store     JobStore
	mirror    Mirror
	registrar CallRegistrar
	strategy  OutcomeStrategy
	logger    *slog.Logger

	queue chan string
	wg    sync.WaitGroup

	// jobLocks serializes state transitions per job id.
	jobLocks sync.Map

	mu      sync.Mutex
	active  int
	started bool
	closed  bool
}

// NewManager creates a dispatch manager. Start must be called before
// submitted jobs are processed.
func NewManager(cfg config.DialerConfig, store JobStore, mirror Mirror, registrar CallRegistrar, strategy OutcomeStrategy, logger *slog.Logger) *Manager {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 1000
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		mirror:    mirror,
		registrar: registrar,
		strategy:  strategy,
		logger:    logger.With(slog.String("component", "dialer")),
		queue:     make(chan string, capacity),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled and
// the queue has drained, or immediately on Stop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	concurrency := m.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 20
	}

	m.logger.Info("starting dialer workers",
		slog.Int("concurrency", concurrency),
		slog.Int("queue_capacity", cap(m.queue)),
	)

	for i := 0; i < concurrency; i++ {
		m.wg.Add(1)
		go m.worker(ctx, i)
	}
}

// Stop closes the queue and waits for in-flight calls to finish. The
// close happens under the same mutex Submit enqueues under, so a racing
// submission either lands before the close or gets ErrQueueClosed.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("dialer workers stopped")
}

func (m *Manager) worker(ctx context.Context, id int) {
	defer m.wg.Done()

	logger := m.logger.With(slog.Int("worker_id", id))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopping", slog.String("reason", "context cancelled"))
			return
		case jobID, ok := <-m.queue:
			if !ok {
				logger.Debug("worker stopping", slog.String("reason", "queue closed"))
				return
			}

			m.mu.Lock()
			m.active++
			m.mu.Unlock()

			if err := m.processCall(ctx, jobID); err != nil {
				logger.Error("call processing failed",
					slog.String("job_id", jobID),
					slog.Any("error", err),
				)
			}

			m.mu.Lock()
			m.active--
			m.mu.Unlock()
		}
	}
}

// Submit registers a new job and enqueues it. The job id is returned as
// soon as the ephemeral record exists; a store failure fails the submission.
func (m *Manager) Submit(ctx context.Context, toNumber, fromNumber, agentID string, variables map[string]string) (string, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return "", ErrQueueClosed
	}

	job := NewCallJob(toNumber, fromNumber, agentID, variables)
	if err := m.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	m.mirrorJob(ctx, job)

	// Re-check and enqueue under the mutex: Stop closes the channel in
	// the same critical section.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrQueueClosed
	}
	select {
	case m.queue <- job.ID:
		m.mu.Unlock()
	default:
		m.mu.Unlock()
		return "", ErrQueueFull
	}

	m.logger.Info("call queued",
		slog.String("job_id", job.ID),
		slog.String("to_number", job.ToNumber),
		slog.Int("queue_depth", len(m.queue)),
	)
	return job.ID, nil
}

// GetJob returns the live job record.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*CallJob, error) {
	return m.store.GetJob(ctx, jobID)
}

// WaitForOutcome polls the job until it leaves the dispatch states or the
// wait elapses, returning the latest snapshot either way. It backs the
// single-call endpoint's bounded wait.
func (m *Manager) WaitForOutcome(ctx context.Context, jobID string, wait time.Duration) (*CallJob, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	for {
		job, err := m.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.State != StateQueued && job.State != StateCalling {
			return job, nil
		}

		select {
		case <-deadline.C:
			return job, nil
		case <-ctx.Done():
			return job, nil
		case <-tick.C:
		}
	}
}

// ActiveCount returns the number of calls being processed right now.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// QueueDepth returns the number of jobs waiting to be picked up.
func (m *Manager) QueueDepth() int {
	return len(m.queue)
}

// Concurrency returns the configured worker count.
func (m *Manager) Concurrency() int {
	if m.cfg.Concurrency <= 0 {
		return 20
	}
	return m.cfg.Concurrency
}
