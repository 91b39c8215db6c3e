package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxline/outdial/internal/config"
)

// memStore is an in-memory JobStore for tests. getHook, when set, runs
// after each read outside the store lock, to widen read-modify-write
// windows in concurrency tests.
type memStore struct {
	mu             sync.Mutex
	jobs           map[string]*CallJob
	byProvider     map[string]string
	failCreate     bool
	getHook        func()
	terminalWrites int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:       make(map[string]*CallJob),
		byProvider: make(map[string]string),
	}
}

func (s *memStore) CreateJob(_ context.Context, job *CallJob) error {
	if s.failCreate {
		return errors.New("store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *memStore) GetJob(_ context.Context, jobID string) (*CallJob, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrJobNotFound
	}
	clone := *job
	hook := s.getHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return &clone, nil
}

func (s *memStore) UpdateJob(_ context.Context, jobID string, upd JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.apply(upd)
	if upd.State != nil && upd.State.Terminal() {
		s.terminalWrites++
	}
	return nil
}

func (s *memStore) terminalWriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalWrites
}

func (s *memStore) BindProviderCall(_ context.Context, jobID, providerCallID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.ProviderCallID = providerCallID
	s.byProvider[providerCallID] = jobID
	return nil
}

func (s *memStore) JobIDByProviderCall(_ context.Context, providerCallID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobID, ok := s.byProvider[providerCallID]
	if !ok {
		return "", ErrJobNotFound
	}
	return jobID, nil
}

// memMirror records durable writes for assertions.
type memMirror struct {
	mu         sync.Mutex
	records    []CallRecord
	byProvider []providerUpdate
}

type providerUpdate struct {
	providerCallID string
	status         string
	endReason      string
	duration       int
	active         bool
}

func (m *memMirror) UpsertCall(_ context.Context, rec CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memMirror) UpdateCallByProvider(_ context.Context, providerCallID, status, endReason string, durationSeconds int, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byProvider = append(m.byProvider, providerUpdate{
		providerCallID: providerCallID,
		status:         status,
		endReason:      endReason,
		duration:       durationSeconds,
		active:         active,
	})
	return nil
}

func (m *memMirror) lastRecord() (CallRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return CallRecord{}, false
	}
	return m.records[len(m.records)-1], true
}

func (m *memMirror) lastProviderUpdate() (providerUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.byProvider) == 0 {
		return providerUpdate{}, false
	}
	return m.byProvider[len(m.byProvider)-1], true
}

// fakeRegistrar hands out sequential provider call ids.
type fakeRegistrar struct {
	mu   sync.Mutex
	seq  int
	fail bool
}

func (r *fakeRegistrar) RegisterCall(_ context.Context, _, _, _ string, _ map[string]string) (string, error) {
	if r.fail {
		return "", errors.New("provider unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("call_%04d", r.seq), nil
}

// fakeStrategy resolves with a fixed function.
type fakeStrategy struct {
	resolve func(ctx context.Context, job *CallJob) (CallOutcome, error)
}

func (s *fakeStrategy) Resolve(ctx context.Context, job *CallJob) (CallOutcome, error) {
	return s.resolve(ctx, job)
}

func testDialerConfig() config.DialerConfig {
	return config.DialerConfig{
		Concurrency:   2,
		QueueCapacity: 16,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestManager(store JobStore, mirror Mirror, registrar CallRegistrar, strategy OutcomeStrategy) *Manager {
	return NewManager(testDialerConfig(), store, mirror, registrar, strategy, discardLogger())
}
