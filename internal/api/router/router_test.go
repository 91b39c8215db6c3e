package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxline/outdial/internal/api/handler"
	"github.com/voxline/outdial/internal/config"
	"github.com/voxline/outdial/internal/dialer"
	"github.com/voxline/outdial/internal/retell"
	"github.com/voxline/outdial/internal/transfer"
)

const testToken = "test-token"

type fakeQueue struct {
	jobs      map[string]*dialer.CallJob
	submitErr error
	submitted []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]*dialer.CallJob)}
}

func (q *fakeQueue) Submit(_ context.Context, toNumber, fromNumber, agentID string, variables map[string]string) (string, error) {
	if q.submitErr != nil {
		return "", q.submitErr
	}
	job := dialer.NewCallJob(toNumber, fromNumber, agentID, variables)
	q.jobs[job.ID] = job
	q.submitted = append(q.submitted, toNumber)
	return job.ID, nil
}

func (q *fakeQueue) GetJob(_ context.Context, jobID string) (*dialer.CallJob, error) {
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, dialer.ErrJobNotFound
	}
	return job, nil
}

func (q *fakeQueue) WaitForOutcome(_ context.Context, jobID string, _ time.Duration) (*dialer.CallJob, error) {
	return q.GetJob(context.Background(), jobID)
}

func (q *fakeQueue) ActiveCount() int { return 3 }
func (q *fakeQueue) QueueDepth() int  { return 7 }
func (q *fakeQueue) Concurrency() int { return 20 }

type notifierCall struct {
	method string
	callID string
	args   []any
}

type fakeNotifier struct {
	calls []notifierCall
}

func (n *fakeNotifier) HandleAMDResult(_ context.Context, providerCallID, result, cause string) error {
	n.calls = append(n.calls, notifierCall{"amd", providerCallID, []any{result, cause}})
	return nil
}

func (n *fakeNotifier) HandleCallStarted(_ context.Context, providerCallID string) error {
	n.calls = append(n.calls, notifierCall{"started", providerCallID, nil})
	return nil
}

func (n *fakeNotifier) HandleCallEnded(_ context.Context, providerCallID string, startMS, endMS int64) error {
	n.calls = append(n.calls, notifierCall{"ended", providerCallID, []any{startMS, endMS}})
	return nil
}

func (n *fakeNotifier) HandleCallAnalyzed(_ context.Context, providerCallID string, _ retell.CallAnalysis) error {
	n.calls = append(n.calls, notifierCall{"analyzed", providerCallID, nil})
	return nil
}

type fakeTransfers struct {
	sessions map[string]*transfer.Session
}

func (f *fakeTransfers) Prepare(_ context.Context, transferID, providerCallID, phone string) (*transfer.Session, error) {
	sess := &transfer.Session{
		TransferID:     transferID,
		ProviderCallID: providerCallID,
		Phone:          phone,
		Channel:        "Local/123@outbound-originate-00000001;2",
		Status:         transfer.StatusPrepared,
	}
	f.sessions[transferID] = sess
	return sess, nil
}

func (f *fakeTransfers) Execute(_ context.Context, transferID, agentExtension string) (*transfer.Session, error) {
	sess, ok := f.sessions[transferID]
	if !ok {
		return nil, transfer.ErrTransferNotFound
	}
	sess.AgentExtension = agentExtension
	sess.Status = transfer.StatusBridging
	return sess, nil
}

func (f *fakeTransfers) Complete(_ context.Context, transferID string, _ bool) error {
	if _, ok := f.sessions[transferID]; !ok {
		return transfer.ErrTransferNotFound
	}
	delete(f.sessions, transferID)
	return nil
}

type fakeClassifier struct {
	phone, status, cause string
}

func (f *fakeClassifier) SaveClassification(_ context.Context, phone, status, cause string) error {
	f.phone, f.status, f.cause = phone, status, cause
	return nil
}

type testEnv struct {
	router     *gin.Engine
	queue      *fakeQueue
	notifier   *fakeNotifier
	transfers  *fakeTransfers
	classifier *fakeClassifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Server.AuthToken = testToken
	cfg.VoiceAI.DefaultAgentID = "agent-default"
	cfg.VoiceAI.DefaultFromNumber = "+18887719555"
	cfg.Dialer.SingleCallWait = 50 * time.Millisecond

	env := &testEnv{
		queue:      newFakeQueue(),
		notifier:   &fakeNotifier{},
		transfers:  &fakeTransfers{sessions: make(map[string]*transfer.Session)},
		classifier: &fakeClassifier{},
	}
	env.router = SetupRouter(&handler.Dependencies{
		Logger:     slog.New(slog.DiscardHandler),
		Config:     cfg,
		Queue:      env.queue,
		Notifier:   env.notifier,
		Transfers:  env.transfers,
		Classifier: env.classifier,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/queue", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/queue", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBatchCall(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"calls": []map[string]any{
			{"to_number": "15551234567"},
			{"to_number": "+15557654321", "agent_id": "agent-2"},
		},
	}
	w := env.do(t, http.MethodPost, "/api/v1/calls/batch", body, true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool     `json:"success"`
		JobIDs  []string `json:"job_ids"`
		Queued  int      `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Queued)
	assert.Len(t, resp.JobIDs, 2)

	// Numbers are normalized to E.164 with a leading plus.
	assert.Equal(t, []string{"+15551234567", "+15557654321"}, env.queue.submitted)
}

func TestBatchCall_TooLarge(t *testing.T) {
	env := newTestEnv(t)

	calls := make([]map[string]any, 101)
	for i := range calls {
		calls[i] = map[string]any{"to_number": fmt.Sprintf("+1555%07d", i)}
	}
	w := env.do(t, http.MethodPost, "/api/v1/calls/batch", map[string]any{"calls": calls}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.queue.submitted)
}

func TestBatchCall_Empty(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/calls/batch", map[string]any{"calls": []any{}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMakeCall(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/calls", map[string]any{"to_number": "15551234567"}, true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		JobID    string `json:"job_id"`
		State    string `json:"state"`
		ToNumber string `json:"to_number"`
		AgentID  string `json:"agent_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "queued", resp.State)
	assert.Equal(t, "+15551234567", resp.ToNumber)
	assert.Equal(t, "agent-default", resp.AgentID)
}

func TestGetCall_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/calls/does-not-exist", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/queue", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		QueueDepth  int `json:"queue_depth"`
		ActiveCalls int `json:"active_calls"`
		Concurrency int `json:"concurrency"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.QueueDepth)
	assert.Equal(t, 3, resp.ActiveCalls)
	assert.Equal(t, 20, resp.Concurrency)
}

func TestTransferFlow(t *testing.T) {
	env := newTestEnv(t)

	prepare := map[string]any{
		"transfer_id":      "tr-1",
		"provider_call_id": "call_abc",
		"phone":            "+15551234567",
	}
	w := env.do(t, http.MethodPost, "/api/v1/transfers/prepare", prepare, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "prepared")

	w = env.do(t, http.MethodPost, "/api/v1/transfers/tr-1/execute", map[string]any{"agent_extension": "2002"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bridging")

	w = env.do(t, http.MethodPost, "/api/v1/transfers/tr-1/complete", map[string]any{"success": true}, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/transfers/tr-1/execute", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVoiceWebhook_Events(t *testing.T) {
	env := newTestEnv(t)

	started := map[string]any{
		"event": "call_started",
		"call":  map[string]any{"call_id": "call_abc"},
	}
	w := env.do(t, http.MethodPost, "/webhooks/voice", started, false)
	require.Equal(t, http.StatusOK, w.Code)

	ended := map[string]any{
		"event": "call_ended",
		"call": map[string]any{
			"call_id":         "call_abc",
			"start_timestamp": 1_700_000_000_000,
			"end_timestamp":   1_700_000_030_000,
		},
	}
	w = env.do(t, http.MethodPost, "/webhooks/voice", ended, false)
	require.Equal(t, http.StatusOK, w.Code)

	analyzed := map[string]any{
		"event": "call_analyzed",
		"call": map[string]any{
			"call_id": "call_abc",
			"call_analysis": map[string]any{
				"call_summary": "The contact asked for a callback.",
			},
		},
	}
	w = env.do(t, http.MethodPost, "/webhooks/voice", analyzed, false)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, env.notifier.calls, 3)
	assert.Equal(t, "started", env.notifier.calls[0].method)
	assert.Equal(t, "ended", env.notifier.calls[1].method)
	assert.Equal(t, []any{int64(1_700_000_000_000), int64(1_700_000_030_000)}, env.notifier.calls[1].args)
	assert.Equal(t, "analyzed", env.notifier.calls[2].method)
}

func TestVoiceWebhook_UnknownEventAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"event": "call_ringing",
		"call":  map[string]any{"call_id": "call_abc"},
	}
	w := env.do(t, http.MethodPost, "/webhooks/voice", body, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.notifier.calls)
}

func TestVoiceWebhook_MissingCallID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/webhooks/voice", map[string]any{"event": "call_started"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAMDCallback(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{"call_id": "call_abc", "result": "VOICEMAIL", "cause": "AMD"}
	w := env.do(t, http.MethodPost, "/callbacks/amd", body, false)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, env.notifier.calls, 1)
	assert.Equal(t, "amd", env.notifier.calls[0].method)
	assert.Equal(t, "call_abc", env.notifier.calls[0].callID)
	assert.Equal(t, []any{"VOICEMAIL", "AMD"}, env.notifier.calls[0].args)
}

func TestClassificationCallback(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{"phone": "+15551234567", "status": "inactive", "cause": "UNALLOCATED"}
	w := env.do(t, http.MethodPost, "/callbacks/classification", body, false)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "+15551234567", env.classifier.phone)
	assert.Equal(t, "inactive", env.classifier.status)
	assert.Equal(t, "UNALLOCATED", env.classifier.cause)
}
