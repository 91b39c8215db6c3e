package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxline/outdial/internal/api/dto"
	"github.com/voxline/outdial/internal/config"
	"github.com/voxline/outdial/internal/dialer"
)

// maxBatchSize caps one batch request.
const maxBatchSize = 100

// CallHandler handles call dispatch HTTP requests
type CallHandler struct {
	logger *slog.Logger
	queue  CallQueue
	cfg    *config.Config
}

// NewCallHandler creates a new CallHandler instance
func NewCallHandler(deps *Dependencies) *CallHandler {
	return &CallHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
		cfg:    deps.Config,
	}
}

// normalizeNumber ensures the number carries a leading plus sign.
func normalizeNumber(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "+") {
		return number
	}
	return "+" + number
}

// applyDefaults fills empty request fields from configuration.
func (h *CallHandler) applyDefaults(req *dto.CallRequest) {
	req.ToNumber = normalizeNumber(req.ToNumber)
	if req.FromNumber == "" {
		req.FromNumber = h.cfg.VoiceAI.DefaultFromNumber
	}
	req.FromNumber = normalizeNumber(req.FromNumber)
	if req.AgentID == "" {
		req.AgentID = h.cfg.VoiceAI.DefaultAgentID
	}
}

// BatchCall handles POST /api/v1/calls/batch
// Enqueues up to 100 calls and returns immediately.
func (h *CallHandler) BatchCall(c *gin.Context) {
	var req dto.BatchCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if len(req.Calls) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "calls must not be empty",
		})
		return
	}
	if len(req.Calls) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "batch size exceeds the maximum of 100 calls",
		})
		return
	}

	resp := dto.BatchCallResponse{JobIDs: make([]string, 0, len(req.Calls))}
	for i := range req.Calls {
		call := req.Calls[i]
		h.applyDefaults(&call)

		jobID, err := h.queue.Submit(c.Request.Context(), call.ToNumber, call.FromNumber, call.AgentID, call.DynamicVariables)
		if err != nil {
			h.logger.Error("Failed to enqueue call",
				slog.String("to_number", call.ToNumber),
				slog.String("error", err.Error()),
			)
			resp.Rejected = append(resp.Rejected, call.ToNumber)
			continue
		}
		resp.JobIDs = append(resp.JobIDs, jobID)
	}

	resp.Queued = len(resp.JobIDs)
	resp.Success = resp.Queued > 0
	resp.QueueDepth = h.queue.QueueDepth()

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// MakeCall handles POST /api/v1/calls
// Enqueues a single call and waits briefly for its outcome. When the call
// is still in flight after the wait, the current state is returned as-is.
func (h *CallHandler) MakeCall(c *gin.Context) {
	var req dto.CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}
	h.applyDefaults(&req)

	jobID, err := h.queue.Submit(c.Request.Context(), req.ToNumber, req.FromNumber, req.AgentID, req.DynamicVariables)
	if err != nil {
		h.logger.Error("Failed to enqueue call", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to enqueue call",
		})
		return
	}

	wait := h.cfg.Dialer.SingleCallWait
	if wait <= 0 {
		wait = 10 * time.Second
	}

	job, err := h.queue.WaitForOutcome(c.Request.Context(), jobID, wait)
	if err != nil {
		h.logger.Error("Failed to read job after submit",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read call status",
		})
		return
	}

	c.JSON(http.StatusOK, toCallStatus(job))
}

// GetCall handles GET /api/v1/calls/:job_id
func (h *CallHandler) GetCall(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.queue.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, dialer.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Call not found",
			})
			return
		}
		h.logger.Error("Failed to read job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read call status",
		})
		return
	}

	c.JSON(http.StatusOK, toCallStatus(job))
}

// QueueStatus handles GET /api/v1/queue
func (h *CallHandler) QueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, dto.QueueStatusResponse{
		QueueDepth:  h.queue.QueueDepth(),
		ActiveCalls: h.queue.ActiveCount(),
		Concurrency: h.queue.Concurrency(),
	})
}

func toCallStatus(job *dialer.CallJob) dto.CallStatusResponse {
	resp := dto.CallStatusResponse{
		JobID:          job.ID,
		State:          string(job.State),
		ToNumber:       job.ToNumber,
		FromNumber:     job.FromNumber,
		AgentID:        job.AgentID,
		ProviderCallID: job.ProviderCallID,
		AMDResult:      job.AMDResult,
		HangupCause:    job.HangupCause,
		Error:          job.Error,
		Variables:      job.DynamicVariables,
	}
	if !job.CreatedAt.IsZero() {
		resp.CreatedAt = job.CreatedAt.Format(time.RFC3339)
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
