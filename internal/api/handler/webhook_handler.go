package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxline/outdial/internal/api/dto"
	"github.com/voxline/outdial/internal/dialer"
	"github.com/voxline/outdial/internal/retell"
)

// WebhookHandler ingests provider webhooks and dialplan callbacks. These
// endpoints always acknowledge with 200 once the payload parses; a signal
// for an unknown or already-terminal call is logged, not retried by the
// sender.
type WebhookHandler struct {
	logger     *slog.Logger
	notifier   Notifier
	classifier Classifier
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:     deps.Logger,
		notifier:   deps.Notifier,
		classifier: deps.Classifier,
	}
}

// VoiceWebhook handles POST /webhooks/voice
// Dispatches provider call lifecycle events.
func (h *WebhookHandler) VoiceWebhook(c *gin.Context) {
	var evt retell.WebhookEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		h.logger.Error("Invalid webhook payload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid webhook payload",
		})
		return
	}
	if evt.Call.CallID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "call_id is required",
		})
		return
	}

	ctx := c.Request.Context()
	var err error
	switch evt.Event {
	case retell.EventCallStarted:
		err = h.notifier.HandleCallStarted(ctx, evt.Call.CallID)
	case retell.EventCallEnded:
		err = h.notifier.HandleCallEnded(ctx, evt.Call.CallID, evt.Call.StartTimestamp, evt.Call.EndTimestamp)
	case retell.EventCallAnalyzed:
		err = h.notifier.HandleCallAnalyzed(ctx, evt.Call.CallID, evt.Call.CallAnalysis)
	default:
		h.logger.Debug("ignoring webhook event",
			slog.String("event", evt.Event),
			slog.String("call_id", evt.Call.CallID),
		)
	}

	if err != nil {
		h.logger.Warn("webhook signal not applied",
			slog.String("event", evt.Event),
			slog.String("call_id", evt.Call.CallID),
			slog.String("error", err.Error()),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
	})
}

// AMDCallback handles POST /callbacks/amd
// Receives the dialplan's machine-detection verdict.
func (h *WebhookHandler) AMDCallback(c *gin.Context) {
	var req dto.AMDCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid callback payload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid callback payload",
		})
		return
	}

	err := h.notifier.HandleAMDResult(c.Request.Context(), req.CallID, req.Result, req.Cause)
	if err != nil {
		if errors.Is(err, dialer.ErrJobNotFound) {
			h.logger.Warn("AMD verdict for unknown call",
				slog.String("call_id", req.CallID),
			)
		} else {
			h.logger.Error("Failed to apply AMD verdict",
				slog.String("call_id", req.CallID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
	})
}

// Classification handles POST /callbacks/classification
// Receives the dialplan's line classification for a phone number.
func (h *WebhookHandler) Classification(c *gin.Context) {
	var req dto.ClassificationCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid callback payload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid callback payload",
		})
		return
	}

	if err := h.classifier.SaveClassification(c.Request.Context(), req.Phone, req.Status, req.Cause); err != nil {
		h.logger.Error("Failed to save classification",
			slog.String("phone", req.Phone),
			slog.String("status", req.Status),
			slog.String("error", err.Error()),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
	})
}
