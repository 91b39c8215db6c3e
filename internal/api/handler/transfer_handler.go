package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxline/outdial/internal/api/dto"
	"github.com/voxline/outdial/internal/transfer"
)

// TransferHandler handles agent-transfer HTTP requests
type TransferHandler struct {
	logger    *slog.Logger
	transfers TransferService
}

// NewTransferHandler creates a new TransferHandler instance
func NewTransferHandler(deps *Dependencies) *TransferHandler {
	return &TransferHandler{
		logger:    deps.Logger,
		transfers: deps.Transfers,
	}
}

// Prepare handles POST /api/v1/transfers/prepare
func (h *TransferHandler) Prepare(c *gin.Context) {
	var req dto.PrepareTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	sess, err := h.transfers.Prepare(c.Request.Context(), req.TransferID, req.ProviderCallID, req.Phone)
	if err != nil {
		h.logger.Error("Failed to prepare transfer",
			slog.String("transfer_id", req.TransferID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to prepare transfer",
		})
		return
	}

	c.JSON(http.StatusOK, toTransferResponse(sess))
}

// Execute handles POST /api/v1/transfers/:transfer_id/execute
func (h *TransferHandler) Execute(c *gin.Context) {
	transferID := c.Param("transfer_id")

	// The body is optional; an absent extension falls back to the default.
	var req dto.ExecuteTransferRequest
	_ = c.ShouldBindJSON(&req)

	sess, err := h.transfers.Execute(c.Request.Context(), transferID, req.AgentExtension)
	if err != nil {
		switch {
		case errors.Is(err, transfer.ErrTransferNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Transfer not found",
			})
		case errors.Is(err, transfer.ErrChannelNotFound):
			c.JSON(http.StatusConflict, gin.H{
				"error":    "Target channel not found",
				"transfer": toTransferResponse(sess),
			})
		default:
			h.logger.Error("Failed to execute transfer",
				slog.String("transfer_id", transferID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to execute transfer",
			})
		}
		return
	}

	c.JSON(http.StatusOK, toTransferResponse(sess))
}

// Complete handles POST /api/v1/transfers/:transfer_id/complete
func (h *TransferHandler) Complete(c *gin.Context) {
	transferID := c.Param("transfer_id")

	var req dto.CompleteTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := h.transfers.Complete(c.Request.Context(), transferID, *req.Success); err != nil {
		if errors.Is(err, transfer.ErrTransferNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Transfer not found",
			})
			return
		}
		h.logger.Error("Failed to complete transfer",
			slog.String("transfer_id", transferID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to complete transfer",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transfer_id": transferID,
		"status":      "closed",
	})
}

func toTransferResponse(sess *transfer.Session) dto.TransferResponse {
	if sess == nil {
		return dto.TransferResponse{}
	}
	return dto.TransferResponse{
		TransferID:     sess.TransferID,
		ProviderCallID: sess.ProviderCallID,
		Phone:          sess.Phone,
		Channel:        sess.Channel,
		AgentExtension: sess.AgentExtension,
		Status:         string(sess.Status),
	}
}
