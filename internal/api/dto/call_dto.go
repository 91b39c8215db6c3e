package dto

// CallRequest is one call to place. FromNumber, AgentID and the dynamic
// variables fall back to configured defaults when omitted.
type CallRequest struct {
	ToNumber         string            `json:"to_number" binding:"required"`
	FromNumber       string            `json:"from_number"`
	AgentID          string            `json:"agent_id"`
	DynamicVariables map[string]string `json:"dynamic_variables"`
}

// BatchCallRequest enqueues up to 100 calls in one request.
type BatchCallRequest struct {
	Calls []CallRequest `json:"calls" binding:"required"`
}

// BatchCallResponse reports the enqueued jobs and a queue snapshot.
type BatchCallResponse struct {
	Success    bool     `json:"success"`
	JobIDs     []string `json:"job_ids"`
	Queued     int      `json:"queued"`
	Rejected   []string `json:"rejected,omitempty"`
	QueueDepth int      `json:"queue_depth"`
}

// CallStatusResponse is the live view of a job.
type CallStatusResponse struct {
	JobID          string            `json:"job_id"`
	State          string            `json:"state"`
	ToNumber       string            `json:"to_number"`
	FromNumber     string            `json:"from_number,omitempty"`
	AgentID        string            `json:"agent_id,omitempty"`
	ProviderCallID string            `json:"provider_call_id,omitempty"`
	AMDResult      string            `json:"amd_result,omitempty"`
	HangupCause    string            `json:"hangup_cause,omitempty"`
	Error          string            `json:"error,omitempty"`
	Variables      map[string]string `json:"dynamic_variables,omitempty"`
	CreatedAt      string            `json:"created_at,omitempty"`
	StartedAt      string            `json:"started_at,omitempty"`
	CompletedAt    string            `json:"completed_at,omitempty"`
}

// QueueStatusResponse is a point-in-time queue snapshot.
type QueueStatusResponse struct {
	QueueDepth  int `json:"queue_depth"`
	ActiveCalls int `json:"active_calls"`
	Concurrency int `json:"concurrency"`
}

// PrepareTransferRequest registers a transfer against a live call.
type PrepareTransferRequest struct {
	TransferID     string `json:"transfer_id" binding:"required"`
	ProviderCallID string `json:"provider_call_id" binding:"required"`
	Phone          string `json:"phone"`
}

// ExecuteTransferRequest bridges an agent onto a prepared transfer.
type ExecuteTransferRequest struct {
	AgentExtension string `json:"agent_extension"`
}

// CompleteTransferRequest closes a transfer session.
type CompleteTransferRequest struct {
	Success *bool `json:"success" binding:"required"`
}

// TransferResponse reports a transfer session's state.
type TransferResponse struct {
	TransferID     string `json:"transfer_id"`
	ProviderCallID string `json:"provider_call_id"`
	Phone          string `json:"phone,omitempty"`
	Channel        string `json:"channel,omitempty"`
	AgentExtension string `json:"agent_extension,omitempty"`
	Status         string `json:"status"`
}

// AMDCallbackRequest is the dialplan's machine-detection verdict.
type AMDCallbackRequest struct {
	CallID string `json:"call_id" binding:"required"`
	Result string `json:"result" binding:"required"`
	Cause  string `json:"cause"`
}

// ClassificationCallbackRequest is the dialplan's line-classification
// verdict for a phone number.
type ClassificationCallbackRequest struct {
	Phone  string `json:"phone" binding:"required"`
	Status string `json:"status" binding:"required"`
	Cause  string `json:"cause"`
}
