package retell

// Webhook event names pushed by the platform.
const (
	EventCallStarted  = "call_started"
	EventCallEnded    = "call_ended"
	EventCallAnalyzed = "call_analyzed"
)

// WebhookEvent is the envelope of every platform webhook.
type WebhookEvent struct {
	Event string      `json:"event"`
	Call  CallPayload `json:"call"`
}

// CallPayload is the call object carried by webhook events. Timestamps are
// Unix milliseconds; EndTimestamp is zero until the call ends.
type CallPayload struct {
	CallID           string            `json:"call_id"`
	ToNumber         string            `json:"to_number"`
	FromNumber       string            `json:"from_number"`
	Direction        string            `json:"direction"`
	CallStatus       string            `json:"call_status"`
	StartTimestamp   int64             `json:"start_timestamp"`
	EndTimestamp     int64             `json:"end_timestamp"`
	DisconnectReason string            `json:"disconnection_reason"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables"`
	CallAnalysis     CallAnalysis      `json:"call_analysis"`
}

// CallAnalysis is the post-call analysis attached to call_analyzed events.
type CallAnalysis struct {
	CallSummary        string         `json:"call_summary"`
	UserSentiment      string         `json:"user_sentiment"`
	CallSuccessful     bool           `json:"call_successful"`
	CustomAnalysisData map[string]any `json:"custom_analysis_data"`
}
