package retell

import (
	"fmt"
	"strings"
	"time"
)

// ShortCallThreshold separates abortive connections from real conversations.
const ShortCallThreshold = 15 * time.Second

// ClassifyEnded derives the durable status for an ended call from its
// start/end timestamps (Unix milliseconds). Calls shorter than the
// threshold are flagged as short calls rather than finished conversations.
func ClassifyEnded(startMS, endMS int64) (status, endReason string, seconds int) {
	if endMS > startMS {
		seconds = int((endMS - startMS) / 1000)
	}
	endReason = fmt.Sprintf("DURATION_%ds", seconds)
	if time.Duration(seconds)*time.Second < ShortCallThreshold {
		return "short_call", endReason, seconds
	}
	return "finished", endReason, seconds
}

// customFlagKeys are boolean analysis fields that mark a callback request.
var customFlagKeys = []string{"callback_requested", "wants_callback", "solicita_devolucion"}

// customOutcomeKeys are analysis fields whose value may name a callback
// outcome.
var customOutcomeKeys = []string{"call_outcome", "outcome", "resultado"}

// callbackKeywords are phrases (Spanish and English) in the call summary
// that indicate the contact asked to be called back.
var callbackKeywords = []string{
	"call me back",
	"call back later",
	"callback",
	"return my call",
	"call me later",
	"devolver la llamada",
	"devuelvan la llamada",
	"me devuelvan",
	"que me llamen",
	"llamar mas tarde",
	"llamar más tarde",
	"llamarme luego",
	"llámenme",
}

// WantsCallback reports whether the analysis indicates the contact asked
// for a callback. It checks, in order: an explicit boolean flag, an outcome
// field naming a callback, and finally keyword matches in the summary.
func WantsCallback(a CallAnalysis) bool {
	for _, key := range customFlagKeys {
		switch v := a.CustomAnalysisData[key].(type) {
		case bool:
			if v {
				return true
			}
		case string:
			if strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "si") {
				return true
			}
		}
	}

	for _, key := range customOutcomeKeys {
		if v, ok := a.CustomAnalysisData[key].(string); ok {
			lower := strings.ToLower(v)
			if strings.Contains(lower, "callback") || strings.Contains(lower, "devolver") || strings.Contains(lower, "devolucion") {
				return true
			}
		}
	}

	summary := strings.ToLower(a.CallSummary)
	if summary == "" {
		return false
	}
	for _, kw := range callbackKeywords {
		if strings.Contains(summary, kw) {
			return true
		}
	}
	return false
}
