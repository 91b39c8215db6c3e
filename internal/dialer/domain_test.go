package dialer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallState_Terminal(t *testing.T) {
	terminal := []CallState{StateVoicemail, StateNoAnswer, StateCompleted, StateFailed}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "state %s should be terminal", s)
	}

	live := []CallState{StateQueued, StateCalling, StateActive}
	for _, s := range live {
		assert.False(t, s.Terminal(), "state %s should not be terminal", s)
	}
}

func TestCallState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    CallState
		to      CallState
		allowed bool
	}{
		{"queued to calling", StateQueued, StateCalling, true},
		{"calling to active", StateCalling, StateActive, true},
		{"calling to voicemail", StateCalling, StateVoicemail, true},
		{"calling to no_answer", StateCalling, StateNoAnswer, true},
		{"calling to failed", StateCalling, StateFailed, true},
		{"active to completed", StateActive, StateCompleted, true},
		{"late verdict on active call", StateActive, StateVoicemail, true},
		{"queued to active", StateQueued, StateActive, true},
		{"no going back to queued", StateCalling, StateQueued, false},
		{"no going back to calling", StateActive, StateCalling, false},
		{"self transition", StateCalling, StateCalling, false},
		{"completed is final", StateCompleted, StateActive, false},
		{"completed rejects voicemail", StateCompleted, StateVoicemail, false},
		{"failed is final", StateFailed, StateCompleted, false},
		{"voicemail is final", StateVoicemail, StateCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestNewCallJob(t *testing.T) {
	job := NewCallJob("+15551234567", "+18887719555", "agent-1", map[string]string{"name": "Ada"})

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StateQueued, job.State)
	assert.Equal(t, "+15551234567", job.ToNumber)
	assert.Equal(t, "+18887719555", job.FromNumber)
	assert.Equal(t, "agent-1", job.AgentID)
	assert.Equal(t, "Ada", job.DynamicVariables["name"])
	assert.False(t, job.CreatedAt.IsZero())
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
}

func TestMirrorStatus(t *testing.T) {
	tests := []struct {
		state CallState
		want  string
	}{
		{StateQueued, "queued"},
		{StateCalling, "calling"},
		{StateActive, "active"},
		{StateVoicemail, "canceled"},
		{StateNoAnswer, "canceled"},
		{StateFailed, "canceled"},
		{StateCompleted, "finished"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mirrorStatus(tt.state), "state %s", tt.state)
	}
}
