package model

import (
	"time"
)

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
	SessionExpired   SessionStatus = "expired"
)

// Session is the durable per-conversation runtime state. The runner owns
// lifecycle transitions; the executor mutates only CurrentStepID, Language,
// RetryCount and Variables.
type Session struct {
	ConversationID string         `json:"conversation_id"`
	TenantID       string         `json:"tenant_id"`
	FlowID         string         `json:"flow_id"`
	FlowVersion    int            `json:"flow_version"`
	CurrentStepID  string         `json:"current_step_id"`
	Language       string         `json:"language"`
	Variables      map[string]any `json:"variables"`
	RetryCount     int            `json:"retry_count"`
	Status         SessionStatus  `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`

	// PendingResume holds the step a delay step scheduled; cleared when an
	// organic message arrives first.
	PendingResume string `json:"pending_resume,omitempty"`
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}

// IdleSince reports how long the session has been idle at the given instant.
func (s *Session) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}
