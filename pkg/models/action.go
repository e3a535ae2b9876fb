package models

import "time"

// ActionType enumerates the automated moderation responses.
type ActionType string

const (
	ActionFlag       ActionType = "flag"
	ActionRemove     ActionType = "remove"
	ActionEscalate   ActionType = "escalate"
	ActionWarn       ActionType = "warn"
	ActionQuarantine ActionType = "quarantine"
	ActionNotify     ActionType = "notify"
)

// Severity grades an action or review-lane entry.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ResponseAction is one action produced by rule matching. It is never
// persisted on its own, only as part of a job payload or a ResponseRecord.
type ResponseAction struct {
	Type      ActionType        `json:"type"`
	Severity  Severity          `json:"severity"`
	Automated bool              `json:"automated"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ResponseRecord is one append-only audit entry: the full action set executed
// for a content item together with a summary of the triggering detection.
type ResponseRecord struct {
	ContentID  string           `json:"content_id"`
	Actions    []ResponseAction `json:"actions"`
	Score      float64          `json:"score"`
	Categories []string         `json:"categories,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ReviewEntry is one human-review lane item.
type ReviewEntry struct {
	ContentID string    `json:"content_id"`
	Severity  Severity  `json:"severity"`
	Reason    string    `json:"reason,omitempty"`
	Score     float64   `json:"score"`
	QueuedAt  time.Time `json:"queued_at"`
}
