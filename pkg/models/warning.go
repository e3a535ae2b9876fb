package models

import "time"

// EarlyWarning is emitted when a trend's risk level reaches high or critical.
// The detection facts are immutable once created; acknowledgements are
// recorded separately and never rewrite the warning.
type EarlyWarning struct {
	ID                 string     `json:"id"`
	TrendID            string     `json:"trend_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Severity           RiskLevel  `json:"severity"`
	RecommendedActions []string   `json:"recommended_actions,omitempty"`
	Trend              *TrendData `json:"trend,omitempty"` // snapshot at emission time
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
}

// Acknowledgement records that an operator has seen a warning.
type Acknowledgement struct {
	WarningID      string    `json:"warning_id"`
	Actor          string    `json:"actor"`
	Comment        string    `json:"comment,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}
