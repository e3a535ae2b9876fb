package models

import "time"

// RiskLevel is the four-tier trend classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskOrder makes the tiers comparable.
var riskOrder = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// AtLeast reports whether r is at least as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskOrder[r] >= riskOrder[other]
}

// TrendData is one candidate cluster of flagged content sharing signals.
// A later cycle observing the same normalized signal set supersedes the
// earlier record: ID is a hash of the signals, not of the member content.
type TrendData struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"` // hashtag, keyword, cross_platform
	Signals        []string  `json:"signals"`
	Platforms      []string  `json:"platforms"`
	Categories     []string  `json:"categories,omitempty"`
	ContentCount   int       `json:"content_count"`
	AvgHarmfulness float64   `json:"avg_harmfulness"`
	AvgEngagement  float64   `json:"avg_engagement"`
	ViralityScore  float64   `json:"virality_score"`
	GrowthRate     float64   `json:"growth_rate"` // items per hour
	RiskScore      float64   `json:"risk_score"`
	RiskLevel      RiskLevel `json:"risk_level"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Rank is the ordering key for the active-trend index.
func (t *TrendData) Rank() float64 {
	return t.AvgHarmfulness * t.ViralityScore
}
