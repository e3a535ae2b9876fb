// Package rules implements the escalation rule engine: operator-configured
// condition sets matched against a single item's detection result, with
// priority-based consolidation of the resulting action lists.
package rules

import (
	"trendguard/pkg/models"
)

// Conditions is one rule's flat condition set. Nil / empty fields are
// unspecified and hold vacuously.
type Conditions struct {
	MinScore        *float64 `yaml:"min_score"`
	MaxScore        *float64 `yaml:"max_score"`
	MinConfidence   *float64 `yaml:"min_confidence"`
	Categories      []string `yaml:"categories"`       // allow-list, any overlap
	Platforms       []string `yaml:"platforms"`        // allow-list
	ViralIndicators *bool    `yaml:"viral_indicators"` // require (or forbid) virality
}

// Rule is one operator-configured condition -> action mapping.
type Rule struct {
	ID         string                  `yaml:"id"`
	Name       string                  `yaml:"name"`
	Enabled    bool                    `yaml:"enabled"`
	Priority   int                     `yaml:"priority"`
	Conditions Conditions              `yaml:"conditions"`
	Actions    []models.ResponseAction `yaml:"actions"`
}

// ContentMeta is the per-item metadata the condition set can reference beyond
// the detection result itself.
type ContentMeta struct {
	Platform   string
	Engagement models.Engagement
}

// Viral indicator thresholds: any one is sufficient.
const (
	viralTotalEngagement = 1000
	viralShares          = 100
	viralViews           = 10000
)

// IsViral reports whether the engagement counters indicate virality.
func IsViral(e models.Engagement) bool {
	return e.Total() > viralTotalEngagement || e.Shares > viralShares || e.Views > viralViews
}

// matches reports whether every specified condition holds.
func (c *Conditions) matches(det *models.DetectionResult, meta ContentMeta) bool {
	if c.MinScore != nil && det.HarmfulnessScore < *c.MinScore {
		return false
	}
	if c.MaxScore != nil && det.HarmfulnessScore > *c.MaxScore {
		return false
	}
	if c.MinConfidence != nil && det.Confidence < *c.MinConfidence {
		return false
	}
	if len(c.Categories) > 0 {
		any := false
		for _, want := range c.Categories {
			if det.HasCategory(want) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if len(c.Platforms) > 0 {
		any := false
		for _, p := range c.Platforms {
			if p == meta.Platform {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if c.ViralIndicators != nil && IsViral(meta.Engagement) != *c.ViralIndicators {
		return false
	}
	return true
}

// typeWeight orders action types: remove > quarantine > escalate > flag >
// warn = notify.
func typeWeight(t models.ActionType) int {
	switch t {
	case models.ActionRemove:
		return 10
	case models.ActionQuarantine:
		return 8
	case models.ActionEscalate:
		return 6
	case models.ActionFlag:
		return 4
	case models.ActionWarn, models.ActionNotify:
		return 2
	default:
		return 1
	}
}

func severityWeight(level models.Severity) int {
	switch level {
	case models.SeverityCritical:
		return 7
	case models.SeverityHigh:
		return 5
	case models.SeverityMedium:
		return 3
	case models.SeverityLow:
		return 1
	default:
		return 1
	}
}

// actionPriority is the derived ordering key for consolidated action lists.
func actionPriority(a models.ResponseAction) int {
	return typeWeight(a.Type) * severityWeight(a.Severity)
}
