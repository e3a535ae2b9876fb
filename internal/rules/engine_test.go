package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendguard/pkg/models"
)

func f(v float64) *float64 { return &v }
func b(v bool) *bool       { return &v }

func TestMatchUnspecifiedConditionsAreVacuouslyTrue(t *testing.T) {
	e := NewEngine([]Rule{{
		ID:       "catch-all",
		Enabled:  true,
		Priority: 1,
		Actions:  []models.ResponseAction{{Type: models.ActionFlag, Severity: models.SeverityLow}},
	}})

	actions := e.Match(&models.DetectionResult{HarmfulnessScore: 0.1, Confidence: 0.2}, ContentMeta{})
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionFlag, actions[0].Type)
	assert.True(t, actions[0].Automated)
}

func TestMatchFiltersEveryConditionKind(t *testing.T) {
	rule := Rule{
		ID:       "strict",
		Enabled:  true,
		Priority: 10,
		Conditions: Conditions{
			MinScore:        f(0.7),
			MaxScore:        f(0.9),
			MinConfidence:   f(0.8),
			Categories:      []string{models.CategoryViolence},
			Platforms:       []string{"tiktok"},
			ViralIndicators: b(true),
		},
		Actions: []models.ResponseAction{{Type: models.ActionQuarantine, Severity: models.SeverityHigh}},
	}
	e := NewEngine([]Rule{rule})

	match := &models.DetectionResult{
		HarmfulnessScore: 0.8,
		Categories:       []string{models.CategoryViolence},
		Confidence:       0.9,
		Flagged:          true,
	}
	viral := ContentMeta{Platform: "tiktok", Engagement: models.Engagement{Shares: 150}}

	assert.Len(t, e.Match(match, viral), 1)

	low := *match
	low.HarmfulnessScore = 0.5
	assert.Empty(t, e.Match(&low, viral), "below min score")

	high := *match
	high.HarmfulnessScore = 0.95
	assert.Empty(t, e.Match(&high, viral), "above max score")

	unsure := *match
	unsure.Confidence = 0.5
	assert.Empty(t, e.Match(&unsure, viral), "below confidence floor")

	offCategory := *match
	offCategory.Categories = []string{models.CategorySpam}
	assert.Empty(t, e.Match(&offCategory, viral), "category not in allow-list")

	assert.Empty(t, e.Match(match, ContentMeta{Platform: "telegram", Engagement: viral.Engagement}), "platform not in allow-list")
	assert.Empty(t, e.Match(match, ContentMeta{Platform: "tiktok"}), "not viral")
}

func TestIsViralAnyIndicatorSuffices(t *testing.T) {
	assert.False(t, IsViral(models.Engagement{Likes: 500, Shares: 50, Views: 5000}))
	assert.True(t, IsViral(models.Engagement{Likes: 900, Comments: 200}))
	assert.True(t, IsViral(models.Engagement{Shares: 101}))
	assert.True(t, IsViral(models.Engagement{Views: 10001}))
}

func TestConsolidateHighestPriorityWinsPerPair(t *testing.T) {
	matched := []Rule{
		{
			ID: "low", Enabled: true, Priority: 1,
			Actions: []models.ResponseAction{{Type: models.ActionFlag, Severity: models.SeverityMedium, Reason: "low-priority"}},
		},
		{
			ID: "high", Enabled: true, Priority: 9,
			Actions: []models.ResponseAction{{Type: models.ActionFlag, Severity: models.SeverityMedium, Reason: "high-priority"}},
		},
	}

	out := Consolidate(matched)
	require.Len(t, out, 1)
	assert.Equal(t, "high-priority", out[0].Reason)
}

func TestConsolidateOrdersByDerivedActionPriority(t *testing.T) {
	matched := []Rule{{
		ID: "mixed", Enabled: true, Priority: 5,
		Actions: []models.ResponseAction{
			{Type: models.ActionNotify, Severity: models.SeverityCritical},
			{Type: models.ActionFlag, Severity: models.SeverityLow},
			{Type: models.ActionRemove, Severity: models.SeverityHigh},
			{Type: models.ActionQuarantine, Severity: models.SeverityHigh},
		},
	}}

	out := Consolidate(matched)
	require.Len(t, out, 4)
	// remove(10*5)=50 > quarantine(8*5)=40 > notify(2*7)=14 > flag(4*1)=4
	assert.Equal(t, models.ActionRemove, out[0].Type)
	assert.Equal(t, models.ActionQuarantine, out[1].Type)
	assert.Equal(t, models.ActionNotify, out[2].Type)
	assert.Equal(t, models.ActionFlag, out[3].Type)
}

func TestConsolidateIdempotent(t *testing.T) {
	matched := []Rule{
		{ID: "a", Enabled: true, Priority: 3, Actions: []models.ResponseAction{
			{Type: models.ActionQuarantine, Severity: models.SeverityHigh},
			{Type: models.ActionEscalate, Severity: models.SeverityHigh},
		}},
		{ID: "b", Enabled: true, Priority: 1, Actions: []models.ResponseAction{
			{Type: models.ActionQuarantine, Severity: models.SeverityHigh},
		}},
	}

	once := Consolidate(matched)
	again := Consolidate([]Rule{{ID: "again", Enabled: true, Priority: 1, Actions: once}})
	assert.Equal(t, once, again)
}

func TestMatchDisabledRulesIgnored(t *testing.T) {
	e := NewEngine([]Rule{{
		ID:       "off",
		Enabled:  false,
		Priority: 100,
		Actions:  []models.ResponseAction{{Type: models.ActionRemove, Severity: models.SeverityCritical}},
	}})
	assert.Empty(t, e.Match(&models.DetectionResult{HarmfulnessScore: 1}, ContentMeta{}))
}

func TestReloadSwapsWholeSnapshot(t *testing.T) {
	e := NewEngine([]Rule{{
		ID: "old", Enabled: true, Priority: 1,
		Actions: []models.ResponseAction{{Type: models.ActionWarn, Severity: models.SeverityLow}},
	}})

	e.Reload([]Rule{{
		ID: "new", Enabled: true, Priority: 1,
		Actions: []models.ResponseAction{{Type: models.ActionQuarantine, Severity: models.SeverityHigh}},
	}})

	out := e.Match(&models.DetectionResult{HarmfulnessScore: 0.9}, ContentMeta{})
	require.Len(t, out, 1)
	assert.Equal(t, models.ActionQuarantine, out[0].Type)
}

func TestMatchHighViolenceViralScenario(t *testing.T) {
	e := NewEngine([]Rule{{
		ID:       "high-violence-viral",
		Name:     "High violence + viral",
		Enabled:  true,
		Priority: 50,
		Conditions: Conditions{
			MinScore:        f(0.75),
			Categories:      []string{models.CategoryViolence},
			ViralIndicators: b(true),
		},
		Actions: []models.ResponseAction{
			{Type: models.ActionQuarantine, Severity: models.SeverityHigh},
			{Type: models.ActionEscalate, Severity: models.SeverityHigh},
		},
	}})

	det := &models.DetectionResult{
		HarmfulnessScore: 0.80,
		Categories:       []string{models.CategoryViolence},
		Confidence:       0.9,
		Flagged:          true,
	}
	out := e.Match(det, ContentMeta{Platform: "tiktok", Engagement: models.Engagement{Shares: 150}})

	require.Len(t, out, 2)
	assert.Equal(t, models.ActionQuarantine, out[0].Type)
	assert.Equal(t, models.ActionEscalate, out[1].Type)
	for _, a := range out {
		assert.NotEqual(t, models.ActionRemove, a.Type)
	}
}
