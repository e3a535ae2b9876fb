package trends

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"trendguard/pkg/models"
)

// Aggregate is the raw cluster summary one grouping pass produces before
// scoring. Scoring is pure so the math stays testable without a store.
type Aggregate struct {
	Source         string
	Signals        []string
	Platforms      []string
	Categories     []string
	ContentCount   int
	AvgHarmfulness float64
	AvgEngagement  float64
	FirstSeen      time.Time
	LastSeen       time.Time
}

// ScoreConfig holds the scoring normalizers.
type ScoreConfig struct {
	// ViralityEngagement is the engagement level treated as fully viral.
	ViralityEngagement float64
}

// Risk tier breakpoints. The four-tier ordering is fixed.
const (
	riskCriticalMin = 0.85
	riskHighMin     = 0.70
	riskMediumMin   = 0.50
)

// ViralityScore combines normalized volume and average engagement into [0,1].
func ViralityScore(contentCount int, avgEngagement, engagementThreshold float64) float64 {
	if engagementThreshold <= 0 {
		engagementThreshold = 1000
	}
	volume := math.Min(float64(contentCount)/100, 1)
	engagement := math.Min(avgEngagement/engagementThreshold, 1)
	return (volume + engagement) / 2
}

// GrowthRate returns items per hour over the observed span. A zero span is an
// instantaneous spike and reports 0, never infinity.
func GrowthRate(contentCount int, firstSeen, lastSeen time.Time) float64 {
	hours := lastSeen.Sub(firstSeen).Hours()
	if hours <= 0 {
		return 0
	}
	return float64(contentCount) / hours
}

// RiskScore blends harmfulness, virality and platform spread.
func RiskScore(harmfulness, virality float64, platformCount int) float64 {
	spread := math.Min(float64(platformCount)/5, 1)
	return 0.5*harmfulness + 0.3*virality + 0.2*spread
}

// RiskLevelFor maps a risk score onto the four tiers.
func RiskLevelFor(score float64) models.RiskLevel {
	switch {
	case score >= riskCriticalMin:
		return models.RiskCritical
	case score >= riskHighMin:
		return models.RiskHigh
	case score >= riskMediumMin:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// NormalizeSignals lowercases, trims, dedupes and sorts a signal set. Trend
// identity depends only on this normalized form.
func NormalizeSignals(signals []string) []string {
	seen := make(map[string]struct{}, len(signals))
	out := make([]string, 0, len(signals))
	for _, s := range signals {
		v := strings.ToLower(strings.TrimSpace(s))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// TrendID derives the stable cluster id from the normalized signal set.
func TrendID(signals []string) string {
	sum := sha256.Sum256([]byte(strings.Join(NormalizeSignals(signals), "|")))
	return hex.EncodeToString(sum[:8])
}

// Score converts a raw aggregate into a full TrendData record.
func Score(agg Aggregate, cfg ScoreConfig, now time.Time) *models.TrendData {
	signals := NormalizeSignals(agg.Signals)
	virality := ViralityScore(agg.ContentCount, agg.AvgEngagement, cfg.ViralityEngagement)
	risk := RiskScore(agg.AvgHarmfulness, virality, len(agg.Platforms))

	return &models.TrendData{
		ID:             TrendID(signals),
		Source:         agg.Source,
		Signals:        signals,
		Platforms:      agg.Platforms,
		Categories:     agg.Categories,
		ContentCount:   agg.ContentCount,
		AvgHarmfulness: agg.AvgHarmfulness,
		AvgEngagement:  agg.AvgEngagement,
		ViralityScore:  virality,
		GrowthRate:     GrowthRate(agg.ContentCount, agg.FirstSeen, agg.LastSeen),
		RiskScore:      risk,
		RiskLevel:      RiskLevelFor(risk),
		FirstSeen:      agg.FirstSeen,
		LastSeen:       agg.LastSeen,
		DetectedAt:     now,
	}
}
