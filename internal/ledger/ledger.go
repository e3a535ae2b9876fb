// Package ledger keeps the rolling record of detected trends and the early
// warnings raised from them. Trends are keyed by their signal hash, so a later
// cycle observing the same cluster supersedes the earlier record. Warnings are
// immutable once written; acknowledgements append alongside them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trendguard/pkg/models"
)

// ErrNotFound is returned when a trend or warning id is unknown or expired.
var ErrNotFound = errors.New("ledger: not found")

// DefaultTrendTTL bounds how long a trend stays active without re-detection.
const DefaultTrendTTL = 24 * time.Hour

// DefaultWarningTTL bounds how long a warning stays queryable.
const DefaultWarningTTL = 7 * 24 * time.Hour

// Ledger is the trend and warning persistence contract.
type Ledger interface {
	// StoreTrend upserts a trend under its signal-hash id and refreshes its TTL.
	StoreTrend(ctx context.Context, trend *models.TrendData) error

	// GetTrend returns one active trend or ErrNotFound.
	GetTrend(ctx context.Context, id string) (*models.TrendData, error)

	// ActiveTrends returns unexpired trends ordered by rank, highest first.
	ActiveTrends(ctx context.Context) ([]*models.TrendData, error)

	// StoreWarning records a warning in the severity-agnostic and per-severity
	// indexes.
	StoreWarning(ctx context.Context, w *models.EarlyWarning) error

	// GetWarning returns one active warning or ErrNotFound.
	GetWarning(ctx context.Context, id string) (*models.EarlyWarning, error)

	// ActiveWarnings returns unexpired warnings, newest first. An empty
	// severity selects all severities.
	ActiveWarnings(ctx context.Context, severity models.RiskLevel) ([]*models.EarlyWarning, error)

	// Acknowledge appends an acknowledgement for an active warning.
	Acknowledge(ctx context.Context, ack models.Acknowledgement) error

	// Acknowledgements returns a warning's acknowledgements, oldest first.
	Acknowledgements(ctx context.Context, warningID string) ([]models.Acknowledgement, error)

	Close() error
}

// BuildWarning derives an early warning from a high or critical trend. The
// warning carries a snapshot of the trend; later trend updates do not touch it.
func BuildWarning(trend *models.TrendData, now time.Time, ttl time.Duration) *models.EarlyWarning {
	if ttl <= 0 {
		ttl = DefaultWarningTTL
	}
	snapshot := *trend
	return &models.EarlyWarning{
		ID:                 uuid.NewString(),
		TrendID:            trend.ID,
		Title:              warningTitle(trend),
		Description:        warningDescription(trend),
		Severity:           trend.RiskLevel,
		RecommendedActions: recommendedActions(trend.RiskLevel),
		Trend:              &snapshot,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}
}

func warningTitle(t *models.TrendData) string {
	return fmt.Sprintf("%s trend: %s", strings.ToUpper(string(t.RiskLevel)), strings.Join(t.Signals, ", "))
}

func warningDescription(t *models.TrendData) string {
	return fmt.Sprintf(
		"%d flagged items across %d platform(s) share signals [%s]; avg harmfulness %.2f, growth %.1f items/hour, risk score %.2f",
		t.ContentCount, len(t.Platforms), strings.Join(t.Signals, ", "),
		t.AvgHarmfulness, t.GrowthRate, t.RiskScore,
	)
}

func recommendedActions(level models.RiskLevel) []string {
	switch level {
	case models.RiskCritical:
		return []string{
			"page the on-call trust and safety reviewer",
			"review the highest-engagement items in the cluster immediately",
			"consider suppressing the shared hashtags from discovery surfaces",
		}
	case models.RiskHigh:
		return []string{
			"queue the cluster for priority human review",
			"watch the growth rate over the next cycles",
		}
	default:
		return nil
	}
}
