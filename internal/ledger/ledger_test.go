package ledger

import (
	"context"
	"testing"
	"time"

	"trendguard/pkg/models"
)

func testTrend(id string, harm, virality float64) *models.TrendData {
	return &models.TrendData{
		ID:             id,
		Source:         "hashtag",
		Signals:        []string{id},
		Platforms:      []string{"tiktok"},
		ContentCount:   20,
		AvgHarmfulness: harm,
		ViralityScore:  virality,
		RiskScore:      0.8,
		RiskLevel:      models.RiskHigh,
	}
}

func newTestLedger(start time.Time) (*MemLedger, *time.Time) {
	now := start
	l := NewMemLedger()
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestActiveTrendsRankedByHarmTimesVirality(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(time.Now())

	// ranks: a=0.72, b=0.40, c=0.81
	for _, tr := range []*models.TrendData{
		testTrend("a", 0.90, 0.80),
		testTrend("b", 0.80, 0.50),
		testTrend("c", 0.90, 0.90),
	} {
		if err := l.StoreTrend(ctx, tr); err != nil {
			t.Fatalf("StoreTrend(%s): %v", tr.ID, err)
		}
	}

	trends, err := l.ActiveTrends(ctx)
	if err != nil {
		t.Fatalf("ActiveTrends: %v", err)
	}
	if len(trends) != 3 {
		t.Fatalf("expected 3 active trends, got %d", len(trends))
	}
	for i, want := range []string{"c", "a", "b"} {
		if trends[i].ID != want {
			t.Fatalf("rank position %d: got %s, want %s", i, trends[i].ID, want)
		}
	}
}

func TestStoreTrendLastWriteWins(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(time.Now())

	first := testTrend("dance-challenge", 0.80, 0.50)
	first.ContentCount = 12
	if err := l.StoreTrend(ctx, first); err != nil {
		t.Fatalf("StoreTrend: %v", err)
	}

	second := testTrend("dance-challenge", 0.85, 0.60)
	second.ContentCount = 30
	if err := l.StoreTrend(ctx, second); err != nil {
		t.Fatalf("StoreTrend: %v", err)
	}

	got, err := l.GetTrend(ctx, "dance-challenge")
	if err != nil {
		t.Fatalf("GetTrend: %v", err)
	}
	if got.ContentCount != 30 {
		t.Fatalf("expected superseding record, got content count %d", got.ContentCount)
	}
	trends, err := l.ActiveTrends(ctx)
	if err != nil {
		t.Fatalf("ActiveTrends: %v", err)
	}
	if len(trends) != 1 {
		t.Fatalf("same id must occupy one slot, got %d trends", len(trends))
	}
}

func TestTrendsExpireAfterTTL(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLedger(time.Now())

	if err := l.StoreTrend(ctx, testTrend("fading", 0.80, 0.50)); err != nil {
		t.Fatalf("StoreTrend: %v", err)
	}

	*now = now.Add(DefaultTrendTTL + time.Minute)

	if _, err := l.GetTrend(ctx, "fading"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
	trends, err := l.ActiveTrends(ctx)
	if err != nil {
		t.Fatalf("ActiveTrends: %v", err)
	}
	if len(trends) != 0 {
		t.Fatalf("expired trend still listed: %d", len(trends))
	}
}

func TestBuildWarningSnapshotsTrend(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	trend := testTrend("challenge", 0.90, 0.80)
	trend.RiskLevel = models.RiskCritical

	w := BuildWarning(trend, start, 0)
	if w.TrendID != trend.ID {
		t.Fatalf("warning trend id %s, want %s", w.TrendID, trend.ID)
	}
	if w.Severity != models.RiskCritical {
		t.Fatalf("warning severity %s, want critical", w.Severity)
	}
	if !w.ExpiresAt.Equal(start.Add(DefaultWarningTTL)) {
		t.Fatalf("warning expiry %v, want start + 7d", w.ExpiresAt)
	}
	if len(w.RecommendedActions) == 0 {
		t.Fatal("critical warning must carry recommended actions")
	}

	// Mutating the trend afterwards must not reach the emitted snapshot.
	trend.ContentCount = 999
	if w.Trend.ContentCount == 999 {
		t.Fatal("warning holds a live reference instead of a snapshot")
	}
}

func TestActiveWarningsFiltersBySeverity(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, now := newTestLedger(start)

	high := testTrend("high-trend", 0.80, 0.60)
	high.RiskLevel = models.RiskHigh
	crit := testTrend("crit-trend", 0.95, 0.90)
	crit.RiskLevel = models.RiskCritical

	wHigh := BuildWarning(high, start, 0)
	wCrit := BuildWarning(crit, start.Add(time.Minute), 0)
	for _, w := range []*models.EarlyWarning{wHigh, wCrit} {
		if err := l.StoreWarning(ctx, w); err != nil {
			t.Fatalf("StoreWarning: %v", err)
		}
	}
	*now = start.Add(2 * time.Minute)

	all, err := l.ActiveWarnings(ctx, "")
	if err != nil {
		t.Fatalf("ActiveWarnings: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(all))
	}
	if all[0].ID != wCrit.ID {
		t.Fatal("warnings must list newest first")
	}

	critOnly, err := l.ActiveWarnings(ctx, models.RiskCritical)
	if err != nil {
		t.Fatalf("ActiveWarnings(critical): %v", err)
	}
	if len(critOnly) != 1 || critOnly[0].ID != wCrit.ID {
		t.Fatalf("severity filter returned %d warnings", len(critOnly))
	}
}

func TestAcknowledgementsAppendWithoutRewriting(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLedger(start)

	trend := testTrend("challenge", 0.90, 0.80)
	trend.RiskLevel = models.RiskHigh
	w := BuildWarning(trend, start, 0)
	if err := l.StoreWarning(ctx, w); err != nil {
		t.Fatalf("StoreWarning: %v", err)
	}

	for _, actor := range []string{"reviewer-1", "reviewer-2"} {
		err := l.Acknowledge(ctx, models.Acknowledgement{
			WarningID:      w.ID,
			Actor:          actor,
			AcknowledgedAt: start.Add(time.Minute),
		})
		if err != nil {
			t.Fatalf("Acknowledge(%s): %v", actor, err)
		}
	}

	acks, err := l.Acknowledgements(ctx, w.ID)
	if err != nil {
		t.Fatalf("Acknowledgements: %v", err)
	}
	if len(acks) != 2 {
		t.Fatalf("expected 2 acknowledgements, got %d", len(acks))
	}
	if acks[0].Actor != "reviewer-1" || acks[1].Actor != "reviewer-2" {
		t.Fatal("acknowledgements must keep append order")
	}

	got, err := l.GetWarning(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWarning: %v", err)
	}
	if !got.CreatedAt.Equal(w.CreatedAt) || got.Title != w.Title {
		t.Fatal("acknowledging must not rewrite the warning")
	}
}

func TestAcknowledgeUnknownWarning(t *testing.T) {
	l, _ := newTestLedger(time.Now())
	err := l.Acknowledge(context.Background(), models.Acknowledgement{WarningID: "missing", Actor: "x"})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
