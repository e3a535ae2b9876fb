// Package scheduler runs the periodic trend detection cycle: aggregate
// flagged content, persist the surviving trends, and promote high and
// critical ones to early warnings.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"trendguard/internal/ledger"
	"trendguard/internal/logger"
	"trendguard/internal/metrics"
	"trendguard/internal/trends"
	"trendguard/pkg/models"
)

// DefaultPeriod is the cycle interval when none is configured.
const DefaultPeriod = 5 * time.Minute

// Scheduler drives the detection loop. Cycles never overlap: a tick arriving
// while the previous cycle is still running is counted and skipped.
type Scheduler struct {
	aggregator *trends.Aggregator
	ledger     ledger.Ledger
	period     time.Duration
	warningTTL time.Duration
	running    atomic.Bool
	now        func() time.Time
}

// New wires a scheduler. Zero period and warning TTL fall back to defaults.
func New(agg *trends.Aggregator, led ledger.Ledger, period, warningTTL time.Duration) *Scheduler {
	if period <= 0 {
		period = DefaultPeriod
	}
	if warningTTL <= 0 {
		warningTTL = ledger.DefaultWarningTTL
	}
	return &Scheduler{
		aggregator: agg,
		ledger:     led,
		period:     period,
		warningTTL: warningTTL,
		now:        time.Now,
	}
}

// Run ticks until ctx is cancelled. The first cycle fires immediately.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Infof("trend scheduler started, period %s", s.period)
	s.tick(ctx)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("trend scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.TrendCycles.WithLabelValues("skipped_overlap").Inc()
		logger.Warnf("trend cycle still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	if err := s.Cycle(ctx); err != nil {
		metrics.TrendCycles.WithLabelValues("error").Inc()
		logger.Errorf("trend cycle failed: %v", err)
		return
	}
	metrics.TrendCycles.WithLabelValues("ok").Inc()
}

// Cycle runs one detection pass. Exported so the scan subcommand can run a
// single cycle without the ticker.
func (s *Scheduler) Cycle(ctx context.Context) error {
	started := s.now()
	detected, err := s.aggregator.Detect(ctx)
	if err != nil {
		return err
	}

	warned := 0
	for _, trend := range detected {
		if err := s.ledger.StoreTrend(ctx, trend); err != nil {
			return err
		}
		metrics.TrendsDetected.WithLabelValues(trend.Source).Inc()

		if !trend.RiskLevel.AtLeast(models.RiskHigh) {
			continue
		}
		// Re-detection of a still-active trend raises a fresh warning each
		// cycle; operators acknowledge warnings, they do not silence trends.
		warning := ledger.BuildWarning(trend, s.now().UTC(), s.warningTTL)
		if err := s.ledger.StoreWarning(ctx, warning); err != nil {
			return err
		}
		metrics.WarningsEmitted.WithLabelValues(string(warning.Severity)).Inc()
		logger.Warnf("early warning %s: %s (risk %.2f)", warning.ID, warning.Title, trend.RiskScore)
		warned++
	}

	logger.Infof("trend cycle done in %s: %d trends, %d warnings", time.Since(started).Round(time.Millisecond), len(detected), warned)
	return nil
}
