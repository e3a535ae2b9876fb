// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsConsumed counts ingest payloads by outcome (ok, invalid, parse_error).
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendguard_events_consumed_total",
		Help: "Classified-content events consumed from the ingest list.",
	}, []string{"outcome"})

	// JobsProcessed counts queue jobs by lane and terminal outcome (ok, retried, dead).
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendguard_jobs_processed_total",
		Help: "Queue jobs processed per lane.",
	}, []string{"lane", "outcome"})

	// QueueDepth tracks pending jobs per lane and state (ready, delayed, dead).
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trendguard_queue_depth",
		Help: "Jobs currently held per lane and state.",
	}, []string{"lane", "state"})

	// ActionsExecuted counts moderation actions applied per type.
	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendguard_actions_executed_total",
		Help: "Moderation actions executed, including downgrades.",
	}, []string{"type"})

	// RemoveDowngrades counts remove actions downgraded to escalation by the
	// auto-action threshold guard.
	RemoveDowngrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trendguard_remove_downgrades_total",
		Help: "Remove actions downgraded to escalation below the auto-action threshold.",
	})

	// TrendCycles counts aggregation cycles by outcome (ok, skipped_overlap).
	TrendCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendguard_trend_cycles_total",
		Help: "Trend aggregation cycles run.",
	}, []string{"outcome"})

	// TrendsDetected counts stored trends per detection pass.
	TrendsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendguard_trends_detected_total",
		Help: "Deduplicated trends stored per detection pass.",
	}, []string{"source"})

	// WarningsEmitted counts early warnings per severity.
	WarningsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendguard_warnings_emitted_total",
		Help: "Early warnings emitted per severity.",
	}, []string{"severity"})
)
