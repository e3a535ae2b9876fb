// Package respond turns detection results into executed moderation actions:
// urgency triage on enqueue, rule matching on dequeue, set-operation state
// writes and an append-only response log.
package respond

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trendguard/internal/logger"
	"trendguard/internal/metrics"
	"trendguard/internal/queue"
	"trendguard/internal/rules"
	"trendguard/internal/store"
	"trendguard/pkg/models"
)

// Lane names registered on the shared queue.
const (
	ResponseLane     = "response"
	EscalationLane   = "escalation"
	ContentStateLane = "content_state"
)

// Urgency is the triage tier assigned at enqueue time. It decides queue
// priority and start delay, nothing else; the action set comes from rules.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Categories whose presence alone makes a detection critical regardless of
// its harmfulness score.
var criticalCategories = map[string]struct{}{
	models.CategorySelfHarm:           {},
	models.CategoryViolence:           {},
	models.CategoryDangerousChallenge: {},
	models.CategoryExtremism:          {},
}

// UrgencyFor triages a detection result.
func UrgencyFor(det *models.DetectionResult) Urgency {
	if det.HarmfulnessScore >= 0.95 {
		return UrgencyCritical
	}
	for _, c := range det.Categories {
		if _, ok := criticalCategories[c]; ok {
			return UrgencyCritical
		}
	}
	switch {
	case det.HarmfulnessScore >= 0.85:
		return UrgencyHigh
	case det.HarmfulnessScore >= 0.70:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// QueuePriority maps the urgency tier onto the queue's priority scale.
func (u Urgency) QueuePriority() int {
	switch u {
	case UrgencyCritical:
		return queue.PriorityCritical
	case UrgencyHigh:
		return queue.PriorityHigh
	case UrgencyMedium:
		return queue.PriorityMedium
	default:
		return queue.PriorityLow
	}
}

// responseJob is the response-lane payload. The detection snapshot rides
// along so the handler matches against what was classified at enqueue time.
type responseJob struct {
	ContentID string                  `json:"content_id"`
	Detection *models.DetectionResult `json:"detection"`
}

// escalationJob is the escalation-lane payload.
type escalationJob struct {
	ContentID string          `json:"content_id"`
	Severity  models.Severity `json:"severity"`
	Reason    string          `json:"reason,omitempty"`
	Score     float64         `json:"score"`
}

// Config tunes the executor.
type Config struct {
	// AutoActionThreshold is the minimum harmfulness score for automated
	// removal. Remove actions below it are downgraded to escalation.
	AutoActionThreshold float64

	// ResponseDelay is the start delay for non-critical response jobs.
	ResponseDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.AutoActionThreshold <= 0 {
		c.AutoActionThreshold = 0.95
	}
	if c.ResponseDelay <= 0 {
		c.ResponseDelay = time.Second
	}
}

// Executor is the response pipeline stage: it enqueues triaged response jobs
// and handles both queue lanes.
type Executor struct {
	store    store.ContentStore
	engine   *rules.Engine
	queue    queue.Queue
	review   ReviewLanes
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

// NewExecutor wires the executor. All collaborators are required.
func NewExecutor(st store.ContentStore, engine *rules.Engine, q queue.Queue, review ReviewLanes, notifier Notifier, cfg Config) *Executor {
	cfg.applyDefaults()
	return &Executor{
		store:    st,
		engine:   engine,
		queue:    q,
		review:   review,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// EnqueueResponse files one response job for a classified detection. Critical
// jobs start immediately; lower tiers wait out the response delay.
func (e *Executor) EnqueueResponse(ctx context.Context, det *models.DetectionResult) (string, error) {
	urgency := UrgencyFor(det)
	opts := queue.Options{Priority: urgency.QueuePriority()}
	if urgency != UrgencyCritical {
		opts.Delay = e.cfg.ResponseDelay
	}
	id, err := e.queue.Enqueue(ctx, ResponseLane, responseJob{ContentID: det.ContentID, Detection: det}, opts)
	if err != nil {
		return "", fmt.Errorf("enqueue response for %s: %w", det.ContentID, err)
	}
	logger.Debugf("response job %s enqueued for content %s (urgency %s)", id, det.ContentID, urgency)
	return id, nil
}

// HandleResponse processes one response job: match rules, execute the
// consolidated actions in order, append one audit record.
func (e *Executor) HandleResponse(ctx context.Context, job *queue.Job) error {
	var payload responseJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode response payload: %w (%w)", err, queue.ErrPermanent)
	}

	content, err := e.store.GetContent(ctx, payload.ContentID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("content %s vanished: %w", payload.ContentID, queue.ErrPermanent)
	}
	if err != nil {
		return fmt.Errorf("load content %s: %w", payload.ContentID, err)
	}

	det := payload.Detection
	if det == nil {
		det, err = e.store.GetDetection(ctx, payload.ContentID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("detection for %s vanished: %w", payload.ContentID, queue.ErrPermanent)
		}
		if err != nil {
			return fmt.Errorf("load detection for %s: %w", payload.ContentID, err)
		}
	}

	actions := e.engine.Match(det, rules.ContentMeta{
		Platform:   content.Platform,
		Engagement: content.Engagement,
	})
	if len(actions) == 0 {
		logger.Debugf("no rule matched content %s (score %.2f)", content.ID, det.HarmfulnessScore)
		return e.store.ApplyModeration(ctx, content.ID, store.ModerationPatch{Status: "processed"})
	}

	executed := make([]models.ResponseAction, 0, len(actions))
	for _, action := range actions {
		final, err := e.apply(ctx, content, det, action)
		if err != nil {
			return fmt.Errorf("apply %s to %s: %w", action.Type, content.ID, err)
		}
		executed = append(executed, final)
		metrics.ActionsExecuted.WithLabelValues(string(final.Type)).Inc()
	}

	if err := e.store.ApplyModeration(ctx, content.ID, store.ModerationPatch{Status: "processed"}); err != nil {
		return fmt.Errorf("mark %s processed: %w", content.ID, err)
	}
	return e.store.AppendResponse(ctx, &models.ResponseRecord{
		ContentID:  content.ID,
		Actions:    executed,
		Score:      det.HarmfulnessScore,
		Categories: det.Categories,
		Timestamp:  e.now().UTC(),
	})
}

// apply executes a single action and returns the action as executed, which
// differs from the input when a removal is downgraded.
func (e *Executor) apply(ctx context.Context, content *models.Content, det *models.DetectionResult, action models.ResponseAction) (models.ResponseAction, error) {
	switch action.Type {
	case models.ActionFlag:
		return action, e.store.ApplyModeration(ctx, content.ID, store.ModerationPatch{Flagged: true, Reason: action.Reason})

	case models.ActionWarn:
		return action, e.store.ApplyModeration(ctx, content.ID, store.ModerationPatch{UserWarned: true, Reason: action.Reason})

	case models.ActionQuarantine:
		return action, e.store.ApplyModeration(ctx, content.ID, store.ModerationPatch{Quarantined: true, Reason: action.Reason})

	case models.ActionRemove:
		if det.HarmfulnessScore < e.cfg.AutoActionThreshold {
			metrics.RemoveDowngrades.Inc()
			logger.Warnf("removal of %s downgraded to escalation: score %.2f below auto-action threshold %.2f",
				content.ID, det.HarmfulnessScore, e.cfg.AutoActionThreshold)
			downgraded := action
			downgraded.Type = models.ActionEscalate
			downgraded.Reason = fmt.Sprintf("auto-removal withheld (score %.2f): %s", det.HarmfulnessScore, action.Reason)
			return downgraded, e.escalate(ctx, content.ID, downgraded, det.HarmfulnessScore)
		}
		return action, e.store.ApplyModeration(ctx, content.ID, store.ModerationPatch{Removed: true, Status: "processed", Reason: action.Reason})

	case models.ActionEscalate:
		return action, e.escalate(ctx, content.ID, action, det.HarmfulnessScore)

	case models.ActionNotify:
		return action, e.notifier.Notify(ctx, content.ID, action)

	default:
		return action, fmt.Errorf("unknown action type %q: %w", action.Type, queue.ErrPermanent)
	}
}

// escalate marks the item and files an escalation job for the review lanes.
func (e *Executor) escalate(ctx context.Context, contentID string, action models.ResponseAction, score float64) error {
	if err := e.store.ApplyModeration(ctx, contentID, store.ModerationPatch{Escalated: true, Reason: action.Reason}); err != nil {
		return err
	}
	_, err := e.queue.Enqueue(ctx, EscalationLane, escalationJob{
		ContentID: contentID,
		Severity:  action.Severity,
		Reason:    action.Reason,
		Score:     score,
	}, queue.Options{Priority: severityPriority(action.Severity)})
	return err
}

func severityPriority(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return queue.PriorityCritical
	case models.SeverityHigh:
		return queue.PriorityHigh
	case models.SeverityMedium:
		return queue.PriorityMedium
	default:
		return queue.PriorityLow
	}
}

// contentStateJob is the content-state-lane payload: one moderation patch to
// apply to one item.
type contentStateJob struct {
	ContentID string                `json:"content_id"`
	Patch     store.ModerationPatch `json:"patch"`
}

// EnqueueStatePatch files a moderation-state write on its own lane. State
// writes tolerate more retries than response execution since they only touch
// the item's markers.
func (e *Executor) EnqueueStatePatch(ctx context.Context, contentID string, patch store.ModerationPatch) (string, error) {
	id, err := e.queue.Enqueue(ctx, ContentStateLane, contentStateJob{ContentID: contentID, Patch: patch}, queue.Options{
		Priority: queue.PriorityMedium,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue state patch for %s: %w", contentID, err)
	}
	return id, nil
}

// HandleContentState applies one queued moderation patch.
func (e *Executor) HandleContentState(ctx context.Context, job *queue.Job) error {
	var payload contentStateJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode content-state payload: %w (%w)", err, queue.ErrPermanent)
	}
	err := e.store.ApplyModeration(ctx, payload.ContentID, payload.Patch)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("content %s vanished: %w", payload.ContentID, queue.ErrPermanent)
	}
	return err
}

// HandleEscalation processes one escalation job: push the item into its
// severity review lane.
func (e *Executor) HandleEscalation(ctx context.Context, job *queue.Job) error {
	var payload escalationJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode escalation payload: %w (%w)", err, queue.ErrPermanent)
	}
	if err := e.review.Push(ctx, models.ReviewEntry{
		ContentID: payload.ContentID,
		Severity:  payload.Severity,
		Reason:    payload.Reason,
		Score:     payload.Score,
		QueuedAt:  e.now().UTC(),
	}); err != nil {
		return fmt.Errorf("push review entry for %s: %w", payload.ContentID, err)
	}
	logger.Infof("content %s escalated to %s review lane", payload.ContentID, payload.Severity)
	return nil
}
