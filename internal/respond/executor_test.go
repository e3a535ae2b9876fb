package respond

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendguard/internal/queue"
	"trendguard/internal/rules"
	"trendguard/internal/store"
	"trendguard/pkg/models"
)

type capturedJob struct {
	Lane    string
	Payload any
	Opts    queue.Options
}

// captureQueue records enqueues without running workers so handler tests can
// drive jobs synchronously.
type captureQueue struct {
	mu   sync.Mutex
	jobs []capturedJob
}

func (q *captureQueue) RegisterLane(queue.LaneConfig, queue.Handler) {}

func (q *captureQueue) Enqueue(_ context.Context, lane string, payload any, opts queue.Options) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, capturedJob{Lane: lane, Payload: payload, Opts: opts})
	return "job-1", nil
}

func (q *captureQueue) Start(context.Context) {}

func (q *captureQueue) Stats(context.Context, string) (queue.Stats, error) {
	return queue.Stats{}, nil
}

func (q *captureQueue) Close() error { return nil }

func (q *captureQueue) onLane(lane string) []capturedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []capturedJob
	for _, j := range q.jobs {
		if j.Lane == lane {
			out = append(out, j)
		}
	}
	return out
}

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool       { return &v }

func newTestExecutor(t *testing.T, ruleSet []rules.Rule) (*Executor, *store.MemStore, *captureQueue, *MemReviewLanes) {
	t.Helper()
	st := store.NewMemStore()
	q := &captureQueue{}
	review := NewMemReviewLanes()
	exec := NewExecutor(st, rules.NewEngine(ruleSet), q, review, NewLogNotifier(1000), Config{})
	return exec, st, q, review
}

func seedContent(st *store.MemStore, id, platform string, eng models.Engagement) {
	st.AddContent(&models.Content{
		ID:          id,
		Platform:    platform,
		PlatformID:  "p-" + id,
		Type:        "video",
		Engagement:  eng,
		PublishedAt: time.Now().Add(-time.Hour),
	})
}

func responseJobFor(t *testing.T, det *models.DetectionResult) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(responseJob{ContentID: det.ContentID, Detection: det})
	require.NoError(t, err)
	return &queue.Job{ID: "j1", Lane: ResponseLane, Payload: raw, MaxAttempts: 3}
}

func TestUrgencyForTiers(t *testing.T) {
	cases := []struct {
		name string
		det  models.DetectionResult
		want Urgency
	}{
		{"score at auto threshold", models.DetectionResult{HarmfulnessScore: 0.97}, UrgencyCritical},
		{"low score but self harm", models.DetectionResult{HarmfulnessScore: 0.50, Categories: []string{models.CategorySelfHarm}}, UrgencyCritical},
		{"dangerous challenge", models.DetectionResult{HarmfulnessScore: 0.60, Categories: []string{models.CategoryDangerousChallenge}}, UrgencyCritical},
		{"high band", models.DetectionResult{HarmfulnessScore: 0.88, Categories: []string{models.CategorySpam}}, UrgencyHigh},
		{"medium band", models.DetectionResult{HarmfulnessScore: 0.72, Categories: []string{models.CategorySpam}}, UrgencyMedium},
		{"low band", models.DetectionResult{HarmfulnessScore: 0.30}, UrgencyLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, UrgencyFor(&tc.det))
		})
	}
}

func TestEnqueueResponsePriorityAndDelay(t *testing.T) {
	exec, _, q, _ := newTestExecutor(t, nil)
	ctx := context.Background()

	_, err := exec.EnqueueResponse(ctx, &models.DetectionResult{
		ContentID: "crit", HarmfulnessScore: 0.97, Flagged: true, Categories: []string{models.CategorySelfHarm},
	})
	require.NoError(t, err)
	_, err = exec.EnqueueResponse(ctx, &models.DetectionResult{
		ContentID: "med", HarmfulnessScore: 0.72, Flagged: true, Categories: []string{models.CategorySpam},
	})
	require.NoError(t, err)

	jobs := q.onLane(ResponseLane)
	require.Len(t, jobs, 2)
	assert.Equal(t, queue.PriorityCritical, jobs[0].Opts.Priority)
	assert.Zero(t, jobs[0].Opts.Delay, "critical responses start immediately")
	assert.Equal(t, queue.PriorityMedium, jobs[1].Opts.Priority)
	assert.Equal(t, time.Second, jobs[1].Opts.Delay)
}

func TestHandleResponseCriticalSelfHarmRemoved(t *testing.T) {
	exec, st, _, _ := newTestExecutor(t, []rules.Rule{{
		ID: "critical-self-harm", Enabled: true, Priority: 100,
		Conditions: rules.Conditions{MinScore: fp(0.95), Categories: []string{models.CategorySelfHarm}},
		Actions: []models.ResponseAction{
			{Type: models.ActionRemove, Severity: models.SeverityCritical, Reason: "critical self-harm"},
			{Type: models.ActionNotify, Severity: models.SeverityCritical},
		},
	}})
	seedContent(st, "c1", "tiktok", models.Engagement{Likes: 10})
	det := &models.DetectionResult{
		ContentID: "c1", HarmfulnessScore: 0.97, Confidence: 0.9,
		Categories: []string{models.CategorySelfHarm}, Flagged: true,
	}

	require.NoError(t, exec.HandleResponse(context.Background(), responseJobFor(t, det)))

	content, err := st.GetContent(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, content.Moderation.Removed)
	assert.Equal(t, "processed", content.Moderation.Status)

	recs := st.Responses()
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Actions, 2)
	assert.Equal(t, models.ActionRemove, recs[0].Actions[0].Type)
	assert.InDelta(t, 0.97, recs[0].Score, 1e-9)
}

func TestHandleResponseRemoveDowngradedBelowThreshold(t *testing.T) {
	exec, st, q, _ := newTestExecutor(t, []rules.Rule{{
		ID: "remove-harassment", Enabled: true, Priority: 50,
		Conditions: rules.Conditions{MinScore: fp(0.75), Categories: []string{models.CategoryHarassment}},
		Actions: []models.ResponseAction{
			{Type: models.ActionRemove, Severity: models.SeverityHigh, Reason: "sustained harassment"},
		},
	}})
	seedContent(st, "c2", "twitter", models.Engagement{})
	det := &models.DetectionResult{
		ContentID: "c2", HarmfulnessScore: 0.80, Confidence: 0.9,
		Categories: []string{models.CategoryHarassment}, Flagged: true,
	}

	require.NoError(t, exec.HandleResponse(context.Background(), responseJobFor(t, det)))

	content, err := st.GetContent(context.Background(), "c2")
	require.NoError(t, err)
	assert.False(t, content.Moderation.Removed, "below-threshold removal must not delete content")
	assert.True(t, content.Moderation.Escalated)

	escalations := q.onLane(EscalationLane)
	require.Len(t, escalations, 1)
	assert.Equal(t, queue.PriorityHigh, escalations[0].Opts.Priority)

	recs := st.Responses()
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Actions, 1)
	assert.Equal(t, models.ActionEscalate, recs[0].Actions[0].Type)
	assert.Contains(t, recs[0].Actions[0].Reason, "auto-removal withheld")
}

func TestHandleResponseViralViolenceQuarantinedNotRemoved(t *testing.T) {
	exec, st, q, _ := newTestExecutor(t, []rules.Rule{{
		ID: "viral-violence", Enabled: true, Priority: 60,
		Conditions: rules.Conditions{
			MinScore: fp(0.75), Categories: []string{models.CategoryViolence}, ViralIndicators: bp(true),
		},
		Actions: []models.ResponseAction{
			{Type: models.ActionQuarantine, Severity: models.SeverityHigh, Reason: "viral violent content"},
			{Type: models.ActionEscalate, Severity: models.SeverityHigh, Reason: "viral violent content"},
		},
	}})
	seedContent(st, "c3", "tiktok", models.Engagement{Shares: 150})
	det := &models.DetectionResult{
		ContentID: "c3", HarmfulnessScore: 0.80, Confidence: 0.9,
		Categories: []string{models.CategoryViolence}, Flagged: true,
	}

	require.NoError(t, exec.HandleResponse(context.Background(), responseJobFor(t, det)))

	content, err := st.GetContent(context.Background(), "c3")
	require.NoError(t, err)
	assert.True(t, content.Moderation.Quarantined)
	assert.True(t, content.Moderation.Escalated)
	assert.False(t, content.Moderation.Removed)
	require.Len(t, q.onLane(EscalationLane), 1)
}

func TestHandleResponseMissingContentIsPermanent(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t, nil)
	det := &models.DetectionResult{ContentID: "ghost", HarmfulnessScore: 0.9, Flagged: true, Categories: []string{models.CategorySpam}}

	err := exec.HandleResponse(context.Background(), responseJobFor(t, det))
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrPermanent)
}

func TestHandleResponseReprocessingIsIdempotentOnState(t *testing.T) {
	exec, st, _, _ := newTestExecutor(t, []rules.Rule{{
		ID: "flag-spam", Enabled: true, Priority: 10,
		Conditions: rules.Conditions{MinScore: fp(0.70), Categories: []string{models.CategorySpam}},
		Actions: []models.ResponseAction{
			{Type: models.ActionFlag, Severity: models.SeverityLow, Reason: "spam"},
			{Type: models.ActionWarn, Severity: models.SeverityLow, Reason: "spam"},
		},
	}})
	seedContent(st, "c4", "instagram", models.Engagement{})
	det := &models.DetectionResult{
		ContentID: "c4", HarmfulnessScore: 0.75, Confidence: 0.8,
		Categories: []string{models.CategorySpam}, Flagged: true,
	}

	job := responseJobFor(t, det)
	require.NoError(t, exec.HandleResponse(context.Background(), job))
	require.NoError(t, exec.HandleResponse(context.Background(), job))

	content, err := st.GetContent(context.Background(), "c4")
	require.NoError(t, err)
	assert.True(t, content.Moderation.Flagged)
	assert.True(t, content.Moderation.UserWarned)
	assert.False(t, content.Moderation.Removed)
	assert.Len(t, st.Responses(), 2, "audit log stays append-only across retries")
}

func TestHandleContentStateAppliesPatch(t *testing.T) {
	exec, st, q, _ := newTestExecutor(t, nil)
	seedContent(st, "c6", "tiktok", models.Engagement{})

	_, err := exec.EnqueueStatePatch(context.Background(), "c6", store.ModerationPatch{Flagged: true, Status: "pending"})
	require.NoError(t, err)
	jobs := q.onLane(ContentStateLane)
	require.Len(t, jobs, 1)

	raw, err := json.Marshal(jobs[0].Payload)
	require.NoError(t, err)
	job := &queue.Job{ID: "s1", Lane: ContentStateLane, Payload: raw, MaxAttempts: 5}
	require.NoError(t, exec.HandleContentState(context.Background(), job))

	content, err := st.GetContent(context.Background(), "c6")
	require.NoError(t, err)
	assert.True(t, content.Moderation.Flagged)
	assert.Equal(t, "pending", content.Moderation.Status)

	raw, err = json.Marshal(contentStateJob{ContentID: "ghost", Patch: store.ModerationPatch{Flagged: true}})
	require.NoError(t, err)
	err = exec.HandleContentState(context.Background(), &queue.Job{ID: "s2", Lane: ContentStateLane, Payload: raw})
	assert.ErrorIs(t, err, queue.ErrPermanent)
}

func TestHandleEscalationPushesSeverityLane(t *testing.T) {
	exec, _, _, review := newTestExecutor(t, nil)

	raw, err := json.Marshal(escalationJob{
		ContentID: "c5", Severity: models.SeverityCritical, Reason: "needs human eyes", Score: 0.9,
	})
	require.NoError(t, err)

	job := &queue.Job{ID: "e1", Lane: EscalationLane, Payload: raw, MaxAttempts: 2}
	require.NoError(t, exec.HandleEscalation(context.Background(), job))

	entries, err := review.Pending(context.Background(), models.SeverityCritical)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c5", entries[0].ContentID)
	assert.Equal(t, "needs human eyes", entries[0].Reason)

	other, err := review.Pending(context.Background(), models.SeverityLow)
	require.NoError(t, err)
	assert.Empty(t, other)
}
