package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"trendguard/internal/queue"
	"trendguard/internal/respond"
	"trendguard/internal/rules"
	"trendguard/internal/store"
	"trendguard/pkg/models"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.MemStore, *queue.MemQueue) {
	t.Helper()
	st := store.NewMemStore()
	q := queue.NewMemQueue()
	q.RegisterLane(queue.LaneConfig{Name: respond.ResponseLane}, func(context.Context, *queue.Job) error { return nil })
	q.RegisterLane(queue.LaneConfig{Name: respond.EscalationLane}, func(context.Context, *queue.Job) error { return nil })
	q.RegisterLane(queue.LaneConfig{Name: respond.ContentStateLane}, func(context.Context, *queue.Job) error { return nil })
	exec := respond.NewExecutor(st, rules.NewEngine(nil), q, respond.NewMemReviewLanes(), respond.NewLogNotifier(100), respond.Config{})
	return New(nil, st, exec, 2), st, q
}

func eventPayload(t *testing.T, evt models.ClassifiedEvent) []byte {
	t.Helper()
	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func TestHandleFlaggedEventStoresAndEnqueues(t *testing.T) {
	ctx := context.Background()
	p, st, q := newTestPipeline(t)

	payload := eventPayload(t, models.ClassifiedEvent{
		ContentID: "c1",
		Platform:  "tiktok",
		Detection: models.DetectionResult{
			ContentID:        "c1",
			HarmfulnessScore: 0.97,
			Categories:       []string{models.CategorySelfHarm},
			Confidence:       0.9,
			Flagged:          true,
		},
	})
	if err := p.handle(ctx, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}

	det, err := st.GetDetection(ctx, "c1")
	if err != nil {
		t.Fatalf("GetDetection: %v", err)
	}
	if det.HarmfulnessScore != 0.97 {
		t.Fatalf("stored score %f, want 0.97", det.HarmfulnessScore)
	}

	stats, err := q.Stats(ctx, respond.ResponseLane)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 1 {
		t.Fatalf("critical detection must be ready immediately, got ready=%d delayed=%d", stats.Ready, stats.Delayed)
	}

	state, err := q.Stats(ctx, respond.ContentStateLane)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if state.Ready != 1 {
		t.Fatalf("flagged event must queue one state patch, got ready=%d", state.Ready)
	}
}

func TestHandleCleanEventStoredWithoutJob(t *testing.T) {
	ctx := context.Background()
	p, st, q := newTestPipeline(t)

	payload := eventPayload(t, models.ClassifiedEvent{
		ContentID: "c2",
		Detection: models.DetectionResult{
			ContentID:        "c2",
			HarmfulnessScore: 0.10,
			Confidence:       0.9,
			Flagged:          false,
		},
	})
	if err := p.handle(ctx, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, err := st.GetDetection(ctx, "c2"); err != nil {
		t.Fatalf("clean detection must still be stored: %v", err)
	}

	stats, err := q.Stats(ctx, respond.ResponseLane)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready+stats.Delayed != 0 {
		t.Fatal("clean content must not produce a response job")
	}
}

func TestHandleRejectsInvalidPayloads(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPipeline(t)

	cases := map[string][]byte{
		"not json":          []byte("{"),
		"missing id":        eventPayload(t, models.ClassifiedEvent{Detection: models.DetectionResult{HarmfulnessScore: 0.5}}),
		"score out of range": []byte(`{"content_id":"x","detection":{"content_id":"x","harmfulness_score":1.5}}`),
		"unknown category": eventPayload(t, models.ClassifiedEvent{
			ContentID: "c3",
			Detection: models.DetectionResult{ContentID: "c3", HarmfulnessScore: 0.9, Flagged: true, Categories: []string{"gossip"}},
		}),
	}
	for name, payload := range cases {
		if err := p.handle(ctx, payload); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

type fakeSource struct {
	payloads [][]byte
}

func (f *fakeSource) Pop(ctx context.Context) ([]byte, error) {
	if len(f.payloads) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := f.payloads[0]
	f.payloads = f.payloads[1:]
	return next, nil
}

func (f *fakeSource) Close() error { return nil }

func TestRunDrainsSource(t *testing.T) {
	st := store.NewMemStore()
	q := queue.NewMemQueue()
	q.RegisterLane(queue.LaneConfig{Name: respond.ResponseLane}, func(context.Context, *queue.Job) error { return nil })
	q.RegisterLane(queue.LaneConfig{Name: respond.EscalationLane}, func(context.Context, *queue.Job) error { return nil })
	q.RegisterLane(queue.LaneConfig{Name: respond.ContentStateLane}, func(context.Context, *queue.Job) error { return nil })
	exec := respond.NewExecutor(st, rules.NewEngine(nil), q, respond.NewMemReviewLanes(), respond.NewLogNotifier(100), respond.Config{})

	src := &fakeSource{payloads: [][]byte{
		eventPayload(t, models.ClassifiedEvent{
			ContentID: "r1",
			Detection: models.DetectionResult{ContentID: "r1", HarmfulnessScore: 0.2, Confidence: 0.8},
		}),
		eventPayload(t, models.ClassifiedEvent{
			ContentID: "r2",
			Detection: models.DetectionResult{ContentID: "r2", HarmfulnessScore: 0.3, Confidence: 0.8},
		}),
	}}
	p := New(src, st, exec, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, err1 := st.GetDetection(context.Background(), "r1"); err1 == nil {
			if _, err2 := st.GetDetection(context.Background(), "r2"); err2 == nil {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatal("pipeline did not drain the source in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop on cancellation")
	}
}
