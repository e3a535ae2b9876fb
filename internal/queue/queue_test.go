package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	ids  []string
	errs map[string]error
}

func newRecorder() *recorder {
	return &recorder{errs: make(map[string]error)}
}

func (r *recorder) handle(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, job.ID)
	return r.errs[job.ID]
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

func (r *recorder) count(id string) int {
	n := 0
	for _, got := range r.seen() {
		if got == id {
			n++
		}
	}
	return n
}

func startLane(t *testing.T, cfg LaneConfig, h Handler) (*MemQueue, context.CancelFunc) {
	t.Helper()
	q := NewMemQueue()
	q.RegisterLane(cfg, h)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	t.Cleanup(func() {
		cancel()
		q.Close()
	})
	return q, cancel
}

func TestMemQueueServesHigherPriorityFirst(t *testing.T) {
	rec := newRecorder()
	q := NewMemQueue()
	q.RegisterLane(LaneConfig{Name: "response", Workers: 1}, rec.handle)

	ctx := context.Background()
	lowID, err := q.Enqueue(ctx, "response", map[string]string{"k": "low"}, Options{Priority: PriorityLow})
	require.NoError(t, err)
	critID, err := q.Enqueue(ctx, "response", map[string]string{"k": "crit"}, Options{Priority: PriorityCritical})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	q.Start(runCtx)
	defer func() {
		cancel()
		q.Close()
	}()

	require.Eventually(t, func() bool {
		return len(rec.seen()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{critID, lowID}, rec.seen(), "critical served before low despite enqueue order")
}

func TestMemQueueHonorsDelay(t *testing.T) {
	rec := newRecorder()
	q, _ := startLane(t, LaneConfig{Name: "response", Workers: 1}, rec.handle)

	ctx := context.Background()
	id, err := q.Enqueue(ctx, "response", "payload", Options{Priority: PriorityHigh, Delay: 150 * time.Millisecond})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.seen(), "delayed job must not run before its ready time")

	stats, err := q.Stats(ctx, "response")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)

	require.Eventually(t, func() bool {
		return rec.count(id) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemQueueRetriesThenParksDead(t *testing.T) {
	rec := newRecorder()
	q := NewMemQueue()
	q.RegisterLane(LaneConfig{
		Name:        "response",
		Workers:     1,
		MaxAttempts: 3,
		BackoffBase: 10 * time.Millisecond,
	}, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		q.Close()
	}()

	id, err := q.Enqueue(ctx, "response", "payload", Options{Priority: PriorityHigh})
	require.NoError(t, err)
	rec.mu.Lock()
	rec.errs[id] = errors.New("downstream unavailable")
	rec.mu.Unlock()

	q.Start(ctx)

	require.Eventually(t, func() bool {
		return len(q.Dead("response")) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Allow any stray retry to surface before asserting the attempt count.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, rec.count(id), "exactly MaxAttempts executions, no 4th retry")

	dead := q.Dead("response")
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0].ID)
	assert.Equal(t, 3, dead[0].Attempts)
	assert.Contains(t, dead[0].LastError, "downstream unavailable")

	stats, err := q.Stats(ctx, "response")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, uint64(1), stats.Failed)
}

func TestMemQueuePermanentErrorSkipsRetry(t *testing.T) {
	rec := newRecorder()
	q := NewMemQueue()
	q.RegisterLane(LaneConfig{Name: "response", Workers: 1, MaxAttempts: 5}, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		q.Close()
	}()

	id, err := q.Enqueue(ctx, "response", "payload", Options{Priority: PriorityMedium})
	require.NoError(t, err)
	rec.mu.Lock()
	rec.errs[id] = ErrPermanent
	rec.mu.Unlock()

	q.Start(ctx)

	require.Eventually(t, func() bool {
		return len(q.Dead("response")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, rec.count(id), "permanent failures dead-letter on first attempt")
}

func TestMemQueueRejectsUnknownLane(t *testing.T) {
	q := NewMemQueue()
	_, err := q.Enqueue(context.Background(), "nope", "payload", Options{})
	assert.Error(t, err)
}

func TestNewJobClampsPriority(t *testing.T) {
	job, err := newJob("response", "p", Options{Priority: 99}, 3, time.Now())
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, job.Priority)

	job, err = newJob("response", "p", Options{Priority: 0}, 3, time.Now())
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, job.Priority)
}

func TestBackoffDelayDoubles(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Second, backoffDelay(base, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(base, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(base, 3))
}
