package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"trendguard/internal/logger"
	"trendguard/internal/metrics"
)

// MemQueue is an in-process Queue with the same retry semantics as the Redis
// implementation. Used by tests and single-node dev runs.
type MemQueue struct {
	mu    sync.Mutex
	lanes map[string]*memLane
	poll  time.Duration
	now   func() time.Time
	wg    sync.WaitGroup
}

type memLane struct {
	cfg       LaneConfig
	handler   Handler
	ready     []*Job // kept sorted by priority, then enqueue time
	delayed   []*Job
	dead      []*Job
	processed uint64
	failed    uint64
}

// NewMemQueue creates an empty in-memory queue.
func NewMemQueue() *MemQueue {
	return &MemQueue{
		lanes: make(map[string]*memLane),
		poll:  10 * time.Millisecond,
		now:   time.Now,
	}
}

// RegisterLane adds a lane; must precede Start.
func (q *MemQueue) RegisterLane(cfg LaneConfig, h Handler) {
	cfg.applyDefaults()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[cfg.Name] = &memLane{cfg: cfg, handler: h}
}

// Enqueue adds one job to a registered lane.
func (q *MemQueue) Enqueue(ctx context.Context, lane string, payload any, opts Options) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[lane]
	if !ok {
		return "", fmt.Errorf("unknown lane %q", lane)
	}
	job, err := newJob(lane, payload, opts, l.cfg.MaxAttempts, q.now().UTC())
	if err != nil {
		return "", err
	}
	q.push(l, job)
	return job.ID, nil
}

// push files a job as ready or delayed. Caller holds q.mu.
func (q *MemQueue) push(l *memLane, job *Job) {
	if !job.NotBefore.IsZero() && job.NotBefore.After(q.now()) {
		l.delayed = append(l.delayed, job)
		return
	}
	l.ready = append(l.ready, job)
	sort.SliceStable(l.ready, func(i, j int) bool {
		if l.ready[i].Priority != l.ready[j].Priority {
			return l.ready[i].Priority < l.ready[j].Priority
		}
		return l.ready[i].EnqueuedAt.Before(l.ready[j].EnqueuedAt)
	})
}

// Start launches the lane workers.
func (q *MemQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, l := range q.lanes {
		for i := 0; i < l.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.workerLoop(ctx, l)
		}
	}
}

func (q *MemQueue) workerLoop(ctx context.Context, l *memLane) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := q.pop(l)
			if job == nil {
				continue
			}
			q.execute(ctx, l, job)
		}
	}
}

// pop promotes due delayed jobs, then takes the highest-priority ready job.
func (q *MemQueue) pop(l *memLane) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()

	remaining := l.delayed[:0]
	for _, job := range l.delayed {
		if job.NotBefore.After(now) {
			remaining = append(remaining, job)
			continue
		}
		job.NotBefore = time.Time{}
		q.push(l, job)
	}
	l.delayed = remaining

	if len(l.ready) == 0 {
		return nil
	}
	job := l.ready[0]
	l.ready = l.ready[1:]
	return job
}

func (q *MemQueue) execute(ctx context.Context, l *memLane, job *Job) {
	job.Attempts++
	err := l.handler(ctx, job)
	if err == nil {
		q.mu.Lock()
		l.processed++
		q.mu.Unlock()
		metrics.JobsProcessed.WithLabelValues(l.cfg.Name, "ok").Inc()
		return
	}
	q.fail(l, job, err)
}

func (q *MemQueue) fail(l *memLane, job *Job, err error) {
	job.LastError = err.Error()

	q.mu.Lock()
	defer q.mu.Unlock()
	if errors.Is(err, ErrPermanent) || job.Attempts >= job.MaxAttempts {
		l.dead = append(l.dead, job)
		l.failed++
		metrics.JobsProcessed.WithLabelValues(l.cfg.Name, "dead").Inc()
		logger.Errorf("job %s dead on lane %s after %d attempts: %v", job.ID, l.cfg.Name, job.Attempts, err)
		return
	}
	job.NotBefore = q.now().Add(backoffDelay(l.cfg.BackoffBase, job.Attempts))
	l.delayed = append(l.delayed, job)
	metrics.JobsProcessed.WithLabelValues(l.cfg.Name, "retried").Inc()
	logger.Warnf("job %s retry %d/%d on lane %s: %v", job.ID, job.Attempts, job.MaxAttempts, l.cfg.Name, err)
}

// Stats reports one lane's depth and counters.
func (q *MemQueue) Stats(ctx context.Context, lane string) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[lane]
	if !ok {
		return Stats{}, fmt.Errorf("unknown lane %q", lane)
	}
	return Stats{
		Lane:      lane,
		Ready:     int64(len(l.ready)),
		Delayed:   int64(len(l.delayed)),
		Dead:      int64(len(l.dead)),
		Processed: l.processed,
		Failed:    l.failed,
	}, nil
}

// Dead returns copies of the lane's dead jobs, oldest first.
func (q *MemQueue) Dead(lane string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[lane]
	if !ok {
		return nil
	}
	out := make([]Job, 0, len(l.dead))
	for _, j := range l.dead {
		out = append(out, *j)
	}
	return out
}

// Close waits for workers launched by Start to observe cancellation.
func (q *MemQueue) Close() error {
	q.wg.Wait()
	return nil
}
