// Package queue provides the durable delayed priority queue driving response
// and escalation processing: bounded worker pools per lane, exponential
// backoff retry, and a dead set for exhausted jobs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Priority tiers. Lower number is served first.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
)

// ErrPermanent marks a handler failure that must not be retried, for example
// a content id that vanished between enqueue and processing.
var ErrPermanent = errors.New("permanent job failure")

// Job is one unit of work. Attempts counts executions already performed.
type Job struct {
	ID          string          `json:"id"`
	Lane        string          `json:"lane"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	NotBefore   time.Time       `json:"not_before,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// Options controls a single enqueue.
type Options struct {
	Priority int
	Delay    time.Duration
}

// LaneConfig configures one lane's worker pool and retry policy.
type LaneConfig struct {
	Name        string
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
}

func (c *LaneConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
}

// Handler processes one dequeued job.
type Handler func(ctx context.Context, job *Job) error

// Stats is a point-in-time view of one lane.
type Stats struct {
	Lane      string `json:"lane"`
	Ready     int64  `json:"ready"`
	Delayed   int64  `json:"delayed"`
	Dead      int64  `json:"dead"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// Queue is the scheduling contract: durable enqueue with priority and delay,
// per-lane workers with retry accounting, dead set for exhausted jobs.
type Queue interface {
	// RegisterLane must be called for every lane before Start.
	RegisterLane(cfg LaneConfig, h Handler)

	// Enqueue adds one job to a registered lane and returns its id.
	Enqueue(ctx context.Context, lane string, payload any, opts Options) (string, error)

	// Start launches the lane workers; they stop when ctx is cancelled.
	Start(ctx context.Context)

	// Stats reports one lane's depth and counters.
	Stats(ctx context.Context, lane string) (Stats, error)

	Close() error
}

func newJob(lane string, payload any, opts Options, maxAttempts int, now time.Time) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	priority := opts.Priority
	if priority < PriorityCritical || priority > PriorityLow {
		priority = PriorityMedium
	}
	job := &Job{
		ID:          uuid.NewString(),
		Lane:        lane,
		Payload:     raw,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  now,
	}
	if opts.Delay > 0 {
		job.NotBefore = now.Add(opts.Delay)
	}
	return job, nil
}

// backoffDelay doubles the base delay per prior attempt.
func backoffDelay(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}
