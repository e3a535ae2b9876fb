// Package pipeline runs the ingest loop: pop classified-content events off
// the Redis list, persist the detection, and hand flagged items to the
// response executor.
package pipeline

import (
	"context"
	"sync"
	"time"

	"trendguard/internal/logger"
	"trendguard/internal/metrics"
	"trendguard/internal/respond"
	"trendguard/internal/store"
	"trendguard/pkg/models"
)

// Source yields raw ingest payloads. The Redis list consumer implements it.
type Source interface {
	// Pop blocks for one payload; nil payload with nil error means timeout.
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}

// Pipeline consumes classified events and feeds the response lane.
type Pipeline struct {
	source   Source
	store    store.ContentStore
	executor *respond.Executor
	workers  int
}

// New creates an ingest pipeline.
func New(source Source, st store.ContentStore, executor *respond.Executor, workers int) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		source:   source,
		store:    st,
		executor: executor,
		workers:  workers,
	}
}

// Run starts the ingest loop and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	logger.Infof("ingest pipeline started with %d workers", p.workers)

	msgCh := make(chan []byte, p.workers*4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx, msgCh)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close releases the ingest source.
func (p *Pipeline) Close() error {
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

func (p *Pipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := p.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("pop ingest payload: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if payload == nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) workerLoop(ctx context.Context, in <-chan []byte) {
	for payload := range in {
		if err := p.handle(ctx, payload); err != nil {
			logger.Warnf("ingest payload dropped: %v", err)
		}
	}
}

// handle processes one ingest payload end to end.
func (p *Pipeline) handle(ctx context.Context, payload []byte) error {
	event, err := models.ParseClassifiedEvent(payload)
	if err != nil {
		metrics.EventsConsumed.WithLabelValues("invalid").Inc()
		return err
	}

	if err := p.store.PutDetection(ctx, &event.Detection); err != nil {
		metrics.EventsConsumed.WithLabelValues("store_error").Inc()
		return err
	}

	if !event.Detection.Flagged {
		metrics.EventsConsumed.WithLabelValues("ok").Inc()
		logger.Debugf("content %s clean (score %.2f), detection stored", event.ContentID, event.Detection.HarmfulnessScore)
		return nil
	}

	// The flagged marker lands via its own lane so a slow response job never
	// hides the item from the aggregation window.
	if _, err := p.executor.EnqueueStatePatch(ctx, event.ContentID, store.ModerationPatch{
		Flagged: true,
		Status:  "pending",
	}); err != nil {
		metrics.EventsConsumed.WithLabelValues("enqueue_error").Inc()
		return err
	}

	if _, err := p.executor.EnqueueResponse(ctx, &event.Detection); err != nil {
		metrics.EventsConsumed.WithLabelValues("enqueue_error").Inc()
		return err
	}
	metrics.EventsConsumed.WithLabelValues("ok").Inc()
	return nil
}
