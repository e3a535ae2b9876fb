package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"trendguard/internal/logger"
	"trendguard/internal/metrics"
)

// RedisQueue is the durable Queue. Layout per lane:
//
//	<prefix>:<lane>:delayed     zset scored by ready-time (unix ms)
//	<prefix>:<lane>:ready:p<N>  list per priority, BRPOP'd in priority order
//	<prefix>:<lane>:dead        list of exhausted jobs
//
// A promoter goroutine per lane moves due delayed jobs onto their ready list;
// ZRem arbitrates when several promoters race for the same member.
type RedisQueue struct {
	client       *redis.Client
	prefix       string
	pollInterval time.Duration
	lanes        map[string]*redisLane
	mu           sync.Mutex
	wg           sync.WaitGroup
}

type redisLane struct {
	cfg       LaneConfig
	handler   Handler
	processed atomic.Uint64
	failed    atomic.Uint64
}

// RedisConfig configures the queue connection and polling.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	PollInterval time.Duration
}

// NewRedisQueue connects and pings the queue Redis.
func NewRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "trendguard:queue"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping queue redis: %w", err)
	}

	return &RedisQueue{
		client:       client,
		prefix:       cfg.KeyPrefix,
		pollInterval: cfg.PollInterval,
		lanes:        make(map[string]*redisLane),
	}, nil
}

// RegisterLane adds a lane; must precede Start.
func (q *RedisQueue) RegisterLane(cfg LaneConfig, h Handler) {
	cfg.applyDefaults()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[cfg.Name] = &redisLane{cfg: cfg, handler: h}
}

// Enqueue adds one job to a registered lane.
func (q *RedisQueue) Enqueue(ctx context.Context, lane string, payload any, opts Options) (string, error) {
	q.mu.Lock()
	l, ok := q.lanes[lane]
	q.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown lane %q", lane)
	}

	job, err := newJob(lane, payload, opts, l.cfg.MaxAttempts, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("encode job payload: %w", err)
	}
	if err := q.file(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// file writes a job to its delayed zset or ready list.
func (q *RedisQueue) file(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if !job.NotBefore.IsZero() && job.NotBefore.After(time.Now()) {
		err = q.client.ZAdd(ctx, q.delayedKey(job.Lane), redis.Z{
			Score:  float64(job.NotBefore.UnixMilli()),
			Member: raw,
		}).Err()
	} else {
		err = q.client.LPush(ctx, q.readyKey(job.Lane, job.Priority), raw).Err()
	}
	if err != nil {
		return fmt.Errorf("file job %s: %w", job.ID, err)
	}
	return nil
}

// Start launches promoter and worker goroutines for every registered lane.
func (q *RedisQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, l := range q.lanes {
		q.wg.Add(1)
		go q.promoteLoop(ctx, l)
		for i := 0; i < l.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.workerLoop(ctx, l)
		}
	}
}

// promoteLoop moves due delayed jobs onto their priority ready list.
func (q *RedisQueue) promoteLoop(ctx context.Context, l *redisLane) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.promoteDue(ctx, l); err != nil && ctx.Err() == nil {
				logger.Errorf("promote lane %s: %v", l.cfg.Name, err)
			}
		}
	}
}

func (q *RedisQueue) promoteDue(ctx context.Context, l *redisLane) error {
	now := time.Now().UnixMilli()
	members, err := q.client.ZRangeByScore(ctx, q.delayedKey(l.cfg.Name), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: 128,
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.delayedKey(l.cfg.Name), member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another promoter won the race
		}
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			logger.Warnf("dropping undecodable delayed job on lane %s: %v", l.cfg.Name, err)
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey(l.cfg.Name, job.Priority), member).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) workerLoop(ctx context.Context, l *redisLane) {
	defer q.wg.Done()
	keys := q.readyKeys(l.cfg.Name)
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := q.client.BRPop(ctx, q.pollInterval, keys...).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Errorf("pop lane %s: %v", l.cfg.Name, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			logger.Warnf("dropping undecodable job on lane %s: %v", l.cfg.Name, err)
			continue
		}
		q.execute(ctx, l, &job)
	}
}

func (q *RedisQueue) execute(ctx context.Context, l *redisLane, job *Job) {
	job.Attempts++
	err := l.handler(ctx, job)
	if err == nil {
		l.processed.Add(1)
		metrics.JobsProcessed.WithLabelValues(l.cfg.Name, "ok").Inc()
		return
	}

	job.LastError = err.Error()
	if errors.Is(err, ErrPermanent) || job.Attempts >= job.MaxAttempts {
		raw, merr := json.Marshal(job)
		if merr == nil {
			if perr := q.client.LPush(ctx, q.deadKey(l.cfg.Name), raw).Err(); perr != nil {
				logger.Errorf("park dead job %s: %v", job.ID, perr)
			}
		}
		l.failed.Add(1)
		metrics.JobsProcessed.WithLabelValues(l.cfg.Name, "dead").Inc()
		logger.Errorf("job %s dead on lane %s after %d attempts: %v", job.ID, l.cfg.Name, job.Attempts, err)
		return
	}

	job.NotBefore = time.Now().Add(backoffDelay(l.cfg.BackoffBase, job.Attempts))
	if rerr := q.file(ctx, job); rerr != nil {
		logger.Errorf("requeue job %s: %v", job.ID, rerr)
	}
	metrics.JobsProcessed.WithLabelValues(l.cfg.Name, "retried").Inc()
	logger.Warnf("job %s retry %d/%d on lane %s: %v", job.ID, job.Attempts, job.MaxAttempts, l.cfg.Name, err)
}

// Stats reports one lane's depth and counters, and refreshes the depth gauges.
func (q *RedisQueue) Stats(ctx context.Context, lane string) (Stats, error) {
	q.mu.Lock()
	l, ok := q.lanes[lane]
	q.mu.Unlock()
	if !ok {
		return Stats{}, fmt.Errorf("unknown lane %q", lane)
	}

	var ready int64
	for p := PriorityCritical; p <= PriorityLow; p++ {
		n, err := q.client.LLen(ctx, q.readyKey(lane, p)).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("lane %s ready depth: %w", lane, err)
		}
		ready += n
	}
	delayed, err := q.client.ZCard(ctx, q.delayedKey(lane)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("lane %s delayed depth: %w", lane, err)
	}
	dead, err := q.client.LLen(ctx, q.deadKey(lane)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("lane %s dead depth: %w", lane, err)
	}

	metrics.QueueDepth.WithLabelValues(lane, "ready").Set(float64(ready))
	metrics.QueueDepth.WithLabelValues(lane, "delayed").Set(float64(delayed))
	metrics.QueueDepth.WithLabelValues(lane, "dead").Set(float64(dead))

	return Stats{
		Lane:      lane,
		Ready:     ready,
		Delayed:   delayed,
		Dead:      dead,
		Processed: l.processed.Load(),
		Failed:    l.failed.Load(),
	}, nil
}

// Close waits for workers and releases the client.
func (q *RedisQueue) Close() error {
	q.wg.Wait()
	return q.client.Close()
}

func (q *RedisQueue) delayedKey(lane string) string {
	return fmt.Sprintf("%s:%s:delayed", q.prefix, lane)
}

func (q *RedisQueue) readyKey(lane string, priority int) string {
	return fmt.Sprintf("%s:%s:ready:p%d", q.prefix, lane, priority)
}

func (q *RedisQueue) readyKeys(lane string) []string {
	keys := make([]string, 0, PriorityLow)
	for p := PriorityCritical; p <= PriorityLow; p++ {
		keys = append(keys, q.readyKey(lane, p))
	}
	return keys
}

func (q *RedisQueue) deadKey(lane string) string {
	return fmt.Sprintf("%s:%s:dead", q.prefix, lane)
}
