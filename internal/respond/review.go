package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"trendguard/pkg/models"
)

// ReviewLanes holds the severity-keyed human review queues that escalations
// land in. Entries are append-only; human tooling drains them out of band.
type ReviewLanes interface {
	// Push appends one entry to its severity lane.
	Push(ctx context.Context, entry models.ReviewEntry) error

	// Pending returns a lane's entries, oldest first.
	Pending(ctx context.Context, severity models.Severity) ([]models.ReviewEntry, error)

	Close() error
}

// ReviewRedisConfig configures Redis access for the review lanes.
type ReviewRedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisReviewLanes keeps one Redis list per severity.
type RedisReviewLanes struct {
	client *redis.Client
	prefix string
}

// NewRedisReviewLanes constructs Redis-backed review lanes.
func NewRedisReviewLanes(cfg ReviewRedisConfig) (*RedisReviewLanes, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "trendguard:review"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis review lanes: %w", err)
	}

	return &RedisReviewLanes{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

func (r *RedisReviewLanes) laneKey(severity models.Severity) string {
	return r.prefix + ":" + string(severity)
}

// Push appends one entry to its severity lane.
func (r *RedisReviewLanes) Push(ctx context.Context, entry models.ReviewEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode review entry for %s: %w", entry.ContentID, err)
	}
	if err := r.client.RPush(ctx, r.laneKey(entry.Severity), raw).Err(); err != nil {
		return fmt.Errorf("push review entry for %s: %w", entry.ContentID, err)
	}
	return nil
}

// Pending returns a lane's entries, oldest first.
func (r *RedisReviewLanes) Pending(ctx context.Context, severity models.Severity) ([]models.ReviewEntry, error) {
	raws, err := r.client.LRange(ctx, r.laneKey(severity), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read review lane %s: %w", severity, err)
	}
	entries := make([]models.ReviewEntry, 0, len(raws))
	for _, raw := range raws {
		var entry models.ReviewEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close closes Redis resources.
func (r *RedisReviewLanes) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// MemReviewLanes is the in-process ReviewLanes used by tests and dev runs.
type MemReviewLanes struct {
	mu    sync.Mutex
	lanes map[models.Severity][]models.ReviewEntry
}

// NewMemReviewLanes creates empty in-memory review lanes.
func NewMemReviewLanes() *MemReviewLanes {
	return &MemReviewLanes{lanes: make(map[models.Severity][]models.ReviewEntry)}
}

// Push appends one entry to its severity lane.
func (m *MemReviewLanes) Push(ctx context.Context, entry models.ReviewEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lanes[entry.Severity] = append(m.lanes[entry.Severity], entry)
	return nil
}

// Pending returns a lane's entries, oldest first.
func (m *MemReviewLanes) Pending(ctx context.Context, severity models.Severity) ([]models.ReviewEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ReviewEntry, len(m.lanes[severity]))
	copy(out, m.lanes[severity])
	return out, nil
}

// Close is a no-op for the in-memory lanes.
func (m *MemReviewLanes) Close() error { return nil }
