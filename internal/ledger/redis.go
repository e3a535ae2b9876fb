package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"trendguard/pkg/models"
)

// RedisConfig configures Redis access for the trend ledger.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	TrendTTL   time.Duration
	WarningTTL time.Duration
}

// RedisLedger persists trends and warnings in Redis. Records are JSON values
// with native TTLs; zset indexes order trends by rank and warnings by
// creation time, and are pruned lazily as expired members are read.
type RedisLedger struct {
	client     *redis.Client
	prefix     string
	trendTTL   time.Duration
	warningTTL time.Duration
}

// NewRedisLedger constructs a Redis-backed ledger.
func NewRedisLedger(cfg RedisConfig) (*RedisLedger, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "trendguard:ledger"
	}
	if cfg.TrendTTL <= 0 {
		cfg.TrendTTL = DefaultTrendTTL
	}
	if cfg.WarningTTL <= 0 {
		cfg.WarningTTL = DefaultWarningTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis ledger: %w", err)
	}

	return &RedisLedger{
		client:     client,
		prefix:     strings.TrimSpace(cfg.KeyPrefix),
		trendTTL:   cfg.TrendTTL,
		warningTTL: cfg.WarningTTL,
	}, nil
}

// StoreTrend upserts a trend record and reindexes it by rank.
func (l *RedisLedger) StoreTrend(ctx context.Context, trend *models.TrendData) error {
	raw, err := json.Marshal(trend)
	if err != nil {
		return fmt.Errorf("encode trend %s: %w", trend.ID, err)
	}
	pipe := l.client.Pipeline()
	pipe.Set(ctx, l.trendKey(trend.ID), raw, l.trendTTL)
	pipe.ZAdd(ctx, l.trendIndexKey(), redis.Z{Score: trend.Rank(), Member: trend.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store trend %s: %w", trend.ID, err)
	}
	return nil
}

// GetTrend returns one active trend or ErrNotFound.
func (l *RedisLedger) GetTrend(ctx context.Context, id string) (*models.TrendData, error) {
	raw, err := l.client.Get(ctx, l.trendKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read trend %s: %w", id, err)
	}
	var trend models.TrendData
	if err := json.Unmarshal(raw, &trend); err != nil {
		return nil, fmt.Errorf("decode trend %s: %w", id, err)
	}
	return &trend, nil
}

// ActiveTrends returns unexpired trends ordered by rank, highest first.
// Index members whose record has expired are dropped from the index.
func (l *RedisLedger) ActiveTrends(ctx context.Context) ([]*models.TrendData, error) {
	ids, err := l.client.ZRevRange(ctx, l.trendIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read trend index: %w", err)
	}

	trends := make([]*models.TrendData, 0, len(ids))
	for _, id := range ids {
		trend, err := l.GetTrend(ctx, id)
		if err == ErrNotFound {
			l.client.ZRem(ctx, l.trendIndexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		trends = append(trends, trend)
	}
	return trends, nil
}

// StoreWarning records a warning and indexes it under all severities and its
// own severity.
func (l *RedisLedger) StoreWarning(ctx context.Context, w *models.EarlyWarning) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode warning %s: %w", w.ID, err)
	}
	score := float64(w.CreatedAt.Unix())
	pipe := l.client.Pipeline()
	pipe.Set(ctx, l.warningKey(w.ID), raw, l.warningTTL)
	pipe.ZAdd(ctx, l.warningIndexKey(""), redis.Z{Score: score, Member: w.ID})
	pipe.ZAdd(ctx, l.warningIndexKey(w.Severity), redis.Z{Score: score, Member: w.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store warning %s: %w", w.ID, err)
	}
	return nil
}

// GetWarning returns one active warning or ErrNotFound.
func (l *RedisLedger) GetWarning(ctx context.Context, id string) (*models.EarlyWarning, error) {
	raw, err := l.client.Get(ctx, l.warningKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read warning %s: %w", id, err)
	}
	var w models.EarlyWarning
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode warning %s: %w", id, err)
	}
	return &w, nil
}

// ActiveWarnings returns unexpired warnings, newest first.
func (l *RedisLedger) ActiveWarnings(ctx context.Context, severity models.RiskLevel) ([]*models.EarlyWarning, error) {
	index := l.warningIndexKey(severity)
	ids, err := l.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read warning index: %w", err)
	}

	warnings := make([]*models.EarlyWarning, 0, len(ids))
	for _, id := range ids {
		w, err := l.GetWarning(ctx, id)
		if err == ErrNotFound {
			l.client.ZRem(ctx, index, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	return warnings, nil
}

// Acknowledge appends an acknowledgement for an active warning.
func (l *RedisLedger) Acknowledge(ctx context.Context, ack models.Acknowledgement) error {
	if _, err := l.GetWarning(ctx, ack.WarningID); err != nil {
		return err
	}
	raw, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("encode acknowledgement: %w", err)
	}
	pipe := l.client.Pipeline()
	pipe.RPush(ctx, l.ackKey(ack.WarningID), raw)
	pipe.Expire(ctx, l.ackKey(ack.WarningID), l.warningTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append acknowledgement for %s: %w", ack.WarningID, err)
	}
	return nil
}

// Acknowledgements returns a warning's acknowledgements, oldest first.
func (l *RedisLedger) Acknowledgements(ctx context.Context, warningID string) ([]models.Acknowledgement, error) {
	raws, err := l.client.LRange(ctx, l.ackKey(warningID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read acknowledgements for %s: %w", warningID, err)
	}
	acks := make([]models.Acknowledgement, 0, len(raws))
	for _, raw := range raws {
		var ack models.Acknowledgement
		if err := json.Unmarshal([]byte(raw), &ack); err != nil {
			continue
		}
		acks = append(acks, ack)
	}
	return acks, nil
}

// Close closes Redis resources.
func (l *RedisLedger) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

func (l *RedisLedger) trendKey(id string) string {
	return l.prefix + ":trend:" + id
}

func (l *RedisLedger) trendIndexKey() string {
	return l.prefix + ":trends:ranked"
}

func (l *RedisLedger) warningKey(id string) string {
	return l.prefix + ":warning:" + id
}

func (l *RedisLedger) warningIndexKey(severity models.RiskLevel) string {
	if severity == "" {
		return l.prefix + ":warnings:active"
	}
	return l.prefix + ":warnings:severity:" + string(severity)
}

func (l *RedisLedger) ackKey(warningID string) string {
	return l.prefix + ":acks:" + warningID
}
