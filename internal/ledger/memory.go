package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"trendguard/pkg/models"
)

// MemLedger is an in-process Ledger with the same TTL semantics as the Redis
// implementation. Used by tests and single-node dev runs.
type MemLedger struct {
	mu         sync.Mutex
	trends     map[string]memTrend
	warnings   map[string]*models.EarlyWarning
	acks       map[string][]models.Acknowledgement
	trendTTL   time.Duration
	warningTTL time.Duration
	now        func() time.Time
}

type memTrend struct {
	trend     *models.TrendData
	expiresAt time.Time
}

// NewMemLedger creates an empty in-memory ledger with default TTLs.
func NewMemLedger() *MemLedger {
	return &MemLedger{
		trends:     make(map[string]memTrend),
		warnings:   make(map[string]*models.EarlyWarning),
		acks:       make(map[string][]models.Acknowledgement),
		trendTTL:   DefaultTrendTTL,
		warningTTL: DefaultWarningTTL,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (l *MemLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// SetTTLs overrides the default record lifetimes.
func (l *MemLedger) SetTTLs(trendTTL, warningTTL time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if trendTTL > 0 {
		l.trendTTL = trendTTL
	}
	if warningTTL > 0 {
		l.warningTTL = warningTTL
	}
}

// StoreTrend upserts a trend under its signal-hash id and refreshes its TTL.
func (l *MemLedger) StoreTrend(ctx context.Context, trend *models.TrendData) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := *trend
	l.trends[trend.ID] = memTrend{trend: &snapshot, expiresAt: l.now().Add(l.trendTTL)}
	return nil
}

// GetTrend returns one active trend or ErrNotFound.
func (l *MemLedger) GetTrend(ctx context.Context, id string) (*models.TrendData, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.trends[id]
	if !ok || !rec.expiresAt.After(l.now()) {
		delete(l.trends, id)
		return nil, ErrNotFound
	}
	snapshot := *rec.trend
	return &snapshot, nil
}

// ActiveTrends returns unexpired trends ordered by rank, highest first.
func (l *MemLedger) ActiveTrends(ctx context.Context) ([]*models.TrendData, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	out := make([]*models.TrendData, 0, len(l.trends))
	for id, rec := range l.trends {
		if !rec.expiresAt.After(now) {
			delete(l.trends, id)
			continue
		}
		snapshot := *rec.trend
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank() != out[j].Rank() {
			return out[i].Rank() > out[j].Rank()
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// StoreWarning records a warning.
func (l *MemLedger) StoreWarning(ctx context.Context, w *models.EarlyWarning) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := *w
	l.warnings[w.ID] = &snapshot
	return nil
}

// GetWarning returns one active warning or ErrNotFound.
func (l *MemLedger) GetWarning(ctx context.Context, id string) (*models.EarlyWarning, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.warnings[id]
	if !ok || !w.ExpiresAt.After(l.now()) {
		delete(l.warnings, id)
		return nil, ErrNotFound
	}
	snapshot := *w
	return &snapshot, nil
}

// ActiveWarnings returns unexpired warnings, newest first. An empty severity
// selects all severities.
func (l *MemLedger) ActiveWarnings(ctx context.Context, severity models.RiskLevel) ([]*models.EarlyWarning, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	out := make([]*models.EarlyWarning, 0, len(l.warnings))
	for id, w := range l.warnings {
		if !w.ExpiresAt.After(now) {
			delete(l.warnings, id)
			continue
		}
		if severity != "" && w.Severity != severity {
			continue
		}
		snapshot := *w
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Acknowledge appends an acknowledgement for an active warning.
func (l *MemLedger) Acknowledge(ctx context.Context, ack models.Acknowledgement) error {
	if _, err := l.GetWarning(ctx, ack.WarningID); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acks[ack.WarningID] = append(l.acks[ack.WarningID], ack)
	return nil
}

// Acknowledgements returns a warning's acknowledgements, oldest first.
func (l *MemLedger) Acknowledgements(ctx context.Context, warningID string) ([]models.Acknowledgement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Acknowledgement, len(l.acks[warningID]))
	copy(out, l.acks[warningID])
	return out, nil
}

// Close is a no-op for the in-memory ledger.
func (l *MemLedger) Close() error { return nil }
