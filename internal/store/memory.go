package store

import (
	"context"
	"sync"
	"time"

	"trendguard/pkg/models"
)

// MemStore is an in-process ContentStore with the same semantics as the
// Postgres implementation. Used by tests and single-node dev runs.
type MemStore struct {
	mu         sync.RWMutex
	content    map[string]*models.Content
	detections map[string]*models.DetectionResult
	responses  []models.ResponseRecord
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		content:    make(map[string]*models.Content),
		detections: make(map[string]*models.DetectionResult),
	}
}

// AddContent inserts or replaces a content row.
func (s *MemStore) AddContent(c *models.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.content[c.ID] = &cp
}

// GetContent fetches one item by id.
func (s *MemStore) GetContent(ctx context.Context, id string) (*models.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.content[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetDetection fetches the detection for a content id.
func (s *MemStore) GetDetection(ctx context.Context, contentID string) (*models.DetectionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.detections[contentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// PutDetection attaches a detection to a content id.
func (s *MemStore) PutDetection(ctx context.Context, det *models.DetectionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *det
	if cp.AnalyzedAt.IsZero() {
		cp.AnalyzedAt = time.Now().UTC()
	}
	s.detections[det.ContentID] = &cp
	return nil
}

// FlaggedSince returns flagged items published within the window.
func (s *MemStore) FlaggedSince(ctx context.Context, since time.Time) ([]FlaggedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FlaggedItem
	for id, det := range s.detections {
		if !det.Flagged {
			continue
		}
		c, ok := s.content[id]
		if !ok || c.PublishedAt.Before(since) {
			continue
		}
		out = append(out, FlaggedItem{Content: *c, Detection: *det})
	}
	return out, nil
}

// ApplyModeration applies a set-only moderation patch.
func (s *MemStore) ApplyModeration(ctx context.Context, id string, patch ModerationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.content[id]
	if !ok {
		return ErrNotFound
	}
	m := &c.Moderation
	m.Flagged = m.Flagged || patch.Flagged
	m.Removed = m.Removed || patch.Removed
	m.Escalated = m.Escalated || patch.Escalated
	m.Quarantined = m.Quarantined || patch.Quarantined
	m.UserWarned = m.UserWarned || patch.UserWarned
	if patch.Status != "" {
		m.Status = patch.Status
	}
	if patch.Reason != "" {
		m.Reason = patch.Reason
	}
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendResponse appends one audit entry.
func (s *MemStore) AppendResponse(ctx context.Context, rec *models.ResponseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	s.responses = append(s.responses, cp)
	return nil
}

// Responses returns a copy of the response log, oldest first.
func (s *MemStore) Responses() []models.ResponseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ResponseRecord, len(s.responses))
	copy(out, s.responses)
	return out
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }
