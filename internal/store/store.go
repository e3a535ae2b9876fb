// Package store provides access to the content store: collected items, their
// detection results, moderation-state writes and the append-only response log.
package store

import (
	"context"
	"errors"
	"time"

	"trendguard/pkg/models"
)

// ErrNotFound is returned when a content id has no row. Jobs hitting it fail
// permanently instead of retrying.
var ErrNotFound = errors.New("content not found")

// FlaggedItem joins a content row with its attached detection for the
// aggregation passes.
type FlaggedItem struct {
	Content   models.Content
	Detection models.DetectionResult
}

// ModerationPatch is a set-only moderation update. True fields set the marker;
// false fields leave the stored value untouched, so re-applying the same patch
// is a no-op.
type ModerationPatch struct {
	Flagged     bool
	Removed     bool
	Escalated   bool
	Quarantined bool
	UserWarned  bool
	Status      string
	Reason      string
}

// ContentStore is the query surface the core needs from the signal store.
type ContentStore interface {
	// GetContent fetches one item by id, ErrNotFound when absent.
	GetContent(ctx context.Context, id string) (*models.Content, error)

	// GetDetection fetches the latest detection for a content id.
	GetDetection(ctx context.Context, contentID string) (*models.DetectionResult, error)

	// PutDetection attaches a detection result to a content id.
	PutDetection(ctx context.Context, det *models.DetectionResult) error

	// FlaggedSince returns flagged items published within the lookback window.
	FlaggedSince(ctx context.Context, since time.Time) ([]FlaggedItem, error)

	// ApplyModeration applies a set-only moderation patch.
	ApplyModeration(ctx context.Context, id string, patch ModerationPatch) error

	// AppendResponse appends one audit entry to the response log.
	AppendResponse(ctx context.Context, rec *models.ResponseRecord) error

	Close() error
}
