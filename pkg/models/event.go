package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClassifiedEvent is the wire message the classifier layer pushes onto the
// ingest list once a content item has been analyzed.
type ClassifiedEvent struct {
	ContentID  string          `json:"content_id"`
	Platform   string          `json:"platform,omitempty"`
	Detection  DetectionResult `json:"detection"`
	ReceivedAt time.Time       `json:"received_at,omitempty"`
}

// ParseClassifiedEvent decodes and validates one ingest payload.
func ParseClassifiedEvent(payload []byte) (*ClassifiedEvent, error) {
	var evt ClassifiedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode classified event: %w", err)
	}
	if evt.ContentID == "" {
		evt.ContentID = evt.Detection.ContentID
	}
	if evt.Detection.ContentID == "" {
		evt.Detection.ContentID = evt.ContentID
	}
	if err := evt.Detection.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection: %w", err)
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now().UTC()
	}
	return &evt, nil
}
