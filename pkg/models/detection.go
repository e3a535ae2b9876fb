package models

import (
	"fmt"
	"time"
)

// Category vocabulary produced by the classifier layer. The core treats the
// list as fixed: detections carrying unknown labels are rejected at ingest.
const (
	CategoryHateSpeech         = "hate_speech"
	CategoryHarassment         = "harassment"
	CategoryViolence           = "violence"
	CategorySelfHarm           = "self_harm"
	CategoryDangerousChallenge = "dangerous_challenge"
	CategoryExtremism          = "extremism"
	CategoryMisinformation     = "misinformation"
	CategoryAdultContent       = "adult_content"
	CategoryDrugs              = "drugs"
	CategorySpam               = "spam"
)

var knownCategories = map[string]struct{}{
	CategoryHateSpeech:         {},
	CategoryHarassment:         {},
	CategoryViolence:           {},
	CategorySelfHarm:           {},
	CategoryDangerousChallenge: {},
	CategoryExtremism:          {},
	CategoryMisinformation:     {},
	CategoryAdultContent:       {},
	CategoryDrugs:              {},
	CategorySpam:               {},
}

// KnownCategory reports whether name is part of the category vocabulary.
func KnownCategory(name string) bool {
	_, ok := knownCategories[name]
	return ok
}

// DetectionResult is the classifier output attached to a content item.
// The core only reads it; it is produced exactly once per analysis pass.
type DetectionResult struct {
	ContentID        string    `json:"content_id"`
	HarmfulnessScore float64   `json:"harmfulness_score"`
	Categories       []string  `json:"categories,omitempty"`
	Confidence       float64   `json:"confidence"`
	Flagged          bool      `json:"flagged"`
	Reasoning        string    `json:"reasoning,omitempty"`
	AnalyzedAt       time.Time `json:"analyzed_at,omitempty"`
}

// Validate enforces the detection invariants at the ingest boundary.
func (d *DetectionResult) Validate() error {
	if d.ContentID == "" {
		return fmt.Errorf("detection missing content id")
	}
	if d.HarmfulnessScore < 0 || d.HarmfulnessScore > 1 {
		return fmt.Errorf("harmfulness score %f out of range [0,1]", d.HarmfulnessScore)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range [0,1]", d.Confidence)
	}
	if d.Flagged && len(d.Categories) == 0 {
		return fmt.Errorf("flagged detection for %s has no categories", d.ContentID)
	}
	for _, c := range d.Categories {
		if !KnownCategory(c) {
			return fmt.Errorf("unknown category %q", c)
		}
	}
	return nil
}

// HasCategory reports whether the detection carries the given label.
func (d *DetectionResult) HasCategory(name string) bool {
	for _, c := range d.Categories {
		if c == name {
			return true
		}
	}
	return false
}
