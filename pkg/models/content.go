package models

import "time"

// ContentBody holds the media payload references for one collected item.
// Exactly one field is set for single-modality items; mixed posts may set several.
type ContentBody struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

// Author identifies the account that published the content.
type Author struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	Followers int64  `json:"followers,omitempty"`
}

// Engagement holds the engagement counters observed at collection time.
type Engagement struct {
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
	Views    int64 `json:"views,omitempty"`
}

// Total returns likes + shares + comments.
func (e Engagement) Total() int64 {
	return e.Likes + e.Shares + e.Comments
}

// ModerationState is the mutable processing state attached to a content item.
// All markers are set-operations: re-applying the same action is a no-op.
type ModerationState struct {
	Status      string    `json:"status,omitempty"` // pending, processed, failed
	Flagged     bool      `json:"flagged"`
	Removed     bool      `json:"removed"`
	Escalated   bool      `json:"escalated"`
	Quarantined bool      `json:"quarantined"`
	UserWarned  bool      `json:"user_warned"`
	Reason      string    `json:"reason,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Content is one collected item. Identity fields (platform, platform id, author,
// publish time) are immutable; only Moderation is written by the response layer.
type Content struct {
	ID          string          `json:"id"`
	Platform    string          `json:"platform"`
	PlatformID  string          `json:"platform_id"`
	Type        string          `json:"type"` // text, image, video, audio
	Body        ContentBody     `json:"content"`
	Author      Author          `json:"author"`
	Engagement  Engagement      `json:"engagement"`
	Hashtags    []string        `json:"hashtags,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
	CollectedAt time.Time       `json:"collected_at"`
	Moderation  ModerationState `json:"moderation"`
}
