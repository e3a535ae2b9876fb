package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"trendguard/pkg/models"
)

// PostgresStore is the sqlx-backed content store. Schema provisioning is owned
// by the collector deployment; this layer only assumes the three tables
// (content, detections, response_log) exist.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects and pings the content database.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect content store: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PostgresStore{db: db}, nil
}

type contentRow struct {
	ID              string         `db:"id"`
	Platform        string         `db:"platform"`
	PlatformID      string         `db:"platform_id"`
	Type            string         `db:"type"`
	Text            sql.NullString `db:"text"`
	ImageURL        sql.NullString `db:"image_url"`
	VideoURL        sql.NullString `db:"video_url"`
	AudioURL        sql.NullString `db:"audio_url"`
	AuthorID        string         `db:"author_id"`
	AuthorUsername  sql.NullString `db:"author_username"`
	AuthorFollowers int64          `db:"author_followers"`
	Likes           int64          `db:"likes"`
	Shares          int64          `db:"shares"`
	Comments        int64          `db:"comments"`
	Views           int64          `db:"views"`
	Hashtags        pq.StringArray `db:"hashtags"`
	PublishedAt     time.Time      `db:"published_at"`
	CollectedAt     time.Time      `db:"collected_at"`
	Status          sql.NullString `db:"status"`
	Flagged         bool           `db:"flagged"`
	Removed         bool           `db:"removed"`
	Escalated       bool           `db:"escalated"`
	Quarantined     bool           `db:"quarantined"`
	UserWarned      bool           `db:"user_warned"`
	ModReason       sql.NullString `db:"moderation_reason"`
	ModUpdatedAt    sql.NullTime   `db:"moderation_updated_at"`
}

func (r *contentRow) toModel() *models.Content {
	return &models.Content{
		ID:         r.ID,
		Platform:   r.Platform,
		PlatformID: r.PlatformID,
		Type:       r.Type,
		Body: models.ContentBody{
			Text:     r.Text.String,
			ImageURL: r.ImageURL.String,
			VideoURL: r.VideoURL.String,
			AudioURL: r.AudioURL.String,
		},
		Author: models.Author{
			ID:        r.AuthorID,
			Username:  r.AuthorUsername.String,
			Followers: r.AuthorFollowers,
		},
		Engagement: models.Engagement{
			Likes:    r.Likes,
			Shares:   r.Shares,
			Comments: r.Comments,
			Views:    r.Views,
		},
		Hashtags:    r.Hashtags,
		PublishedAt: r.PublishedAt,
		CollectedAt: r.CollectedAt,
		Moderation: models.ModerationState{
			Status:      r.Status.String,
			Flagged:     r.Flagged,
			Removed:     r.Removed,
			Escalated:   r.Escalated,
			Quarantined: r.Quarantined,
			UserWarned:  r.UserWarned,
			Reason:      r.ModReason.String,
			UpdatedAt:   r.ModUpdatedAt.Time,
		},
	}
}

const contentColumns = `
	id, platform, platform_id, type, text, image_url, video_url, audio_url,
	author_id, author_username, author_followers,
	likes, shares, comments, views, hashtags, published_at, collected_at,
	status, flagged, removed, escalated, quarantined, user_warned,
	moderation_reason, moderation_updated_at`

// GetContent fetches one item by id.
func (s *PostgresStore) GetContent(ctx context.Context, id string) (*models.Content, error) {
	var row contentRow
	query := `SELECT` + contentColumns + ` FROM content WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get content %s: %w", id, err)
	}
	return row.toModel(), nil
}

type detectionRow struct {
	ContentID        string         `db:"content_id"`
	HarmfulnessScore float64        `db:"harmfulness_score"`
	Categories       pq.StringArray `db:"categories"`
	Confidence       float64        `db:"confidence"`
	Flagged          bool           `db:"flagged"`
	Reasoning        sql.NullString `db:"reasoning"`
	AnalyzedAt       time.Time      `db:"analyzed_at"`
}

func (r *detectionRow) toModel() *models.DetectionResult {
	return &models.DetectionResult{
		ContentID:        r.ContentID,
		HarmfulnessScore: r.HarmfulnessScore,
		Categories:       r.Categories,
		Confidence:       r.Confidence,
		Flagged:          r.Flagged,
		Reasoning:        r.Reasoning.String,
		AnalyzedAt:       r.AnalyzedAt,
	}
}

// GetDetection fetches the latest detection for a content id.
func (s *PostgresStore) GetDetection(ctx context.Context, contentID string) (*models.DetectionResult, error) {
	var row detectionRow
	query := `
		SELECT content_id, harmfulness_score, categories, confidence, flagged, reasoning, analyzed_at
		FROM detections
		WHERE content_id = $1
		ORDER BY analyzed_at DESC
		LIMIT 1`
	if err := s.db.GetContext(ctx, &row, query, contentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get detection %s: %w", contentID, err)
	}
	return row.toModel(), nil
}

// PutDetection attaches a detection to a content id.
func (s *PostgresStore) PutDetection(ctx context.Context, det *models.DetectionResult) error {
	query := `
		INSERT INTO detections (content_id, harmfulness_score, categories, confidence, flagged, reasoning, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (content_id) DO UPDATE SET
			harmfulness_score = EXCLUDED.harmfulness_score,
			categories = EXCLUDED.categories,
			confidence = EXCLUDED.confidence,
			flagged = EXCLUDED.flagged,
			reasoning = EXCLUDED.reasoning,
			analyzed_at = EXCLUDED.analyzed_at`
	analyzedAt := det.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		det.ContentID,
		det.HarmfulnessScore,
		pq.Array(det.Categories),
		det.Confidence,
		det.Flagged,
		det.Reasoning,
		analyzedAt,
	)
	if err != nil {
		return fmt.Errorf("put detection %s: %w", det.ContentID, err)
	}
	return nil
}

// FlaggedSince returns flagged items published within the lookback window.
func (s *PostgresStore) FlaggedSince(ctx context.Context, since time.Time) ([]FlaggedItem, error) {
	query := `
		SELECT c.id, c.platform, c.platform_id, c.type, c.text, c.image_url, c.video_url, c.audio_url,
		       c.author_id, c.author_username, c.author_followers,
		       c.likes, c.shares, c.comments, c.views, c.hashtags, c.published_at, c.collected_at,
		       c.status, c.flagged, c.removed, c.escalated, c.quarantined, c.user_warned,
		       c.moderation_reason, c.moderation_updated_at,
		       d.content_id AS d_content_id, d.harmfulness_score, d.categories, d.confidence,
		       d.flagged AS d_flagged, d.reasoning, d.analyzed_at
		FROM content c
		JOIN detections d ON d.content_id = c.id
		WHERE d.flagged AND c.published_at >= $1
		ORDER BY c.published_at ASC`

	rows, err := s.db.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query flagged window: %w", err)
	}
	defer rows.Close()

	var out []FlaggedItem
	for rows.Next() {
		var joined struct {
			contentRow
			DContentID string         `db:"d_content_id"`
			Harmful    float64        `db:"harmfulness_score"`
			Categories pq.StringArray `db:"categories"`
			Confidence float64        `db:"confidence"`
			DFlagged   bool           `db:"d_flagged"`
			Reasoning  sql.NullString `db:"reasoning"`
			AnalyzedAt time.Time      `db:"analyzed_at"`
		}
		if err := rows.StructScan(&joined); err != nil {
			return nil, fmt.Errorf("scan flagged row: %w", err)
		}
		out = append(out, FlaggedItem{
			Content: *joined.contentRow.toModel(),
			Detection: models.DetectionResult{
				ContentID:        joined.DContentID,
				HarmfulnessScore: joined.Harmful,
				Categories:       joined.Categories,
				Confidence:       joined.Confidence,
				Flagged:          joined.DFlagged,
				Reasoning:        joined.Reasoning.String,
				AnalyzedAt:       joined.AnalyzedAt,
			},
		})
	}
	return out, rows.Err()
}

// ApplyModeration applies a set-only moderation patch. Markers only ever move
// from false to true here, which keeps re-processing idempotent.
func (s *PostgresStore) ApplyModeration(ctx context.Context, id string, patch ModerationPatch) error {
	query := `
		UPDATE content SET
			flagged = flagged OR $2,
			removed = removed OR $3,
			escalated = escalated OR $4,
			quarantined = quarantined OR $5,
			user_warned = user_warned OR $6,
			status = COALESCE(NULLIF($7, ''), status),
			moderation_reason = COALESCE(NULLIF($8, ''), moderation_reason),
			moderation_updated_at = NOW()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id,
		patch.Flagged, patch.Removed, patch.Escalated, patch.Quarantined, patch.UserWarned,
		patch.Status, patch.Reason)
	if err != nil {
		return fmt.Errorf("apply moderation %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendResponse appends one audit entry to the response log.
func (s *PostgresStore) AppendResponse(ctx context.Context, rec *models.ResponseRecord) error {
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("encode response actions: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO response_log (content_id, actions, score, categories, ts)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ContentID, actions, rec.Score, pq.Array(rec.Categories), ts)
	if err != nil {
		return fmt.Errorf("append response log %s: %w", rec.ContentID, err)
	}
	return nil
}

// Close releases the database pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
