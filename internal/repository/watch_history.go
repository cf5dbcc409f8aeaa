package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"istream/internal/model"
)

type watchHistoryRepository struct {
	db *sqlx.DB
}

func NewWatchHistoryRepository(db *sqlx.DB) WatchHistoryRepository {
	return &watchHistoryRepository{db: db}
}

// RecordFirstView inserts the (user, video) pair if absent. The unique index
// makes this the first-view predicate: an insert that lands means the video
// was not in the watch history, and two racing requests resolve to one insert.
func (r *watchHistoryRepository) RecordFirstView(ctx context.Context, tx *sqlx.Tx, userID, videoID int64) (bool, error) {
	query := `
		INSERT INTO watch_history (user_id, video_id, watched_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, video_id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query, userID, videoID)
	if err != nil {
		return false, fmt.Errorf("failed to record view: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Promote bumps watched_at so the video moves to the front of the history
// without duplicating the entry (dedup-and-promote).
func (r *watchHistoryRepository) Promote(ctx context.Context, tx *sqlx.Tx, userID, videoID int64) error {
	query := `UPDATE watch_history SET watched_at = NOW() WHERE user_id = $1 AND video_id = $2`
	if _, err := tx.ExecContext(ctx, query, userID, videoID); err != nil {
		return fmt.Errorf("failed to promote watch history entry: %w", err)
	}
	return nil
}

// ListVideos returns the watched videos, most recent first.
func (r *watchHistoryRepository) ListVideos(ctx context.Context, userID int64) ([]model.Video, error) {
	query := `
		SELECT v.id, v.owner_id, v.owner_username, v.owner_avatar, v.title, v.description,
		       v.video_url, v.video_key, v.thumbnail_url, v.thumbnail_key, v.duration,
		       v.views, v.is_published, v.is_approved, v.created_at, v.updated_at
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id
		WHERE h.user_id = $1
		ORDER BY h.watched_at DESC
	`
	var videos []model.Video
	err := r.db.SelectContext(ctx, &videos, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch history: %w", err)
	}
	return videos, nil
}

func (r *watchHistoryRepository) Remove(ctx context.Context, userID, videoID int64) error {
	query := `DELETE FROM watch_history WHERE user_id = $1 AND video_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, videoID); err != nil {
		return fmt.Errorf("failed to remove watch history entry: %w", err)
	}
	return nil
}

func (r *watchHistoryRepository) Clear(ctx context.Context, userID int64) error {
	query := `DELETE FROM watch_history WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to clear watch history: %w", err)
	}
	return nil
}
