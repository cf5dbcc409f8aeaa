package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"istream/internal/model"
)

type reactionRepository struct {
	db *sqlx.DB
}

func NewReactionRepository(db *sqlx.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

// DeleteMatching removes the reaction only when its current type equals typ.
// This is the toggle-off arm of the state machine: like on like, dislike on
// dislike.
func (r *reactionRepository) DeleteMatching(ctx context.Context, tx *sqlx.Tx, userID, videoID int64, typ string) (bool, error) {
	query := `DELETE FROM reactions WHERE user_id = $1 AND video_id = $2 AND type = $3`
	result, err := tx.ExecContext(ctx, query, userID, videoID, typ)
	if err != nil {
		return false, fmt.Errorf("failed to delete reaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Upsert creates the reaction or switches like↔dislike in place. The unique
// (user_id, video_id) index is the serialization point: concurrent writers
// converge on a single row.
func (r *reactionRepository) Upsert(ctx context.Context, tx *sqlx.Tx, userID, videoID int64, typ string) error {
	query := `
		INSERT INTO reactions (user_id, video_id, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, video_id) DO UPDATE SET type = EXCLUDED.type
	`
	if _, err := tx.ExecContext(ctx, query, userID, videoID, typ); err != nil {
		return fmt.Errorf("failed to upsert reaction: %w", err)
	}
	return nil
}

func (r *reactionRepository) Get(ctx context.Context, userID, videoID int64) (*model.Reaction, error) {
	query := `SELECT user_id, video_id, type, created_at FROM reactions WHERE user_id = $1 AND video_id = $2`
	var reaction model.Reaction
	err := r.db.GetContext(ctx, &reaction, query, userID, videoID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // neutral: no row means no reaction
		}
		return nil, fmt.Errorf("failed to get reaction: %w", err)
	}
	return &reaction, nil
}

func (r *reactionRepository) Counts(ctx context.Context, videoID int64) (*model.ReactionCounts, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE type = 'like')    AS likes,
		       COUNT(*) FILTER (WHERE type = 'dislike') AS dislikes
		FROM reactions
		WHERE video_id = $1
	`
	var counts model.ReactionCounts
	err := r.db.GetContext(ctx, &counts, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to count reactions: %w", err)
	}
	return &counts, nil
}

// ListLikedVideos returns the videos a user has liked, newest like first.
func (r *reactionRepository) ListLikedVideos(ctx context.Context, userID int64, offset, limit int) ([]model.Video, error) {
	query := `
		SELECT v.id, v.owner_id, v.owner_username, v.owner_avatar, v.title, v.description,
		       v.video_url, v.video_key, v.thumbnail_url, v.thumbnail_key, v.duration,
		       v.views, v.is_published, v.is_approved, v.created_at, v.updated_at
		FROM reactions r
		JOIN videos v ON v.id = r.video_id
		WHERE r.user_id = $1 AND r.type = 'like'
		ORDER BY r.created_at DESC
		OFFSET $2 LIMIT $3
	`
	var videos []model.Video
	err := r.db.SelectContext(ctx, &videos, query, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list liked videos: %w", err)
	}
	return videos, nil
}

func (r *reactionRepository) CountLikedVideos(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM reactions WHERE user_id = $1 AND type = 'like'`
	var n int
	err := r.db.GetContext(ctx, &n, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count liked videos: %w", err)
	}
	return n, nil
}
