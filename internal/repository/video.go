package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"istream/internal/model"
)

const videoColumns = `id, owner_id, owner_username, owner_avatar, title, description,
	video_url, video_key, thumbnail_url, thumbnail_key, duration, views,
	is_published, is_approved, created_at, updated_at`

type videoRepository struct {
	db *sqlx.DB
}

func NewVideoRepository(db *sqlx.DB) VideoRepository {
	return &videoRepository{db: db}
}

func (r *videoRepository) Create(ctx context.Context, v *model.Video) error {
	query := `
		INSERT INTO videos (owner_id, owner_username, owner_avatar, title, description,
		                    video_url, video_key, thumbnail_url, thumbnail_key, duration,
		                    is_published, is_approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id, views, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		v.OwnerID, v.OwnerUsername, v.OwnerAvatar, v.Title, v.Description,
		v.VideoURL, v.VideoKey, v.ThumbnailURL, v.ThumbnailKey, v.Duration,
		v.IsPublished, v.IsApproved,
	).Scan(&v.ID, &v.Views, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (r *videoRepository) getOne(ctx context.Context, where string, args ...interface{}) (*model.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE ` + where

	var v model.Video
	err := r.db.GetContext(ctx, &v, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return &v, nil
}

func (r *videoRepository) GetByID(ctx context.Context, id int64) (*model.Video, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetPublicByID returns the video only when it is visible to everyone.
func (r *videoRepository) GetPublicByID(ctx context.Context, id int64) (*model.Video, error) {
	return r.getOne(ctx, "id = $1 AND is_published AND is_approved", id)
}

func (r *videoRepository) Exists(ctx context.Context, id int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM videos WHERE id = $1)`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to check video existence: %w", err)
	}
	return exists, nil
}

func (r *videoRepository) list(ctx context.Context, where, order string, args ...interface{}) ([]model.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE ` + where + ` ORDER BY ` + order

	var videos []model.Video
	err := r.db.SelectContext(ctx, &videos, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

func (r *videoRepository) ListApproved(ctx context.Context, offset, limit int) ([]model.Video, error) {
	return r.list(ctx, "is_published AND is_approved", "created_at DESC OFFSET $1 LIMIT $2", offset, limit)
}

func (r *videoRepository) CountApproved(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM videos WHERE is_published AND is_approved`)
}

func (r *videoRepository) ListByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]model.Video, error) {
	return r.list(ctx, "owner_id = $1", "created_at DESC OFFSET $2 LIMIT $3", ownerID, offset, limit)
}

func (r *videoRepository) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM videos WHERE owner_id = $1`, ownerID)
}

func (r *videoRepository) ListPublicByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]model.Video, error) {
	return r.list(ctx, "owner_id = $1 AND is_published AND is_approved",
		"created_at DESC OFFSET $2 LIMIT $3", ownerID, offset, limit)
}

func (r *videoRepository) CountPublicByOwner(ctx context.Context, ownerID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM videos WHERE owner_id = $1 AND is_published AND is_approved`, ownerID)
}

// ListPending returns unapproved videos, oldest first so the review queue is
// worked in upload order.
func (r *videoRepository) ListPending(ctx context.Context, offset, limit int) ([]model.Video, error) {
	return r.list(ctx, "NOT is_approved", "created_at ASC OFFSET $1 LIMIT $2", offset, limit)
}

func (r *videoRepository) CountPending(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM videos WHERE NOT is_approved`)
}

func (r *videoRepository) Search(ctx context.Context, q string, offset, limit int) ([]model.Video, error) {
	return r.list(ctx, "is_published AND is_approved AND title ILIKE $1",
		"created_at DESC OFFSET $2 LIMIT $3", "%"+q+"%", offset, limit)
}

func (r *videoRepository) CountSearch(ctx context.Context, q string) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM videos WHERE is_published AND is_approved AND title ILIKE $1`, "%"+q+"%")
}

func (r *videoRepository) Update(ctx context.Context, v *model.Video) error {
	query := `
		UPDATE videos
		SET title = $2, description = $3, is_published = $4,
		    thumbnail_url = $5, thumbnail_key = $6, updated_at = NOW()
		WHERE id = $1
	`
	return r.execExpectingRow(ctx, query, v.ID, v.Title, v.Description, v.IsPublished, v.ThumbnailURL, v.ThumbnailKey)
}

func (r *videoRepository) SetApproval(ctx context.Context, id int64, approved bool) error {
	return r.execExpectingRow(ctx, `UPDATE videos SET is_approved = $2, updated_at = NOW() WHERE id = $1`, id, approved)
}

func (r *videoRepository) SetPublished(ctx context.Context, id int64, published bool) error {
	return r.execExpectingRow(ctx, `UPDATE videos SET is_published = $2, updated_at = NOW() WHERE id = $1`, id, published)
}

func (r *videoRepository) Delete(ctx context.Context, id int64) error {
	return r.execExpectingRow(ctx, `DELETE FROM videos WHERE id = $1`, id)
}

// IncrementViews adds one view inside the caller's view-recording transaction.
func (r *videoRepository) IncrementViews(ctx context.Context, tx *sqlx.Tx, id int64) error {
	query := `UPDATE videos SET views = views + 1 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

func (r *videoRepository) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return n, nil
}

func (r *videoRepository) execExpectingRow(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrVideoNotFound
	}
	return nil
}
