package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"istream/internal/model"
)

type subscriptionRepository struct {
	db *sqlx.DB
}

func NewSubscriptionRepository(db *sqlx.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create inserts the edge with its denormalized display copies and scans the
// assigned id/created_at back onto it. ON CONFLICT DO NOTHING makes a
// duplicate subscribe race resolve deterministically: one insert lands and
// returns a row, the other returns none.
func (r *subscriptionRepository) Create(ctx context.Context, sub *model.Subscription) (bool, error) {
	query := `
		INSERT INTO subscriptions (subscriber_id, subscriber_username, subscriber_avatar,
		                           channel_id, channel_username, channel_avatar, channel_cover_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subscriber_id, channel_id) DO NOTHING
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		sub.SubscriberID, sub.SubscriberUsername, sub.SubscriberAvatar,
		sub.ChannelID, sub.ChannelUsername, sub.ChannelAvatar, sub.ChannelCoverImage,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil // conflict: the edge already exists
		}
		return false, fmt.Errorf("failed to create subscription: %w", err)
	}
	return true, nil
}

// Delete removes the edge. Exactly-once: a repeated unsubscribe sees zero
// rows and reports ErrNotSubscribed instead of silently succeeding.
func (r *subscriptionRepository) Delete(ctx context.Context, subscriberID, channelID int64) error {
	query := `DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2`
	result, err := r.db.ExecContext(ctx, query, subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrNotSubscribed
	}
	return nil
}

func (r *subscriptionRepository) Exists(ctx context.Context, subscriberID, channelID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2)`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, subscriberID, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to check subscription existence: %w", err)
	}
	return exists, nil
}

// ListBySubscriber returns edges newest first. The denormalized columns are
// served as stored; they are not re-joined against users.
func (r *subscriptionRepository) ListBySubscriber(ctx context.Context, subscriberID int64, offset, limit int) ([]model.Subscription, error) {
	query := `
		SELECT id, subscriber_id, subscriber_username, subscriber_avatar,
		       channel_id, channel_username, channel_avatar, channel_cover_image, created_at
		FROM subscriptions
		WHERE subscriber_id = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`
	var subs []model.Subscription
	err := r.db.SelectContext(ctx, &subs, query, subscriberID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepository) CountBySubscriber(ctx context.Context, subscriberID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = $1`, subscriberID)
}

func (r *subscriptionRepository) CountByChannel(ctx context.Context, channelID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1`, channelID)
}

func (r *subscriptionRepository) count(ctx context.Context, query string, arg int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, query, arg)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}
