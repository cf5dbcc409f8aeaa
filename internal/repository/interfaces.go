package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"istream/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	UpdateAccount(ctx context.Context, id int64, req *model.UpdateAccountRequest) (*model.User, error)
	UpdateAvatar(ctx context.Context, id int64, url string, key *string) error
	UpdateCoverImage(ctx context.Context, id int64, url string, key *string) error
	UpdatePassword(ctx context.Context, id int64, passwordHashed string) error
	LinkGoogleAccount(ctx context.Context, id int64, googleID string) error

	// SetOTP stores a fresh verification challenge, superseding any pending one.
	SetOTP(ctx context.Context, id int64, code string, expiresAt time.Time) error
	// VerifyOTP marks the user verified and clears the challenge in one
	// conditional write. Returns false when no pending code matches or the
	// code has expired.
	VerifyOTP(ctx context.Context, id int64, code string, now time.Time) (bool, error)

	// SetRefreshToken overwrites the stored refresh token, invalidating any
	// prior session. A nil token revokes the session.
	SetRefreshToken(ctx context.Context, id int64, token *string) error
	// SwapRefreshToken replaces the stored refresh token only if it still
	// equals current (compare-and-swap). Returns false when the stored value
	// changed underneath us: the presented token is stale or replayed.
	SwapRefreshToken(ctx context.Context, id int64, current, next string) (bool, error)
}

type SubscriptionRepository interface {
	// Create inserts the edge with denormalized display copies. Returns false
	// when the (subscriber, channel) pair already exists.
	Create(ctx context.Context, sub *model.Subscription) (bool, error)
	Delete(ctx context.Context, subscriberID, channelID int64) error
	Exists(ctx context.Context, subscriberID, channelID int64) (bool, error)
	ListBySubscriber(ctx context.Context, subscriberID int64, offset, limit int) ([]model.Subscription, error)
	CountBySubscriber(ctx context.Context, subscriberID int64) (int, error)
	CountByChannel(ctx context.Context, channelID int64) (int, error)
}

type ReactionRepository interface {
	// DeleteMatching removes the reaction only when its type equals typ
	// (the toggle-off transition). Returns true when a row was deleted.
	DeleteMatching(ctx context.Context, tx *sqlx.Tx, userID, videoID int64, typ string) (bool, error)
	// Upsert creates the reaction or switches its type in place.
	Upsert(ctx context.Context, tx *sqlx.Tx, userID, videoID int64, typ string) error
	Get(ctx context.Context, userID, videoID int64) (*model.Reaction, error)
	Counts(ctx context.Context, videoID int64) (*model.ReactionCounts, error)
	ListLikedVideos(ctx context.Context, userID int64, offset, limit int) ([]model.Video, error)
	CountLikedVideos(ctx context.Context, userID int64) (int, error)
}

type VideoRepository interface {
	Create(ctx context.Context, video *model.Video) error
	GetByID(ctx context.Context, id int64) (*model.Video, error)
	GetPublicByID(ctx context.Context, id int64) (*model.Video, error)
	Exists(ctx context.Context, id int64) (bool, error)
	ListApproved(ctx context.Context, offset, limit int) ([]model.Video, error)
	CountApproved(ctx context.Context) (int, error)
	ListByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]model.Video, error)
	CountByOwner(ctx context.Context, ownerID int64) (int, error)
	// ListPublicByOwner returns only the owner's published+approved videos,
	// for channel pages viewed by anyone.
	ListPublicByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]model.Video, error)
	CountPublicByOwner(ctx context.Context, ownerID int64) (int, error)
	// ListPending returns videos awaiting admin approval.
	ListPending(ctx context.Context, offset, limit int) ([]model.Video, error)
	CountPending(ctx context.Context) (int, error)
	Search(ctx context.Context, query string, offset, limit int) ([]model.Video, error)
	CountSearch(ctx context.Context, query string) (int, error)
	Update(ctx context.Context, video *model.Video) error
	SetApproval(ctx context.Context, id int64, approved bool) error
	SetPublished(ctx context.Context, id int64, published bool) error
	Delete(ctx context.Context, id int64) error
	IncrementViews(ctx context.Context, tx *sqlx.Tx, id int64) error
}

type WatchHistoryRepository interface {
	// RecordFirstView inserts the (user, video) pair if absent. Returns true
	// on insert: this is the user's first view of the video.
	RecordFirstView(ctx context.Context, tx *sqlx.Tx, userID, videoID int64) (bool, error)
	// Promote bumps watched_at so the video moves to the front of the history.
	Promote(ctx context.Context, tx *sqlx.Tx, userID, videoID int64) error
	ListVideos(ctx context.Context, userID int64) ([]model.Video, error)
	Remove(ctx context.Context, userID, videoID int64) error
	Clear(ctx context.Context, userID int64) error
}
