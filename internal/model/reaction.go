package model

import (
	"errors"
	"time"
)

// Reaction types. Absence of a row means neutral.
const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
	ReactionNone    = "none" // read-side only, never stored
)

// Reaction is a user's like/dislike state on a video. At most one row exists
// per (user, video) pair; toggling the same type off deletes the row.
type Reaction struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	VideoID   int64     `db:"video_id" json:"video_id"`
	Type      string    `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ReactionCounts aggregates likes and dislikes for one video.
type ReactionCounts struct {
	Likes    int `db:"likes" json:"likes"`
	Dislikes int `db:"dislikes" json:"dislikes"`
}

// ReactionState is the response for GET /videos/{id}/reactions: counts plus
// the viewer's own state when authenticated.
type ReactionState struct {
	Likes        int    `json:"likes"`
	Dislikes     int    `json:"dislikes"`
	UserReaction string `json:"user_reaction"`
}

// WatchHistoryEntry records that a user watched a video, most recent first.
// The unique (user, video) pair makes first-view detection a conditional
// insert.
type WatchHistoryEntry struct {
	UserID    int64     `db:"user_id"`
	VideoID   int64     `db:"video_id"`
	WatchedAt time.Time `db:"watched_at"`
}

var (
	ErrInvalidReactionType = errors.New("invalid reaction type")
)

// IsValidReactionType reports whether t can be stored.
func IsValidReactionType(t string) bool {
	return t == ReactionLike || t == ReactionDislike
}
