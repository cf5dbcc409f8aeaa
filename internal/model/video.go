package model

import (
	"errors"
	"time"
)

// Video is a published media item. Owner display fields are denormalized at
// upload time, same tradeoff as subscription edges.
type Video struct {
	ID            int64     `db:"id" json:"id"`
	OwnerID       int64     `db:"owner_id" json:"owner_id"`
	OwnerUsername string    `db:"owner_username" json:"owner_username"`
	OwnerAvatar   string    `db:"owner_avatar" json:"owner_avatar"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	VideoURL      string    `db:"video_url" json:"video_url"`
	VideoKey      string    `db:"video_key" json:"-"`
	ThumbnailURL  string    `db:"thumbnail_url" json:"thumbnail_url"`
	ThumbnailKey  string    `db:"thumbnail_key" json:"-"`
	Duration      *string   `db:"duration" json:"duration"`
	Views         int64     `db:"views" json:"views"`
	IsPublished   bool      `db:"is_published" json:"is_published"`
	IsApproved    bool      `db:"is_approved" json:"is_approved"` // admin toggle
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// UploadVideoRequest carries upload metadata; file contents travel as
// multipart parts handled before the service call.
type UploadVideoRequest struct {
	Title       string
	Description string
	IsPublished bool

	VideoURL     string
	VideoKey     string
	ThumbnailURL string
	ThumbnailKey string
	Duration     *string
}

// UpdateVideoRequest carries a partial edit; nil fields keep their current
// value. Thumbnail fields are set when a replacement image was uploaded.
type UpdateVideoRequest struct {
	Title       *string
	Description *string
	IsPublished *bool

	ThumbnailURL string
	ThumbnailKey string
}

// VideoPage is one page of videos with the standard pagination contract:
// HasNextPage = page < ceil(total/limit), HasPrevPage = page > 1.
type VideoPage struct {
	Videos      []Video `json:"videos"`
	Total       int     `json:"total"`
	CurrentPage int     `json:"current_page"`
	TotalPages  int     `json:"total_pages"`
	HasNextPage bool    `json:"has_next_page"`
	HasPrevPage bool    `json:"has_prev_page"`
}

var (
	ErrVideoNotFound      = errors.New("video not found")
	ErrVideoNotOwned      = errors.New("not authorized to modify this video")
	ErrVideoAdminRequired = errors.New("admin role required")
)
