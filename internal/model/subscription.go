package model

import (
	"errors"
	"time"
)

// Subscription is a directed subscriber→channel edge. The embedded username,
// avatar and cover fields are copied from the user rows when the edge is
// created and intentionally never re-synced after profile edits: reads stay
// join-free at the cost of staleness.
type Subscription struct {
	ID                 int64     `db:"id" json:"id"`
	SubscriberID       int64     `db:"subscriber_id" json:"subscriber_id"`
	SubscriberUsername string    `db:"subscriber_username" json:"subscriber_username"`
	SubscriberAvatar   string    `db:"subscriber_avatar" json:"subscriber_avatar"`
	ChannelID          int64     `db:"channel_id" json:"channel_id"`
	ChannelUsername    string    `db:"channel_username" json:"channel_username"`
	ChannelAvatar      string    `db:"channel_avatar" json:"channel_avatar"`
	ChannelCoverImage  *string   `db:"channel_cover_image" json:"channel_cover_image"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// SubscriptionPage is one page of a user's subscriptions, newest first.
type SubscriptionPage struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Total         int            `json:"total"`
	CurrentPage   int            `json:"current_page"`
	TotalPages    int            `json:"total_pages"`
	HasNextPage   bool           `json:"has_next_page"`
	HasPrevPage   bool           `json:"has_prev_page"`
}

var (
	ErrAlreadySubscribed   = errors.New("already subscribed to this channel")
	ErrNotSubscribed       = errors.New("not subscribed to this channel")
	ErrCannotSubscribeSelf = errors.New("cannot subscribe to yourself")
)
