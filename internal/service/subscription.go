package service

import (
	"context"
	"fmt"

	"istream/internal/model"
	"istream/internal/repository"
)

// SubscriptionService maintains the subscriber→channel graph.
type SubscriptionService struct {
	subscriptionRepo repository.SubscriptionRepository
	userRepo         repository.UserRepository
}

func NewSubscriptionService(
	subscriptionRepo repository.SubscriptionRepository,
	userRepo repository.UserRepository,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		userRepo:         userRepo,
	}
}

// Subscribe creates the edge with display fields copied from both parties at
// creation time. The self-edge check runs before any lookup, so it fails the
// same way whether or not the channel exists.
func (s *SubscriptionService) Subscribe(ctx context.Context, subscriberID, channelID int64) (*model.Subscription, error) {
	if subscriberID == channelID {
		return nil, model.ErrCannotSubscribeSelf
	}

	channel, err := s.userRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	subscriber, err := s.userRepo.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	sub := &model.Subscription{
		SubscriberID:       subscriber.ID,
		SubscriberUsername: subscriber.Username,
		SubscriberAvatar:   subscriber.AvatarURL,
		ChannelID:          channel.ID,
		ChannelUsername:    channel.Username,
		ChannelAvatar:      channel.AvatarURL,
		ChannelCoverImage:  channel.CoverImageURL,
	}

	inserted, err := s.subscriptionRepo.Create(ctx, sub)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, model.ErrAlreadySubscribed
	}

	return sub, nil
}

// Unsubscribe deletes the edge; deleting an edge that does not exist is an
// error, not a no-op.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, subscriberID, channelID int64) error {
	return s.subscriptionRepo.Delete(ctx, subscriberID, channelID)
}

// IsSubscribed reports whether the edge exists.
func (s *SubscriptionService) IsSubscribed(ctx context.Context, subscriberID, channelID int64) (bool, error) {
	return s.subscriptionRepo.Exists(ctx, subscriberID, channelID)
}

// ListSubscriptions returns one page of the user's subscriptions, newest
// first, with the standard pagination flags.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, subscriberID int64, page, pageSize int) (*model.SubscriptionPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 12
	}

	subs, err := s.subscriptionRepo.ListBySubscriber(ctx, subscriberID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.subscriptionRepo.CountBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &model.SubscriptionPage{
		Subscriptions: subs,
		Total:         total,
		CurrentPage:   page,
		TotalPages:    totalPages,
		HasNextPage:   page < totalPages,
		HasPrevPage:   page > 1,
	}, nil
}

// SubscriberCount returns how many users subscribe to the channel.
func (s *SubscriptionService) SubscriberCount(ctx context.Context, channelID int64) (int, error) {
	n, err := s.subscriptionRepo.CountByChannel(ctx, channelID)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return n, nil
}

// SubscriptionCount returns how many channels the user subscribes to.
func (s *SubscriptionService) SubscriptionCount(ctx context.Context, subscriberID int64) (int, error) {
	n, err := s.subscriptionRepo.CountBySubscriber(ctx, subscriberID)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}
