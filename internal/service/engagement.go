package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"istream/internal/model"
	"istream/internal/repository"
)

// EngagementService maintains per-user reaction state and the view counter.
//
// Reaction toggling is the 3-state machine {none, like, dislike}:
//
//	none    + like    → like      (create)
//	like    + like    → none      (delete)
//	dislike + like    → like      (update)
//
// and symmetrically for dislike. Each transition is a conditional write on
// the unique (user, video) pair inside one transaction.
type EngagementService struct {
	reactionRepo     repository.ReactionRepository
	videoRepo        repository.VideoRepository
	watchHistoryRepo repository.WatchHistoryRepository
	db               *sqlx.DB
}

func NewEngagementService(
	reactionRepo repository.ReactionRepository,
	videoRepo repository.VideoRepository,
	watchHistoryRepo repository.WatchHistoryRepository,
	db *sqlx.DB,
) *EngagementService {
	return &EngagementService{
		reactionRepo:     reactionRepo,
		videoRepo:        videoRepo,
		watchHistoryRepo: watchHistoryRepo,
		db:               db,
	}
}

// React applies one action from the transition table and returns the
// resulting state.
func (s *EngagementService) React(ctx context.Context, userID, videoID int64, action string) (string, error) {
	if !model.IsValidReactionType(action) {
		return "", model.ErrInvalidReactionType
	}

	exists, err := s.videoRepo.Exists(ctx, videoID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", model.ErrVideoNotFound
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Toggle-off first: deleting the row succeeds only when the stored type
	// equals the action. Otherwise the upsert either creates the row or
	// switches like↔dislike in place, with no intermediate none state.
	deleted, err := s.reactionRepo.DeleteMatching(ctx, tx, userID, videoID, action)
	if err != nil {
		return "", err
	}

	result := action
	if deleted {
		result = model.ReactionNone
	} else {
		if err := s.reactionRepo.Upsert(ctx, tx, userID, videoID, action); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

// Reactions returns the counts and, when viewerID is set, the viewer's own
// state.
func (s *EngagementService) Reactions(ctx context.Context, videoID int64, viewerID *int64) (*model.ReactionState, error) {
	counts, err := s.reactionRepo.Counts(ctx, videoID)
	if err != nil {
		return nil, err
	}

	state := &model.ReactionState{
		Likes:        counts.Likes,
		Dislikes:     counts.Dislikes,
		UserReaction: model.ReactionNone,
	}

	if viewerID != nil {
		reaction, err := s.reactionRepo.Get(ctx, *viewerID, videoID)
		if err != nil {
			return nil, err
		}
		if reaction != nil {
			state.UserReaction = reaction.Type
		}
	}

	return state, nil
}

// UserReaction returns like, dislike or none for the pair.
func (s *EngagementService) UserReaction(ctx context.Context, userID, videoID int64) (string, error) {
	reaction, err := s.reactionRepo.Get(ctx, userID, videoID)
	if err != nil {
		return "", err
	}
	if reaction == nil {
		return model.ReactionNone, nil
	}
	return reaction.Type, nil
}

// RecordView counts a view and maintains the viewer's watch history.
//
// Authenticated: the counter increments only when the video was absent from
// the watch history (first view); otherwise the entry is promoted to the
// front. Guests have no identity to dedupe against, so every guest call
// counts.
func (s *EngagementService) RecordView(ctx context.Context, videoID int64, viewerID *int64) error {
	exists, err := s.videoRepo.Exists(ctx, videoID)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrVideoNotFound
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if viewerID == nil {
		if err := s.videoRepo.IncrementViews(ctx, tx, videoID); err != nil {
			return err
		}
		return tx.Commit()
	}

	firstView, err := s.watchHistoryRepo.RecordFirstView(ctx, tx, *viewerID, videoID)
	if err != nil {
		return err
	}

	if firstView {
		if err := s.videoRepo.IncrementViews(ctx, tx, videoID); err != nil {
			return err
		}
	} else {
		if err := s.watchHistoryRepo.Promote(ctx, tx, *viewerID, videoID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LikedVideos returns one page of the videos the user has liked.
func (s *EngagementService) LikedVideos(ctx context.Context, userID int64, page, pageSize int) (*model.VideoPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 12
	}

	videos, err := s.reactionRepo.ListLikedVideos(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.reactionRepo.CountLikedVideos(ctx, userID)
	if err != nil {
		return nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &model.VideoPage{
		Videos:      videos,
		Total:       total,
		CurrentPage: page,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}, nil
}
