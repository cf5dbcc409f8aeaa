package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"istream/internal/model"
	"istream/internal/repository"
)

// ObjectStore is the slice of the media layer the video catalog needs for
// cleanup.
type ObjectStore interface {
	DeleteObject(ctx context.Context, key string) error
}

// VideoService owns the video catalog the engagement ledger hangs off.
type VideoService struct {
	videoRepo repository.VideoRepository
	store     ObjectStore
}

func NewVideoService(videoRepo repository.VideoRepository, store ObjectStore) *VideoService {
	return &VideoService{
		videoRepo: videoRepo,
		store:     store,
	}
}

// Upload persists a new video with the owner's display fields denormalized at
// creation time. New uploads await admin approval.
func (s *VideoService) Upload(ctx context.Context, owner *model.User, req *model.UploadVideoRequest) (*model.Video, error) {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: title and description are required", model.ErrValidation)
	}

	video := &model.Video{
		OwnerID:       owner.ID,
		OwnerUsername: owner.Username,
		OwnerAvatar:   owner.AvatarURL,
		Title:         req.Title,
		Description:   req.Description,
		VideoURL:      req.VideoURL,
		VideoKey:      req.VideoKey,
		ThumbnailURL:  req.ThumbnailURL,
		ThumbnailKey:  req.ThumbnailKey,
		Duration:      req.Duration,
		IsPublished:   req.IsPublished,
		IsApproved:    false,
	}

	if err := s.videoRepo.Create(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

// GetPublicByID returns a published, approved video.
func (s *VideoService) GetPublicByID(ctx context.Context, id int64) (*model.Video, error) {
	return s.videoRepo.GetPublicByID(ctx, id)
}

// GetForOwnerOrAdmin returns any video, restricted to its owner or an admin.
func (s *VideoService) GetForOwnerOrAdmin(ctx context.Context, id int64, viewer *model.AccessClaims) (*model.Video, error) {
	video, err := s.videoRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer.Role != model.RoleAdmin && video.OwnerID != viewer.UserID {
		return nil, model.ErrVideoNotOwned
	}
	return video, nil
}

// ListApproved returns one page of publicly visible videos, newest first.
func (s *VideoService) ListApproved(ctx context.Context, page, pageSize int) (*model.VideoPage, error) {
	return s.page(ctx, page, pageSize,
		func(offset, limit int) ([]model.Video, error) { return s.videoRepo.ListApproved(ctx, offset, limit) },
		func() (int, error) { return s.videoRepo.CountApproved(ctx) },
	)
}

// ListByOwner returns one page of the owner's videos regardless of state.
func (s *VideoService) ListByOwner(ctx context.Context, ownerID int64, page, pageSize int) (*model.VideoPage, error) {
	return s.page(ctx, page, pageSize,
		func(offset, limit int) ([]model.Video, error) {
			return s.videoRepo.ListByOwner(ctx, ownerID, offset, limit)
		},
		func() (int, error) { return s.videoRepo.CountByOwner(ctx, ownerID) },
	)
}

// Search matches publicly visible videos by title.
func (s *VideoService) Search(ctx context.Context, query string, page, pageSize int) (*model.VideoPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", model.ErrValidation)
	}
	return s.page(ctx, page, pageSize,
		func(offset, limit int) ([]model.Video, error) { return s.videoRepo.Search(ctx, query, offset, limit) },
		func() (int, error) { return s.videoRepo.CountSearch(ctx, query) },
	)
}

// UpdateDetails applies an owner's partial edit. When a replacement thumbnail
// was uploaded the old object is deleted after the row update; a failed
// cleanup is logged, not surfaced.
func (s *VideoService) UpdateDetails(ctx context.Context, videoID, ownerID int64, req *model.UpdateVideoRequest) (*model.Video, error) {
	video, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.OwnerID != ownerID {
		return nil, model.ErrVideoNotOwned
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", model.ErrValidation)
		}
		video.Title = title
	}
	if req.Description != nil {
		video.Description = *req.Description
	}
	if req.IsPublished != nil {
		video.IsPublished = *req.IsPublished
	}

	previousThumbnailKey := ""
	if req.ThumbnailURL != "" {
		previousThumbnailKey = video.ThumbnailKey
		video.ThumbnailURL = req.ThumbnailURL
		video.ThumbnailKey = req.ThumbnailKey
	}

	if err := s.videoRepo.Update(ctx, video); err != nil {
		return nil, err
	}

	if previousThumbnailKey != "" {
		if err := s.store.DeleteObject(ctx, previousThumbnailKey); err != nil {
			log.Printf("[VideoService] failed to delete old thumbnail object %s: %v", previousThumbnailKey, err)
		}
	}
	return video, nil
}

// ListPending returns the admin review queue, oldest upload first.
func (s *VideoService) ListPending(ctx context.Context, viewer *model.AccessClaims, page, pageSize int) (*model.VideoPage, error) {
	if viewer.Role != model.RoleAdmin {
		return nil, model.ErrVideoAdminRequired
	}
	return s.page(ctx, page, pageSize,
		func(offset, limit int) ([]model.Video, error) { return s.videoRepo.ListPending(ctx, offset, limit) },
		func() (int, error) { return s.videoRepo.CountPending(ctx) },
	)
}

// ToggleApproval flips the admin approval flag.
func (s *VideoService) ToggleApproval(ctx context.Context, videoID int64, viewer *model.AccessClaims) (*model.Video, error) {
	if viewer.Role != model.RoleAdmin {
		return nil, model.ErrVideoAdminRequired
	}

	video, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if err := s.videoRepo.SetApproval(ctx, videoID, !video.IsApproved); err != nil {
		return nil, err
	}
	video.IsApproved = !video.IsApproved
	return video, nil
}

// TogglePrivacy flips the owner's published flag.
func (s *VideoService) TogglePrivacy(ctx context.Context, videoID, ownerID int64) (*model.Video, error) {
	video, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.OwnerID != ownerID {
		return nil, model.ErrVideoNotOwned
	}
	if err := s.videoRepo.SetPublished(ctx, videoID, !video.IsPublished); err != nil {
		return nil, err
	}
	video.IsPublished = !video.IsPublished
	return video, nil
}

// Delete removes the stored objects first, then the row. A storage failure
// aborts so no row points at half-deleted objects.
func (s *VideoService) Delete(ctx context.Context, videoID, ownerID int64) error {
	video, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		return err
	}
	if video.OwnerID != ownerID {
		return model.ErrVideoNotOwned
	}

	if video.VideoKey != "" {
		if err := s.store.DeleteObject(ctx, video.VideoKey); err != nil {
			return fmt.Errorf("%w: delete video object: %v", model.ErrDependency, err)
		}
	}
	if video.ThumbnailKey != "" {
		if err := s.store.DeleteObject(ctx, video.ThumbnailKey); err != nil {
			return fmt.Errorf("%w: delete thumbnail object: %v", model.ErrDependency, err)
		}
	}

	return s.videoRepo.Delete(ctx, videoID)
}

func (s *VideoService) page(
	ctx context.Context,
	page, pageSize int,
	list func(offset, limit int) ([]model.Video, error),
	count func() (int, error),
) (*model.VideoPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 9
	}

	videos, err := list((page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	total, err := count()
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
