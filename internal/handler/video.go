package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"istream/internal/httputil"
	"istream/internal/model"
	"istream/internal/service"
	"istream/internal/transport/http/middleware"
)

type VideoHandler struct {
	videoService      *service.VideoService
	engagementService *service.EngagementService
	userService       *service.UserService
	mediaService      *service.MediaService
}

func NewVideoHandler(
	videoService *service.VideoService,
	engagementService *service.EngagementService,
	userService *service.UserService,
	mediaService *service.MediaService,
) *VideoHandler {
	return &VideoHandler{
		videoService:      videoService,
		engagementService: engagementService,
		userService:       userService,
		mediaService:      mediaService,
	}
}

// Upload ingests a video file plus thumbnail and creates an unapproved
// catalog entry. The video stays hidden until an admin approves it.
// POST /videos
func (h *VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	owner, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	maxFormSize := int64(model.MaxVideoSizeBytes+model.MaxCoverSizeBytes) + 1024*1024
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Upload exceeds size limit")
			return
		}
		httputil.WriteBadRequest(w, "Invalid form data")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		httputil.WriteBadRequest(w, "Title is required")
		return
	}

	videoFile, videoHeader, err := r.FormFile("video")
	if err != nil {
		httputil.WriteBadRequest(w, "video file is required")
		return
	}
	defer videoFile.Close()

	videoResult, err := h.mediaService.UploadVideo(r.Context(), videoFile, videoHeader)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrFileTooLarge):
			httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Video exceeds size limit")
		case errors.Is(err, model.ErrInvalidVideoType):
			httputil.WriteBadRequestWithCode(w, model.CodeInvalidVideoType, "Unsupported video type. Allowed: mp4, webm")
		default:
			httputil.WriteInternalError(w, "Failed to upload video")
		}
		return
	}

	req := model.UploadVideoRequest{
		Title:       title,
		Description: r.FormValue("description"),
		IsPublished: r.FormValue("is_published") != "false",
		VideoURL:    videoResult.URL,
		VideoKey:    videoResult.Key,
	}
	if d := strings.TrimSpace(r.FormValue("duration")); d != "" {
		req.Duration = &d
	}

	if thumbFile, thumbHeader, err := r.FormFile("thumbnail"); err == nil {
		defer thumbFile.Close()
		thumbResult, err := h.mediaService.UploadThumbnail(r.Context(), thumbFile, thumbHeader)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrFileTooLarge):
				httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Thumbnail exceeds size limit")
			case errors.Is(err, model.ErrInvalidImageType):
				httputil.WriteBadRequestWithCode(w, model.CodeInvalidImageType, "Unsupported image type. Allowed: jpeg, png, gif, webp")
			default:
				httputil.WriteInternalError(w, "Failed to upload thumbnail")
			}
			return
		}
		req.ThumbnailURL = thumbResult.URL
		req.ThumbnailKey = thumbResult.Key
	}

	video, err := h.videoService.Upload(r.Context(), owner, &req)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			httputil.WriteBadRequest(w, "Title and description are required")
			return
		}
		httputil.WriteInternalError(w, "Failed to create video")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, video)
}

// List returns approved, published videos, newest first.
// GET /videos
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "limit", 12)

	result, err := h.videoService.ListApproved(r.Context(), page, pageSize)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list videos")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Search matches titles case-insensitively against the query string.
// GET /videos/search?q=...
func (h *VideoHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		httputil.WriteBadRequest(w, "Search query is required")
		return
	}

	result, err := h.videoService.Search(r.Context(), query, queryInt(r, "page", 1), queryInt(r, "limit", 12))
	if err != nil {
		httputil.WriteInternalError(w, "Failed to search videos")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Get returns a single video. Unpublished or unapproved videos are only
// visible to their owner or an admin.
// GET /videos/{videoID}
func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	claims, _ := middleware.GetClaimsFromContext(r.Context())

	var (
		video *model.Video
		err   error
	)
	if claims != nil {
		video, err = h.videoService.GetForOwnerOrAdmin(r.Context(), videoID, claims)
		if errors.Is(err, model.ErrVideoNotOwned) {
			// Not theirs: fall back to the public view, same as a guest.
			video, err = h.videoService.GetPublicByID(r.Context(), videoID)
		}
	} else {
		video, err = h.videoService.GetPublicByID(r.Context(), videoID)
	}
	if err != nil {
		if errors.Is(err, model.ErrVideoNotFound) {
			httputil.WriteNotFound(w, "Video not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to fetch video")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, video)
}

// MyVideos lists the authenticated user's own uploads regardless of
// visibility.
// GET /videos/mine
func (h *VideoHandler) MyVideos(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	result, err := h.videoService.ListByOwner(r.Context(), userID, queryInt(r, "page", 1), queryInt(r, "limit", 12))
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list videos")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Update applies an owner's partial edit of title, description, visibility
// and thumbnail. Multipart like Upload; absent fields keep their value.
// PUT /videos/{videoID}
func (h *VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	if err := r.ParseMultipartForm(int64(model.MaxCoverSizeBytes) + 1024*1024); err != nil {
		httputil.WriteBadRequest(w, "Invalid form data")
		return
	}

	var req model.UpdateVideoRequest
	if values, found := r.MultipartForm.Value["title"]; found && len(values) > 0 {
		req.Title = &values[0]
	}
	if values, found := r.MultipartForm.Value["description"]; found && len(values) > 0 {
		req.Description = &values[0]
	}
	if values, found := r.MultipartForm.Value["is_published"]; found && len(values) > 0 {
		published := values[0] != "false"
		req.IsPublished = &published
	}

	if thumbFile, thumbHeader, err := r.FormFile("thumbnail"); err == nil {
		defer thumbFile.Close()
		thumbResult, err := h.mediaService.UploadThumbnail(r.Context(), thumbFile, thumbHeader)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrFileTooLarge):
				httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Thumbnail exceeds size limit")
			case errors.Is(err, model.ErrInvalidImageType):
				httputil.WriteBadRequestWithCode(w, model.CodeInvalidImageType, "Unsupported image type. Allowed: jpeg, png, gif, webp")
			default:
				httputil.WriteInternalError(w, "Failed to upload thumbnail")
			}
			return
		}
		req.ThumbnailURL = thumbResult.URL
		req.ThumbnailKey = thumbResult.Key
	}

	video, err := h.videoService.UpdateDetails(r.Context(), videoID, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrValidation):
			httputil.WriteBadRequest(w, "Title cannot be empty")
		case errors.Is(err, model.ErrVideoNotOwned):
			httputil.WriteForbidden(w, "You do not own this video")
		case errors.Is(err, model.ErrVideoNotFound):
			httputil.WriteNotFound(w, "Video not found")
		default:
			httputil.WriteInternalError(w, "Failed to update video")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, video)
}

// Pending lists videos awaiting approval, oldest first.
// GET /videos/pending (admin)
func (h *VideoHandler) Pending(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	result, err := h.videoService.ListPending(r.Context(), claims, queryInt(r, "page", 1), queryInt(r, "limit", 12))
	if err != nil {
		if errors.Is(err, model.ErrVideoAdminRequired) {
			httputil.WriteForbidden(w, "Admin privileges required")
			return
		}
		httputil.WriteInternalError(w, "Failed to list pending videos")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// ToggleApproval flips the admin approval flag.
// PATCH /videos/{videoID}/approval
func (h *VideoHandler) ToggleApproval(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	video, err := h.videoService.ToggleApproval(r.Context(), videoID, claims)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrVideoAdminRequired):
			httputil.WriteForbidden(w, "Admin privileges required")
		case errors.Is(err, model.ErrVideoNotFound):
			httputil.WriteNotFound(w, "Video not found")
		default:
			httputil.WriteInternalError(w, "Failed to update approval")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, video)
}

// TogglePrivacy flips the owner's published flag.
// PATCH /videos/{videoID}/privacy
func (h *VideoHandler) TogglePrivacy(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	video, err := h.videoService.TogglePrivacy(r.Context(), videoID, userID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrVideoNotOwned):
			httputil.WriteForbidden(w, "You do not own this video")
		case errors.Is(err, model.ErrVideoNotFound):
			httputil.WriteNotFound(w, "Video not found")
		default:
			httputil.WriteInternalError(w, "Failed to update privacy")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, video)
}

// Delete removes a video and its stored objects.
// DELETE /videos/{videoID}
func (h *VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	if err := h.videoService.Delete(r.Context(), videoID, userID); err != nil {
		switch {
		case errors.Is(err, model.ErrVideoNotOwned):
			httputil.WriteForbidden(w, "You do not own this video")
		case errors.Is(err, model.ErrVideoNotFound):
			httputil.WriteNotFound(w, "Video not found")
		case errors.Is(err, model.ErrDependency):
			httputil.WriteDependencyError(w, "Failed to remove stored media")
		default:
			httputil.WriteInternalError(w, "Failed to delete video")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Video deleted"})
}

// RecordView counts a playback. Authenticated viewers are deduplicated via
// watch history; guests always increment.
// POST /videos/{videoID}/views
func (h *VideoHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	var viewerID *int64
	if userID, authed := middleware.GetUserIDFromContext(r.Context()); authed {
		viewerID = &userID
	}

	if err := h.engagementService.RecordView(r.Context(), videoID, viewerID); err != nil {
		if errors.Is(err, model.ErrVideoNotFound) {
			httputil.WriteNotFound(w, "Video not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to record view")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "View recorded"})
}

// React toggles a like or dislike. Sending the current reaction again clears
// it; sending the opposite switches it.
// POST /videos/{videoID}/reactions
func (h *VideoHandler) React(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	action := r.URL.Query().Get("type")
	if action == "" {
		var body struct {
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			action = body.Type
		}
	}

	result, err := h.engagementService.React(r.Context(), userID, videoID, action)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidReactionType):
			httputil.WriteBadRequest(w, "Reaction must be like or dislike")
		case errors.Is(err, model.ErrVideoNotFound):
			httputil.WriteNotFound(w, "Video not found")
		default:
			httputil.WriteInternalError(w, "Failed to record reaction")
		}
		return
	}

	state, err := h.engagementService.Reactions(r.Context(), videoID, &userID)
	if err != nil {
		log.Printf("[VideoHandler] failed to load reaction counts for video %d: %v", videoID, err)
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"reaction": result})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, state)
}

// Reactions returns like/dislike counts plus the viewer's own reaction when
// authenticated.
// GET /videos/{videoID}/reactions
func (h *VideoHandler) Reactions(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	var viewerID *int64
	if userID, authed := middleware.GetUserIDFromContext(r.Context()); authed {
		viewerID = &userID
	}

	state, err := h.engagementService.Reactions(r.Context(), videoID, viewerID)
	if err != nil {
		if errors.Is(err, model.ErrVideoNotFound) {
			httputil.WriteNotFound(w, "Video not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to fetch reactions")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, state)
}

// LikedVideos lists videos the authenticated user has liked, most recent
// like first.
// GET /videos/liked
func (h *VideoHandler) LikedVideos(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	result, err := h.engagementService.LikedVideos(r.Context(), userID, queryInt(r, "page", 1), queryInt(r, "limit", 12))
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list liked videos")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *VideoHandler) videoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "videoID"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid video ID")
		return 0, false
	}
	return id, true
}
