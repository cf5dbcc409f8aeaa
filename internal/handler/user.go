package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"istream/internal/httputil"
	"istream/internal/model"
	"istream/internal/service"
	"istream/internal/transport/http/middleware"
)

type UserHandler struct {
	userService  *service.UserService
	mediaService *service.MediaService
}

func NewUserHandler(userService *service.UserService, mediaService *service.MediaService) *UserHandler {
	return &UserHandler{userService: userService, mediaService: mediaService}
}

// Me returns the authenticated user's own record.
// GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			httputil.WriteNotFound(w, "User not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to fetch user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// ChangePassword verifies the old password before setting a new one.
// PATCH /users/me/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req model.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.userService.ChangePassword(r.Context(), userID, &req); err != nil {
		switch {
		case errors.Is(err, model.ErrValidation):
			httputil.WriteBadRequest(w, "New password and confirmation do not match")
		case errors.Is(err, model.ErrInvalidCredentials):
			httputil.WriteUnauthorized(w, "Old password is incorrect")
		case errors.Is(err, model.ErrUserNotFound):
			httputil.WriteNotFound(w, "User not found")
		default:
			httputil.WriteInternalError(w, "Failed to change password")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

// UpdateAccount applies partial profile edits.
// PATCH /users/me
func (h *UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req model.UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	user, err := h.userService.UpdateAccount(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrUserExists):
			httputil.WriteConflict(w, "Email or username already in use")
		case errors.Is(err, model.ErrUserNotFound):
			httputil.WriteNotFound(w, "User not found")
		default:
			httputil.WriteInternalError(w, "Failed to update account")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// UpdateAvatar replaces the avatar and deletes the previous object from
// storage. Deletion failure is logged, not surfaced.
// PATCH /users/me/avatar
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.mediaService.UploadAvatar, h.userService.UpdateAvatar)
}

// UpdateCoverImage replaces the channel cover the same way avatars are handled.
// PATCH /users/me/cover
func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "cover_image", h.mediaService.UploadCover, h.userService.UpdateCoverImage)
}

func (h *UserHandler) updateImage(
	w http.ResponseWriter, r *http.Request, field string,
	upload imageUploadFunc,
	persist func(ctx context.Context, userID int64, url string, key *string) (*string, error),
) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	if err := r.ParseMultipartForm(int64(model.MaxCoverSizeBytes) + 1024*1024); err != nil {
		httputil.WriteBadRequest(w, "Invalid form data")
		return
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		httputil.WriteBadRequest(w, field+" file is required")
		return
	}
	defer file.Close()

	result, err := upload(r.Context(), file, header)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrFileTooLarge):
			httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Upload exceeds size limit")
		case errors.Is(err, model.ErrInvalidImageType):
			httputil.WriteBadRequestWithCode(w, model.CodeInvalidImageType, "Unsupported image type. Allowed: jpeg, png, gif, webp")
		default:
			httputil.WriteInternalError(w, "Failed to upload "+field)
		}
		return
	}

	previousKey, err := persist(r.Context(), userID, result.URL, &result.Key)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			httputil.WriteNotFound(w, "User not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to update "+field)
		return
	}

	if previousKey != nil && *previousKey != "" {
		if err := h.mediaService.DeleteObject(r.Context(), *previousKey); err != nil {
			log.Printf("[UserHandler] failed to delete old %s object %s: %v", field, *previousKey, err)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// ChannelProfile returns the public view of a channel by username, including
// a page of its published videos.
// GET /users/{username}/channel
func (h *UserHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 12)

	profile, err := h.userService.GetChannelProfile(r.Context(), username, page, limit)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			httputil.WriteNotFound(w, "Channel not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to fetch channel profile")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, profile)
}

// WatchHistory lists the authenticated user's watched videos, most recent
// first.
// GET /users/me/history
func (h *UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	videos, err := h.userService.GetWatchHistory(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to fetch watch history")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, videos)
}

// ClearWatchHistory removes every history entry for the user.
// DELETE /users/me/history
func (h *UserHandler) ClearWatchHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	if err := h.userService.ClearWatchHistory(r.Context(), userID); err != nil {
		httputil.WriteInternalError(w, "Failed to clear watch history")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Watch history cleared"})
}

// RemoveFromWatchHistory deletes a single history entry.
// DELETE /users/me/history/{videoID}
func (h *UserHandler) RemoveFromWatchHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	videoID, err := strconv.ParseInt(chi.URLParam(r, "videoID"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid video ID")
		return
	}

	if err := h.userService.RemoveFromWatchHistory(r.Context(), userID, videoID); err != nil {
		httputil.WriteInternalError(w, "Failed to remove history entry")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "History entry removed"})
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is missing or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
