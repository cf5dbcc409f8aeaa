package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"istream/internal/config"
	"istream/internal/httputil"
	"istream/internal/model"
	"istream/internal/oauth"
	"istream/internal/service"
	"istream/internal/transport/http/middleware"
)

const oauthStateCookie = "oauth_state"

type imageUploadFunc func(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*model.UploadResult, error)

// AuthHandler groups auth-related HTTP endpoints and their dependencies.
type AuthHandler struct {
	userService  *service.UserService
	authService  *service.AuthService
	mediaService *service.MediaService
	google       *oauth.GoogleProvider
	config       *config.Config
}

// NewAuthHandler wires dependencies for authentication endpoints.
func NewAuthHandler(
	userService *service.UserService,
	authService *service.AuthService,
	mediaService *service.MediaService,
	google *oauth.GoogleProvider,
	cfg *config.Config,
) *AuthHandler {
	return &AuthHandler{
		userService:  userService,
		authService:  authService,
		mediaService: mediaService,
		google:       google,
		config:       cfg,
	}
}

// Register handles multipart sign-up with avatar/cover upload.
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	maxFormSize := int64(model.MaxAvatarSizeBytes+model.MaxCoverSizeBytes) + 1024*1024
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			httputil.WriteBadRequest(w, "Content-Type must be multipart/form-data")
			return
		}
		if strings.Contains(err.Error(), "request body too large") {
			httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Upload exceeds size limit")
			return
		}
		httputil.WriteBadRequest(w, "Invalid form data")
		return
	}

	req := model.RegisterRequest{
		FullName: r.FormValue("full_name"),
		Email:    r.FormValue("email"),
		Username: r.FormValue("username"),
		Password: r.FormValue("password"),
	}

	avatar, ok := h.uploadOptionalImage(w, r, "avatar", h.mediaService.UploadAvatar)
	if !ok {
		return
	}
	if avatar != nil {
		req.AvatarURL = avatar.URL
		req.AvatarKey = &avatar.Key
	} else if h.config.DefaultAvatarURL != "" {
		req.AvatarURL = h.config.DefaultAvatarURL
		if h.config.DefaultAvatarKey != "" {
			key := h.config.DefaultAvatarKey
			req.AvatarKey = &key
		}
	}

	cover, ok := h.uploadOptionalImage(w, r, "cover_image", h.mediaService.UploadCover)
	if !ok {
		return
	}
	if cover != nil {
		req.CoverImageURL = &cover.URL
		req.CoverImageKey = &cover.Key
	}

	user, err := h.userService.Register(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrValidation):
			httputil.WriteBadRequest(w, "All fields are required")
		case errors.Is(err, model.ErrUserExists):
			httputil.WriteConflict(w, "User with email or username already exists")
		case errors.Is(err, model.ErrDependency):
			httputil.WriteDependencyError(w, "Failed to deliver verification email")
		default:
			httputil.WriteInternalError(w, "Failed to register")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, user)
}

// VerifyOTP activates a pending account.
// POST /auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.userService.VerifyOTP(r.Context(), req.UserID, req.OTP); err != nil {
		if errors.Is(err, model.ErrInvalidOTP) {
			httputil.WriteBadRequest(w, "OTP is incorrect or expired")
			return
		}
		httputil.WriteInternalError(w, "Failed to verify OTP")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

// ResendOTP reissues a verification code for an unverified account.
// POST /auth/resend-otp
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req model.ResendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.userService.ResendOTP(r.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, model.ErrUserNotFound):
			httputil.WriteNotFound(w, "User not found")
		case errors.Is(err, model.ErrValidation):
			httputil.WriteBadRequest(w, "Account is already verified")
		case errors.Is(err, model.ErrOTPRateLimited):
			httputil.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "OTP requested too frequently")
		case errors.Is(err, model.ErrDependency):
			httputil.WriteDependencyError(w, "Failed to deliver verification email")
		default:
			httputil.WriteInternalError(w, "Failed to resend OTP")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

// Login authenticates with username or email plus password.
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	user, err := h.userService.Login(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrValidation):
			httputil.WriteBadRequest(w, "Identifier and password are required")
		case errors.Is(err, model.ErrUserNotFound):
			httputil.WriteNotFound(w, "User does not exist")
		case errors.Is(err, model.ErrInvalidCredentials):
			httputil.WriteUnauthorized(w, "Invalid credential")
		default:
			httputil.WriteInternalError(w, "Failed to login")
		}
		return
	}

	tokenPair, err := h.authService.Issue(r.Context(), user.ID, user.Role)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to generate tokens")
		return
	}

	h.setAuthCookies(w, tokenPair)
	httputil.WriteJSON(w, http.StatusOK, model.LoginResponse{
		User:         user,
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresIn:    tokenPair.ExpiresIn,
	})
}

// Refresh rotates the token pair.
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := ""
	if cookie, err := r.Cookie("refreshToken"); err == nil {
		refreshToken = cookie.Value
	}
	if refreshToken == "" {
		var req model.RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}
	if refreshToken == "" {
		httputil.WriteUnauthorized(w, "Refresh token is required")
		return
	}

	tokenPair, _, err := h.authService.Rotate(r.Context(), refreshToken)
	if err != nil {
		// Any rotation failure ends the session client-side: the client must
		// discard both tokens and log in again.
		switch {
		case errors.Is(err, model.ErrTokenExpired):
			httputil.WriteUnauthorizedWithCode(w, model.CodeTokenExpired, "Refresh token has expired")
		case errors.Is(err, model.ErrRefreshTokenStale):
			httputil.WriteUnauthorizedWithCode(w, model.CodeTokenReused, "Refresh token is expired or used")
		case errors.Is(err, model.ErrTokenInvalid):
			httputil.WriteUnauthorizedWithCode(w, model.CodeTokenInvalid, "Invalid refresh token")
		default:
			httputil.WriteInternalError(w, "Failed to refresh tokens")
		}
		return
	}

	h.setAuthCookies(w, tokenPair)
	httputil.WriteJSON(w, http.StatusOK, tokenPair)
}

// Logout revokes the current session.
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	if err := h.authService.Revoke(r.Context(), userID); err != nil {
		httputil.WriteInternalError(w, "Failed to logout")
		return
	}

	h.clearAuthCookies(w)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "User logged out"})
}

// GoogleAuth redirects to Google's consent screen.
// GET /auth/google
func (h *AuthHandler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback consumes the provider redirect, resolves the account and
// issues a session. Failures redirect to a generic frontend error page
// instead of exposing internals.
// GET /auth/google/callback
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		h.redirectAuthError(w, r, "invalid oauth state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectAuthError(w, r, "authorization code missing")
		return
	}

	profile, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.redirectAuthError(w, r, "google authentication failed")
		return
	}

	user, err := h.userService.ResolveFederatedLogin(r.Context(), profile)
	if err != nil {
		h.redirectAuthError(w, r, "google authentication failed")
		return
	}

	tokenPair, err := h.authService.Issue(r.Context(), user.ID, user.Role)
	if err != nil {
		h.redirectAuthError(w, r, "failed to create session")
		return
	}

	h.setAuthCookies(w, tokenPair)
	redirectURL := fmt.Sprintf("%s/auth/callback?accessToken=%s&refreshToken=%s",
		h.config.FrontendURL, url.QueryEscape(tokenPair.AccessToken), url.QueryEscape(tokenPair.RefreshToken))
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (h *AuthHandler) redirectAuthError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, fmt.Sprintf("%s/auth/error?message=%s", h.config.FrontendURL, url.QueryEscape(message)), http.StatusFound)
}

// setAuthCookies stores both tokens as HTTP-only, cross-site cookies. No
// server-side cookie store exists; validity is entirely the token authority's.
func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, pair *model.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   h.config.AccessTokenMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refreshToken",
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   h.config.RefreshTokenMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{"accessToken", "refreshToken"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}
}

// uploadOptionalImage uploads a multipart image field when present. The bool
// result is false when an error response has already been written.
func (h *AuthHandler) uploadOptionalImage(w http.ResponseWriter, r *http.Request, field string, upload imageUploadFunc) (*model.UploadResult, bool) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, true
	}
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid "+field+" upload")
		return nil, false
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
		return nil, false
	}
	return result, true
}
