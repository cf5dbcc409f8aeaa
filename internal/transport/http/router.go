package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"istream/internal/handler"
	"istream/internal/httputil"
	authmw "istream/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	AuthHandler         *handler.AuthHandler
	UserHandler         *handler.UserHandler
	SubscriptionHandler *handler.SubscriptionHandler
	VideoHandler        *handler.VideoHandler
	JWTSecret           string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Public routes - no authentication required
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", cfg.AuthHandler.Register)
		r.Post("/verify-otp", cfg.AuthHandler.VerifyOTP)
		r.Post("/resend-otp", cfg.AuthHandler.ResendOTP)
		r.Post("/login", cfg.AuthHandler.Login)
		r.Post("/refresh", cfg.AuthHandler.Refresh)
		r.Get("/google", cfg.AuthHandler.GoogleAuth)
		r.Get("/google/callback", cfg.AuthHandler.GoogleCallback)
	})

	// Public channel and video endpoints with optional authentication
	r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/users/{username}/channel", cfg.UserHandler.ChannelProfile)
	r.Get("/channels/{channelID}/subscribers/count", cfg.SubscriptionHandler.SubscriberCount)

	r.Route("/videos", func(r chi.Router) {
		r.Get("/", cfg.VideoHandler.List)
		r.Get("/search", cfg.VideoHandler.Search)

		// Authenticated catalog endpoints must be registered before {videoID}
		// so chi does not swallow them as an ID.
		r.Group(func(r chi.Router) {
			r.Use(authmw.AuthMiddleware(cfg.JWTSecret))
			r.Get("/mine", cfg.VideoHandler.MyVideos)
			r.Get("/liked", cfg.VideoHandler.LikedVideos)
			r.Get("/pending", cfg.VideoHandler.Pending)
			r.Post("/", cfg.VideoHandler.Upload)
		})

		r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/{videoID}", cfg.VideoHandler.Get)
		r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/{videoID}/reactions", cfg.VideoHandler.Reactions)
		r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Post("/{videoID}/views", cfg.VideoHandler.RecordView)

		r.Group(func(r chi.Router) {
			r.Use(authmw.AuthMiddleware(cfg.JWTSecret))
			r.Post("/{videoID}/reactions", cfg.VideoHandler.React)
			r.Patch("/{videoID}/approval", cfg.VideoHandler.ToggleApproval)
			r.Patch("/{videoID}/privacy", cfg.VideoHandler.TogglePrivacy)
			r.Put("/{videoID}", cfg.VideoHandler.Update)
			r.Delete("/{videoID}", cfg.VideoHandler.Delete)
		})
	})

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/auth/logout", cfg.AuthHandler.Logout)

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", cfg.UserHandler.Me)
			r.Patch("/", cfg.UserHandler.UpdateAccount)
			r.Patch("/password", cfg.UserHandler.ChangePassword)
			r.Patch("/avatar", cfg.UserHandler.UpdateAvatar)
			r.Patch("/cover", cfg.UserHandler.UpdateCoverImage)
			r.Get("/history", cfg.UserHandler.WatchHistory)
			r.Delete("/history", cfg.UserHandler.ClearWatchHistory)
			r.Delete("/history/{videoID}", cfg.UserHandler.RemoveFromWatchHistory)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", cfg.SubscriptionHandler.List)
			r.Post("/{channelID}", cfg.SubscriptionHandler.Subscribe)
			r.Delete("/{channelID}", cfg.SubscriptionHandler.Unsubscribe)
			r.Get("/{channelID}/status", cfg.SubscriptionHandler.Status)
		})
	})

	return r
}
