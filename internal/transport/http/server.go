package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"
	"time"

	"istream/internal/config"
	"istream/internal/database"
	"istream/internal/email"
	"istream/internal/handler"
	"istream/internal/oauth"
	iredis "istream/internal/redis"
	"istream/internal/repository"
	"istream/internal/service"
)

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// 3. Connect to Redis (optional; OTP rate limiting degrades to off)
	var otpLimiter service.OTPRateLimiter
	if cfg.RedisURL != "" {
		rdb, err := iredis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Printf("[Server] Redis unavailable, OTP rate limiting disabled: %v", err)
		} else {
			defer rdb.Close()
			if err := rdb.Ping(context.Background()); err != nil {
				log.Printf("[Server] Redis ping failed, OTP rate limiting disabled: %v", err)
			} else {
				otpLimiter = service.NewRedisOTPRateLimiter(rdb.Client, time.Minute, 1)
			}
		}
	}

	// 4. Repositories
	userRepo := repository.NewUserRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	videoRepo := repository.NewVideoRepository(db)
	watchHistoryRepo := repository.NewWatchHistoryRepository(db)

	// 5. Outbound dependencies
	emailSender, err := email.NewSMTPSender(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure email sender: %w", err)
	}

	mediaService, err := service.NewMediaService(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to configure media storage: %w", err)
	}

	googleProvider := oauth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)

	// 6. Services
	userService := service.NewUserService(userRepo, subscriptionRepo, videoRepo, watchHistoryRepo, db, emailSender, otpLimiter, cfg.DefaultAvatarURL)
	authService := service.NewAuthService(userRepo, cfg)
	subscriptionService := service.NewSubscriptionService(subscriptionRepo, userRepo)
	engagementService := service.NewEngagementService(reactionRepo, videoRepo, watchHistoryRepo, db)
	videoService := service.NewVideoService(videoRepo, mediaService)

	// 7. Handlers and router
	router := NewRouter(RouterConfig{
		AuthHandler:         handler.NewAuthHandler(userService, authService, mediaService, googleProvider, cfg),
		UserHandler:         handler.NewUserHandler(userService, mediaService),
		SubscriptionHandler: handler.NewSubscriptionHandler(subscriptionService),
		VideoHandler:        handler.NewVideoHandler(videoService, engagementService, userService, mediaService),
		JWTSecret:           cfg.AccessTokenSecret,
	})

	addr := ":" + cfg.ServerPort
	log.Printf("Starting server on %s", addr)
	return stdhttp.ListenAndServe(addr, router)
}
