package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"istream/internal/email"
	"istream/internal/model"
	"istream/internal/oauth"
	"istream/internal/repository"
)

const (
	otpLength   = 6
	otpValidity = 10 * time.Minute

	emailSendTimeout = 5 * time.Second
)

// UserService handles registration, OTP verification, credential checks and
// federated Google sign-in.
type UserService struct {
	repo             repository.UserRepository
	subscriptionRepo repository.SubscriptionRepository
	videoRepo        repository.VideoRepository
	watchHistoryRepo repository.WatchHistoryRepository
	db               *sqlx.DB
	emailSender      email.Sender
	otpLimiter       OTPRateLimiter
	defaultAvatarURL string
}

func NewUserService(
	repo repository.UserRepository,
	subscriptionRepo repository.SubscriptionRepository,
	videoRepo repository.VideoRepository,
	watchHistoryRepo repository.WatchHistoryRepository,
	db *sqlx.DB,
	emailSender email.Sender,
	otpLimiter OTPRateLimiter,
	defaultAvatarURL string,
) *UserService {
	return &UserService{
		repo:             repo,
		subscriptionRepo: subscriptionRepo,
		videoRepo:        videoRepo,
		watchHistoryRepo: watchHistoryRepo,
		db:               db,
		emailSender:      emailSender,
		otpLimiter:       otpLimiter,
		defaultAvatarURL: defaultAvatarURL,
	}
}

// Register creates an unverified account and emails its OTP. The user row and
// the email send share one transaction: if delivery fails the insert rolls
// back, so an unverified user never exists without a deliverable code.
func (s *UserService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	fullName := strings.TrimSpace(req.FullName)
	emailAddr := strings.TrimSpace(req.Email)
	username := strings.ToLower(strings.TrimSpace(req.Username))

	if fullName == "" || emailAddr == "" || username == "" || strings.TrimSpace(req.Password) == "" {
		return nil, fmt.Errorf("%w: all fields are required", model.ErrValidation)
	}

	exists, err := s.repo.ExistsByUsernameOrEmail(ctx, username, emailAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists {
		return nil, model.ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	otpCode, err := generateOTP()
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}
	otpExpires := time.Now().Add(otpValidity)

	passwordHashed := string(hashedPassword)
	user := &model.User{
		Username:       username,
		Email:          emailAddr,
		PasswordHashed: &passwordHashed,
		FullName:       fullName,
		AvatarURL:      req.AvatarURL,
		AvatarKey:      req.AvatarKey,
		CoverImageURL:  req.CoverImageURL,
		CoverImageKey:  req.CoverImageKey,
		Role:           model.RoleUser,
		AuthProvider:   model.ProviderLocal,
		IsVerified:     false,
		OTPCode:        &otpCode,
		OTPExpiresAt:   &otpExpires,
	}
	if user.AvatarURL == "" {
		user.AvatarURL = s.defaultAvatarURL
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.Create(ctx, tx, user); err != nil {
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, emailSendTimeout)
	defer cancel()
	if err := s.emailSender.SendOTP(sendCtx, emailAddr, otpCode, otpExpires); err != nil {
		// Rollback happens via the defer: no orphaned unverified user.
		return nil, fmt.Errorf("%w: otp delivery failed: %v", model.ErrDependency, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return user, nil
}

// VerifyOTP activates the account. Mismatch, expiry and absence of a pending
// code are indistinguishable to the caller.
func (s *UserService) VerifyOTP(ctx context.Context, userID int64, code string) error {
	if strings.TrimSpace(code) == "" {
		return model.ErrInvalidOTP
	}

	ok, err := s.repo.VerifyOTP(ctx, userID, code, time.Now())
	if err != nil {
		return fmt.Errorf("failed to verify otp: %w", err)
	}
	if !ok {
		return model.ErrInvalidOTP
	}
	return nil
}

// ResendOTP issues a fresh code for a still-unverified account, superseding
// the pending one. Reissue is rate limited per email.
func (s *UserService) ResendOTP(ctx context.Context, emailAddr string) error {
	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return fmt.Errorf("%w: email is required", model.ErrValidation)
	}

	user, err := s.repo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return fmt.Errorf("%w: account is already verified", model.ErrValidation)
	}

	if s.otpLimiter != nil && !s.otpLimiter.Allow(emailAddr) {
		return model.ErrOTPRateLimited
	}

	otpCode, err := generateOTP()
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}
	otpExpires := time.Now().Add(otpValidity)

	if err := s.repo.SetOTP(ctx, user.ID, otpCode, otpExpires); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, emailSendTimeout)
	defer cancel()
	if err := s.emailSender.SendOTP(sendCtx, emailAddr, otpCode, otpExpires); err != nil {
		return fmt.Errorf("%w: otp delivery failed: %v", model.ErrDependency, err)
	}
	return nil
}

// Login authenticates by username or email. It deliberately does not gate on
// is_verified: verification is enforced where the product wants it, not here.
func (s *UserService) Login(ctx context.Context, req *model.LoginRequest) (*model.User, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", model.ErrValidation)
	}

	user, err := s.repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if user.PasswordHashed == nil {
		// Federation-only account: no password to compare against.
		return nil, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHashed), []byte(req.Password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	return user, nil
}

// ChangePassword replaces the stored hash after re-authenticating with the
// old password.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, req *model.ChangePasswordRequest) error {
	if req.NewPassword == "" || req.NewPassword != req.ConfirmPassword {
		return fmt.Errorf("%w: passwords do not match", model.ErrValidation)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHashed == nil {
		return model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHashed), []byte(req.OldPassword)); err != nil {
		return model.ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, string(hashed))
}

// ResolveFederatedLogin merges a Google sign-in into the account base:
// found by provider id → returning user; found by email → link the federated
// id to the local account; otherwise provision a new pre-verified account.
func (s *UserService) ResolveFederatedLogin(ctx context.Context, profile *oauth.GoogleUser) (*model.User, error) {
	user, err := s.repo.GetByGoogleID(ctx, profile.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", model.ErrDependency, err)
	}

	user, err = s.repo.GetByEmail(ctx, profile.Email)
	if err == nil {
		if err := s.repo.LinkGoogleAccount(ctx, user.ID, profile.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrDependency, err)
		}
		user.GoogleID = &profile.ID
		user.AuthProvider = model.ProviderGoogle
		return user, nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", model.ErrDependency, err)
	}

	avatar := profile.Picture
	if avatar == "" {
		avatar = placeholderAvatarURL(profile.Name)
	}

	googleID := profile.ID
	newUser := &model.User{
		// Timestamp suffix disambiguates collisions on the email local part.
		Username:     fmt.Sprintf("%s_%d", emailLocalPart(profile.Email), time.Now().Unix()),
		Email:        profile.Email,
		FullName:     profile.Name,
		AvatarURL:    avatar,
		Role:         model.RoleUser,
		AuthProvider: model.ProviderGoogle,
		GoogleID:     &googleID,
		IsVerified:   true, // provider-attested, no OTP round
	}

	if err := s.repo.Create(ctx, nil, newUser); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDependency, err)
	}

	log.Printf("[UserService] Provisioned federated account: user=%d email=%s", newUser.ID, newUser.Email)
	return newUser, nil
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateAccount applies partial profile edits. Existing subscription edges
// keep their denormalized copies of the old username/avatar.
func (s *UserService) UpdateAccount(ctx context.Context, userID int64, req *model.UpdateAccountRequest) (*model.User, error) {
	if req.FullName == nil && req.Email == nil && req.Username == nil {
		return nil, fmt.Errorf("%w: at least one field is required", model.ErrValidation)
	}
	if req.Username != nil {
		lowered := strings.ToLower(strings.TrimSpace(*req.Username))
		req.Username = &lowered
	}
	return s.repo.UpdateAccount(ctx, userID, req)
}

// UpdateAvatar stores the new avatar location and returns the previous object
// key so the caller can delete the old object.
func (s *UserService) UpdateAvatar(ctx context.Context, userID int64, url string, key *string) (*string, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAvatar(ctx, userID, url, key); err != nil {
		return nil, err
	}
	return user.AvatarKey, nil
}

// UpdateCoverImage stores the new cover location and returns the previous
// object key.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID int64, url string, key *string) (*string, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCoverImage(ctx, userID, url, key); err != nil {
		return nil, err
	}
	return user.CoverImageKey, nil
}

// GetChannelProfile aggregates the public channel view: owner fields,
// subscriber/subscription counts and a page of approved videos.
func (s *UserService) GetChannelProfile(ctx context.Context, username string, page, limit int) (*model.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", model.ErrValidation)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 9
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	subscriberCount, err := s.subscriptionRepo.CountByChannel(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	subscriptionCount, err := s.subscriptionRepo.CountBySubscriber(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	// Channel pages are public: only published+approved videos are listed,
	// whoever is asking.
	videos, err := s.videoRepo.ListPublicByOwner(ctx, user.ID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	videoCount, err := s.videoRepo.CountPublicByOwner(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	totalPages := (videoCount + limit - 1) / limit
	return &model.ChannelProfile{
		ID:                user.ID,
		Username:          user.Username,
		FullName:          user.FullName,
		Email:             user.Email,
		AvatarURL:         user.AvatarURL,
		CoverImageURL:     user.CoverImageURL,
		SubscriberCount:   subscriberCount,
		SubscriptionCount: subscriptionCount,
		Videos:            videos,
		VideoCount:        videoCount,
		CurrentPage:       page,
		TotalPages:        totalPages,
		HasNextPage:       page < totalPages,
		HasPrevPage:       page > 1,
	}, nil
}

// GetWatchHistory returns the user's watched videos, most recent first.
func (s *UserService) GetWatchHistory(ctx context.Context, userID int64) ([]model.Video, error) {
	return s.watchHistoryRepo.ListVideos(ctx, userID)
}

// ClearWatchHistory removes every entry.
func (s *UserService) ClearWatchHistory(ctx context.Context, userID int64) error {
	return s.watchHistoryRepo.Clear(ctx, userID)
}

// RemoveFromWatchHistory removes a single video from the history.
func (s *UserService) RemoveFromWatchHistory(ctx context.Context, userID, videoID int64) error {
	return s.watchHistoryRepo.Remove(ctx, userID, videoID)
}

// generateOTP returns a 6-digit numeric code from crypto/rand.
func generateOTP() (string, error) {
	max := big.NewInt(900000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func emailLocalPart(address string) string {
	if idx := strings.Index(address, "@"); idx > 0 {
		return address[:idx]
	}
	return address
}

func placeholderAvatarURL(name string) string {
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=random&size=200", url.QueryEscape(name))
}
