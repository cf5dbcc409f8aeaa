package model

import (
	"errors"
	"time"
)

// Auth providers for User.AuthProvider
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// Roles for User.Role
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the system. Password is nullable because
// Google-provisioned accounts never set one; GoogleID is nullable for local
// accounts. RefreshToken holds the single currently-valid refresh token, so
// issuing a new session invalidates the previous one.
type User struct {
	ID             int64      `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	Email          string     `db:"email" json:"email"`
	PasswordHashed *string    `db:"password_hashed" json:"-"` // "-" hides from JSON output
	FullName       string     `db:"full_name" json:"full_name"`
	AvatarURL      string     `db:"avatar_url" json:"avatar_url"`
	AvatarKey      *string    `db:"avatar_key" json:"-"`
	CoverImageURL  *string    `db:"cover_image_url" json:"cover_image_url"`
	CoverImageKey  *string    `db:"cover_image_key" json:"-"`
	Role           string     `db:"role" json:"role"`
	AuthProvider   string     `db:"auth_provider" json:"auth_provider"`
	GoogleID       *string    `db:"google_id" json:"-"`
	IsVerified     bool       `db:"is_verified" json:"is_verified"`
	OTPCode        *string    `db:"otp_code" json:"-"`
	OTPExpiresAt   *time.Time `db:"otp_expires_at" json:"-"`
	RefreshToken   *string    `db:"refresh_token" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// HasPendingOTP reports whether an unexpired verification code is stored.
func (u *User) HasPendingOTP(now time.Time) bool {
	return u.OTPCode != nil && u.OTPExpiresAt != nil && now.Before(*u.OTPExpiresAt)
}

// RegisterRequest represents the data needed to register a new user.
// Avatar/cover fields are filled by the handler after the upload step.
type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`

	AvatarURL     string  `json:"-"`
	AvatarKey     *string `json:"-"`
	CoverImageURL *string `json:"-"`
	CoverImageKey *string `json:"-"`
}

// LoginRequest represents the data needed to log in. Identifier matches
// either username or email.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// VerifyOTPRequest is the request body for POST /auth/verify-otp
type VerifyOTPRequest struct {
	UserID int64  `json:"user_id"`
	OTP    string `json:"otp"`
}

// ResendOTPRequest is the request body for POST /auth/resend-otp
type ResendOTPRequest struct {
	Email string `json:"email"`
}

// ChangePasswordRequest is the request body for PUT /users/me/password
type ChangePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// UpdateAccountRequest carries partial profile edits. Nil fields are left
// untouched.
type UpdateAccountRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

// ChannelProfile is the public channel view: the owner plus subscriber
// counts and a page of their approved videos.
type ChannelProfile struct {
	ID                int64   `json:"id"`
	Username          string  `json:"username"`
	FullName          string  `json:"full_name"`
	Email             string  `json:"email"`
	AvatarURL         string  `json:"avatar_url"`
	CoverImageURL     *string `json:"cover_image_url"`
	SubscriberCount   int     `json:"subscriber_count"`
	SubscriptionCount int     `json:"subscription_count"`
	Videos            []Video `json:"videos"`
	VideoCount        int     `json:"video_count"`
	CurrentPage       int     `json:"current_page"`
	TotalPages        int     `json:"total_pages"`
	HasNextPage       bool    `json:"has_next_page"`
	HasPrevPage       bool    `json:"has_prev_page"`
}

var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when the username or email is already taken
	ErrUserExists = errors.New("user with email or username already exists")

	// ErrInvalidCredentials is returned when login credentials are incorrect
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrValidation is returned for blank or malformed input
	ErrValidation = errors.New("validation failed")

	// ErrInvalidOTP is returned when no OTP is pending, the code mismatches,
	// or the code has expired
	ErrInvalidOTP = errors.New("otp is incorrect or expired")

	// ErrOTPRateLimited is returned when an OTP reissue is requested too often
	ErrOTPRateLimited = errors.New("otp requested too frequently")

	// ErrDependency is returned when an external collaborator (email sender,
	// object storage, identity provider) fails
	ErrDependency = errors.New("dependency failure")
)
