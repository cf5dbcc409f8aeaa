package model

import "errors"

// TokenPair represents both tokens returned after login/refresh. They are
// never persisted as an entity: the refresh token string is stored on the
// user row as the single source of validity.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // Seconds until access token expires
}

// AccessClaims is the decoded payload of a verified access token.
type AccessClaims struct {
	UserID int64
	Role   string
}

// Token errors
var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")

	// ErrRefreshTokenStale is returned when a structurally valid refresh
	// token no longer matches the stored one: it was superseded by a newer
	// rotation or revoked by logout. Reuse of a stale token is treated as
	// replay and ends the session.
	ErrRefreshTokenStale = errors.New("refresh token is expired or used")
)

// Token API error codes (used in HTTP responses)
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeTokenReused  = "TOKEN_REUSED"
)

// LoginResponse is returned after successful login
type LoginResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshRequest is the request body for POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
