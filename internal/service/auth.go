package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"istream/internal/config"
	"istream/internal/model"
	"istream/internal/repository"
)

// AuthService is the token authority: it mints, verifies, rotates and revokes
// access/refresh token pairs. Access tokens are stateless; refresh tokens are
// also signed JWTs but their validity is anchored to the single refresh_token
// column on the user row, which makes every account a single-session account.
type AuthService struct {
	userRepo repository.UserRepository
	config   *config.Config
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		config:   cfg,
	}
}

// Issue mints a new token pair and stores the refresh token as the account's
// sole valid one. Any previously issued refresh token becomes stale.
func (s *AuthService) Issue(ctx context.Context, userID int64, role string) (*model.TokenPair, error) {
	accessToken, err := s.generateAccessToken(userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	if err := s.userRepo.SetRefreshToken(ctx, userID, &refreshToken); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.config.AccessTokenMaxAge,
	}, nil
}

// VerifyAccess validates an access token statelessly and returns its claims.
func (s *AuthService) VerifyAccess(tokenString string) (*model.AccessClaims, error) {
	claims, err := parseHS256(tokenString, s.config.AccessTokenSecret)
	if err != nil {
		return nil, err
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return nil, model.ErrTokenInvalid
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = model.RoleUser
	}

	return &model.AccessClaims{UserID: int64(userIDFloat), Role: role}, nil
}

// Rotate validates the presented refresh token and swaps it for a new pair.
// The swap is a compare-and-swap on the stored token, so of two concurrent
// rotations with the same prior token exactly one succeeds; the loser (and
// any replay of a superseded token) gets ErrRefreshTokenStale.
func (s *AuthService) Rotate(ctx context.Context, presented string) (*model.TokenPair, int64, error) {
	claims, err := parseHS256(presented, s.config.RefreshTokenSecret)
	if err != nil {
		return nil, 0, err
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return nil, 0, model.ErrTokenInvalid
	}
	userID := int64(userIDFloat)

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, 0, model.ErrTokenInvalid
		}
		return nil, 0, err
	}

	accessToken, err := s.generateAccessToken(userID, user.Role)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.generateRefreshToken(userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	swapped, err := s.userRepo.SwapRefreshToken(ctx, userID, presented, refreshToken)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if !swapped {
		// The stored token changed underneath us: a newer rotation already
		// happened or the session was revoked. Reuse of the old token is
		// how replay after theft or logout surfaces.
		return nil, 0, model.ErrRefreshTokenStale
	}

	return &model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.config.AccessTokenMaxAge,
	}, userID, nil
}

// Revoke clears the stored refresh token, ending the session. Idempotent:
// revoking an already-revoked session succeeds.
func (s *AuthService) Revoke(ctx context.Context, userID int64) error {
	if err := s.userRepo.SetRefreshToken(ctx, userID, nil); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *AuthService) generateAccessToken(userID int64, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     now.Add(time.Duration(s.config.AccessTokenMaxAge) * time.Second).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

// generateRefreshToken signs with its own secret and carries the user id only.
func (s *AuthService) generateRefreshToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(time.Duration(s.config.RefreshTokenMaxAge) * time.Second).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.RefreshTokenSecret))
}

func parseHS256(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrTokenExpired
		}
		return nil, model.ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, model.ErrTokenInvalid
	}
	return claims, nil
}
