package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"istream/internal/config"
	"istream/internal/model"
)

func testAuthConfig() *config.Config {
	return &config.Config{
		AccessTokenSecret:  "access-secret-for-tests",
		RefreshTokenSecret: "refresh-secret-for-tests",
		AccessTokenMaxAge:  900,
		RefreshTokenMaxAge: 864000,
	}
}

// =============================================================================
// ISSUE + VERIFY
// =============================================================================

func TestAuthService_IssueAndVerifyAccess(t *testing.T) {
	mockRepo := &mockUserRepository{}
	svc := NewAuthService(mockRepo, testAuthConfig())

	pair, err := svc.Issue(context.Background(), 42, model.RoleAdmin)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be set")
	}
	if pair.ExpiresIn != 900 {
		t.Errorf("expires_in = %d, want 900", pair.ExpiresIn)
	}

	// Issuing must persist the refresh token as the account's only session.
	if len(mockRepo.setRefreshTokenCalls) != 1 {
		t.Fatalf("SetRefreshToken calls = %d, want 1", len(mockRepo.setRefreshTokenCalls))
	}
	if stored := mockRepo.setRefreshTokenCalls[0]; stored == nil || *stored != pair.RefreshToken {
		t.Error("stored refresh token does not match issued token")
	}

	claims, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("expected access token to verify, got: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("user_id = %d, want 42", claims.UserID)
	}
	if claims.Role != model.RoleAdmin {
		t.Errorf("role = %q, want %q", claims.Role, model.RoleAdmin)
	}
}

func TestAuthService_VerifyAccess_RejectsRefreshToken(t *testing.T) {
	svc := NewAuthService(&mockUserRepository{}, testAuthConfig())

	pair, err := svc.Issue(context.Background(), 1, model.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// The refresh token is signed with a different secret, so presenting it
	// as an access token must fail.
	if _, err := svc.VerifyAccess(pair.RefreshToken); !errors.Is(err, model.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got: %v", err)
	}
}

func TestAuthService_VerifyAccess_Expired(t *testing.T) {
	cfg := testAuthConfig()
	svc := NewAuthService(&mockUserRepository{}, cfg)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": int64(1),
		"role":    model.RoleUser,
		"exp":     time.Now().Add(-time.Hour).Unix(),
		"iat":     time.Now().Add(-2 * time.Hour).Unix(),
	})
	tokenString, err := expired.SignedString([]byte(cfg.AccessTokenSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.VerifyAccess(tokenString); !errors.Is(err, model.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got: %v", err)
	}
}

func TestAuthService_VerifyAccess_Garbage(t *testing.T) {
	svc := NewAuthService(&mockUserRepository{}, testAuthConfig())

	if _, err := svc.VerifyAccess("not-a-jwt"); !errors.Is(err, model.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got: %v", err)
	}
}

// =============================================================================
// ROTATE
// =============================================================================

func TestAuthService_Rotate_Success(t *testing.T) {
	var stored string
	mockRepo := &mockUserRepository{
		getByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, Role: model.RoleUser}, nil
		},
		setRefreshTokenFn: func(ctx context.Context, id int64, token *string) error {
			stored = *token
			return nil
		},
		swapRefreshTokenFn: func(ctx context.Context, id int64, current, next string) (bool, error) {
			if current != stored {
				return false, nil
			}
			stored = next
			return true, nil
		},
	}
	svc := NewAuthService(mockRepo, testAuthConfig())

	pair, err := svc.Issue(context.Background(), 7, model.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	newPair, userID, err := svc.Rotate(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("expected rotation to succeed, got: %v", err)
	}
	if userID != 7 {
		t.Errorf("user_id = %d, want 7", userID)
	}
	if newPair.RefreshToken == pair.RefreshToken {
		t.Error("rotation must mint a new refresh token")
	}

	// The superseded token is now stale; replaying it must fail.
	if _, _, err := svc.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, model.ErrRefreshTokenStale) {
		t.Errorf("expected ErrRefreshTokenStale on replay, got: %v", err)
	}

	// The fresh token still works.
	if _, _, err := svc.Rotate(context.Background(), newPair.RefreshToken); err != nil {
		t.Errorf("expected fresh token to rotate, got: %v", err)
	}
}

func TestAuthService_Rotate_ConcurrentSingleUse(t *testing.T) {
	// Two goroutines race to rotate the same refresh token. The stored-token
	// compare-and-swap must let exactly one win.
	var mu sync.Mutex
	var stored string
	mockRepo := &mockUserRepository{
		getByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, Role: model.RoleUser}, nil
		},
		setRefreshTokenFn: func(ctx context.Context, id int64, token *string) error {
			mu.Lock()
			defer mu.Unlock()
			stored = *token
			return nil
		},
		swapRefreshTokenFn: func(ctx context.Context, id int64, current, next string) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if current != stored {
				return false, nil
			}
			stored = next
			return true, nil
		},
	}
	svc := NewAuthService(mockRepo, testAuthConfig())

	pair, err := svc.Issue(context.Background(), 9, model.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const racers = 2
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Rotate(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, stales int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, model.ErrRefreshTokenStale):
			stales++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if wins != 1 || stales != 1 {
		t.Errorf("wins = %d, stales = %d, want exactly one of each", wins, stales)
	}
}

func TestAuthService_Rotate_UnknownUser(t *testing.T) {
	mockRepo := &mockUserRepository{
		getByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return nil, model.ErrUserNotFound
		},
	}
	svc := NewAuthService(mockRepo, testAuthConfig())

	pair, err := svc.Issue(context.Background(), 5, model.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// A deleted account's tokens must not identify the account's absence any
	// differently from a forged token.
	if _, _, err := svc.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, model.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got: %v", err)
	}
}

func TestAuthService_Rotate_ExpiredRefreshToken(t *testing.T) {
	cfg := testAuthConfig()
	svc := NewAuthService(&mockUserRepository{}, cfg)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": int64(3),
		"exp":     time.Now().Add(-time.Minute).Unix(),
		"iat":     time.Now().Add(-time.Hour).Unix(),
	})
	tokenString, err := expired.SignedString([]byte(cfg.RefreshTokenSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, _, err := svc.Rotate(context.Background(), tokenString); !errors.Is(err, model.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got: %v", err)
	}
}

// =============================================================================
// REVOKE
// =============================================================================

func TestAuthService_Revoke(t *testing.T) {
	mockRepo := &mockUserRepository{}
	svc := NewAuthService(mockRepo, testAuthConfig())

	if err := svc.Revoke(context.Background(), 11); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(mockRepo.setRefreshTokenCalls) != 1 || mockRepo.setRefreshTokenCalls[0] != nil {
		t.Error("expected refresh token to be cleared with nil")
	}
}

func TestAuthService_Revoke_UnknownUserIsIdempotent(t *testing.T) {
	mockRepo := &mockUserRepository{
		setRefreshTokenFn: func(ctx context.Context, id int64, token *string) error {
			return model.ErrUserNotFound
		},
	}
	svc := NewAuthService(mockRepo, testAuthConfig())

	if err := svc.Revoke(context.Background(), 11); err != nil {
		t.Errorf("expected revoke of missing user to succeed, got: %v", err)
	}
}
