package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"istream/internal/model"
)

const testSecret = "middleware-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func validToken(t *testing.T, userID int64, role string) string {
	return signToken(t, testSecret, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(15 * time.Minute).Unix(),
		"iat":     time.Now().Unix(),
	})
}

// captureHandler records the claims the middleware attached.
func captureHandler(gotUserID *int64, gotRole *string, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if id, ok := GetUserIDFromContext(r.Context()); ok {
			*gotUserID = id
		}
		if role, ok := GetRoleFromContext(r.Context()); ok {
			*gotRole = role
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_BearerHeader(t *testing.T) {
	var userID int64
	var role string
	var called bool
	handler := AuthMiddleware(testSecret)(captureHandler(&userID, &role, &called))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, 42, model.RoleAdmin))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !called {
		t.Fatal("handler was not reached")
	}
	if userID != 42 || role != model.RoleAdmin {
		t.Errorf("claims = (%d, %q), want (42, %q)", userID, role, model.RoleAdmin)
	}
}

func TestAuthMiddleware_CookieFallback(t *testing.T) {
	var userID int64
	var role string
	var called bool
	handler := AuthMiddleware(testSecret)(captureHandler(&userID, &role, &called))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: validToken(t, 7, model.RoleUser)})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || userID != 7 {
		t.Errorf("status = %d, user = %d, want 200/7", rec.Code, userID)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	var userID int64
	var role string
	var called bool
	handler := AuthMiddleware(testSecret)(captureHandler(&userID, &role, &called))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler must not run without a token")
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	var userID int64
	var role string
	var called bool
	handler := AuthMiddleware(testSecret)(captureHandler(&userID, &role, &called))

	forged := signToken(t, "some-other-secret", jwt.MapClaims{
		"user_id": int64(1),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || called {
		t.Errorf("status = %d, called = %v, want 401/false", rec.Code, called)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	var userID int64
	var role string
	var called bool
	handler := AuthMiddleware(testSecret)(captureHandler(&userID, &role, &called))

	expired := signToken(t, testSecret, jwt.MapClaims{
		"user_id": int64(1),
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || called {
		t.Errorf("status = %d, called = %v, want 401/false", rec.Code, called)
	}
}

func TestAuthMiddleware_MissingRoleDefaultsToUser(t *testing.T) {
	var userID int64
	var role string
	var called bool
	handler := AuthMiddleware(testSecret)(captureHandler(&userID, &role, &called))

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"user_id": int64(5),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if role != model.RoleUser {
		t.Errorf("role = %q, want %q", role, model.RoleUser)
	}
}

func TestOptionalAuthMiddleware_AnonymousPassthrough(t *testing.T) {
	var userID int64
	var role string
	var called bool
	handler := OptionalAuthMiddleware(testSecret)(captureHandler(&userID, &role, &called))

	req := httptest.NewRequest(http.MethodPost, "/videos/1/views", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !called {
		t.Errorf("status = %d, called = %v, want 200/true", rec.Code, called)
	}
	if userID != 0 {
		t.Error("anonymous request must carry no user id")
	}
}

func TestOptionalAuthMiddleware_InvalidTokenStaysAnonymous(t *testing.T) {
	var userID int64
	var role string
	var called bool
	handler := OptionalAuthMiddleware(testSecret)(captureHandler(&userID, &role, &called))

	req := httptest.NewRequest(http.MethodPost, "/videos/1/views", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !called {
		t.Errorf("status = %d, called = %v, want 200/true", rec.Code, called)
	}
	if userID != 0 {
		t.Error("a bad token downgrades to anonymous, not 401")
	}
}

func TestOptionalAuthMiddleware_AttachesClaims(t *testing.T) {
	var userID int64
	var role string
	var called bool
	handler := OptionalAuthMiddleware(testSecret)(captureHandler(&userID, &role, &called))

	req := httptest.NewRequest(http.MethodPost, "/videos/1/views", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, 9, model.RoleUser))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if userID != 9 {
		t.Errorf("user id = %d, want 9", userID)
	}
}
