package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"istream/internal/model"
)

const userColumns = `id, username, email, password_hashed, full_name, avatar_url, avatar_key,
	cover_image_url, cover_image_key, role, auth_provider, google_id, is_verified,
	otp_code, otp_expires_at, refresh_token, created_at, updated_at`

// userRepository implements UserRepository using sqlx
type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user. It runs inside the caller's transaction when tx
// is non-nil so registration can be rolled back if the OTP email fails.
func (r *userRepository) Create(ctx context.Context, tx *sqlx.Tx, u *model.User) error {
	query := `
		INSERT INTO users (username, email, password_hashed, full_name, avatar_url, avatar_key,
		                   cover_image_url, cover_image_key, role, auth_provider, google_id,
		                   is_verified, otp_code, otp_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	var row *sqlx.Row
	args := []interface{}{
		u.Username, u.Email, u.PasswordHashed, u.FullName, u.AvatarURL, u.AvatarKey,
		u.CoverImageURL, u.CoverImageKey, u.Role, u.AuthProvider, u.GoogleID,
		u.IsVerified, u.OTPCode, u.OTPExpiresAt,
	}
	if tx != nil {
		row = tx.QueryRowxContext(ctx, query, args...)
	} else {
		row = r.db.QueryRowxContext(ctx, query, args...)
	}

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return model.ErrUserExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *userRepository) getOne(ctx context.Context, where string, arg interface{}) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	var u model.User
	err := r.db.GetContext(ctx, &u, query, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByUsername retrieves a user by their username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "username = $1", username)
}

// GetByEmail retrieves a user by their email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email = $1", email)
}

// GetByIdentifier matches either username or email in a single lookup,
// the login-path contract.
func (r *userRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	return r.getOne(ctx, "username = $1 OR email = $1", identifier)
}

// GetByGoogleID retrieves a user by their federated Google id
func (r *userRepository) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.getOne(ctx, "google_id = $1", googleID)
}

// ExistsByUsernameOrEmail checks whether either unique field is taken
func (r *userRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, username, email)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// UpdateAccount applies partial profile edits via COALESCE so nil fields are
// left untouched.
func (r *userRepository) UpdateAccount(ctx context.Context, id int64, req *model.UpdateAccountRequest) (*model.User, error) {
	query := `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
		    email = COALESCE($3, email),
		    username = COALESCE($4, username),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	var u model.User
	err := r.db.GetContext(ctx, &u, query, id, req.FullName, req.Email, req.Username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrUserNotFound
		}
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, model.ErrUserExists
		}
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return &u, nil
}

func (r *userRepository) UpdateAvatar(ctx context.Context, id int64, url string, key *string) error {
	query := `UPDATE users SET avatar_url = $2, avatar_key = $3, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, url, key)
}

func (r *userRepository) UpdateCoverImage(ctx context.Context, id int64, url string, key *string) error {
	query := `UPDATE users SET cover_image_url = $2, cover_image_key = $3, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, url, key)
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHashed string) error {
	query := `UPDATE users SET password_hashed = $2, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, passwordHashed)
}

// LinkGoogleAccount attaches a federated id to an existing local account so a
// single email authenticates via either path.
func (r *userRepository) LinkGoogleAccount(ctx context.Context, id int64, googleID string) error {
	query := `UPDATE users SET google_id = $2, auth_provider = $3, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, googleID, model.ProviderGoogle)
}

// SetOTP stores a fresh challenge, superseding any pending one.
func (r *userRepository) SetOTP(ctx context.Context, id int64, code string, expiresAt time.Time) error {
	query := `UPDATE users SET otp_code = $2, otp_expires_at = $3, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, code, expiresAt)
}

// VerifyOTP flips is_verified and clears the challenge in one conditional
// write, so concurrent submissions of the same code resolve to a single
// success. A matching expired code fails the expiry predicate, not the code
// comparison.
func (r *userRepository) VerifyOTP(ctx context.Context, id int64, code string, now time.Time) (bool, error) {
	query := `
		UPDATE users
		SET is_verified = TRUE, otp_code = NULL, otp_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND otp_code = $2 AND otp_expires_at > $3
	`
	result, err := r.db.ExecContext(ctx, query, id, code, now)
	if err != nil {
		return false, fmt.Errorf("failed to verify otp: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// SetRefreshToken overwrites the stored refresh token unconditionally.
// Passing nil revokes the current session; revoke is idempotent.
func (r *userRepository) SetRefreshToken(ctx context.Context, id int64, token *string) error {
	query := `UPDATE users SET refresh_token = $2, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, token)
}

// SwapRefreshToken is the rotation guard: the UPDATE only lands when the
// stored token still equals the presented one, so two concurrent rotations
// with the same prior token resolve to exactly one winner.
func (r *userRepository) SwapRefreshToken(ctx context.Context, id int64, current, next string) (bool, error) {
	query := `
		UPDATE users SET refresh_token = $3, updated_at = NOW()
		WHERE id = $1 AND refresh_token = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, current, next)
	if err != nil {
		return false, fmt.Errorf("failed to swap refresh token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *userRepository) execExpectingRow(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return model.ErrUserExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrUserNotFound
	}
	return nil
}
