// users.go handles user and API key database operations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// CreateUser inserts a new user record, filling in ID and CreatedAt.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()

	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO users (id, email, password_hash, name, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, u.Name, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := db.GetContext(ctx, &u, db.Rebind(`SELECT * FROM users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := db.GetContext(ctx, &u, db.Rebind(`SELECT * FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// --- API Key Operations ---

// CreateAPIKey stores a new API key (the hash, not the raw key).
func (db *DB) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	key.ID = uuid.NewString()
	key.CreatedAt = time.Now().UTC()

	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, active, rate_limit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		key.ID, key.UserID, key.KeyHash, key.KeyPrefix, key.Name, key.Active, key.RateLimit, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash looks up an active API key by its SHA-256 hash.
func (db *DB) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	err := db.GetContext(ctx, &key,
		db.Rebind(`SELECT * FROM api_keys WHERE key_hash = ? AND active = ?`), hash, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invalid API key: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return &key, nil
}

// UpdateAPIKeyLastUsed records when a key was last used.
func (db *DB) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx,
		db.Rebind(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`), time.Now().UTC(), id)
	return err
}

// ListAPIKeys returns API keys, newest first. A non-nil userID limits the
// list to keys linked to that user.
func (db *DB) ListAPIKeys(ctx context.Context, userID *string) ([]models.APIKey, error) {
	keys := []models.APIKey{}
	query := `SELECT * FROM api_keys`
	var args []any
	if userID != nil {
		query += ` WHERE user_id = ?`
		args = append(args, *userID)
	}
	query += ` ORDER BY created_at DESC`

	if err := db.SelectContext(ctx, &keys, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey deactivates an API key. A non-nil userID restricts the
// update to keys that user owns.
func (db *DB) RevokeAPIKey(ctx context.Context, id string, userID *string) error {
	query := `UPDATE api_keys SET active = ? WHERE id = ?`
	args := []any{false, id}
	if userID != nil {
		query += ` AND user_id = ?`
		args = append(args, *userID)
	}

	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("API key %s: %w", id, ErrNotFound)
	}
	return nil
}
