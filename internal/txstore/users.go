package txstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridianfi/ledger/internal/model"
)

// CreateUser inserts a new user. A unique violation on username or email
// surfaces through IsUniqueViolation for the caller to map to Conflict.
func (db *DB) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	now := time.Now().UTC()
	user.ID = uuid.New()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("txstore: create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return db.scanUser(ctx,
		`SELECT id, username, email, password_hash, created_at, updated_at
		 FROM users WHERE username = $1`, username)
}

// GetUserByID retrieves a user by id.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return db.scanUser(ctx,
		`SELECT id, username, email, password_hash, created_at, updated_at
		 FROM users WHERE id = $1`, id)
}

func (db *DB) scanUser(ctx context.Context, query string, arg any) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("txstore: get user: %w", err)
	}
	return u, nil
}
