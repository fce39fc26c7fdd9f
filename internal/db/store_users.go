package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tailwag-labs/tailwag/internal/auth"
	"github.com/tailwag-labs/tailwag/internal/tenant"
)

// User is a hub-side user record in the primary credential store.
type User struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GetUserByEmail returns the user with the given email. The lookup runs as
// the hub service role because it happens before any tenant is bound; it
// returns auth.ErrBadCredentials for unknown emails so the login path treats
// missing and mismatched identically.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, password_hash, active, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrBadCredentials
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return &u, nil
}

// CreateUser inserts a user row with an already-hashed password.
func (db *DB) CreateUser(ctx context.Context, u *User) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO users (id, tenant_id, email, password_hash, active)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.TenantID, u.Email, u.PasswordHash, u.Active)

	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// SeatUsage reports how many seats a tenant is using. Queries run through
// the tenant guard so the row-level-security policy applies; with no tenant
// bound in the context the count fails closed.
type SeatUsage struct {
	db    *DB
	guard *tenant.Guard
}

// NewSeatUsage creates a seat usage counter over the tenant guard.
func NewSeatUsage(db *DB, guard *tenant.Guard) *SeatUsage {
	return &SeatUsage{db: db, guard: guard}
}

// Count returns the tenant's active user count.
func (s *SeatUsage) Count(ctx context.Context) (int, error) {
	var count int
	err := s.guard.Exec(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE active`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count tenant users: %w", err)
	}
	return count, nil
}
