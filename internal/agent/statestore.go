// Package agent implements the client-local side of Tailwag licensing and
// authentication: the durable state store, the hub client, the license
// manager, and the background rechecker.
package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tailwag-labs/tailwag/internal/auth"
	"github.com/tailwag-labs/tailwag/internal/license"
)

// StateStore persists license state and offline auth records on the local
// device using SQLite. Writes go through SQLite transactions (atomic
// replace), so a crash mid-write never corrupts the previously committed
// row. Access is serialized per key above the driver.
type StateStore struct {
	db     *sql.DB
	locks  keyedLocks
	logger zerolog.Logger
}

// NewStateStore opens (or creates) the local state database in dataDir.
func NewStateStore(dataDir string, logger zerolog.Logger) (*StateStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "state.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &StateStore{
		db:     db,
		logger: logger.With().Str("component", "state_store").Logger(),
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store.logger.Info().Str("path", dbPath).Msg("local state database initialized")
	return store, nil
}

// migrate creates the necessary tables.
func (s *StateStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS license_state (
			tenant_id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			plan_key TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			grace_days INTEGER NOT NULL,
			last_checked_at TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS offline_auth (
			email TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			verifier TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// GetLicenseState returns the cached license state for a tenant, or nil if
// the tenant has never been registered. The state of tenant A is never
// visible when operating as tenant B: every read is keyed by tenant.
func (s *StateStore) GetLicenseState(ctx context.Context, tenantID uuid.UUID) (*license.CachedState, error) {
	unlock := s.locks.lock("license:" + tenantID.String())
	defer unlock()

	var token, lastCheckedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT token, last_checked_at FROM license_state WHERE tenant_id = ?
	`, tenantID.String()).Scan(&token, &lastCheckedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read license state: %w", err)
	}

	checkedAt, err := time.Parse(time.RFC3339, lastCheckedAt)
	if err != nil {
		return nil, fmt.Errorf("license state unreadable: %w", err)
	}

	return &license.CachedState{
		Token:         token,
		LastCheckedAt: checkedAt,
	}, nil
}

// PutLicenseState persists a freshly verified grant, replacing any prior
// entry for the tenant. lastCheckedAt only moves forward; an older timestamp
// keeps the existing one.
func (s *StateStore) PutLicenseState(ctx context.Context, grant *license.Grant, token string, checkedAt time.Time) error {
	unlock := s.locks.lock("license:" + grant.TenantID.String())
	defer unlock()

	checkedAt = s.clampCheckedAt(ctx, grant.TenantID, checkedAt)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO license_state (tenant_id, token, plan_key, expires_at, grace_days, last_checked_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(tenant_id) DO UPDATE SET
			token = excluded.token,
			plan_key = excluded.plan_key,
			expires_at = excluded.expires_at,
			grace_days = excluded.grace_days,
			last_checked_at = excluded.last_checked_at,
			updated_at = excluded.updated_at
	`,
		grant.TenantID.String(),
		token,
		string(grant.PlanKey),
		grant.ExpiresAt.UTC().Format(time.RFC3339),
		grant.GraceDays,
		checkedAt.UTC().Format(time.RFC3339),
	)

	if err != nil {
		return fmt.Errorf("write license state: %w", err)
	}

	s.logger.Debug().
		Str("tenant_id", grant.TenantID.String()).
		Str("plan_key", string(grant.PlanKey)).
		Msg("license state stored")
	return nil
}

// TouchLicenseState advances only the check timestamp, used after a
// verification pass reconfirms an already-cached grant.
func (s *StateStore) TouchLicenseState(ctx context.Context, tenantID uuid.UUID, checkedAt time.Time) error {
	unlock := s.locks.lock("license:" + tenantID.String())
	defer unlock()

	// RFC3339 UTC strings compare lexically in time order.
	_, err := s.db.ExecContext(ctx, `
		UPDATE license_state SET last_checked_at = ?, updated_at = datetime('now')
		WHERE tenant_id = ? AND last_checked_at <= ?
	`,
		checkedAt.UTC().Format(time.RFC3339),
		tenantID.String(),
		checkedAt.UTC().Format(time.RFC3339),
	)

	if err != nil {
		return fmt.Errorf("touch license state: %w", err)
	}
	return nil
}

// ResetLicenseState deletes the tenant's cached license state. This is the
// only deletion path; it exists for explicit tenant reset.
func (s *StateStore) ResetLicenseState(ctx context.Context, tenantID uuid.UUID) error {
	unlock := s.locks.lock("license:" + tenantID.String())
	defer unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM license_state WHERE tenant_id = ?`, tenantID.String()); err != nil {
		return fmt.Errorf("reset license state: %w", err)
	}

	s.logger.Info().Str("tenant_id", tenantID.String()).Msg("license state reset")
	return nil
}

// clampCheckedAt keeps lastCheckedAt monotonically non-decreasing.
func (s *StateStore) clampCheckedAt(ctx context.Context, tenantID uuid.UUID, checkedAt time.Time) time.Time {
	var existing string
	err := s.db.QueryRowContext(ctx, `
		SELECT last_checked_at FROM license_state WHERE tenant_id = ?
	`, tenantID.String()).Scan(&existing)
	if err != nil {
		return checkedAt
	}
	prev, err := time.Parse(time.RFC3339, existing)
	if err != nil {
		return checkedAt
	}
	if prev.After(checkedAt) {
		return prev
	}
	return checkedAt
}

// GetOfflineAuth returns the offline auth record for an email, or
// auth.ErrNoOfflineRecord if none exists.
func (s *StateStore) GetOfflineAuth(ctx context.Context, email string) (*auth.OfflineRecord, error) {
	unlock := s.locks.lock("auth:" + email)
	defer unlock()

	var userID, tenantID, verifier string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, tenant_id, verifier FROM offline_auth WHERE email = ?
	`, email).Scan(&userID, &tenantID, &verifier)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNoOfflineRecord
		}
		return nil, fmt.Errorf("read offline auth record: %w", err)
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("offline auth record unreadable: %w", err)
	}
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("offline auth record unreadable: %w", err)
	}

	return &auth.OfflineRecord{
		UserID:   uid,
		Email:    email,
		TenantID: tid,
		Verifier: verifier,
	}, nil
}

// PutOfflineAuth stores an offline auth record, discarding any prior record
// for the user. Last writer wins.
func (s *StateStore) PutOfflineAuth(ctx context.Context, record *auth.OfflineRecord) error {
	unlock := s.locks.lock("auth:" + record.Email)
	defer unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offline_auth (email, user_id, tenant_id, verifier, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(email) DO UPDATE SET
			user_id = excluded.user_id,
			tenant_id = excluded.tenant_id,
			verifier = excluded.verifier,
			updated_at = excluded.updated_at
	`, record.Email, record.UserID.String(), record.TenantID.String(), record.Verifier)

	if err != nil {
		return fmt.Errorf("write offline auth record: %w", err)
	}
	return nil
}

// keyedLocks serializes operations per key so a read never observes a
// partially written record and concurrent refreshes coalesce.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
