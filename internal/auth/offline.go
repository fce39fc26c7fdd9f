package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// ErrNoOfflineRecord is returned by OfflineStore implementations when no
// record exists for a user. It never escapes the cache: Verify maps it to
// ErrBadCredentials so unknown-user and wrong-password responses are
// identical.
var ErrNoOfflineRecord = errors.New("no offline auth record")

// OfflineRecord is one user's device-local credential verifier. The verifier
// is a salted one-way hash; the plaintext is never stored and the record is
// never sent back to the hub.
type OfflineRecord struct {
	UserID   uuid.UUID
	Email    string
	TenantID uuid.UUID
	Verifier string
}

// OfflineStore persists offline auth records on the local device.
type OfflineStore interface {
	GetOfflineAuth(ctx context.Context, email string) (*OfflineRecord, error)
	PutOfflineAuth(ctx context.Context, record *OfflineRecord) error
}

// dummyVerifier is compared against when no record exists, so the response
// for an unknown user is produced the same way as for a wrong password.
var dummyVerifier = func() string {
	h, _ := bcrypt.GenerateFromPassword([]byte("tailwag-dummy-credential"), bcrypt.MinCost)
	return string(h)
}()

// OfflineAuthCache verifies credentials against device-local records when
// the primary identity store is unreachable.
type OfflineAuthCache struct {
	store  OfflineStore
	logger zerolog.Logger
}

// NewOfflineAuthCache creates an offline auth cache over the given store.
func NewOfflineAuthCache(store OfflineStore, logger zerolog.Logger) *OfflineAuthCache {
	return &OfflineAuthCache{
		store:  store,
		logger: logger.With().Str("component", "offline_auth").Logger(),
	}
}

// Refresh computes and stores a new verifier for the user, replacing any
// prior record. It must be called only immediately after a successful online
// authentication.
func (c *OfflineAuthCache) Refresh(ctx context.Context, userID uuid.UUID, email, password string, tenantID uuid.UUID) error {
	verifier, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash credential: %w", err)
	}

	record := &OfflineRecord{
		UserID:   userID,
		Email:    email,
		TenantID: tenantID,
		Verifier: verifier,
	}

	if err := c.store.PutOfflineAuth(ctx, record); err != nil {
		return fmt.Errorf("store offline auth record: %w", err)
	}

	c.logger.Debug().Str("user_id", userID.String()).Msg("offline auth record refreshed")
	return nil
}

// Verify checks a password against the stored verifier. It returns
// ErrBadCredentials for both unknown users and non-matching passwords;
// nothing in the result reveals which case occurred.
func (c *OfflineAuthCache) Verify(ctx context.Context, email, password string) (*OfflineRecord, error) {
	record, err := c.store.GetOfflineAuth(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNoOfflineRecord) {
			_ = CheckPassword(dummyVerifier, password)
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("read offline auth record: %w", err)
	}

	if err := CheckPassword(record.Verifier, password); err != nil {
		return nil, ErrBadCredentials
	}

	return record, nil
}
