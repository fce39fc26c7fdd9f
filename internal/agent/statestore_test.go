package agent

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwag-labs/tailwag/internal/auth"
	"github.com/tailwag-labs/tailwag/internal/license"
)

func newTestStateStore(t *testing.T) *StateStore {
	t.Helper()
	store, err := NewStateStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testStoredGrant(tenantID uuid.UUID) *license.Grant {
	now := time.Now().UTC().Truncate(time.Second)
	return &license.Grant{
		TenantID:  tenantID,
		PlanKey:   license.PlanClinic,
		Status:    license.SubscriptionActive,
		MaxSeats:  10,
		ExpiresAt: now.AddDate(0, 1, 0),
		GraceDays: 7,
		IssuedAt:  now,
		KeyID:     "abcd1234abcd1234",
	}
}

func TestStateStore_LicenseStateRoundTrip(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	tenantID := uuid.New()

	// Never-registered tenant reads back nil, not an error.
	state, err := store.GetLicenseState(ctx, tenantID)
	require.NoError(t, err)
	assert.Nil(t, state)

	grant := testStoredGrant(tenantID)
	checkedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.PutLicenseState(ctx, grant, "token-1", checkedAt))

	state, err = store.GetLicenseState(ctx, tenantID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "token-1", state.Token)
	assert.Equal(t, checkedAt.Unix(), state.LastCheckedAt.Unix())
}

func TestStateStore_PutIsIdempotentReplace(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	tenantID := uuid.New()
	grant := testStoredGrant(tenantID)
	checkedAt := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.PutLicenseState(ctx, grant, "token-1", checkedAt))
	require.NoError(t, store.PutLicenseState(ctx, grant, "token-1", checkedAt))
	require.NoError(t, store.PutLicenseState(ctx, grant, "token-2", checkedAt.Add(time.Hour)))

	state, err := store.GetLicenseState(ctx, tenantID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "token-2", state.Token)
}

func TestStateStore_CheckedAtNeverMovesBackward(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	tenantID := uuid.New()
	grant := testStoredGrant(tenantID)

	newer := time.Now().UTC().Truncate(time.Second)
	older := newer.Add(-time.Hour)

	require.NoError(t, store.PutLicenseState(ctx, grant, "token-1", newer))

	t.Run("put with an older timestamp keeps the newer one", func(t *testing.T) {
		require.NoError(t, store.PutLicenseState(ctx, grant, "token-1", older))

		state, err := store.GetLicenseState(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, newer.Unix(), state.LastCheckedAt.Unix())
	})

	t.Run("touch with an older timestamp is a no-op", func(t *testing.T) {
		require.NoError(t, store.TouchLicenseState(ctx, tenantID, older))

		state, err := store.GetLicenseState(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, newer.Unix(), state.LastCheckedAt.Unix())
	})

	t.Run("touch with a newer timestamp advances", func(t *testing.T) {
		latest := newer.Add(time.Hour)
		require.NoError(t, store.TouchLicenseState(ctx, tenantID, latest))

		state, err := store.GetLicenseState(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, latest.Unix(), state.LastCheckedAt.Unix())
	})
}

func TestStateStore_Reset(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, store.PutLicenseState(ctx, testStoredGrant(tenantID), "token-1", time.Now()))
	require.NoError(t, store.ResetLicenseState(ctx, tenantID))

	state, err := store.GetLicenseState(ctx, tenantID)
	require.NoError(t, err)
	assert.Nil(t, state)

	// Resetting an already-absent tenant is not an error.
	require.NoError(t, store.ResetLicenseState(ctx, tenantID))
}

func TestStateStore_TenantScoping(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()

	require.NoError(t, store.PutLicenseState(ctx, testStoredGrant(tenantA), "token-a", time.Now()))

	state, err := store.GetLicenseState(ctx, tenantB)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, store.ResetLicenseState(ctx, tenantB))
	state, err = store.GetLicenseState(ctx, tenantA)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "token-a", state.Token)
}

func TestStateStore_OfflineAuthRoundTrip(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()

	_, err := store.GetOfflineAuth(ctx, "nobody@clinic.example")
	assert.ErrorIs(t, err, auth.ErrNoOfflineRecord)

	record := &auth.OfflineRecord{
		UserID:   uuid.New(),
		Email:    "vet@clinic.example",
		TenantID: uuid.New(),
		Verifier: "$2a$10$fakehash",
	}
	require.NoError(t, store.PutOfflineAuth(ctx, record))

	got, err := store.GetOfflineAuth(ctx, "vet@clinic.example")
	require.NoError(t, err)
	assert.Equal(t, record.UserID, got.UserID)
	assert.Equal(t, record.TenantID, got.TenantID)
	assert.Equal(t, record.Verifier, got.Verifier)

	// Last writer wins.
	record.Verifier = "$2a$10$newerhash"
	require.NoError(t, store.PutOfflineAuth(ctx, record))
	got, err = store.GetOfflineAuth(ctx, "vet@clinic.example")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$newerhash", got.Verifier)
}

func TestStateStore_ReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	tenantID := uuid.New()

	store, err := NewStateStore(dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.PutLicenseState(ctx, testStoredGrant(tenantID), "token-1", time.Now()))
	require.NoError(t, store.Close())

	reopened, err := NewStateStore(dir, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	state, err := reopened.GetLicenseState(ctx, tenantID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "token-1", state.Token)
}
