package agent

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwag-labs/tailwag/internal/license"
)

type fakeFetcher struct {
	token string
	err   error
	calls int
}

func (f *fakeFetcher) FetchGrant(_ context.Context, _ uuid.UUID) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type managerFixture struct {
	manager  *LicenseManager
	store    *StateStore
	fetcher  *fakeFetcher
	keyPair  *license.KeyPair
	tenantID uuid.UUID
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	kp, err := license.GenerateKeyPair()
	require.NoError(t, err)
	keys, err := license.NewKeySet(kp.PublicKey)
	require.NoError(t, err)

	store := newTestStateStore(t)
	fetcher := &fakeFetcher{}
	tenantID := uuid.New()

	return &managerFixture{
		manager:  NewLicenseManager(store, fetcher, keys, tenantID, zerolog.Nop()),
		store:    store,
		fetcher:  fetcher,
		keyPair:  kp,
		tenantID: tenantID,
	}
}

func (fx *managerFixture) signGrant(t *testing.T, tenantID uuid.UUID, expiresAt time.Time) string {
	t.Helper()
	grant := &license.Grant{
		TenantID:  tenantID,
		PlanKey:   license.PlanClinic,
		Status:    license.SubscriptionActive,
		MaxSeats:  10,
		ExpiresAt: expiresAt.UTC().Truncate(time.Second),
		GraceDays: 7,
		IssuedAt:  time.Now().UTC().Truncate(time.Second),
		KeyID:     fx.keyPair.KeyID(),
	}
	token, err := license.EncodeToken(grant, fx.keyPair.PrivateKey)
	require.NoError(t, err)
	return token
}

func TestLicenseManager_RecheckStoresFreshGrant(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()

	state, err := fx.manager.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, license.StateUnregistered, state)

	fx.fetcher.token = fx.signGrant(t, fx.tenantID, time.Now().AddDate(0, 1, 0))
	require.NoError(t, fx.manager.Recheck(ctx))

	state, err = fx.manager.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, license.StateActive, state)
}

func TestLicenseManager_RecheckFailuresLeaveStateUntouched(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()

	fx.fetcher.token = fx.signGrant(t, fx.tenantID, time.Now().AddDate(0, 1, 0))
	require.NoError(t, fx.manager.Recheck(ctx))

	before, err := fx.store.GetLicenseState(ctx, fx.tenantID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		prepare func()
		wantErr error
	}{
		{
			"hub unreachable",
			func() { fx.fetcher.err = license.ErrIssuerUnreachable },
			license.ErrIssuerUnreachable,
		},
		{
			"plan revoked at hub",
			func() { fx.fetcher.err = license.ErrNoActivePlan },
			license.ErrNoActivePlan,
		},
		{
			"hub returns grant for another tenant",
			func() {
				fx.fetcher.err = nil
				fx.fetcher.token = fx.signGrant(t, uuid.New(), time.Now().AddDate(0, 1, 0))
			},
			license.ErrTenantMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepare()

			err := fx.manager.Recheck(ctx)
			assert.ErrorIs(t, err, tt.wantErr)

			after, err := fx.store.GetLicenseState(ctx, fx.tenantID)
			require.NoError(t, err)
			require.NotNil(t, after)
			assert.Equal(t, before.Token, after.Token)
			assert.Equal(t, before.LastCheckedAt.Unix(), after.LastCheckedAt.Unix())

			state, err := fx.manager.CurrentState(ctx)
			require.NoError(t, err)
			assert.Equal(t, license.StateActive, state)
		})
	}
}

func TestLicenseManager_RecheckRejectsUntrustedToken(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()

	impostor, err := license.GenerateKeyPair()
	require.NoError(t, err)
	grant := &license.Grant{
		TenantID:  fx.tenantID,
		PlanKey:   license.PlanClinic,
		Status:    license.SubscriptionActive,
		MaxSeats:  10,
		ExpiresAt: time.Now().AddDate(0, 1, 0),
		GraceDays: 7,
		IssuedAt:  time.Now(),
		KeyID:     impostor.KeyID(),
	}
	token, err := license.EncodeToken(grant, impostor.PrivateKey)
	require.NoError(t, err)
	fx.fetcher.token = token

	err = fx.manager.Recheck(ctx)
	assert.ErrorIs(t, err, license.ErrInvalidSignature)

	state, err := fx.manager.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, license.StateUnregistered, state)
}

func TestLicenseManager_RecheckSameTokenAdvancesCheckTime(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()

	fx.fetcher.token = fx.signGrant(t, fx.tenantID, time.Now().AddDate(0, 1, 0))
	require.NoError(t, fx.manager.Recheck(ctx))

	first, err := fx.store.GetLicenseState(ctx, fx.tenantID)
	require.NoError(t, err)

	fx.manager.now = func() time.Time { return first.LastCheckedAt.Add(24 * time.Hour) }
	require.NoError(t, fx.manager.Recheck(ctx))

	second, err := fx.store.GetLicenseState(ctx, fx.tenantID)
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)
	assert.True(t, second.LastCheckedAt.After(first.LastCheckedAt))
}

func TestLicenseManager_BlockedRecoversOnFreshGrant(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()

	// Cache a grant that is already past its grace window.
	fx.fetcher.token = fx.signGrant(t, fx.tenantID, time.Now().AddDate(0, 0, -30))
	require.NoError(t, fx.manager.Recheck(ctx))

	state, err := fx.manager.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, license.StateBlocked, state)

	// A renewed grant moves straight back to active.
	fx.fetcher.token = fx.signGrant(t, fx.tenantID, time.Now().AddDate(0, 1, 0))
	require.NoError(t, fx.manager.Recheck(ctx))

	state, err = fx.manager.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, license.StateActive, state)
}

func TestLicenseManager_Status(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()

	report, err := fx.manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, license.StateUnregistered, report.State)

	fx.fetcher.token = fx.signGrant(t, fx.tenantID, time.Now().AddDate(0, 1, 0))
	require.NoError(t, fx.manager.Recheck(ctx))

	report, err = fx.manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, license.StateActive, report.State)
	assert.Equal(t, license.PlanClinic, report.PlanKey)
	require.NotNil(t, report.LastCheckedAt)
}

func TestLicenseManager_Reset(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()

	fx.fetcher.token = fx.signGrant(t, fx.tenantID, time.Now().AddDate(0, 1, 0))
	require.NoError(t, fx.manager.Recheck(ctx))
	require.NoError(t, fx.manager.Reset(ctx))

	state, err := fx.manager.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, license.StateUnregistered, state)
}
