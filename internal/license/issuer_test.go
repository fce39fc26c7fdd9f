package license

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriptionSource struct {
	subs map[uuid.UUID]*Subscription
}

func (f *fakeSubscriptionSource) GetSubscription(_ context.Context, tenantID uuid.UUID) (*Subscription, error) {
	sub, ok := f.subs[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return sub, nil
}

func newTestIssuer(t *testing.T, subs map[uuid.UUID]*Subscription) (*Issuer, *KeyPair) {
	t.Helper()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	issuer, err := NewIssuer(kp.PrivateKey, &fakeSubscriptionSource{subs: subs}, zerolog.Nop())
	require.NoError(t, err)
	return issuer, kp
}

func TestIssuer_Issue(t *testing.T) {
	tenantID := uuid.New()
	renewsAt := time.Now().AddDate(0, 1, 0)

	issuer, kp := newTestIssuer(t, map[uuid.UUID]*Subscription{
		tenantID: {
			TenantID:  tenantID,
			PlanKey:   PlanClinic,
			Status:    SubscriptionActive,
			MaxSeats:  10,
			RenewsAt:  renewsAt,
			GraceDays: 7,
		},
	})

	grant, token, err := issuer.Issue(context.Background(), tenantID)
	require.NoError(t, err)
	require.NotNil(t, grant)
	require.NotEmpty(t, token)

	assert.Equal(t, tenantID, grant.TenantID)
	assert.Equal(t, PlanClinic, grant.PlanKey)
	assert.Equal(t, SubscriptionActive, grant.Status)
	assert.Equal(t, 10, grant.MaxSeats)
	assert.Equal(t, 7, grant.GraceDays)
	assert.Equal(t, issuer.KeyID(), grant.KeyID)
	assert.Equal(t, renewsAt.Unix(), grant.ExpiresAt.Unix())

	// Issued token verifies as ACTIVE on a client bound to the same tenant.
	keys, err := NewKeySet(kp.PublicKey)
	require.NoError(t, err)
	eval, err := NewVerifier(keys, tenantID).VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, StateActive, eval.State)
}

func TestIssuer_Issue_Errors(t *testing.T) {
	suspendedTenant := uuid.New()
	lapsedTenant := uuid.New()

	issuer, _ := newTestIssuer(t, map[uuid.UUID]*Subscription{
		suspendedTenant: {
			TenantID: suspendedTenant,
			PlanKey:  PlanStarter,
			Status:   SubscriptionSuspended,
			MaxSeats: 3,
			RenewsAt: time.Now().AddDate(0, 1, 0),
		},
		lapsedTenant: {
			TenantID: lapsedTenant,
			PlanKey:  PlanStarter,
			Status:   SubscriptionActive,
			MaxSeats: 3,
			RenewsAt: time.Now().AddDate(0, 0, -1),
		},
	})

	tests := []struct {
		name     string
		tenantID uuid.UUID
		wantErr  error
	}{
		{"unknown tenant", uuid.New(), ErrTenantNotFound},
		{"suspended subscription", suspendedTenant, ErrNoActivePlan},
		{"lapsed renewal", lapsedTenant, ErrNoActivePlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant, token, err := issuer.Issue(context.Background(), tt.tenantID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, grant)
			assert.Empty(t, token)
		})
	}
}

func TestIssuer_Issue_PlanDefaults(t *testing.T) {
	tenantID := uuid.New()
	issuer, _ := newTestIssuer(t, map[uuid.UUID]*Subscription{
		tenantID: {
			TenantID: tenantID,
			PlanKey:  PlanMax,
			Status:   SubscriptionActive,
			RenewsAt: time.Now().AddDate(1, 0, 0),
			// MaxSeats and GraceDays unset, plan defaults apply.
		},
	})

	grant, _, err := issuer.Issue(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, Defaults(PlanMax).MaxSeats, grant.MaxSeats)
	assert.Equal(t, Defaults(PlanMax).GraceDays, grant.GraceDays)
}

func TestNewIssuer_InvalidKey(t *testing.T) {
	_, err := NewIssuer([]byte("too short"), &fakeSubscriptionSource{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}
