package license

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Subscription is a tenant's billing record as the hub sees it. Issuance
// reads it; issuance never mutates it.
type Subscription struct {
	TenantID  uuid.UUID
	PlanKey   PlanKey
	Status    SubscriptionStatus
	MaxSeats  int
	RenewsAt  time.Time
	GraceDays int
}

// SubscriptionSource provides subscription lookups for issuance.
// Implementations return ErrTenantNotFound when no subscription row exists.
type SubscriptionSource interface {
	GetSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
}

// Issuer turns a tenant's subscription into a signed grant. Issuance is
// idempotent: each call produces a fresh grant from current subscription
// state and persists nothing.
type Issuer struct {
	privateKey ed25519.PrivateKey
	keyID      string
	source     SubscriptionSource
	logger     zerolog.Logger
	now        func() time.Time
}

// NewIssuer creates a grant issuer signing with the given private key.
func NewIssuer(privateKey ed25519.PrivateKey, source SubscriptionSource, logger zerolog.Logger) (*Issuer, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	publicKey := privateKey.Public().(ed25519.PublicKey)
	return &Issuer{
		privateKey: privateKey,
		keyID:      KeyID(publicKey),
		source:     source,
		logger:     logger.With().Str("component", "license_issuer").Logger(),
		now:        time.Now,
	}, nil
}

// PublicKey returns the verification key matching the issuer's signing key.
func (i *Issuer) PublicKey() ed25519.PublicKey {
	return i.privateKey.Public().(ed25519.PublicKey)
}

// KeyID returns the identifier of the issuer's verification key.
func (i *Issuer) KeyID() string {
	return i.keyID
}

// Issue composes and signs a grant for the tenant's active subscription.
// It returns ErrTenantNotFound if no subscription exists and ErrNoActivePlan
// if the subscription is not current.
func (i *Issuer) Issue(ctx context.Context, tenantID uuid.UUID) (*Grant, string, error) {
	sub, err := i.source.GetSubscription(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}

	now := i.now()
	if sub.Status != SubscriptionActive || !sub.RenewsAt.After(now) {
		return nil, "", ErrNoActivePlan
	}

	graceDays := sub.GraceDays
	if graceDays <= 0 {
		graceDays = Defaults(sub.PlanKey).GraceDays
	}
	maxSeats := sub.MaxSeats
	if maxSeats <= 0 {
		maxSeats = Defaults(sub.PlanKey).MaxSeats
	}

	grant := &Grant{
		TenantID:  tenantID,
		PlanKey:   sub.PlanKey,
		Status:    sub.Status,
		MaxSeats:  maxSeats,
		ExpiresAt: sub.RenewsAt.UTC().Truncate(time.Second),
		GraceDays: graceDays,
		IssuedAt:  now.UTC().Truncate(time.Second),
		KeyID:     i.keyID,
	}

	token, err := EncodeToken(grant, i.privateKey)
	if err != nil {
		return nil, "", err
	}

	i.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("plan_key", string(grant.PlanKey)).
		Time("expires_at", grant.ExpiresAt).
		Msg("grant issued")

	return grant, token, nil
}
