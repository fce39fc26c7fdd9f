package license

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenPrefix is the prefix for all grant tokens.
	TokenPrefix = "TWAG"
	// TokenVersion is the current grant token format version.
	TokenVersion = "1"
)

var (
	// ErrMalformedGrant indicates the grant token or payload is not well formed.
	ErrMalformedGrant = errors.New("malformed license grant")
	// ErrInvalidSignature indicates the grant signature does not verify against
	// any known key.
	ErrInvalidSignature = errors.New("invalid grant signature")
	// ErrTenantMismatch indicates the grant was issued for a different tenant.
	ErrTenantMismatch = errors.New("grant issued for a different tenant")
	// ErrTenantNotFound indicates no subscription exists for the tenant.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrNoActivePlan indicates the tenant's subscription is not current.
	ErrNoActivePlan = errors.New("tenant has no active plan")
	// ErrIssuerUnreachable indicates the hub could not be contacted. It is
	// retryable and never changes cached license state.
	ErrIssuerUnreachable = errors.New("license issuer unreachable")
	// ErrInvalidPublicKey indicates the public key is invalid.
	ErrInvalidPublicKey = errors.New("invalid public key")
	// ErrInvalidPrivateKey indicates the private key is invalid.
	ErrInvalidPrivateKey = errors.New("invalid private key")
)

// SubscriptionStatus is the billing status recorded in a grant.
type SubscriptionStatus string

const (
	// SubscriptionActive means the tenant's plan is paid and current.
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionSuspended means billing has flagged the tenant.
	SubscriptionSuspended SubscriptionStatus = "suspended"
	// SubscriptionExpired means the plan lapsed without renewal.
	SubscriptionExpired SubscriptionStatus = "expired"
)

// IsValid checks if the status is a recognized value.
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionActive, SubscriptionSuspended, SubscriptionExpired:
		return true
	}
	return false
}

// Grant is a signed, time-bounded entitlement record for exactly one tenant.
// It is immutable once signed; the client holds a read-only replica.
type Grant struct {
	TenantID  uuid.UUID
	PlanKey   PlanKey
	Status    SubscriptionStatus
	MaxSeats  int
	ExpiresAt time.Time
	GraceDays int
	IssuedAt  time.Time
	KeyID     string
}

// GraceEndsAt returns the instant the grace window closes.
func (g *Grant) GraceEndsAt() time.Time {
	return g.ExpiresAt.AddDate(0, 0, g.GraceDays)
}

// grantPayload is the canonical wire form of a grant. The signature covers
// exactly these bytes; field order is fixed by struct declaration order.
type grantPayload struct {
	TenantID  string `json:"tenant_id"`
	PlanKey   string `json:"plan_key"`
	Status    string `json:"status"`
	MaxSeats  int    `json:"max_seats"`
	ExpiresAt int64  `json:"expires_at"`
	GraceDays int    `json:"grace_days"`
	IssuedAt  int64  `json:"issued_at"`
	KeyID     string `json:"key_id"`
}

func (g *Grant) payload() grantPayload {
	return grantPayload{
		TenantID:  g.TenantID.String(),
		PlanKey:   string(g.PlanKey),
		Status:    string(g.Status),
		MaxSeats:  g.MaxSeats,
		ExpiresAt: g.ExpiresAt.Unix(),
		GraceDays: g.GraceDays,
		IssuedAt:  g.IssuedAt.Unix(),
		KeyID:     g.KeyID,
	}
}

func grantFromPayload(p grantPayload) (*Grant, error) {
	tenantID, err := uuid.Parse(p.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad tenant id", ErrMalformedGrant)
	}
	if !PlanKey(p.PlanKey).IsValid() {
		return nil, fmt.Errorf("%w: unknown plan key %q", ErrMalformedGrant, p.PlanKey)
	}
	if !SubscriptionStatus(p.Status).IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedGrant, p.Status)
	}
	if p.MaxSeats <= 0 {
		return nil, fmt.Errorf("%w: max seats must be positive", ErrMalformedGrant)
	}
	if p.GraceDays < 0 {
		return nil, fmt.Errorf("%w: negative grace days", ErrMalformedGrant)
	}
	return &Grant{
		TenantID:  tenantID,
		PlanKey:   PlanKey(p.PlanKey),
		Status:    SubscriptionStatus(p.Status),
		MaxSeats:  p.MaxSeats,
		ExpiresAt: time.Unix(p.ExpiresAt, 0).UTC(),
		GraceDays: p.GraceDays,
		IssuedAt:  time.Unix(p.IssuedAt, 0).UTC(),
		KeyID:     p.KeyID,
	}, nil
}

// EncodeToken serializes and signs a grant.
// Format: PREFIX-VERSION.PAYLOAD.SIGNATURE with base64url segments.
func EncodeToken(g *Grant, privateKey ed25519.PrivateKey) (string, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return "", ErrInvalidPrivateKey
	}

	payloadBytes, err := json.Marshal(g.payload())
	if err != nil {
		return "", fmt.Errorf("marshal grant payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, payloadBytes)

	return fmt.Sprintf("%s-%s.%s.%s",
		TokenPrefix,
		TokenVersion,
		base64.RawURLEncoding.EncodeToString(payloadBytes),
		base64.RawURLEncoding.EncodeToString(signature),
	), nil
}

// DecodeToken parses a grant token and verifies its signature against the
// known key set. A token whose key ID matches no known key is untrusted and
// yields ErrInvalidSignature.
func DecodeToken(token string, keys *KeySet) (*Grant, error) {
	if !strings.HasPrefix(token, TokenPrefix+"-") {
		return nil, ErrMalformedGrant
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedGrant
	}

	if parts[0] != TokenPrefix+"-"+TokenVersion {
		return nil, ErrMalformedGrant
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrMalformedGrant, err)
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: decode signature: %v", ErrMalformedGrant, err)
	}

	var payload grantPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", ErrMalformedGrant, err)
	}

	publicKey, ok := keys.Lookup(payload.KeyID)
	if !ok {
		return nil, ErrInvalidSignature
	}

	if !ed25519.Verify(publicKey, payloadBytes, signature) {
		return nil, ErrInvalidSignature
	}

	return grantFromPayload(payload)
}
