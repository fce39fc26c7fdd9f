package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tailwag-labs/tailwag/internal/license"
)

// Reason explains an authentication outcome.
type Reason string

const (
	// ReasonOnline means the primary identity store accepted the credentials.
	ReasonOnline Reason = "online"
	// ReasonOffline means the device-local verifier accepted the credentials.
	ReasonOffline Reason = "offline"
	// ReasonLicenseBlocked means offline login was refused because the cached
	// license does not permit it, regardless of password correctness.
	ReasonLicenseBlocked Reason = "license_blocked"
	// ReasonBadCredentials means the credentials were rejected.
	ReasonBadCredentials Reason = "bad_credentials"
	// ReasonError means an unexpected failure; access is always denied.
	ReasonError Reason = "error"
)

// Identity is an authenticated user as reported by the primary store.
type Identity struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Email    string
}

// Result is the uniform login outcome produced by the gateway.
type Result struct {
	Granted  bool      `json:"granted"`
	UserID   uuid.UUID `json:"user_id,omitempty"`
	TenantID uuid.UUID `json:"tenant_id,omitempty"`
	Reason   Reason    `json:"reason"`
}

// PrimaryAuthenticator performs online authentication against the hub.
// Implementations return ErrBadCredentials on rejection and
// ErrPrimaryUnavailable when the store cannot be reached; the two are never
// conflated.
type PrimaryAuthenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
}

// LicenseChecker reports the bound tenant's current license state from
// locally cached material only.
type LicenseChecker interface {
	CurrentState(ctx context.Context) (license.State, error)
}

// LicenseRefresher triggers a license re-check, used opportunistically after
// a successful online login. Failures are soft: they never fail the login.
type LicenseRefresher interface {
	Recheck(ctx context.Context) error
}

// Gateway orchestrates online-first authentication with a device-local
// fallback. It never grants access on ambiguous state.
type Gateway struct {
	primary   PrimaryAuthenticator
	offline   *OfflineAuthCache
	license   LicenseChecker
	refresher LicenseRefresher
	logger    zerolog.Logger
}

// NewGateway creates an authentication gateway. refresher may be nil.
func NewGateway(primary PrimaryAuthenticator, offline *OfflineAuthCache, checker LicenseChecker, refresher LicenseRefresher, logger zerolog.Logger) *Gateway {
	return &Gateway{
		primary:   primary,
		offline:   offline,
		license:   checker,
		refresher: refresher,
		logger:    logger.With().Str("component", "auth_gateway").Logger(),
	}
}

// Authenticate attempts primary authentication, falling back to the offline
// cache only when the primary store is unreachable. A rejection by the
// primary store is final and never triggers fallback.
func (g *Gateway) Authenticate(ctx context.Context, email, password string) *Result {
	identity, err := g.primary.Authenticate(ctx, email, password)
	switch {
	case err == nil:
		return g.grantOnline(ctx, identity, password)
	case errors.Is(err, ErrBadCredentials):
		return &Result{Reason: ReasonBadCredentials}
	case errors.Is(err, ErrPrimaryUnavailable):
		return g.authenticateOffline(ctx, email, password)
	default:
		g.logger.Error().Err(err).Msg("primary authentication failed unexpectedly")
		return &Result{Reason: ReasonError}
	}
}

func (g *Gateway) grantOnline(ctx context.Context, identity *Identity, password string) *Result {
	if err := g.offline.Refresh(ctx, identity.UserID, identity.Email, password, identity.TenantID); err != nil {
		// Losing the offline record only degrades future offline logins;
		// the online login itself stands.
		g.logger.Warn().Err(err).Msg("failed to refresh offline auth record")
	}

	if g.refresher != nil {
		if err := g.refresher.Recheck(ctx); err != nil {
			g.logger.Warn().Err(err).Msg("license re-check after login failed")
		}
	}

	return &Result{
		Granted:  true,
		UserID:   identity.UserID,
		TenantID: identity.TenantID,
		Reason:   ReasonOnline,
	}
}

func (g *Gateway) authenticateOffline(ctx context.Context, email, password string) *Result {
	state, err := g.license.CurrentState(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("license state unreadable during offline login")
		return &Result{Reason: ReasonError}
	}

	// Offline login is only permitted under a usable cached license. Blocked
	// and never-registered tenants are denied before the password is even
	// considered.
	if state != license.StateActive && state != license.StateGrace {
		return &Result{Reason: ReasonLicenseBlocked}
	}

	record, err := g.offline.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			return &Result{Reason: ReasonBadCredentials}
		}
		g.logger.Error().Err(err).Msg("offline verification failed unexpectedly")
		return &Result{Reason: ReasonError}
	}

	g.logger.Info().Str("user_id", record.UserID.String()).Msg("offline login granted")
	return &Result{
		Granted:  true,
		UserID:   record.UserID,
		TenantID: record.TenantID,
		Reason:   ReasonOffline,
	}
}
