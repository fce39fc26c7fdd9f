package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tailwag-labs/tailwag/internal/license"
)

// GrantFetcher retrieves a fresh grant token from the hub.
type GrantFetcher interface {
	FetchGrant(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// LicenseManager owns the agent's license lifecycle for one bound tenant:
// background re-checks against the hub, evaluation of the cached grant, and
// the read-only status surface. Evaluation never performs network I/O;
// re-checks are a separate, retryable operation that only mutates cached
// state on success.
type LicenseManager struct {
	store    *StateStore
	fetcher  GrantFetcher
	verifier *license.Verifier
	tenantID uuid.UUID
	logger   zerolog.Logger
	now      func() time.Time
}

// NewLicenseManager creates a license manager bound to the given tenant.
func NewLicenseManager(store *StateStore, fetcher GrantFetcher, keys *license.KeySet, tenantID uuid.UUID, logger zerolog.Logger) *LicenseManager {
	return &LicenseManager{
		store:    store,
		fetcher:  fetcher,
		verifier: license.NewVerifier(keys, tenantID),
		tenantID: tenantID,
		logger:   logger.With().Str("component", "license_manager").Logger(),
		now:      time.Now,
	}
}

// Recheck contacts the hub for a fresh grant. On success the cached state is
// replaced (or its check timestamp advanced when the grant is unchanged). On
// any failure the cached state is left untouched: an unreachable hub is
// retryable, and a trust failure must never overwrite the last trusted
// grant.
func (m *LicenseManager) Recheck(ctx context.Context) error {
	token, err := m.fetcher.FetchGrant(ctx, m.tenantID)
	if err != nil {
		if errors.Is(err, license.ErrIssuerUnreachable) {
			m.logger.Warn().Err(err).Msg("license re-check skipped, hub unreachable")
		} else {
			m.logger.Warn().Err(err).Msg("license re-check refused by hub")
		}
		return err
	}

	grant, err := license.DecodeToken(token, m.verifier.Keys())
	if err != nil {
		return fmt.Errorf("re-check returned untrusted grant: %w", err)
	}
	if grant.TenantID != m.tenantID {
		return license.ErrTenantMismatch
	}

	checkedAt := m.now()

	cached, err := m.store.GetLicenseState(ctx, m.tenantID)
	if err != nil {
		return err
	}
	if cached != nil && cached.Token == token {
		return m.store.TouchLicenseState(ctx, m.tenantID, checkedAt)
	}

	if err := m.store.PutLicenseState(ctx, grant, token, checkedAt); err != nil {
		return err
	}

	m.logger.Info().
		Str("plan_key", string(grant.PlanKey)).
		Time("expires_at", grant.ExpiresAt).
		Msg("license re-check succeeded")
	return nil
}

// CurrentState evaluates the cached grant against the current clock. It
// implements the offline-tolerance rule: time since the last successful
// re-check never blocks by itself, only the grant's own expiry and grace
// window do.
func (m *LicenseManager) CurrentState(ctx context.Context) (license.State, error) {
	cached, err := m.store.GetLicenseState(ctx, m.tenantID)
	if err != nil {
		return "", err
	}
	return m.verifier.EvaluateCached(cached).State, nil
}

// Status returns the read-only license status for the bound tenant. It is a
// query, never a mutation.
func (m *LicenseManager) Status(ctx context.Context) (*license.StatusReport, error) {
	cached, err := m.store.GetLicenseState(ctx, m.tenantID)
	if err != nil {
		return nil, err
	}
	return license.BuildStatusReport(m.verifier.EvaluateCached(cached), cached), nil
}

// Reset removes the tenant's cached license state. It exists for explicit
// tenant reset only.
func (m *LicenseManager) Reset(ctx context.Context) error {
	return m.store.ResetLicenseState(ctx, m.tenantID)
}
