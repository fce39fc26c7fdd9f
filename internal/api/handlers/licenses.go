// Package handlers provides HTTP handlers for the Tailwag hub API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tailwag-labs/tailwag/internal/license"
	"github.com/tailwag-labs/tailwag/internal/metrics"
	"github.com/tailwag-labs/tailwag/internal/tenant"
)

// GrantIssuer issues signed grants for tenants.
type GrantIssuer interface {
	Issue(ctx context.Context, tenantID uuid.UUID) (*license.Grant, string, error)
}

// SubscriptionReader provides read-only subscription lookups for the status
// surface.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, tenantID uuid.UUID) (*license.Subscription, error)
}

// SeatCounter reports a tenant's seat usage. Implementations read through
// the tenant context guard, so the context must carry the tenant binding.
type SeatCounter interface {
	Count(ctx context.Context) (int, error)
}

// KeyInfo is one verification public key as distributed to clients.
type KeyInfo struct {
	KeyID     string `json:"key_id"`
	PublicKey string `json:"public_key"`
}

// LicenseHandler handles license issuance, key distribution, and the
// hub-side subscription status query.
type LicenseHandler struct {
	issuer  GrantIssuer
	subs    SubscriptionReader
	seats   SeatCounter
	keys    []KeyInfo
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewLicenseHandler creates a new LicenseHandler. seats may be nil, in which
// case the status response omits seat usage.
func NewLicenseHandler(issuer GrantIssuer, subs SubscriptionReader, seats SeatCounter, keys []KeyInfo, m *metrics.Metrics, logger zerolog.Logger) *LicenseHandler {
	return &LicenseHandler{
		issuer:  issuer,
		subs:    subs,
		seats:   seats,
		keys:    keys,
		metrics: m,
		logger:  logger.With().Str("component", "license_handler").Logger(),
	}
}

type issueRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
}

// Issue handles POST /api/v1/licenses/issue.
func (h *LicenseHandler) Issue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant_id"})
		return
	}

	grant, token, err := h.issuer.Issue(c.Request.Context(), tenantID)
	switch {
	case errors.Is(err, license.ErrTenantNotFound):
		h.metrics.IssueFailures.WithLabelValues("tenant_not_found").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	case errors.Is(err, license.ErrNoActivePlan):
		h.metrics.IssueFailures.WithLabelValues("no_active_plan").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "tenant has no active plan"})
		return
	case err != nil:
		h.metrics.IssueFailures.WithLabelValues("internal").Inc()
		h.logger.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("failed to issue grant")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue grant"})
		return
	}

	h.metrics.GrantsIssued.Inc()
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"plan_key":   grant.PlanKey,
		"expires_at": grant.ExpiresAt,
	})
}

// Keys handles GET /api/v1/licenses/keys. Verification keys are obtainable
// independently of any grant.
func (h *LicenseHandler) Keys(c *gin.Context) {
	h.metrics.KeyFetches.Inc()
	c.JSON(http.StatusOK, gin.H{"keys": h.keys})
}

// Status handles GET /api/v1/licenses/status. It is a read-only snapshot of
// the tenant's subscription as the hub sees it.
func (h *LicenseHandler) Status(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant_id"})
		return
	}

	sub, err := h.subs.GetSubscription(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, license.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}
		h.logger.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("failed to read subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read subscription"})
		return
	}

	resp := gin.H{
		"tenant_id":  sub.TenantID,
		"plan_key":   sub.PlanKey,
		"status":     sub.Status,
		"max_seats":  sub.MaxSeats,
		"renews_at":  sub.RenewsAt,
		"grace_days": sub.GraceDays,
	}

	if h.seats != nil {
		scoped := tenant.WithTenant(c.Request.Context(), tenantID)
		if used, err := h.seats.Count(scoped); err == nil {
			resp["seats_used"] = used
		} else {
			h.logger.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("failed to count seats")
		}
	}

	c.JSON(http.StatusOK, resp)
}
