package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tailwag-labs/tailwag/internal/auth"
	"github.com/tailwag-labs/tailwag/internal/db"
	"github.com/tailwag-labs/tailwag/internal/metrics"
)

// UserSource provides user lookups for online authentication.
type UserSource interface {
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
}

// AuthHandler handles the hub's primary (online) authentication endpoint.
type AuthHandler struct {
	users   UserSource
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users UserSource, m *metrics.Metrics, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:   users,
		metrics: m,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/v1/auth/login. Unknown emails, inactive users, and
// wrong passwords all produce the identical 401 response.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			h.reject(c)
			return
		}
		h.metrics.AuthAttempts.WithLabelValues("error").Inc()
		h.logger.Error().Err(err).Msg("user lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication unavailable"})
		return
	}

	if !user.Active {
		h.reject(c)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.reject(c)
		return
	}

	h.metrics.AuthAttempts.WithLabelValues("granted").Inc()
	c.JSON(http.StatusOK, gin.H{
		"granted":   true,
		"user_id":   user.ID,
		"tenant_id": user.TenantID,
		"email":     user.Email,
	})
}

func (h *AuthHandler) reject(c *gin.Context) {
	h.metrics.AuthAttempts.WithLabelValues("rejected").Inc()
	c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
}
