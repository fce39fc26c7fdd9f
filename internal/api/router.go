// Package api assembles the Tailwag hub HTTP API.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tailwag-labs/tailwag/internal/api/handlers"
	"github.com/tailwag-labs/tailwag/internal/api/middleware"
	"github.com/tailwag-labs/tailwag/internal/config"
	"github.com/tailwag-labs/tailwag/internal/metrics"
)

// RouterConfig holds the dependencies for the hub router.
type RouterConfig struct {
	Licenses *handlers.LicenseHandler
	Auth     *handlers.AuthHandler
	Metrics  *metrics.Metrics
	Hub      config.HubConfig
	Logger   zerolog.Logger
}

// NewRouter builds the hub's gin engine with middleware and routes.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if cfg.Hub.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(cfg.Logger))

	authLimiter, err := middleware.NewRateLimiter(cfg.Hub.AuthRateLimit, cfg.Hub.AuthRatePeriod)
	if err != nil {
		return nil, err
	}

	v1 := router.Group("/api/v1")
	{
		licenses := v1.Group("/licenses")
		{
			licenses.POST("/issue", cfg.Licenses.Issue)
			licenses.GET("/keys", cfg.Licenses.Keys)
			licenses.GET("/status", cfg.Licenses.Status)
		}

		authGroup := v1.Group("/auth")
		authGroup.Use(authLimiter)
		{
			authGroup.POST("/login", cfg.Auth.Login)
		}
	}

	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router, nil
}
