// Package main is the entrypoint for the Tailwag hub server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tailwag-labs/tailwag/internal/api"
	"github.com/tailwag-labs/tailwag/internal/api/handlers"
	"github.com/tailwag-labs/tailwag/internal/config"
	"github.com/tailwag-labs/tailwag/internal/db"
	"github.com/tailwag-labs/tailwag/internal/license"
	"github.com/tailwag-labs/tailwag/internal/metrics"
	"github.com/tailwag-labs/tailwag/internal/tenant"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "tailwag-hub",
		Short:        "Tailwag hub - tenant, billing, and license authority",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tailwag-hub %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

// newKeygenCmd generates an Ed25519 signing key pair for grant issuance.
func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 license signing key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := license.GenerateKeyPair()
			if err != nil {
				return err
			}
			fmt.Printf("key_id:      %s\n", kp.KeyID())
			fmt.Printf("public_key:  %s\n", kp.PublicKeyToBase64())
			fmt.Printf("private_key: %s\n", kp.PrivateKeyToBase64())
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hub API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("starting tailwag hub")

	cfg := config.LoadHubConfig()

	if cfg.DatabaseURL == "" {
		logger.Error().Msg("DATABASE_URL environment variable is required")
		return fmt.Errorf("missing DATABASE_URL")
	}
	if cfg.SigningKey == "" {
		logger.Error().Msg("LICENSE_SIGNING_KEY environment variable is required")
		return fmt.Errorf("missing LICENSE_SIGNING_KEY")
	}

	privateKey, err := license.PrivateKeyFromBase64(cfg.SigningKey)
	if err != nil {
		logger.Error().Err(err).Msg("invalid license signing key")
		return err
	}

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to run database migrations")
		return err
	}

	issuer, err := license.NewIssuer(privateKey, database, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create issuer")
		return err
	}

	m := metrics.New()
	guard := tenant.NewGuard(database.Pool, logger)
	seats := db.NewSeatUsage(database, guard)

	keys := []handlers.KeyInfo{{
		KeyID:     issuer.KeyID(),
		PublicKey: license.PublicKeyToBase64(issuer.PublicKey()),
	}}

	router, err := api.NewRouter(api.RouterConfig{
		Licenses: handlers.NewLicenseHandler(issuer, database, seats, keys, m, logger),
		Auth:     handlers.NewAuthHandler(database, m, logger),
		Metrics:  m,
		Hub:      cfg,
		Logger:   logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to build router")
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("hub API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}

	logger.Info().Msg("hub stopped")
	return nil
}
