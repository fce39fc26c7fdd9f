// Package main is the entrypoint for the Tailwag client-local agent CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tailwag-labs/tailwag/internal/agent"
	"github.com/tailwag-labs/tailwag/internal/auth"
	"github.com/tailwag-labs/tailwag/internal/config"
	"github.com/tailwag-labs/tailwag/internal/license"
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
		Use:   "tailwag-agent",
		Short: "Tailwag agent - keeps your store running offline",
		Long: `Tailwag Agent runs alongside the in-store Tailwag install. It caches the
tenant's license grant and credential verifiers so staff can keep logging in
and working through network outages.

Run 'tailwag-agent register' to bind this device to a tenant.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRecheckCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tailwag-agent %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// runtimeDeps bundles the wired agent components for a registered device.
type runtimeDeps struct {
	cfg      *config.AgentConfig
	store    *agent.StateStore
	client   *agent.Client
	manager  *agent.LicenseManager
	gateway  *auth.Gateway
	tenantID uuid.UUID
}

func buildDeps(logger zerolog.Logger) (*runtimeDeps, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent is not registered: %w", err)
	}

	tenantID, err := uuid.Parse(cfg.TenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant_id in config: %w", err)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir, err = config.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
	}

	store, err := agent.NewStateStore(dataDir, logger)
	if err != nil {
		return nil, err
	}

	keys, err := license.NewKeySetFromBase64(cfg.PublicKeys...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("invalid public keys in config: %w", err)
	}

	client := agent.NewClient(cfg.HubURL)
	manager := agent.NewLicenseManager(store, client, keys, tenantID, logger)
	offline := auth.NewOfflineAuthCache(store, logger)
	gateway := auth.NewGateway(client, offline, manager, manager, logger)

	return &runtimeDeps{
		cfg:      cfg,
		store:    store,
		client:   client,
		manager:  manager,
		gateway:  gateway,
		tenantID: tenantID,
	}, nil
}

func newRegisterCmd() *cobra.Command {
	var hubURL, tenantIDStr, dataDir string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Bind this device to a tenant and fetch its first grant",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			tenantID, err := uuid.Parse(tenantIDStr)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			client := agent.NewClient(hubURL)

			// Pin verification keys at registration, independent of the grant.
			keyInfos, err := client.FetchKeys(ctx)
			if err != nil {
				return fmt.Errorf("fetch verification keys: %w", err)
			}
			if len(keyInfos) == 0 {
				return fmt.Errorf("hub returned no verification keys")
			}

			publicKeys := make([]string, 0, len(keyInfos))
			for _, k := range keyInfos {
				publicKeys = append(publicKeys, k.PublicKey)
			}

			cfg := &config.AgentConfig{
				HubURL:     hubURL,
				TenantID:   tenantID.String(),
				PublicKeys: publicKeys,
				DataDir:    dataDir,
			}
			if err := cfg.SaveDefault(); err != nil {
				return err
			}

			deps, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			if err := deps.manager.Recheck(ctx); err != nil {
				logger.Warn().Err(err).Msg("initial license fetch failed; will retry in background")
			}

			fmt.Println("Device registered.")
			return nil
		},
	}

	cmd.Flags().StringVar(&hubURL, "hub-url", "", "Tailwag hub base URL (required)")
	cmd.Flags().StringVar(&tenantIDStr, "tenant-id", "", "Tenant identifier (required)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Local state directory (default ~/.tailwag)")
	_ = cmd.MarkFlagRequired("hub-url")
	_ = cmd.MarkFlagRequired("tenant-id")

	return cmd
}

func newLoginCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate a user, falling back to offline verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			deps, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			fmt.Fprint(os.Stderr, "Password: ")
			passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			result := deps.gateway.Authenticate(ctx, email, string(passwordBytes))

			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(out))

			if !result.Granted {
				return fmt.Errorf("login denied: %s", result.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email (required)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached license status for the bound tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			deps, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			report, err := deps.manager.Status(ctx)
			if err != nil {
				return err
			}

			out, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func newRecheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recheck",
		Short: "Contact the hub for a fresh grant now",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			deps, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := deps.manager.Recheck(ctx); err != nil {
				return err
			}

			fmt.Println("License re-check succeeded.")
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the cached license state for the bound tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("pass --yes to confirm deleting cached license state")
			}

			logger := newLogger()

			deps, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			return deps.manager.Reset(ctx)
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the reset")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent with scheduled background license re-checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			deps, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			rechecker := agent.NewRechecker(deps.manager, deps.cfg.RecheckSchedule, logger)
			if err := rechecker.Start(); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			logger.Info().Str("signal", sig.String()).Msg("shutting down")

			rechecker.Stop()
			return nil
		},
	}
}
