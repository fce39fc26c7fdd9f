package tenant

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SessionVar is the Postgres setting consulted by row-level-security
// policies on tenant-scoped tables.
const SessionVar = "app.tenant_id"

// Guard executes tenant-scoped database work inside a transaction whose
// session variable carries the context's tenant. The tenant value is passed
// as a bind parameter via set_config, never interpolated into SQL.
type Guard struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewGuard creates a tenant context guard over the given pool.
func NewGuard(pool *pgxpool.Pool, logger zerolog.Logger) *Guard {
	return &Guard{
		pool:   pool,
		logger: logger.With().Str("component", "tenant_guard").Logger(),
	}
}

// Exec runs fn in a transaction scoped to the context's tenant. It returns
// ErrNoTenant without touching the database when no tenant is bound.
func (g *Guard) Exec(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tenantID, err := FromContext(ctx)
	if err != nil {
		return err
	}

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tenant transaction: %w", err)
	}

	// set_config with is_local=true scopes the setting to this transaction.
	if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", SessionVar, tenantID.String()); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			g.logger.Error().Err(rbErr).Msg("rollback after set_config failure")
		}
		return fmt.Errorf("bind tenant session variable: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tenant transaction: %w", err)
	}

	return nil
}
