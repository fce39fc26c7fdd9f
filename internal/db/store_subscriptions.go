package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tailwag-labs/tailwag/internal/license"
)

// GetSubscription returns the subscription row for a tenant. It returns
// license.ErrTenantNotFound when no row exists, which issuance surfaces
// directly.
func (db *DB) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*license.Subscription, error) {
	var sub license.Subscription
	var planKey, status string

	err := db.Pool.QueryRow(ctx, `
		SELECT tenant_id, plan_key, status, max_seats, renews_at, grace_days
		FROM subscriptions
		WHERE tenant_id = $1
	`, tenantID).Scan(
		&sub.TenantID, &planKey, &status, &sub.MaxSeats, &sub.RenewsAt, &sub.GraceDays,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrTenantNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	sub.PlanKey = license.PlanKey(planKey)
	sub.Status = license.SubscriptionStatus(status)
	return &sub, nil
}

// UpsertSubscription creates or replaces a tenant's subscription row.
func (db *DB) UpsertSubscription(ctx context.Context, sub *license.Subscription) error {
	now := time.Now()
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO subscriptions (tenant_id, plan_key, status, max_seats, renews_at, grace_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (tenant_id)
		DO UPDATE SET plan_key = $2, status = $3, max_seats = $4, renews_at = $5, grace_days = $6, updated_at = $7
	`, sub.TenantID, string(sub.PlanKey), string(sub.Status), sub.MaxSeats, sub.RenewsAt, sub.GraceDays, now)

	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// SetSubscriptionStatus updates only the billing status of a subscription.
func (db *DB) SetSubscriptionStatus(ctx context.Context, tenantID uuid.UUID, status license.SubscriptionStatus) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = NOW()
		WHERE tenant_id = $1
	`, tenantID, string(status))

	if err != nil {
		return fmt.Errorf("set subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return license.ErrTenantNotFound
	}
	return nil
}

// CreateTenant inserts a tenant row.
func (db *DB) CreateTenant(ctx context.Context, tenantID uuid.UUID, name string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO tenants (id, name) VALUES ($1, $2)
	`, tenantID, name)

	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}
