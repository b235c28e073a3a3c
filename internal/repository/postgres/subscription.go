package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iklanku/adpilot/internal/domain"
)

// SubscriptionRepo implements limits.Provider against the subscription
// tables. Lookup failures here are soft: the enforcer degrades to default
// limits rather than blocking syncs on a subscription table hiccup.
type SubscriptionRepo struct{ db *sql.DB }

// NewSubscriptionRepo creates a Postgres-backed subscription repository.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

// PlanForUser returns the user's current plan and the subscription's plan
// name. The join is LEFT so a subscription pointing at a retired plan row
// still reports its plan name; the caller resolves that through the static
// table. Nil plan with empty name means no subscription at all.
func (r *SubscriptionRepo) PlanForUser(ctx context.Context, userID string) (*domain.Plan, string, error) {
	var (
		planID                     string
		id, name                   sql.NullString
		accounts, rules, campaigns sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT s.plan_id, p.id, p.name, p.max_accounts, p.max_automation_rules, p.max_campaigns
		FROM subscriptions s
		LEFT JOIN plans p ON p.id = s.plan_id
		WHERE s.user_id = $1 AND s.status = 'active'
	`, userID).Scan(&planID, &id, &name, &accounts, &rules, &campaigns)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("plan for user %s: %w", userID, err)
	}
	if !id.Valid {
		return nil, planID, nil
	}
	return &domain.Plan{
		ID:                 id.String,
		Name:               name.String,
		MaxAccounts:        int(accounts.Int64),
		MaxAutomationRules: int(rules.Int64),
		MaxCampaigns:       int(campaigns.Int64),
	}, planID, nil
}

// ActiveAddons returns the user's addon rows. Expiry filtering happens in the
// enforcer against a single clock read.
func (r *SubscriptionRepo) ActiveAddons(ctx context.Context, userID string) ([]domain.Addon, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, quantity, expires_at
		FROM subscription_addons
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("addons for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.Addon
	for rows.Next() {
		var a domain.Addon
		if err := rows.Scan(&a.ID, &a.UserID, &a.Quantity, &a.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan addon: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Override returns the admin-set limit override row, nil when none exists.
func (r *SubscriptionRepo) Override(ctx context.Context, userID string) (*domain.LimitOverride, error) {
	o := &domain.LimitOverride{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, max_accounts, max_automation_rules, max_campaigns
		FROM limit_overrides
		WHERE user_id = $1
	`, userID).Scan(&o.UserID, &o.MaxAccounts, &o.MaxAutomationRules, &o.MaxCampaigns)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("limit override for user %s: %w", userID, err)
	}
	return o, nil
}

// CurrentUsage counts the user's live consumption in one round trip.
func (r *SubscriptionRepo) CurrentUsage(ctx context.Context, userID string) (domain.Usage, error) {
	var u domain.Usage
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM stores WHERE user_id = $1 AND active),
			(SELECT COUNT(*) FROM automation_rules WHERE user_id = $1 AND status != 'archived'),
			(SELECT COUNT(DISTINCT (m.store_id, m.campaign_id))
			 FROM campaign_metrics m
			 JOIN stores st ON st.id = m.store_id
			 WHERE st.user_id = $1)
	`, userID).Scan(&u.Accounts, &u.Rules, &u.Campaigns)
	if err != nil {
		return u, fmt.Errorf("usage for user %s: %w", userID, err)
	}
	return u, nil
}
