// Package limits computes effective subscription limits and validates sync
// batches against them. Enforcement degrades gracefully: infrastructure
// failures fall back to free-tier defaults instead of blocking the sync
// pipeline.
package limits

import (
	"context"
	"log"
	"time"

	"github.com/iklanku/adpilot/internal/domain"
)

// Provider supplies the stored subscription state an enforcer needs.
// The Postgres repository implements it; tests substitute fakes.
type Provider interface {
	// PlanForUser returns the user's current plan from the dynamic plan
	// store, plus the subscription's plan name. A nil plan with a non-empty
	// name means the plan row is gone and the static fallback table applies
	// to that name.
	PlanForUser(ctx context.Context, userID string) (*domain.Plan, string, error)
	// ActiveAddons returns the user's addons; expiry filtering is the
	// enforcer's job so storage stays a dumb query.
	ActiveAddons(ctx context.Context, userID string) ([]domain.Addon, error)
	// Override returns the admin override row, or nil when none exists.
	Override(ctx context.Context, userID string) (*domain.LimitOverride, error)
	// CurrentUsage returns the user's live consumption counts.
	CurrentUsage(ctx context.Context, userID string) (domain.Usage, error)
}

// PlanTable is the static fallback used when the dynamic plan store has no
// entry for a plan. It is injected, never a package-level singleton, so tests
// can substitute plan tables freely.
type PlanTable struct {
	Plans   map[string]domain.SubscriptionLimits
	Default domain.SubscriptionLimits
}

// DefaultPlanTable mirrors the shipped tier configuration. The free tier is
// also the total-failure fallback.
func DefaultPlanTable() PlanTable {
	return PlanTable{
		Plans: map[string]domain.SubscriptionLimits{
			"free":       {MaxAccounts: 1, MaxAutomationRules: 2, MaxCampaigns: 5},
			"starter":    {MaxAccounts: 2, MaxAutomationRules: 10, MaxCampaigns: 50},
			"pro":        {MaxAccounts: 5, MaxAutomationRules: 50, MaxCampaigns: 200},
			"enterprise": {MaxAccounts: domain.Unlimited, MaxAutomationRules: domain.Unlimited, MaxCampaigns: domain.Unlimited},
		},
		Default: domain.SubscriptionLimits{MaxAccounts: 1, MaxAutomationRules: 2, MaxCampaigns: 5},
	}
}

// Enforcer resolves effective limits and gates sync batches.
type Enforcer struct {
	provider Provider
	table    PlanTable
	now      func() time.Time
}

func NewEnforcer(provider Provider, table PlanTable) *Enforcer {
	return &Enforcer{provider: provider, table: table, now: time.Now}
}

// GetEffectiveLimits resolves the user's limits. Resolution order per field:
// admin override (non-nil field) > dynamic plan value > static plan table >
// free-tier default. Addon accounts extend MaxAccounts unless the plan is
// already unlimited. Lookup errors never propagate; they degrade to the
// free-tier default so limit checks cannot take down the sync path.
func (e *Enforcer) GetEffectiveLimits(ctx context.Context, userID string) domain.SubscriptionLimits {
	limits := e.table.Default

	plan, planName, err := e.provider.PlanForUser(ctx, userID)
	switch {
	case err != nil:
		log.Printf("[limits] plan lookup failed for user %s, using defaults: %v", userID, err)
	case plan != nil:
		limits = domain.SubscriptionLimits{
			MaxAccounts:        plan.MaxAccounts,
			MaxAutomationRules: plan.MaxAutomationRules,
			MaxCampaigns:       plan.MaxCampaigns,
		}
	case planName != "":
		// Subscription names a plan the dynamic store no longer has.
		limits = e.ResolveByPlanName(planName)
	}

	// Addons extend account capacity; an unlimited plan stays unlimited.
	if limits.MaxAccounts != domain.Unlimited {
		addons, err := e.provider.ActiveAddons(ctx, userID)
		if err != nil {
			log.Printf("[limits] addon lookup failed for user %s: %v", userID, err)
		} else {
			now := e.now()
			for _, a := range addons {
				if a.Active(now) {
					limits.MaxAccounts += a.Quantity
				}
			}
		}
	}

	override, err := e.provider.Override(ctx, userID)
	if err != nil {
		log.Printf("[limits] override lookup failed for user %s: %v", userID, err)
		return limits
	}
	if override != nil {
		if override.MaxAccounts != nil {
			limits.MaxAccounts = *override.MaxAccounts
		}
		if override.MaxAutomationRules != nil {
			limits.MaxAutomationRules = *override.MaxAutomationRules
		}
		if override.MaxCampaigns != nil {
			limits.MaxCampaigns = *override.MaxCampaigns
		}
	}

	return limits
}

// ResolveByPlanName returns the static table entry for a named plan,
// falling back to the default tier when the name is unknown.
func (e *Enforcer) ResolveByPlanName(name string) domain.SubscriptionLimits {
	if l, ok := e.table.Plans[name]; ok {
		return l
	}
	return e.table.Default
}
