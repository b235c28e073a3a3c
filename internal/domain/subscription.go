package domain

import "time"

// Unlimited is the sentinel for a limit field with no cap.
const Unlimited = -1

// SubscriptionLimits are the effective per-user caps after combining plan,
// active addons, and admin override. Any field may be Unlimited.
type SubscriptionLimits struct {
	MaxAccounts        int `json:"max_accounts"`
	MaxAutomationRules int `json:"max_automation_rules"`
	MaxCampaigns       int `json:"max_campaigns"`
}

// IsWithinLimit reports whether adding one more item is allowed given the
// current count. Strict less-than: limit N admits exactly N existing items
// and blocks the (N+1)th. Unlimited always allows.
func IsWithinLimit(count, limit int) bool {
	if limit == Unlimited {
		return true
	}
	return count < limit
}

// Plan is a subscription tier's stored feature values.
type Plan struct {
	ID                 string `json:"id" db:"id"`
	Name               string `json:"name" db:"name"`
	MaxAccounts        int    `json:"max_accounts" db:"max_accounts"`
	MaxAutomationRules int    `json:"max_automation_rules" db:"max_automation_rules"`
	MaxCampaigns       int    `json:"max_campaigns" db:"max_campaigns"`
}

// Addon grants extra account capacity while active. Quantity addons stack.
type Addon struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Quantity  int        `json:"quantity" db:"quantity"`
	ExpiresAt *time.Time `json:"expires_at" db:"expires_at"`
}

// Active reports whether the addon still contributes capacity at t.
func (a *Addon) Active(t time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(t)
}

// LimitOverride is an admin-set per-user override. Overrides are field-level:
// a nil field inherits the plan/addon value, a non-nil field replaces it.
type LimitOverride struct {
	UserID             string `json:"user_id" db:"user_id"`
	MaxAccounts        *int   `json:"max_accounts" db:"max_accounts"`
	MaxAutomationRules *int   `json:"max_automation_rules" db:"max_automation_rules"`
	MaxCampaigns       *int   `json:"max_campaigns" db:"max_campaigns"`
}

// Usage is a user's current consumption, read at validation time.
type Usage struct {
	Accounts  int
	Rules     int
	Campaigns int
}

// Role gates limit enforcement: admins and superadmins bypass all checks.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// BypassesLimits reports whether the role skips limit enforcement entirely.
func (r Role) BypassesLimits() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}
