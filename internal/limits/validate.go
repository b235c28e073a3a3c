package limits

import (
	"context"
	"fmt"
	"log"

	"github.com/iklanku/adpilot/internal/domain"
)

// SyncDecision is the partial-allow outcome of validating incoming campaign
// IDs against remaining capacity. Limit overruns are never a hard error:
// some campaigns sync, the rest are reported skipped with a reason.
type SyncDecision struct {
	AllowedIDs   []string
	SkippedCount int
	Reason       string
}

// ValidateSync gates a sync batch. Already-tracked campaigns are updates,
// not new consumption, so they are always allowed. Only new IDs count
// against remaining capacity (limit − current usage); when more new IDs
// arrive than fit, the first ones in payload order are admitted and the
// overflow is skipped. Admin roles bypass enforcement entirely.
func (e *Enforcer) ValidateSync(ctx context.Context, userID string, incomingIDs, existingIDs []string, role domain.Role) SyncDecision {
	if role.BypassesLimits() {
		return SyncDecision{AllowedIDs: incomingIDs}
	}

	limits := e.GetEffectiveLimits(ctx, userID)
	if limits.MaxCampaigns == domain.Unlimited {
		return SyncDecision{AllowedIDs: incomingIDs}
	}

	usage, err := e.provider.CurrentUsage(ctx, userID)
	if err != nil {
		// Usage unknown: allow the batch rather than stall the pipeline.
		// The next validation corrects any transient overrun.
		log.Printf("[limits] usage lookup failed for user %s, allowing batch: %v", userID, err)
		return SyncDecision{AllowedIDs: incomingIDs}
	}

	existing := make(map[string]bool, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = true
	}

	// Each admitted new ID counts as consumed for the IDs after it.
	used := usage.Campaigns
	decision := SyncDecision{AllowedIDs: make([]string, 0, len(incomingIDs))}
	for _, id := range incomingIDs {
		if existing[id] {
			decision.AllowedIDs = append(decision.AllowedIDs, id)
			continue
		}
		if domain.IsWithinLimit(used, limits.MaxCampaigns) {
			decision.AllowedIDs = append(decision.AllowedIDs, id)
			used++
			continue
		}
		decision.SkippedCount++
	}

	if decision.SkippedCount > 0 {
		decision.Reason = fmt.Sprintf(
			"campaign limit reached (%d of %d in use): %d new campaigns were not synced; upgrade the plan to track more",
			usage.Campaigns, limits.MaxCampaigns, decision.SkippedCount)
	}
	return decision
}
