package worker

import (
	"context"
	"fmt"

	"github.com/iklanku/adpilot/internal/engine"
)

// BudgetedActions wraps the Shopee action client with the cross-instance
// rate budget. A denied slot surfaces as a rate-limit error so the engine
// classifies and logs it like upstream throttling.
type BudgetedActions struct {
	upstream engine.UpstreamActions
	budget   *RateBudget
}

func NewBudgetedActions(upstream engine.UpstreamActions, budget *RateBudget) *BudgetedActions {
	return &BudgetedActions{upstream: upstream, budget: budget}
}

func (b *BudgetedActions) UpdateBudget(ctx context.Context, storeID, campaignID string, dailyBudget float64) error {
	if err := b.take(ctx, storeID); err != nil {
		return err
	}
	return b.upstream.UpdateBudget(ctx, storeID, campaignID, dailyBudget)
}

func (b *BudgetedActions) Pause(ctx context.Context, storeID, campaignID string) error {
	if err := b.take(ctx, storeID); err != nil {
		return err
	}
	return b.upstream.Pause(ctx, storeID, campaignID)
}

func (b *BudgetedActions) Resume(ctx context.Context, storeID, campaignID string) error {
	if err := b.take(ctx, storeID); err != nil {
		return err
	}
	return b.upstream.Resume(ctx, storeID, campaignID)
}

func (b *BudgetedActions) take(ctx context.Context, storeID string) error {
	ok, err := b.budget.Allow(ctx, storeID)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if !ok {
		return fmt.Errorf("rate limit: store %s action budget exhausted", storeID)
	}
	return nil
}
