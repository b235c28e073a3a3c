package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// StoreBudget caps Shopee API action calls per store across all instances.
// The local x/time/rate limiter in the client only throttles one process;
// this is the shared budget that keeps a horizontally scaled deployment from
// tripping Shopee's per-seller limits.
type StoreBudget struct {
	PerMinute int
	PerDay    int
}

// DefaultStoreBudget is conservative: Shopee throttles seller sessions well
// before these numbers, but hitting their limiter risks a captcha wall.
var DefaultStoreBudget = StoreBudget{PerMinute: 30, PerDay: 5000}

// budgetScript atomically checks both windows and increments only when all
// pass, avoiding the GET-check-INCR race between instances.
var budgetScript = redis.NewScript(`
local minuteKey = KEYS[1]
local dayKey = KEYS[2]
local minuteLimit = tonumber(ARGV[1])
local dayLimit = tonumber(ARGV[2])

local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dayKey) or "0")

if minCurrent + 1 > minuteLimit then
    return {0, "minute"}
end
if dayCurrent + 1 > dayLimit then
    return {0, "day"}
end

minCurrent = redis.call("INCR", minuteKey)
if minCurrent == 1 then
    redis.call("EXPIRE", minuteKey, 60)
end
local newDay = redis.call("INCR", dayKey)
if newDay == 1 then
    redis.call("EXPIRE", dayKey, 86400)
end
return {1, ""}
`)

// RateBudget is the Redis-backed cross-instance action budget.
type RateBudget struct {
	redis  *redis.Client
	budget StoreBudget
}

// NewRateBudget creates a budget checker. A nil client disables budgeting
// (single-instance deployments without Redis).
func NewRateBudget(client *redis.Client, budget StoreBudget) *RateBudget {
	if budget.PerMinute <= 0 {
		budget.PerMinute = DefaultStoreBudget.PerMinute
	}
	if budget.PerDay <= 0 {
		budget.PerDay = DefaultStoreBudget.PerDay
	}
	return &RateBudget{redis: client, budget: budget}
}

// Allow consumes one action slot for the store. When Redis is unreachable
// the action is allowed; the client-local limiter still applies and blocking
// all automation on a Redis outage is worse than briefly over-calling.
func (b *RateBudget) Allow(ctx context.Context, storeID string) (bool, error) {
	if b.redis == nil {
		return true, nil
	}

	minuteKey := fmt.Sprintf("adpilot:budget:%s:minute", storeID)
	dayKey := fmt.Sprintf("adpilot:budget:%s:day", storeID)

	res, err := budgetScript.Run(ctx, b.redis, []string{minuteKey, dayKey},
		b.budget.PerMinute, b.budget.PerDay).Result()
	if err != nil {
		log.Printf("[budget] redis check failed for store %s, allowing: %v", storeID, err)
		return true, nil
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 1 {
		return true, nil
	}
	allowed, _ := vals[0].(int64)
	if allowed == 1 {
		return true, nil
	}

	window := ""
	if len(vals) > 1 {
		window, _ = vals[1].(string)
	}
	return false, fmt.Errorf("store %s hit %s rate limit", storeID, window)
}
