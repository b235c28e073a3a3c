// Package engine evaluates automation rules against campaign metrics and
// executes their actions against the Shopee seller API. Each (rule,
// campaign, tick) attempt ends in exactly one of three terminal states,
// every one of which writes exactly one audit log row:
//
//	EVALUATE -> conditions not met -> SKIPPED  (logged, no action)
//	EVALUATE -> conditions met -> EXECUTE -> SUCCESS (logged)
//	EVALUATE -> conditions met -> EXECUTE -> FAILED  (logged, error captured)
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iklanku/adpilot/internal/domain"
	"github.com/iklanku/adpilot/internal/pkg/metrics"
)

// UpstreamActions is the Shopee action surface the engine mutates. A single
// attempt per tick: retries belong to the HTTP client layer, never here.
type UpstreamActions interface {
	UpdateBudget(ctx context.Context, storeID, campaignID string, dailyBudget float64) error
	Pause(ctx context.Context, storeID, campaignID string) error
	Resume(ctx context.Context, storeID, campaignID string) error
}

// MetricsSource yields the latest normalized snapshot for a campaign.
type MetricsSource interface {
	Latest(ctx context.Context, storeID, campaignID string) (*domain.CampaignMetrics, error)
}

// LogSink persists execution log rows. Writes are synchronous with the
// decision: the log is the sole audit mechanism, so best-effort is not
// acceptable.
type LogSink interface {
	Create(ctx context.Context, entry *domain.RuleExecutionLog) error
}

// RuleSource lists active rules and records per-rule health after a batch.
type RuleSource interface {
	ListActive(ctx context.Context) ([]domain.Rule, error)
	RecordOutcome(ctx context.Context, ruleID string, attempts, failures int) error
}

// StoreChecker re-validates that an assigned store is still active and owned
// by the rule's user. Assignments are references, not cached grants: a store
// revoked after assignment must not be acted on.
type StoreChecker interface {
	StoreActive(ctx context.Context, userID, storeID string) (bool, error)
}

// Notifier delivers rule-triggered notifications. Delivery failure never
// changes the execution outcome of a non-notification action.
type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) bool
}

// Notification is the payload handed to the dispatcher when a rule fires.
type Notification struct {
	RuleName      string
	RuleID        string
	TriggeredAt   time.Time
	Conditions    []domain.ConditionEvaluation
	Actions       []domain.Action
	CustomMessage string
}

// Engine orchestrates one evaluation tick across all active rules.
type Engine struct {
	rules    RuleSource
	metrics  MetricsSource
	upstream UpstreamActions
	logs     LogSink
	stores   StoreChecker
	notifier Notifier
	prom     *metrics.Metrics

	// concurrency bounds parallel (rule, campaign) attempts so a tick
	// respects upstream rate limits.
	concurrency int
	now         func() time.Time
}

// Config tunes the engine. Zero Concurrency defaults to 4.
type Config struct {
	Concurrency int
}

func New(rules RuleSource, ms MetricsSource, upstream UpstreamActions, logs LogSink, stores StoreChecker, notifier Notifier, prom *metrics.Metrics, cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Engine{
		rules:       rules,
		metrics:     ms,
		upstream:    upstream,
		logs:        logs,
		stores:      stores,
		notifier:    notifier,
		prom:        prom,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}
}

type job struct {
	rule       domain.Rule
	storeID    string
	campaignID string
}

type outcome struct {
	ruleID string
	failed bool
}

// RunTick evaluates every active rule against its assigned campaigns.
// Independent (rule, campaign) pairs run concurrently under the configured
// bound; within a pair, evaluation strictly precedes action execution
// strictly precedes logging. A malformed rule is isolated: its parse error
// is logged and the tick continues with the remaining rules.
func (e *Engine) RunTick(ctx context.Context) error {
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active rules: %w", err)
	}

	var jobs []job
	for _, r := range rules {
		if r.Status != domain.RuleActive {
			continue
		}
		if len(r.Actions) > 1 {
			log.Printf("[engine] rule %s has %d actions; only the first executes (known limitation)", r.ID, len(r.Actions))
		}
		for storeID, campaignIDs := range r.Assignments {
			active, err := e.stores.StoreActive(ctx, r.UserID, storeID)
			if err != nil {
				log.Printf("[engine] store check failed for rule %s store %s: %v", r.ID, storeID, err)
				continue
			}
			if !active {
				log.Printf("[engine] skipping inactive store %s for rule %s", storeID, r.ID)
				continue
			}
			for _, campaignID := range campaignIDs {
				jobs = append(jobs, job{rule: r, storeID: storeID, campaignID: campaignID})
			}
		}
	}

	outcomes := make(chan outcome, len(jobs))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			failed := e.executeOne(ctx, j)
			outcomes <- outcome{ruleID: j.rule.ID, failed: failed}
		}(j)
	}
	wg.Wait()
	close(outcomes)

	attempts := map[string]int{}
	failures := map[string]int{}
	for o := range outcomes {
		attempts[o.ruleID]++
		if o.failed {
			failures[o.ruleID]++
		}
	}
	for ruleID, n := range attempts {
		if err := e.rules.RecordOutcome(ctx, ruleID, n, failures[ruleID]); err != nil {
			log.Printf("[engine] record outcome for rule %s: %v", ruleID, err)
		}
	}
	return nil
}

// executeOne runs the full state machine for one (rule, campaign) pair and
// returns whether the attempt failed.
func (e *Engine) executeOne(ctx context.Context, j job) bool {
	start := e.now()
	action, hasAction := j.rule.FirstAction()

	m, err := e.metrics.Latest(ctx, j.storeID, j.campaignID)
	if err == nil && m == nil {
		// Tolerate sources that signal a missing snapshot as nil, nil.
		err = fmt.Errorf("no metrics found for campaign %s", j.campaignID)
	}
	if err != nil {
		e.writeLog(j, action.Type, domain.ExecutionFailed,
			OperatorMessage(Classify(err), err), domain.ExecutionData{})
		return true
	}

	result := Evaluate(j.rule.Conditions, m)
	data := domain.ExecutionData{Evaluations: result.PerCondition}

	if !result.OverallMet {
		// A skip is not an error: terminal SKIPPED records success with
		// the skipped flag set.
		data.Skipped = true
		e.writeLog(j, action.Type, domain.ExecutionSuccess, "", data)
		e.observe("skipped", action.Type, start)
		return false
	}

	if !hasAction {
		e.writeLog(j, "", domain.ExecutionSuccess, "no action configured", data)
		e.observe("success", "", start)
		return false
	}

	if err := e.executeAction(ctx, j, action, m, result, &data); err != nil {
		cat := Classify(err)
		e.writeLog(j, action.Type, domain.ExecutionFailed, OperatorMessage(cat, err), data)
		e.observe("failed", action.Type, start)
		return true
	}

	e.writeLog(j, action.Type, domain.ExecutionSuccess, "", data)
	e.observe("success", action.Type, start)

	// Notification delivery is fire-and-forget with respect to the
	// outcome: a failed send is logged but never flips SUCCESS to FAILED.
	if action.Type != domain.ActionTelegram && e.notifier != nil {
		e.dispatchNotification(ctx, j, action, result)
	}
	return false
}

func (e *Engine) executeAction(ctx context.Context, j job, action domain.Action, m *domain.CampaignMetrics, result EvalResult, data *domain.ExecutionData) error {
	switch action.Type {
	case domain.ActionUpdateBudget:
		data.BudgetFrom = m.DailyBudget
		data.BudgetTo = action.Value
		return e.upstream.UpdateBudget(ctx, j.storeID, j.campaignID, action.Value)
	case domain.ActionPause:
		return e.upstream.Pause(ctx, j.storeID, j.campaignID)
	case domain.ActionResume:
		return e.upstream.Resume(ctx, j.storeID, j.campaignID)
	case domain.ActionTelegram:
		// The notification is the action itself here, so delivery failure
		// is an execution failure.
		if e.notifier == nil {
			return fmt.Errorf("no notifier configured")
		}
		if !e.notifier.Notify(ctx, j.rule.UserID, e.buildNotification(j, action, result)) {
			return fmt.Errorf("telegram notification delivery failed")
		}
		return nil
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (e *Engine) dispatchNotification(ctx context.Context, j job, action domain.Action, result EvalResult) {
	delivered := e.notifier.Notify(ctx, j.rule.UserID, e.buildNotification(j, action, result))
	if !delivered {
		log.Printf("[engine] notification delivery failed for rule %s campaign %s", j.rule.ID, j.campaignID)
	}
	if e.prom != nil {
		res := "delivered"
		if !delivered {
			res = "failed"
		}
		e.prom.NotificationsTotal.WithLabelValues("telegram", res).Inc()
	}
}

func (e *Engine) buildNotification(j job, action domain.Action, result EvalResult) Notification {
	return Notification{
		RuleName:      j.rule.Name,
		RuleID:        j.rule.ID,
		TriggeredAt:   e.now(),
		Conditions:    result.PerCondition,
		Actions:       j.rule.Actions,
		CustomMessage: action.CustomMessage,
	}
}

// writeLog persists the audit row for one attempt. The write uses a fresh
// short deadline so a tick that timed out mid-execution still gets its
// outcome recorded instead of leaving the attempt unlogged.
func (e *Engine) writeLog(j job, actionType domain.ActionType, status domain.ExecutionStatus, errMsg string, data domain.ExecutionData) {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte(`{}`)
	}
	entry := &domain.RuleExecutionLog{
		RuleID:        j.rule.ID,
		CampaignID:    j.campaignID,
		StoreID:       j.storeID,
		ActionType:    actionType,
		Status:        status,
		ErrorMessage:  errMsg,
		ExecutionData: raw,
		ExecutedAt:    e.now(),
	}

	logCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.logs.Create(logCtx, entry); err != nil {
		log.Printf("[engine] FAILED to write execution log for rule %s campaign %s: %v", j.rule.ID, j.campaignID, err)
	}
}

func (e *Engine) observe(outcome string, action domain.ActionType, start time.Time) {
	if e.prom == nil {
		return
	}
	e.prom.RuleExecutionsTotal.WithLabelValues(outcome).Inc()
	e.prom.RuleExecutionDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
}
