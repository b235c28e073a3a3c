package domain

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the terminal outcome recorded for one evaluation attempt.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionPending ExecutionStatus = "pending"
)

// ConditionEvaluation is the per-condition snapshot captured at decision
// time. It records the value the evaluator actually saw, so the audit trail
// can explain the decision without re-querying live metrics later.
type ConditionEvaluation struct {
	Metric        string   `json:"metric"`
	Operator      Operator `json:"operator"`
	ExpectedValue float64  `json:"expectedValue"`
	ActualValue   float64  `json:"actualValue"`
	Met           bool     `json:"met"`
}

// ExecutionData is the structured diagnostic blob stored on each log row.
// Evaluations holds the full per-condition snapshot; Skipped distinguishes
// a conditions-not-met outcome (not an error) from an executed action.
type ExecutionData struct {
	Evaluations []ConditionEvaluation `json:"evaluations"`
	Skipped     bool                  `json:"skipped"`
	BudgetFrom  float64               `json:"budget_from,omitempty"`
	BudgetTo    float64               `json:"budget_to,omitempty"`
}

// RuleExecutionLog is the immutable-once-written audit record of one
// (rule, campaign, tick) attempt.
type RuleExecutionLog struct {
	ID            string          `json:"id" db:"id"`
	RuleID        string          `json:"rule_id" db:"rule_id"`
	CampaignID    string          `json:"campaign_id" db:"campaign_id"`
	StoreID       string          `json:"store_id" db:"store_id"`
	ActionType    ActionType      `json:"action_type" db:"action_type"`
	Status        ExecutionStatus `json:"status" db:"status"`
	ErrorMessage  string          `json:"error_message,omitempty" db:"error_message"`
	ExecutionData json.RawMessage `json:"execution_data" db:"execution_data"`
	ExecutedAt    time.Time       `json:"executed_at" db:"executed_at"`
}

// Data decodes the stored execution snapshot. ok is false when the row
// predates snapshot capture or the blob is unreadable; the formatter then
// falls back to re-simulation against current metrics.
func (l *RuleExecutionLog) Data() (ExecutionData, bool) {
	if len(l.ExecutionData) == 0 {
		return ExecutionData{}, false
	}
	var d ExecutionData
	if err := json.Unmarshal(l.ExecutionData, &d); err != nil {
		return ExecutionData{}, false
	}
	if d.Evaluations == nil && !d.Skipped {
		return d, false
	}
	return d, true
}
