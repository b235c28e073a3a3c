package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleStatus enumerates rule lifecycle states.
type RuleStatus string

const (
	RuleActive   RuleStatus = "active"
	RulePaused   RuleStatus = "paused"
	RuleArchived RuleStatus = "archived"
)

// Operator is a threshold comparison operator in a rule condition.
type Operator string

const (
	OpGT  Operator = ">"
	OpLT  Operator = "<"
	OpGTE Operator = ">="
	OpLTE Operator = "<="
	OpEQ  Operator = "=="
	OpNEQ Operator = "!="
)

// Valid reports whether op is one of the six supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpGT, OpLT, OpGTE, OpLTE, OpEQ, OpNEQ:
		return true
	}
	return false
}

// Condition is a single threshold check against a campaign metric.
type Condition struct {
	Metric   string   `json:"metric"`
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`
}

// ConditionGroup is an ordered list of AND-combined conditions. Groups on a
// rule combine with OR semantics: the rule fires when any group is fully
// satisfied. The stored Logic hint is kept for round-tripping but does not
// change evaluation.
type ConditionGroup struct {
	Logic      string      `json:"logic,omitempty"`
	Conditions []Condition `json:"conditions"`
}

// ActionType enumerates what a rule does when it fires.
type ActionType string

const (
	ActionUpdateBudget ActionType = "update_budget"
	ActionPause        ActionType = "pause"
	ActionResume       ActionType = "resume"
	ActionTelegram     ActionType = "telegram_notification"
)

// Action is one configured rule action. Value carries the new daily budget
// for update_budget; CustomMessage the operator-authored notification text
// for telegram_notification.
type Action struct {
	Type          ActionType `json:"type"`
	Value         float64    `json:"value,omitempty"`
	CustomMessage string     `json:"custom_message,omitempty"`
}

// Rule is a user-defined automation: condition groups over campaign metrics
// plus an ordered action list, assigned to campaigns per store.
//
// Only the first action executes when conditions are satisfied. That is the
// literal upstream contract; rules holding more than one action are logged
// as a known limitation rather than executed sequentially.
type Rule struct {
	ID          string           `json:"id" db:"id"`
	UserID      string           `json:"user_id" db:"user_id"`
	Name        string           `json:"name" db:"name"`
	Category    string           `json:"category" db:"category"`
	Conditions  []ConditionGroup `json:"conditions"`
	Actions     []Action         `json:"actions"`
	Assignments map[string][]string `json:"campaign_assignments"` // storeID -> campaignIDs
	Status      RuleStatus       `json:"status" db:"status"`
	ErrorCount  int              `json:"error_count" db:"error_count"`
	SuccessRate float64          `json:"success_rate" db:"success_rate"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// FirstAction returns the action that will execute when the rule fires.
// ok is false when the rule has no actions configured.
func (r *Rule) FirstAction() (Action, bool) {
	if len(r.Actions) == 0 {
		return Action{}, false
	}
	return r.Actions[0], true
}

// ParseConditions decodes and validates the stored condition-group JSON.
// Rules are parsed once at load time; a parse failure isolates that rule
// from the evaluation tick instead of crashing it.
func ParseConditions(raw []byte) ([]ConditionGroup, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var groups []ConditionGroup
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("parse condition groups: %w", err)
	}
	for gi, g := range groups {
		for ci, c := range g.Conditions {
			if c.Metric == "" {
				return nil, fmt.Errorf("group %d condition %d: empty metric", gi, ci)
			}
			if !c.Operator.Valid() {
				return nil, fmt.Errorf("group %d condition %d: invalid operator %q", gi, ci, c.Operator)
			}
		}
	}
	return groups, nil
}

// ParseActions decodes and validates the stored action JSON.
func ParseActions(raw []byte) ([]Action, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var actions []Action
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, fmt.Errorf("parse actions: %w", err)
	}
	for i, a := range actions {
		switch a.Type {
		case ActionUpdateBudget:
			if a.Value <= 0 {
				return nil, fmt.Errorf("action %d: update_budget requires a positive value", i)
			}
		case ActionPause, ActionResume, ActionTelegram:
		default:
			return nil, fmt.Errorf("action %d: unknown type %q", i, a.Type)
		}
	}
	return actions, nil
}

// ParseAssignments decodes the stored storeID -> campaignIDs map.
func ParseAssignments(raw []byte) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string][]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse campaign assignments: %w", err)
	}
	return m, nil
}
