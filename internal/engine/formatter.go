package engine

import (
	"fmt"
	"strings"

	"github.com/iklanku/adpilot/internal/domain"
)

// FormattedLog is the operator-facing rendering of one execution log row.
type FormattedLog struct {
	Status            string `json:"status"`
	ConditionsSummary string `json:"conditions_summary"`
	ActionDescription string `json:"action_description"`
	Message           string `json:"message"`
	// Resimulated marks the fallback path: the stored evaluation snapshot
	// was missing, so conditions were re-run against current metrics and
	// may disagree with the original decision.
	Resimulated bool `json:"resimulated"`
}

// Formatter renders execution logs for the operator views.
type Formatter struct{}

func NewFormatter() *Formatter { return &Formatter{} }

// Format renders one log row. The stored per-condition snapshot is
// authoritative whenever present; current metrics are only consulted for
// rows written before snapshot capture existed, and that re-simulation is
// flagged, never silently merged.
func (f *Formatter) Format(entry domain.RuleExecutionLog, rule *domain.Rule, current *domain.CampaignMetrics) FormattedLog {
	data, ok := entry.Data()
	if !ok {
		return f.formatResimulated(entry, rule, current)
	}

	out := FormattedLog{
		ConditionsSummary: summarizeEvaluations(data.Evaluations),
		ActionDescription: DescribeAction(entry.ActionType, data),
	}

	switch {
	case data.Skipped:
		// Unmet conditions are a skip, not an error.
		out.Status = string(domain.ExecutionSuccess)
		out.Message = "Kondisi tidak terpenuhi - dilewati (conditions not met, skipped)"
	case entry.Status == domain.ExecutionFailed:
		out.Status = string(domain.ExecutionFailed)
		out.Message = entry.ErrorMessage
	default:
		out.Status = string(domain.ExecutionSuccess)
		met, total := countMet(data.Evaluations)
		out.Message = fmt.Sprintf("%d conditions checked, %d met, %d not met - %s executed",
			total, met, total-met, describeActionShort(entry.ActionType))
	}
	return out
}

// formatResimulated is the fallback for rows without a stored snapshot. The
// result reflects metrics as they are now, which may diverge from what the
// engine saw then.
func (f *Formatter) formatResimulated(entry domain.RuleExecutionLog, rule *domain.Rule, current *domain.CampaignMetrics) FormattedLog {
	out := FormattedLog{
		Resimulated:       true,
		ActionDescription: DescribeAction(entry.ActionType, domain.ExecutionData{}),
	}

	if entry.Status == domain.ExecutionFailed {
		out.Status = string(domain.ExecutionFailed)
	} else {
		out.Status = string(domain.ExecutionSuccess)
	}

	if rule == nil || current == nil {
		out.ConditionsSummary = "evaluation snapshot unavailable"
		out.Message = "Original evaluation data was not recorded for this entry"
		return out
	}

	result := Evaluate(rule.Conditions, current)
	out.ConditionsSummary = summarizeEvaluations(result.PerCondition)
	met, total := countMet(result.PerCondition)
	out.Message = fmt.Sprintf("re-simulated against current metrics: %d of %d conditions met now (original values not recorded)",
		met, total)
	return out
}

// DescribeAction renders an action type for operators.
func DescribeAction(t domain.ActionType, data domain.ExecutionData) string {
	switch t {
	case domain.ActionUpdateBudget:
		if data.BudgetTo > 0 {
			return fmt.Sprintf("Set daily budget from %.0f to %.0f", data.BudgetFrom, data.BudgetTo)
		}
		return "Update daily budget"
	case domain.ActionPause:
		return "Pause campaign"
	case domain.ActionResume:
		return "Resume campaign"
	case domain.ActionTelegram:
		return "Send Telegram notification"
	case "":
		return "No action"
	default:
		return string(t)
	}
}

func describeActionShort(t domain.ActionType) string {
	switch t {
	case domain.ActionUpdateBudget:
		return "budget update"
	case domain.ActionPause:
		return "pause"
	case domain.ActionResume:
		return "resume"
	case domain.ActionTelegram:
		return "notification"
	default:
		return "action"
	}
}

// DescribeConditions renders a rule's condition tree for the detail view,
// e.g. "(ctr > 10 AND cost >= 5000) OR (roi < 1)".
func DescribeConditions(groups []domain.ConditionGroup) string {
	if len(groups) == 0 {
		return "no conditions (always fires)"
	}
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		if len(g.Conditions) == 0 {
			parts = append(parts, "(no conditions)")
			continue
		}
		conds := make([]string, 0, len(g.Conditions))
		for _, c := range g.Conditions {
			conds = append(conds, fmt.Sprintf("%s %s %g", c.Metric, c.Operator, c.Value))
		}
		parts = append(parts, "("+strings.Join(conds, " AND ")+")")
	}
	return strings.Join(parts, " OR ")
}

func summarizeEvaluations(evals []domain.ConditionEvaluation) string {
	if len(evals) == 0 {
		return "no conditions"
	}
	parts := make([]string, 0, len(evals))
	for _, ev := range evals {
		mark := "✓"
		if !ev.Met {
			mark = "✗"
		}
		parts = append(parts, fmt.Sprintf("%s %s %s %g (actual %g)", mark, ev.Metric, ev.Operator, ev.ExpectedValue, ev.ActualValue))
	}
	return strings.Join(parts, "; ")
}

func countMet(evals []domain.ConditionEvaluation) (met, total int) {
	for _, ev := range evals {
		if ev.Met {
			met++
		}
	}
	return met, len(evals)
}
