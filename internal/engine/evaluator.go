package engine

import (
	"math"

	"github.com/iklanku/adpilot/internal/domain"
)

// Epsilon tolerates rounding noise in equality comparisons. Upstream ratio
// fields pass through float arithmetic and DECIMAL(10,4) storage, so exact
// float equality is never used.
const Epsilon = 0.01

// metricAliases maps rule-authored metric names, including legacy
// report-prefixed variants, to canonical CampaignMetrics fields. Unknown
// names pass through as literal keys for a best-effort lookup.
var metricAliases = map[string]string{
	"order":              "orders",
	"broad_order":        "orders",
	"report_broad_order": "orders",
	"click":              "clicks",
	"report_click":       "clicks",
	"impression":         "impressions",
	"report_impression":  "impressions",
	"view":               "views",
	"broad_gmv":          "gmv",
	"report_broad_gmv":   "gmv",
	"report_cost":        "cost",
	"budget":             "daily_budget",
	"broad_roi":          "roi",
	"roas":               "roi",
	"conversion":         "cr",
	"conversion_rate":    "cr",
	"report_cr":          "cr",
}

// CanonicalMetric resolves a rule-authored metric name to its canonical
// field name.
func CanonicalMetric(name string) string {
	if canonical, ok := metricAliases[name]; ok {
		return canonical
	}
	return name
}

// EvalResult is the outcome of evaluating a rule's condition groups against
// one campaign's metrics. PerCondition retains every observed value for the
// audit log; the boolean alone is never enough to explain a decision.
type EvalResult struct {
	OverallMet   bool
	PerCondition []domain.ConditionEvaluation
}

// Evaluate checks a rule's condition-group tree against current metrics.
// Within a group all conditions must hold; across groups any satisfied
// group satisfies the rule (OR of ANDs). An empty tree, and any group with
// no conditions, is vacuously satisfied.
func Evaluate(groups []domain.ConditionGroup, m *domain.CampaignMetrics) EvalResult {
	result := EvalResult{}
	if len(groups) == 0 {
		result.OverallMet = true
		return result
	}

	for _, group := range groups {
		groupMet := true
		for _, cond := range group.Conditions {
			actual := metricValue(m, cond.Metric)
			met := compare(cond.Operator, actual, cond.Value)
			if !met {
				groupMet = false
			}
			result.PerCondition = append(result.PerCondition, domain.ConditionEvaluation{
				Metric:        cond.Metric,
				Operator:      cond.Operator,
				ExpectedValue: cond.Value,
				ActualValue:   actual,
				Met:           met,
			})
		}
		if groupMet {
			result.OverallMet = true
		}
	}
	return result
}

func metricValue(m *domain.CampaignMetrics, name string) float64 {
	if v, ok := m.MetricValue(CanonicalMetric(name)); ok {
		return v
	}
	// Unknown metric: best-effort lookup already failed, default to 0.
	return 0
}

func compare(op domain.Operator, actual, threshold float64) bool {
	switch op {
	case domain.OpGT:
		return actual > threshold
	case domain.OpLT:
		return actual < threshold
	case domain.OpGTE:
		return actual >= threshold
	case domain.OpLTE:
		return actual <= threshold
	case domain.OpEQ:
		return math.Abs(actual-threshold) < Epsilon
	case domain.OpNEQ:
		return math.Abs(actual-threshold) >= Epsilon
	default:
		return false
	}
}
