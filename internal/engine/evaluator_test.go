package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iklanku/adpilot/internal/domain"
)

func metricsFixture() *domain.CampaignMetrics {
	return &domain.CampaignMetrics{
		CTR:         5.0,
		Cost:        100000,
		ROI:         2.0049,
		Clicks:      500,
		Orders:      25,
		CR:          5.0,
		DailyBudget: 50000,
	}
}

func TestEvaluate_SingleConditionMet(t *testing.T) {
	groups := []domain.ConditionGroup{
		{Conditions: []domain.Condition{{Metric: "ctr", Operator: domain.OpGT, Value: 4.5}}},
	}

	result := Evaluate(groups, metricsFixture())

	assert.True(t, result.OverallMet)
	require.Len(t, result.PerCondition, 1)
	assert.Equal(t, 5.0, result.PerCondition[0].ActualValue)
	assert.True(t, result.PerCondition[0].Met)
}

func TestEvaluate_SingleConditionNotMet(t *testing.T) {
	groups := []domain.ConditionGroup{
		{Conditions: []domain.Condition{{Metric: "cost", Operator: domain.OpLTE, Value: 50000}}},
	}

	result := Evaluate(groups, metricsFixture())

	assert.False(t, result.OverallMet)
	require.Len(t, result.PerCondition, 1)
	assert.Equal(t, 100000.0, result.PerCondition[0].ActualValue)
	assert.False(t, result.PerCondition[0].Met)
}

func TestEvaluate_EqualityEpsilon(t *testing.T) {
	within := []domain.ConditionGroup{
		{Conditions: []domain.Condition{{Metric: "roi", Operator: domain.OpEQ, Value: 2.0}}},
	}
	// actual 2.0049 is within the 0.01 epsilon
	assert.True(t, Evaluate(within, metricsFixture()).OverallMet)

	m := metricsFixture()
	m.ROI = 2.02
	assert.False(t, Evaluate(within, m).OverallMet)
}

func TestEvaluate_NotEqualEpsilon(t *testing.T) {
	groups := []domain.ConditionGroup{
		{Conditions: []domain.Condition{{Metric: "roi", Operator: domain.OpNEQ, Value: 2.0}}},
	}
	// 2.0049 counts as equal within epsilon, so != is false
	assert.False(t, Evaluate(groups, metricsFixture()).OverallMet)

	m := metricsFixture()
	m.ROI = 3.5
	assert.True(t, Evaluate(groups, m).OverallMet)
}

func TestEvaluate_GroupAndSemantics(t *testing.T) {
	groups := []domain.ConditionGroup{
		{Conditions: []domain.Condition{
			{Metric: "ctr", Operator: domain.OpGT, Value: 4.5},
			{Metric: "cost", Operator: domain.OpLT, Value: 50000}, // fails
		}},
	}

	result := Evaluate(groups, metricsFixture())

	assert.False(t, result.OverallMet)
	assert.Len(t, result.PerCondition, 2)
	assert.True(t, result.PerCondition[0].Met)
	assert.False(t, result.PerCondition[1].Met)
}

func TestEvaluate_OrAcrossGroups(t *testing.T) {
	// First group fails, second passes: plain OR across groups.
	groups := []domain.ConditionGroup{
		{Conditions: []domain.Condition{{Metric: "cost", Operator: domain.OpLT, Value: 1}}},
		{Conditions: []domain.Condition{{Metric: "ctr", Operator: domain.OpGT, Value: 1}}},
	}

	result := Evaluate(groups, metricsFixture())

	assert.True(t, result.OverallMet)
	assert.Len(t, result.PerCondition, 2)
}

func TestEvaluate_EmptyTreeVacuouslyMet(t *testing.T) {
	result := Evaluate(nil, metricsFixture())

	assert.True(t, result.OverallMet)
	assert.Empty(t, result.PerCondition)
}

func TestEvaluate_EmptyGroupVacuouslyMet(t *testing.T) {
	groups := []domain.ConditionGroup{{Conditions: nil}}

	assert.True(t, Evaluate(groups, metricsFixture()).OverallMet)
}

func TestEvaluate_LegacyMetricAliases(t *testing.T) {
	groups := []domain.ConditionGroup{
		{Conditions: []domain.Condition{{Metric: "report_broad_order", Operator: domain.OpGTE, Value: 25}}},
	}

	result := Evaluate(groups, metricsFixture())

	assert.True(t, result.OverallMet)
	assert.Equal(t, 25.0, result.PerCondition[0].ActualValue)
}

func TestEvaluate_UnknownMetricDefaultsToZero(t *testing.T) {
	groups := []domain.ConditionGroup{
		{Conditions: []domain.Condition{{Metric: "made_up_metric", Operator: domain.OpEQ, Value: 0}}},
	}

	result := Evaluate(groups, metricsFixture())

	assert.True(t, result.OverallMet)
	assert.Zero(t, result.PerCondition[0].ActualValue)
}

func TestEvaluate_ConversionRateIsARateNotACount(t *testing.T) {
	// 25 orders over 500 clicks: the rate is 5%, not the order count.
	groups := []domain.ConditionGroup{
		{Conditions: []domain.Condition{{Metric: "conversion", Operator: domain.OpLT, Value: 10}}},
	}

	result := Evaluate(groups, metricsFixture())

	assert.True(t, result.OverallMet)
	assert.Equal(t, 5.0, result.PerCondition[0].ActualValue)
}

func TestCanonicalMetric(t *testing.T) {
	assert.Equal(t, "orders", CanonicalMetric("broad_order"))
	assert.Equal(t, "roi", CanonicalMetric("roas"))
	assert.Equal(t, "cr", CanonicalMetric("conversion"))
	assert.Equal(t, "ctr", CanonicalMetric("ctr"))
	assert.Equal(t, "custom", CanonicalMetric("custom"))
}
