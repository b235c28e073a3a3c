// Package metrics exposes Prometheus collectors for the automation engine
// and the sync pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Rule engine
	RuleExecutionsTotal   *prometheus.CounterVec
	RuleExecutionDuration *prometheus.HistogramVec
	RuleParseErrorsTotal  prometheus.Counter

	// Campaign sync
	SyncCampaignsTotal *prometheus.CounterVec
	SyncSkippedByLimit prometheus.Counter
	SyncDuration       *prometheus.HistogramVec

	// Upstream Shopee API
	UpstreamCalls    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	// Notifications
	NotificationsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		RuleExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adpilot_rule_executions_total",
				Help: "Rule execution attempts by terminal outcome",
			},
			[]string{"outcome"}, // success, failed, skipped
		),

		RuleExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adpilot_rule_execution_duration_seconds",
				Help:    "Duration of one (rule, campaign) evaluation attempt",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),

		RuleParseErrorsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "adpilot_rule_parse_errors_total",
				Help: "Rules skipped in a tick because their condition/action JSON failed to parse",
			},
		),

		SyncCampaignsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adpilot_sync_campaigns_total",
				Help: "Campaigns processed by sync, by campaign status",
			},
			[]string{"status"},
		),

		SyncSkippedByLimit: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "adpilot_sync_skipped_by_limit_total",
				Help: "New campaigns rejected by subscription limit enforcement",
			},
		),

		SyncDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adpilot_sync_duration_seconds",
				Help:    "Duration of one account sync",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"result"},
		),

		UpstreamCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adpilot_upstream_calls_total",
				Help: "Calls to the Shopee seller API by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),

		UpstreamDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adpilot_upstream_duration_seconds",
				Help:    "Shopee seller API call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		NotificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adpilot_notifications_total",
				Help: "Rule-triggered notification deliveries by result",
			},
			[]string{"channel", "result"},
		),
	}
}

// ObserveUpstream records one upstream call outcome with its latency.
func (m *Metrics) ObserveUpstream(endpoint, result string, start time.Time) {
	m.UpstreamCalls.WithLabelValues(endpoint, result).Inc()
	m.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
