package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iklanku/adpilot/internal/domain"
	"github.com/iklanku/adpilot/internal/engine"
	"github.com/iklanku/adpilot/internal/repository/postgres"
)

// LogStore is the slice of the logs repository the handlers need.
type LogStore interface {
	Query(ctx context.Context, f postgres.LogFilter) ([]postgres.LogRow, int, error)
	LatestPerCampaign(ctx context.Context, ruleID string) ([]postgres.LogRow, error)
}

// RuleStore loads rules for the detail view.
type RuleStore interface {
	Get(ctx context.Context, ruleID string) (*domain.Rule, error)
}

// ScopeSource returns the store IDs a non-privileged user may see.
type ScopeSource interface {
	StoreIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// MetricsReader supplies current metrics for re-simulated log rendering.
type MetricsReader interface {
	Latest(ctx context.Context, storeID, campaignID string) (*domain.CampaignMetrics, error)
}

// LogsHandler serves the execution log list and rule detail endpoints.
type LogsHandler struct {
	logs      LogStore
	rules     RuleStore
	scope     ScopeSource
	metrics   MetricsReader
	formatter *engine.Formatter
}

func NewLogsHandler(logs LogStore, rules RuleStore, scope ScopeSource, metrics MetricsReader) *LogsHandler {
	return &LogsHandler{
		logs:      logs,
		rules:     rules,
		scope:     scope,
		metrics:   metrics,
		formatter: engine.NewFormatter(),
	}
}

type logListItem struct {
	postgres.LogRow
	Formatted engine.FormattedLog `json:"formatted"`
}

// List handles GET /api/logs. Non-privileged callers only see logs for
// stores they own; admins see everything.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	f, err := parseLogFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !id.Role.BypassesLimits() {
		storeIDs, err := h.scope.StoreIDsForUser(r.Context(), id.UserID)
		if err != nil {
			code, msg := storageStatus(err)
			respondSafeError(w, code, err, msg)
			return
		}
		if len(storeIDs) == 0 {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    []logListItem{},
				"meta":    map[string]int{"total": 0, "page": 1},
			})
			return
		}
		f.StoreIDs = storeIDs
	}

	rows, total, err := h.logs.Query(r.Context(), f)
	if err != nil {
		code, msg := storageStatus(err)
		respondSafeError(w, code, err, msg)
		return
	}

	items := make([]logListItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, logListItem{
			LogRow:    row,
			Formatted: h.formatRow(r.Context(), row),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    items,
		"meta": map[string]interface{}{
			"total": total,
			"page":  f.Page,
			"limit": f.Limit,
		},
	})
}

// formatRow renders one log entry. Rule and current metrics are only loaded
// for legacy rows without a stored snapshot.
func (h *LogsHandler) formatRow(ctx context.Context, row postgres.LogRow) engine.FormattedLog {
	if _, ok := row.Data(); ok {
		return h.formatter.Format(row.RuleExecutionLog, nil, nil)
	}
	rule, err := h.rules.Get(ctx, row.RuleID)
	if err != nil {
		rule = nil
	}
	current, err := h.metrics.Latest(ctx, row.StoreID, row.CampaignID)
	if err != nil {
		current = nil
	}
	return h.formatter.Format(row.RuleExecutionLog, rule, current)
}

type ruleDetailCampaign struct {
	CampaignID    string              `json:"campaign_id"`
	CampaignTitle string              `json:"campaign_title"`
	StoreID       string              `json:"store_id"`
	ExecutedAt    time.Time           `json:"executed_at"`
	Formatted     engine.FormattedLog `json:"formatted"`
}

// RuleDetail handles GET /api/logs/{ruleID}/detail: the rule's condition
// tree rendered for operators plus the latest outcome per assigned campaign.
func (h *LogsHandler) RuleDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	ruleID := chi.URLParam(r, "ruleID")
	rule, err := h.rules.Get(r.Context(), ruleID)
	if err == postgres.ErrNotFound {
		respondError(w, http.StatusNotFound, "Rule not found")
		return
	}
	if err != nil {
		code, msg := storageStatus(err)
		respondSafeError(w, code, err, msg)
		return
	}
	if rule.UserID != id.UserID && !id.Role.BypassesLimits() {
		respondError(w, http.StatusNotFound, "Rule not found")
		return
	}

	rows, err := h.logs.LatestPerCampaign(r.Context(), ruleID)
	if err != nil {
		code, msg := storageStatus(err)
		respondSafeError(w, code, err, msg)
		return
	}

	campaigns := make([]ruleDetailCampaign, 0, len(rows))
	for _, row := range rows {
		campaigns = append(campaigns, ruleDetailCampaign{
			CampaignID:    row.CampaignID,
			CampaignTitle: row.CampaignTitle,
			StoreID:       row.StoreID,
			ExecutedAt:    row.ExecutedAt,
			Formatted:     h.formatRow(r.Context(), row),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"rule_id":      rule.ID,
			"rule_name":    rule.Name,
			"status":       rule.Status,
			"conditions":   engine.DescribeConditions(rule.Conditions),
			"error_count":  rule.ErrorCount,
			"success_rate": rule.SuccessRate,
			"campaigns":    campaigns,
		},
	})
}

func parseLogFilter(r *http.Request) (postgres.LogFilter, error) {
	q := r.URL.Query()
	f := postgres.LogFilter{
		Status:     q.Get("status"),
		RuleID:     q.Get("ruleFilter"),
		CampaignID: q.Get("campaignFilter"),
		StoreID:    q.Get("tokoFilter"),
		Search:     q.Get("search"),
		SortField:  q.Get("sortField"),
		SortOrder:  q.Get("sortOrder"),
		Page:       1,
		Limit:      20,
	}

	switch f.Status {
	case "", "success", "failed", "pending":
	default:
		return f, errInvalidParam("status")
	}

	if raw := q.Get("dateFrom"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, errInvalidParam("dateFrom")
		}
		f.DateFrom = t
	}
	if raw := q.Get("dateTo"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, errInvalidParam("dateTo")
		}
		// Inclusive day filter.
		f.DateTo = t.Add(24*time.Hour - time.Nanosecond)
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, errInvalidParam("page")
		}
		f.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return f, errInvalidParam("limit")
		}
		f.Limit = n
	}
	return f, nil
}
