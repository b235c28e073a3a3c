package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iklanku/adpilot/internal/domain"
	"github.com/iklanku/adpilot/internal/repository/postgres"
)

type fakeLogStore struct {
	rows      []postgres.LogRow
	total     int
	latest    []postgres.LogRow
	gotFilter postgres.LogFilter
}

func (f *fakeLogStore) Query(_ context.Context, filter postgres.LogFilter) ([]postgres.LogRow, int, error) {
	f.gotFilter = filter
	return f.rows, f.total, nil
}

func (f *fakeLogStore) LatestPerCampaign(context.Context, string) ([]postgres.LogRow, error) {
	return f.latest, nil
}

type fakeRuleStore struct {
	rule *domain.Rule
}

func (f *fakeRuleStore) Get(context.Context, string) (*domain.Rule, error) {
	if f.rule == nil {
		return nil, postgres.ErrNotFound
	}
	return f.rule, nil
}

type fakeScope struct {
	ids []string
}

func (f *fakeScope) StoreIDsForUser(context.Context, string) ([]string, error) {
	return f.ids, nil
}

type fakeMetricsReader struct {
	m *domain.CampaignMetrics
}

func (f *fakeMetricsReader) Latest(context.Context, string, string) (*domain.CampaignMetrics, error) {
	if f.m == nil {
		return nil, postgres.ErrNotFound
	}
	return f.m, nil
}

func newLogsServer(t *testing.T, logs *fakeLogStore, rules *fakeRuleStore, scope *fakeScope) *httptest.Server {
	t.Helper()
	h := &Handlers{
		Sync:     NewSyncHandler(&fakeFetcher{}, &fakeMetricsStore{}, &fakeStoreLister{}, &fakeValidator{}, nil),
		Logs:     NewLogsHandler(logs, rules, scope, &fakeMetricsReader{}),
		Health:   NewHealthChecker(nil, nil),
		Verifier: stubVerifier{},
	}
	srv := httptest.NewServer(SetupRoutes(h))
	t.Cleanup(srv.Close)
	return srv
}

func skippedLogRow() postgres.LogRow {
	data, _ := json.Marshal(domain.ExecutionData{
		Evaluations: []domain.ConditionEvaluation{
			{Metric: "ctr", Operator: domain.OpGT, ExpectedValue: 10, ActualValue: 3, Met: false},
		},
		Skipped: true,
	})
	return postgres.LogRow{
		RuleExecutionLog: domain.RuleExecutionLog{
			ID: "L1", RuleID: "R1", CampaignID: "C1", StoreID: "S1",
			ActionType: domain.ActionPause, Status: domain.ExecutionSuccess,
			ExecutionData: data, ExecutedAt: time.Now(),
		},
		RuleName:      "Pause losers",
		CampaignTitle: "Promo A",
	}
}

func TestLogsListScopesNonPrivilegedUsers(t *testing.T) {
	logs := &fakeLogStore{rows: []postgres.LogRow{skippedLogRow()}, total: 1}
	srv := newLogsServer(t, logs, &fakeRuleStore{}, &fakeScope{ids: []string{"S1", "S2"}})

	resp, body := get(t, srv.URL+"/api/logs?status=success&page=1&limit=20", "user-token")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"S1", "S2"}, logs.gotFilter.StoreIDs)
	assert.Equal(t, "success", logs.gotFilter.Status)

	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	formatted := data[0].(map[string]interface{})["formatted"].(map[string]interface{})
	assert.Equal(t, "success", formatted["status"])
	assert.Contains(t, formatted["message"], "dilewati")
}

func TestLogsListAdminUnscoped(t *testing.T) {
	logs := &fakeLogStore{}
	srv := newLogsServer(t, logs, &fakeRuleStore{}, &fakeScope{ids: []string{"S1"}})

	resp, _ := get(t, srv.URL+"/api/logs", "admin-token")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, logs.gotFilter.StoreIDs)
}

func TestLogsListNoStoresShortCircuits(t *testing.T) {
	logs := &fakeLogStore{}
	srv := newLogsServer(t, logs, &fakeRuleStore{}, &fakeScope{})

	resp, body := get(t, srv.URL+"/api/logs", "user-token")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])
	assert.Empty(t, logs.gotFilter.Status)
}

func TestLogsListValidation(t *testing.T) {
	srv := newLogsServer(t, &fakeLogStore{}, &fakeRuleStore{}, &fakeScope{ids: []string{"S1"}})

	resp, _ := get(t, srv.URL+"/api/logs?status=bogus", "user-token")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/api/logs?dateFrom=31-12-2026", "user-token")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/api/logs?limit=9999", "user-token")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRuleDetail(t *testing.T) {
	rule := &domain.Rule{
		ID: "R1", UserID: "u1", Name: "Pause losers", Status: domain.RuleActive,
		Conditions: []domain.ConditionGroup{
			{Conditions: []domain.Condition{
				{Metric: "ctr", Operator: domain.OpGT, Value: 10},
				{Metric: "cost", Operator: domain.OpGTE, Value: 5000},
			}},
			{Conditions: []domain.Condition{{Metric: "roi", Operator: domain.OpLT, Value: 1}}},
		},
		SuccessRate: 92.5,
	}
	logs := &fakeLogStore{latest: []postgres.LogRow{skippedLogRow()}}
	srv := newLogsServer(t, logs, &fakeRuleStore{rule: rule}, &fakeScope{ids: []string{"S1"}})

	resp, body := get(t, srv.URL+"/api/logs/R1/detail", "user-token")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "(ctr > 10 AND cost >= 5000) OR (roi < 1)", data["conditions"])
	assert.Equal(t, 92.5, data["success_rate"])

	campaigns := data["campaigns"].([]interface{})
	require.Len(t, campaigns, 1)
	assert.Equal(t, "Promo A", campaigns[0].(map[string]interface{})["campaign_title"])
}

func TestRuleDetailNotFound(t *testing.T) {
	srv := newLogsServer(t, &fakeLogStore{}, &fakeRuleStore{}, &fakeScope{})

	resp, _ := get(t, srv.URL+"/api/logs/missing/detail", "user-token")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuleDetailHidesOtherUsersRules(t *testing.T) {
	rule := &domain.Rule{ID: "R1", UserID: "someone-else", Name: "x"}
	srv := newLogsServer(t, &fakeLogStore{}, &fakeRuleStore{rule: rule}, &fakeScope{})

	resp, _ := get(t, srv.URL+"/api/logs/R1/detail", "user-token")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
