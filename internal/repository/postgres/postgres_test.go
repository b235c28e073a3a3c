package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iklanku/adpilot/internal/domain"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func sampleMetrics() *domain.CampaignMetrics {
	return &domain.CampaignMetrics{
		CampaignID:  "C1",
		StoreID:     "S1",
		Title:       "Promo A",
		Status:      domain.CampaignActive,
		DailyBudget: 50000,
		Cost:        12000,
		Impressions: 1000,
		Clicks:      50,
		GMV:         90000,
		CTR:         5,
		ReportDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMetricsUpsertUsesNaturalKeyConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMetricsRepo(db)

	mock.ExpectExec("INSERT INTO campaign_metrics").
		WithArgs("S1", "C1", "Promo A", domain.CampaignActive, 50000.0, 12000.0,
			int64(1000), int64(50), int64(0), int64(0), 90000.0, 5.0, 0.0, 0.0, 0.0, 0.0,
			sampleMetrics().ReportDate).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), sampleMetrics()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsLatest(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMetricsRepo(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"store_id", "campaign_id", "title", "status", "daily_budget", "cost",
		"impressions", "clicks", "views", "orders", "gmv", "ctr", "cpc", "cpm", "roi", "cr",
		"report_date", "updated_at",
	}).AddRow("S1", "C1", "Promo A", "active", 50000.0, 12000.0,
		1000, 50, 0, 3, 90000.0, 5.0, 240.0, 12000.0, 7.5, 6.0, now, now)

	mock.ExpectQuery("SELECT store_id, campaign_id").
		WithArgs("S1", "C1").
		WillReturnRows(rows)

	m, err := repo.Latest(context.Background(), "S1", "C1")
	require.NoError(t, err)
	assert.Equal(t, "Promo A", m.Title)
	assert.Equal(t, 7.5, m.ROI)
}

func TestMetricsLatestNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMetricsRepo(db)

	mock.ExpectQuery("SELECT store_id, campaign_id").
		WithArgs("S1", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"store_id"}))

	_, err := repo.Latest(context.Background(), "S1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func ruleRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "user_id", "name", "category", "conditions", "actions",
		"campaign_assignments", "status", "error_count", "success_rate",
		"created_at", "updated_at",
	}).AddRow(
		"R1", "u1", "Pause losers", "performance",
		[]byte(`[{"conditions":[{"metric":"ctr","operator":">","value":10}]}]`),
		[]byte(`[{"type":"pause"}]`),
		[]byte(`{"S1":["C1","C2"]}`),
		"active", 0, 100.0, now, now,
	)
}

func TestRulesListActiveParsesBlobs(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRulesRepo(db, nil)

	mock.ExpectQuery("FROM automation_rules").WillReturnRows(ruleRows())

	rules, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "ctr", rules[0].Conditions[0].Conditions[0].Metric)
	assert.Equal(t, domain.ActionPause, rules[0].Actions[0].Type)
	assert.Equal(t, []string{"C1", "C2"}, rules[0].Assignments["S1"])
}

func TestRulesListActiveSkipsMalformedRule(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRulesRepo(db, nil)

	now := time.Now()
	rows := ruleRows().AddRow(
		"R2", "u1", "Broken", "",
		[]byte(`not json`), []byte(`[]`), []byte(`{}`),
		"active", 0, 100.0, now, now,
	)
	mock.ExpectQuery("FROM automation_rules").WillReturnRows(rows)

	rules, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "R1", rules[0].ID)
}

func TestRulesRecordOutcome(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRulesRepo(db, nil)

	mock.ExpectExec("UPDATE automation_rules").
		WithArgs("R1", 1, 50.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordOutcome(context.Background(), "R1", 2, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRulesRecordOutcomeNoAttemptsIsNoop(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRulesRepo(db, nil)
	require.NoError(t, repo.RecordOutcome(context.Background(), "R1", 0, 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogsCreateGeneratesID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLogsRepo(db)

	mock.ExpectExec("INSERT INTO rule_execution_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &domain.RuleExecutionLog{
		RuleID:     "R1",
		CampaignID: "C1",
		StoreID:    "S1",
		ActionType: domain.ActionPause,
		Status:     domain.ExecutionSuccess,
	}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.ExecutedAt.IsZero())
}

func TestLogsQueryAppliesFiltersAndPagination(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLogsRepo(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("failed", "R1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))

	now := time.Now()
	mock.ExpectQuery("FROM rule_execution_logs").
		WithArgs("failed", "R1", 20, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "rule_id", "campaign_id", "store_id", "action_type", "status",
			"error_message", "execution_data", "executed_at", "name", "campaign_title",
		}).AddRow("L1", "R1", "C1", "S1", "pause", "failed",
			"Upstream request failed", []byte(`{"evaluations":[],"skipped":false}`), now,
			"Pause losers", "Promo A"))

	rows, total, err := repo.Query(context.Background(), LogFilter{
		Status: "failed",
		RuleID: "R1",
		Page:   2,
		Limit:  20,
	})
	require.NoError(t, err)
	assert.Equal(t, 41, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Pause losers", rows[0].RuleName)
	assert.Equal(t, "Upstream request failed", rows[0].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionPlanForUserMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepo(db)

	mock.ExpectQuery("FROM subscriptions").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"plan_id"}))

	plan, name, err := repo.PlanForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.Empty(t, name)
}

func TestSubscriptionPlanForUserRetiredPlanKeepsName(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepo(db)

	// LEFT JOIN: subscription row survives, plan columns come back NULL.
	mock.ExpectQuery("LEFT JOIN plans").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"plan_id", "id", "name", "max_accounts", "max_automation_rules", "max_campaigns",
		}).AddRow("starter", nil, nil, nil, nil, nil))

	plan, name, err := repo.PlanForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.Equal(t, "starter", name)
}

func TestSubscriptionPlanForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepo(db)

	mock.ExpectQuery("LEFT JOIN plans").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"plan_id", "id", "name", "max_accounts", "max_automation_rules", "max_campaigns",
		}).AddRow("pro", "pro", "pro", 5, 50, 200))

	plan, name, err := repo.PlanForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "pro", name)
	assert.Equal(t, 200, plan.MaxCampaigns)
}

func TestSubscriptionCurrentUsage(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepo(db)

	mock.ExpectQuery("SELECT").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"a", "r", "c"}).AddRow(2, 5, 17))

	u, err := repo.CurrentUsage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Usage{Accounts: 2, Rules: 5, Campaigns: 17}, u)
}

func TestStoreActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewStoresRepo(db)

	mock.ExpectQuery("SELECT active FROM stores").
		WithArgs("S1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))

	active, err := repo.StoreActive(context.Background(), "u1", "S1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestStoreActiveMissingRowIsInactive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewStoresRepo(db)

	mock.ExpectQuery("SELECT active FROM stores").
		WithArgs("S9", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"active"}))

	active, err := repo.StoreActive(context.Background(), "u1", "S9")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestUserRoleDefaultsToUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUsersRepo(db)

	mock.ExpectQuery("SELECT role FROM users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	role, err := repo.Role(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, role)
}

func TestUserTelegramChatID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUsersRepo(db)

	mock.ExpectQuery("SELECT telegram_chat_id").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"telegram_chat_id"}).AddRow(int64(777)))

	id, err := repo.TelegramChatID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(777), id)
}
