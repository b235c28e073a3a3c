package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/iklanku/adpilot/internal/domain"
)

// LogsRepo persists and queries rule execution logs.
type LogsRepo struct{ db *sql.DB }

// NewLogsRepo creates a Postgres-backed execution log repository.
func NewLogsRepo(db *sql.DB) *LogsRepo { return &LogsRepo{db: db} }

// Create writes one execution log row. IDs are generated here when absent.
func (r *LogsRepo) Create(ctx context.Context, entry *domain.RuleExecutionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rule_execution_logs
			(id, rule_id, campaign_id, store_id, action_type, status,
			 error_message, execution_data, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, $9)
	`, entry.ID, entry.RuleID, entry.CampaignID, entry.StoreID, entry.ActionType,
		entry.Status, entry.ErrorMessage, []byte(entry.ExecutionData), entry.ExecutedAt)
	if err != nil {
		return fmt.Errorf("create execution log: %w", err)
	}
	return nil
}

// LogFilter narrows and orders an execution log query. Zero values mean no
// filtering on that dimension. StoreIDs carries the visibility scope for
// non-privileged users; empty means unscoped.
type LogFilter struct {
	Status     string
	RuleID     string
	CampaignID string
	StoreID    string
	Search     string
	DateFrom   time.Time
	DateTo     time.Time
	StoreIDs   []string
	SortField  string
	SortOrder  string
	Page       int
	Limit      int
}

// LogRow is one execution log entry joined with display names for the list
// view.
type LogRow struct {
	domain.RuleExecutionLog
	RuleName      string `json:"rule_name"`
	CampaignTitle string `json:"campaign_title"`
}

// sortColumns whitelists sortable fields. Anything else falls back to
// executed_at so user input never reaches the ORDER BY clause raw.
var sortColumns = map[string]string{
	"executedAt": "l.executed_at",
	"status":     "l.status",
	"ruleName":   "r.name",
	"campaign":   "campaign_title",
}

// Query returns a page of execution logs plus the unpaginated total.
func (r *LogsRepo) Query(ctx context.Context, f LogFilter) ([]LogRow, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	idx := 1

	add := func(clause string, val any) {
		where += fmt.Sprintf(" AND "+clause, idx)
		args = append(args, val)
		idx++
	}

	if f.Status != "" {
		add("l.status = $%d", f.Status)
	}
	if f.RuleID != "" {
		add("l.rule_id = $%d", f.RuleID)
	}
	if f.CampaignID != "" {
		add("l.campaign_id = $%d", f.CampaignID)
	}
	if f.StoreID != "" {
		add("l.store_id = $%d", f.StoreID)
	}
	if !f.DateFrom.IsZero() {
		add("l.executed_at >= $%d", f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		add("l.executed_at <= $%d", f.DateTo)
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (r.name ILIKE $%d OR COALESCE(m.title,'') ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	if len(f.StoreIDs) > 0 {
		add("l.store_id = ANY($%d)", pq.Array(f.StoreIDs))
	}

	from := `
		FROM rule_execution_logs l
		JOIN automation_rules r ON r.id = l.rule_id
		LEFT JOIN LATERAL (
			SELECT title FROM campaign_metrics
			WHERE store_id = l.store_id AND campaign_id = l.campaign_id
			ORDER BY report_date DESC LIMIT 1
		) m ON true`

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count execution logs: %w", err)
	}

	col, ok := sortColumns[f.SortField]
	if !ok {
		col = "l.executed_at"
	}
	dir := "DESC"
	if f.SortOrder == "asc" {
		dir = "ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	q := `
		SELECT l.id, l.rule_id, l.campaign_id, l.store_id, l.action_type,
		       l.status, COALESCE(l.error_message,''), l.execution_data,
		       l.executed_at, r.name, COALESCE(m.title,'') AS campaign_title` +
		from + where +
		fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", col, dir, idx, idx+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query execution logs: %w", err)
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var row LogRow
		var data []byte
		if err := rows.Scan(
			&row.ID, &row.RuleID, &row.CampaignID, &row.StoreID, &row.ActionType,
			&row.Status, &row.ErrorMessage, &data, &row.ExecutedAt,
			&row.RuleName, &row.CampaignTitle,
		); err != nil {
			return nil, 0, fmt.Errorf("scan execution log: %w", err)
		}
		row.ExecutionData = data
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// LatestPerCampaign returns the newest log entry for each campaign a rule
// touched, for the rule detail view.
func (r *LogsRepo) LatestPerCampaign(ctx context.Context, ruleID string) ([]LogRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (l.campaign_id)
		       l.id, l.rule_id, l.campaign_id, l.store_id, l.action_type,
		       l.status, COALESCE(l.error_message,''), l.execution_data,
		       l.executed_at, r.name, COALESCE(m.title,'')
		FROM rule_execution_logs l
		JOIN automation_rules r ON r.id = l.rule_id
		LEFT JOIN LATERAL (
			SELECT title FROM campaign_metrics
			WHERE store_id = l.store_id AND campaign_id = l.campaign_id
			ORDER BY report_date DESC LIMIT 1
		) m ON true
		WHERE l.rule_id = $1
		ORDER BY l.campaign_id, l.executed_at DESC
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("latest logs for rule %s: %w", ruleID, err)
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var row LogRow
		var data []byte
		if err := rows.Scan(
			&row.ID, &row.RuleID, &row.CampaignID, &row.StoreID, &row.ActionType,
			&row.Status, &row.ErrorMessage, &data, &row.ExecutedAt,
			&row.RuleName, &row.CampaignTitle,
		); err != nil {
			return nil, fmt.Errorf("scan rule detail log: %w", err)
		}
		row.ExecutionData = data
		out = append(out, row)
	}
	return out, rows.Err()
}
