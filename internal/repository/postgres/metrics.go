// Package postgres holds the SQL-backed repositories. Queries are plain SQL
// over database/sql with lib/pq; no ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/iklanku/adpilot/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// MetricsRepo persists normalized campaign snapshots.
type MetricsRepo struct{ db *sql.DB }

// NewMetricsRepo creates a Postgres-backed metrics repository.
func NewMetricsRepo(db *sql.DB) *MetricsRepo { return &MetricsRepo{db: db} }

// Upsert writes one campaign snapshot. (store_id, campaign_id, report_date)
// is the natural key, so re-syncing the same day updates in place and the
// sync endpoint stays idempotent.
func (r *MetricsRepo) Upsert(ctx context.Context, m *domain.CampaignMetrics) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_metrics
			(store_id, campaign_id, title, status, daily_budget, cost,
			 impressions, clicks, views, orders, gmv, ctr, cpc, cpm, roi, cr,
			 report_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (store_id, campaign_id, report_date) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			daily_budget = EXCLUDED.daily_budget,
			cost = EXCLUDED.cost,
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			views = EXCLUDED.views,
			orders = EXCLUDED.orders,
			gmv = EXCLUDED.gmv,
			ctr = EXCLUDED.ctr,
			cpc = EXCLUDED.cpc,
			cpm = EXCLUDED.cpm,
			roi = EXCLUDED.roi,
			cr = EXCLUDED.cr,
			updated_at = NOW()
	`, m.StoreID, m.CampaignID, m.Title, m.Status, m.DailyBudget, m.Cost,
		m.Impressions, m.Clicks, m.Views, m.Orders, m.GMV, m.CTR, m.CPC, m.CPM, m.ROI, m.CR,
		m.ReportDate)
	if err != nil {
		return fmt.Errorf("upsert campaign metrics: %w", err)
	}
	return nil
}

// UpsertBatch writes a sync batch one row at a time inside a transaction.
func (r *MetricsRepo) UpsertBatch(ctx context.Context, rows []domain.CampaignMetrics) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metrics batch: %w", err)
	}
	defer tx.Rollback()

	for i := range rows {
		m := &rows[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_metrics
				(store_id, campaign_id, title, status, daily_budget, cost,
				 impressions, clicks, views, orders, gmv, ctr, cpc, cpm, roi, cr,
				 report_date, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
			ON CONFLICT (store_id, campaign_id, report_date) DO UPDATE SET
				title = EXCLUDED.title,
				status = EXCLUDED.status,
				daily_budget = EXCLUDED.daily_budget,
				cost = EXCLUDED.cost,
				impressions = EXCLUDED.impressions,
				clicks = EXCLUDED.clicks,
				views = EXCLUDED.views,
				orders = EXCLUDED.orders,
				gmv = EXCLUDED.gmv,
				ctr = EXCLUDED.ctr,
				cpc = EXCLUDED.cpc,
				cpm = EXCLUDED.cpm,
				roi = EXCLUDED.roi,
				cr = EXCLUDED.cr,
				updated_at = NOW()
		`, m.StoreID, m.CampaignID, m.Title, m.Status, m.DailyBudget, m.Cost,
			m.Impressions, m.Clicks, m.Views, m.Orders, m.GMV, m.CTR, m.CPC, m.CPM, m.ROI, m.CR,
			m.ReportDate); err != nil {
			return fmt.Errorf("upsert campaign %s: %w", m.CampaignID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metrics batch: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for a campaign. The rule engine
// evaluates against this row.
func (r *MetricsRepo) Latest(ctx context.Context, storeID, campaignID string) (*domain.CampaignMetrics, error) {
	m := &domain.CampaignMetrics{}
	err := r.db.QueryRowContext(ctx, `
		SELECT store_id, campaign_id, title, status, daily_budget, cost,
		       impressions, clicks, views, orders, gmv, ctr, cpc, cpm, roi, cr,
		       report_date, updated_at
		FROM campaign_metrics
		WHERE store_id = $1 AND campaign_id = $2
		ORDER BY report_date DESC
		LIMIT 1
	`, storeID, campaignID).Scan(
		&m.StoreID, &m.CampaignID, &m.Title, &m.Status, &m.DailyBudget, &m.Cost,
		&m.Impressions, &m.Clicks, &m.Views, &m.Orders, &m.GMV, &m.CTR, &m.CPC, &m.CPM, &m.ROI, &m.CR,
		&m.ReportDate, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest metrics for campaign %s: %w", campaignID, err)
	}
	return m, nil
}

// ExistingCampaignIDs returns which of the given campaign IDs already have
// rows for the store. Sync limit enforcement needs the existing set so ID
// re-syncs are never blocked by capacity.
func (r *MetricsRepo) ExistingCampaignIDs(ctx context.Context, storeID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT campaign_id
		FROM campaign_metrics
		WHERE store_id = $1 AND campaign_id = ANY($2)
	`, storeID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("existing campaign ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
