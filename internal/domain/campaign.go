package domain

import "time"

// CampaignStatus enumerates the lifecycle states of an ad campaign.
type CampaignStatus string

const (
	CampaignActive CampaignStatus = "active"
	CampaignPaused CampaignStatus = "paused"
	CampaignEnded  CampaignStatus = "ended"
)

// DecimalMax is the largest magnitude storable in the metrics table's
// DECIMAL(10,4) columns. Upstream ROI/CPC values can exceed this when the
// denominator is near zero, so normalized values are clamped to ±DecimalMax
// before persistence.
const DecimalMax = 999999.9999

// ClampDecimal bounds v to the storable DECIMAL(10,4) range.
func ClampDecimal(v float64) float64 {
	if v > DecimalMax {
		return DecimalMax
	}
	if v < -DecimalMax {
		return -DecimalMax
	}
	return v
}

// CampaignMetrics is the canonical snapshot of one campaign's performance
// for one reporting day. (StoreID, CampaignID, ReportDate) is the natural
// key; repeated syncs for the same day upsert, never duplicate.
type CampaignMetrics struct {
	CampaignID  string         `json:"campaign_id" db:"campaign_id"`
	StoreID     string         `json:"store_id" db:"store_id"`
	Title       string         `json:"title" db:"title"`
	Status      CampaignStatus `json:"status" db:"status"`
	DailyBudget float64        `json:"daily_budget" db:"daily_budget"`
	Cost        float64        `json:"cost" db:"cost"`
	Impressions int64          `json:"impressions" db:"impressions"`
	Clicks      int64          `json:"clicks" db:"clicks"`
	Views       int64          `json:"views" db:"views"`
	Orders      int64          `json:"orders" db:"orders"`
	GMV         float64        `json:"gmv" db:"gmv"`
	CTR         float64        `json:"ctr" db:"ctr"`
	CPC         float64        `json:"cpc" db:"cpc"`
	CPM         float64        `json:"cpm" db:"cpm"`
	ROI         float64        `json:"roi" db:"roi"`
	CR          float64        `json:"cr" db:"cr"`
	ReportDate  time.Time      `json:"report_date" db:"report_date"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// MetricValue returns the named canonical metric as a float64. Unknown
// names return (0, false) so callers can apply best-effort fallbacks.
func (m *CampaignMetrics) MetricValue(name string) (float64, bool) {
	switch name {
	case "daily_budget":
		return m.DailyBudget, true
	case "cost":
		return m.Cost, true
	case "impressions":
		return float64(m.Impressions), true
	case "clicks":
		return float64(m.Clicks), true
	case "views":
		return float64(m.Views), true
	case "orders":
		return float64(m.Orders), true
	case "gmv":
		return m.GMV, true
	case "ctr":
		return m.CTR, true
	case "cpc":
		return m.CPC, true
	case "cpm":
		return m.CPM, true
	case "roi", "roas":
		return m.ROI, true
	case "cr":
		return m.CR, true
	default:
		return 0, false
	}
}

// SyncSummary aggregates one sync batch for the API response meta block.
type SyncSummary struct {
	TotalCampaigns  int     `json:"total_campaigns"`
	ActiveCampaigns int     `json:"active_campaigns"`
	PausedCampaigns int     `json:"paused_campaigns"`
	EndedCampaigns  int     `json:"ended_campaigns"`
	TotalSpend      float64 `json:"total_spend"`
	TotalBudget     float64 `json:"total_budget"`
	TotalGMV        float64 `json:"total_gmv"`
}

// Summarize computes batch totals over normalized campaign rows.
func Summarize(rows []CampaignMetrics) SyncSummary {
	var s SyncSummary
	s.TotalCampaigns = len(rows)
	for _, r := range rows {
		switch r.Status {
		case CampaignActive:
			s.ActiveCampaigns++
		case CampaignPaused:
			s.PausedCampaigns++
		case CampaignEnded:
			s.EndedCampaigns++
		}
		s.TotalSpend += r.Cost
		s.TotalBudget += r.DailyBudget
		s.TotalGMV += r.GMV
	}
	return s
}
