// Package normalize turns heterogeneous Shopee ad-report payloads into
// canonical CampaignMetrics rows. It is a pure transformation: persistence
// (the upsert keyed by store+campaign+reportDate) belongs to the repository.
package normalize

import (
	"log"
	"time"

	"github.com/iklanku/adpilot/internal/domain"
)

// currencyScale converts Shopee micro-currency integers to currency units.
const currencyScale = 100000

// Normalizer maps raw upstream campaign entries to canonical metrics.
type Normalizer struct{}

func New() *Normalizer { return &Normalizer{} }

// Normalize converts one raw campaign entry for the given store and report
// date. Missing fields default to zero; out-of-range decimals are clamped to
// the storable range with a logged warning. The input is never mutated.
func (n *Normalizer) Normalize(raw Raw, storeID string, reportDate time.Time) domain.CampaignMetrics {
	m := domain.CampaignMetrics{
		CampaignID: str(raw, "campaign_id", "campaignId", "campaign.campaign_id", "campaign.campaignId"),
		StoreID:    storeID,
		Title:      str(raw, "title", "name", "campaign.title", "campaign.name"),
		Status:     normalizeStatus(str(raw, "state", "status", "campaign.state", "campaign.status")),
		ReportDate: reportDate,
	}

	// Monetary fields arrive as micro-currency integers.
	m.DailyBudget = number(raw, "daily_budget", "campaign.daily_budget", "campaign.dailyBudget") / currencyScale
	m.Cost = number(raw, "cost", "report.cost", "report.broad_cost") / currencyScale
	m.GMV = number(raw, "gmv", "report.broad_gmv", "report.gmv") / currencyScale

	m.Impressions = int64(number(raw, "impression", "impressions", "report.impression", "report.impressions"))
	m.Clicks = int64(number(raw, "click", "clicks", "report.click", "report.clicks"))
	m.Views = int64(number(raw, "view", "views", "report.view", "report.product_views"))
	m.Orders = int64(number(raw, "order", "orders", "report.broad_order", "report.order"))

	// Ratio fields: prefer upstream-provided values, derive when absent.
	m.CTR = ratioOrDerived(raw, []string{"ctr", "ratio.ctr", "report.ctr"}, func() float64 {
		return safeDiv(float64(m.Clicks), float64(m.Impressions)) * 100
	})
	m.CPC = ratioOrDerived(raw, []string{"cpc", "ratio.cpc", "report.cpc"}, func() float64 {
		return safeDiv(m.Cost, float64(m.Clicks))
	})
	m.CPM = ratioOrDerived(raw, []string{"cpm", "ratio.cpm", "report.cpm"}, func() float64 {
		return safeDiv(m.Cost, float64(m.Impressions)) * 1000
	})
	m.ROI = ratioOrDerived(raw, []string{"roi", "roas", "ratio.roi", "report.broad_roi"}, func() float64 {
		return safeDiv(m.GMV, m.Cost)
	})
	m.CR = ratioOrDerived(raw, []string{"cr", "conversion_rate", "ratio.cr", "report.cr"}, func() float64 {
		return safeDiv(float64(m.Orders), float64(m.Clicks)) * 100
	})

	m.DailyBudget = clampField("daily_budget", m.CampaignID, m.DailyBudget)
	m.Cost = clampField("cost", m.CampaignID, m.Cost)
	m.GMV = clampField("gmv", m.CampaignID, m.GMV)
	m.CTR = clampField("ctr", m.CampaignID, m.CTR)
	m.CPC = clampField("cpc", m.CampaignID, m.CPC)
	m.CPM = clampField("cpm", m.CampaignID, m.CPM)
	m.ROI = clampField("roi", m.CampaignID, m.ROI)
	m.CR = clampField("cr", m.CampaignID, m.CR)

	return m
}

// NormalizeBatch converts a list of raw entries, dropping entries without a
// campaign ID (they cannot be keyed for upsert).
func (n *Normalizer) NormalizeBatch(raws []Raw, storeID string, reportDate time.Time) []domain.CampaignMetrics {
	out := make([]domain.CampaignMetrics, 0, len(raws))
	for _, raw := range raws {
		m := n.Normalize(raw, storeID, reportDate)
		if m.CampaignID == "" {
			log.Printf("[normalize] dropping entry without campaign_id for store %s", storeID)
			continue
		}
		out = append(out, m)
	}
	return out
}

func ratioOrDerived(raw Raw, paths []string, derive func() float64) float64 {
	for _, p := range paths {
		if v, ok := lookup(raw, p); ok {
			if f, ok := toFloat(v); ok {
				return f
			}
		}
	}
	return derive()
}

// safeDiv guards every derived metric against division by zero: the result
// is 0, never NaN or Inf.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func clampField(field, campaignID string, v float64) float64 {
	clamped := domain.ClampDecimal(v)
	if clamped != v {
		log.Printf("[normalize] clamped %s for campaign %s: %v -> %v", field, campaignID, v, clamped)
	}
	return clamped
}

func normalizeStatus(s string) domain.CampaignStatus {
	switch s {
	case "ongoing", "active", "running":
		return domain.CampaignActive
	case "paused", "suspended":
		return domain.CampaignPaused
	case "ended", "closed", "deleted":
		return domain.CampaignEnded
	default:
		// Unknown states are treated as paused: safe for automation,
		// which only acts on active campaigns.
		return domain.CampaignPaused
	}
}
