package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iklanku/adpilot/internal/domain"
	"github.com/iklanku/adpilot/internal/limits"
	"github.com/iklanku/adpilot/internal/normalize"
	"github.com/iklanku/adpilot/internal/pkg/metrics"
	"github.com/iklanku/adpilot/internal/repository/postgres"
)

// CampaignFetcher pulls raw campaign payloads from the seller API.
type CampaignFetcher interface {
	FetchCampaigns(ctx context.Context, storeID string, start, end time.Time) ([]normalize.Raw, error)
}

// MetricsStore is the slice of the metrics repository the sync handler needs.
type MetricsStore interface {
	UpsertBatch(ctx context.Context, rows []domain.CampaignMetrics) error
	ExistingCampaignIDs(ctx context.Context, storeID string, ids []string) ([]string, error)
}

// StoreLister returns the caller's connected stores.
type StoreLister interface {
	ListForUser(ctx context.Context, userID string) ([]postgres.Store, error)
}

// SyncValidator gates new campaigns against subscription capacity.
type SyncValidator interface {
	ValidateSync(ctx context.Context, userID string, incomingIDs, existingIDs []string, role domain.Role) limits.SyncDecision
}

// SyncHandler serves GET /api/campaigns/sync: fetch, normalize, limit-gate
// and persist campaign metrics for the caller's stores.
type SyncHandler struct {
	fetcher    CampaignFetcher
	store      MetricsStore
	stores     StoreLister
	validator  SyncValidator
	normalizer *normalize.Normalizer
	metrics    *metrics.Metrics
}

func NewSyncHandler(fetcher CampaignFetcher, store MetricsStore, stores StoreLister, validator SyncValidator, m *metrics.Metrics) *SyncHandler {
	return &SyncHandler{
		fetcher:    fetcher,
		store:      store,
		stores:     stores,
		validator:  validator,
		normalizer: normalize.New(),
		metrics:    m,
	}
}

type storeSyncResult struct {
	StoreID   string                   `json:"store_id"`
	StoreName string                   `json:"store_name"`
	Campaigns []domain.CampaignMetrics `json:"campaigns"`
	Skipped   int                      `json:"skipped_by_limit"`
	Reason    string                   `json:"limit_reason,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

type syncMeta struct {
	domain.SyncSummary
	SyncedStores   int       `json:"synced_stores"`
	SkippedByLimit int       `json:"skipped_by_limit"`
	LimitReason    string    `json:"limit_reason,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

// Sync handles GET /api/campaigns/sync?start_time=&end_time=&account_ids=.
// Timestamps are unix seconds; both default to the last 24 hours. A store
// whose upstream fetch fails is reported in its result block without failing
// the other stores.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	began := time.Now()
	ctx := r.Context()

	stores, err := h.stores.ListForUser(ctx, id.UserID)
	if err != nil {
		code, msg := storageStatus(err)
		respondSafeError(w, code, err, msg)
		return
	}
	stores = filterStores(stores, r.URL.Query().Get("account_ids"))
	if len(stores) == 0 {
		respondError(w, http.StatusBadRequest, "No matching connected stores to sync")
		return
	}

	var results []storeSyncResult
	var all []domain.CampaignMetrics
	totalSkipped := 0
	limitReason := ""

	for _, st := range stores {
		res := h.syncStore(ctx, id, st, start, end)
		results = append(results, res)
		all = append(all, res.Campaigns...)
		totalSkipped += res.Skipped
		if res.Reason != "" {
			limitReason = res.Reason
		}
	}

	if h.metrics != nil {
		for _, c := range all {
			h.metrics.SyncCampaignsTotal.WithLabelValues(string(c.Status)).Inc()
		}
		h.metrics.SyncDuration.WithLabelValues("ok").Observe(time.Since(began).Seconds())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    results,
		"meta": syncMeta{
			SyncSummary:    domain.Summarize(all),
			SyncedStores:   len(stores),
			SkippedByLimit: totalSkipped,
			LimitReason:    limitReason,
			StartTime:      start,
			EndTime:        end,
		},
	})
}

func (h *SyncHandler) syncStore(ctx context.Context, id Identity, st postgres.Store, start, end time.Time) storeSyncResult {
	res := storeSyncResult{StoreID: st.ID, StoreName: st.Name}

	raws, err := h.fetcher.FetchCampaigns(ctx, st.ID, start, end)
	if err != nil {
		res.Error = "Failed to fetch campaigns from Shopee"
		if h.metrics != nil {
			h.metrics.SyncDuration.WithLabelValues("fetch_error").Observe(0)
		}
		return res
	}

	rows := h.normalizer.NormalizeBatch(raws, st.ID, end.Truncate(24*time.Hour))
	if len(rows) == 0 {
		res.Campaigns = []domain.CampaignMetrics{}
		return res
	}

	incoming := make([]string, 0, len(rows))
	for _, row := range rows {
		incoming = append(incoming, row.CampaignID)
	}
	existing, err := h.store.ExistingCampaignIDs(ctx, st.ID, incoming)
	if err != nil {
		// Treat lookup failure like unknown usage: sync everything.
		existing = incoming
	}

	decision := h.validator.ValidateSync(ctx, id.UserID, incoming, existing, id.Role)
	allowed := make(map[string]bool, len(decision.AllowedIDs))
	for _, cid := range decision.AllowedIDs {
		allowed[cid] = true
	}

	kept := rows[:0]
	for _, row := range rows {
		if allowed[row.CampaignID] {
			kept = append(kept, row)
		}
	}

	if err := h.store.UpsertBatch(ctx, kept); err != nil {
		res.Error = "Failed to persist campaign metrics"
		return res
	}

	if h.metrics != nil && decision.SkippedCount > 0 {
		h.metrics.SyncSkippedByLimit.Add(float64(decision.SkippedCount))
	}

	res.Campaigns = kept
	res.Skipped = decision.SkippedCount
	res.Reason = decision.Reason
	return res
}

// parseTimeRange reads start_time/end_time query params, defaulting to the
// trailing 24 hours. Each accepts either a YYYY-MM-DD date or unix seconds;
// a date end_time covers the whole day.
func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	start, end := now.Add(-24*time.Hour), now

	if raw := r.URL.Query().Get("start_time"); raw != "" {
		t, _, err := parseTimeParam(raw)
		if err != nil {
			return start, end, errInvalidParam("start_time")
		}
		start = t
	}
	if raw := r.URL.Query().Get("end_time"); raw != "" {
		t, isDate, err := parseTimeParam(raw)
		if err != nil {
			return start, end, errInvalidParam("end_time")
		}
		if isDate {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		end = t
	}
	if !end.After(start) {
		return start, end, errInvalidParam("time range")
	}
	return start, end, nil
}

func parseTimeParam(raw string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true, nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(ts, 0).UTC(), false, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "Invalid " + string(e) + " parameter" }

// filterStores narrows to the requested account IDs. IDs the caller does not
// own are dropped silently; the ownership list is authoritative.
func filterStores(stores []postgres.Store, accountIDs string) []postgres.Store {
	if accountIDs == "" {
		return stores
	}
	want := map[string]bool{}
	for _, id := range strings.Split(accountIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			want[id] = true
		}
	}
	out := stores[:0]
	for _, st := range stores {
		if want[st.ID] {
			out = append(out, st)
		}
	}
	return out
}
