package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iklanku/adpilot/internal/domain"
	"github.com/iklanku/adpilot/internal/limits"
	"github.com/iklanku/adpilot/internal/normalize"
	"github.com/iklanku/adpilot/internal/repository/postgres"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (Identity, error) {
	switch token {
	case "user-token":
		return Identity{UserID: "u1", Role: domain.RoleUser}, nil
	case "admin-token":
		return Identity{UserID: "a1", Role: domain.RoleAdmin}, nil
	}
	return Identity{}, errors.New("unknown token")
}

type fakeFetcher struct {
	raws map[string][]normalize.Raw
	err  error
}

func (f *fakeFetcher) FetchCampaigns(_ context.Context, storeID string, _, _ time.Time) ([]normalize.Raw, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.raws[storeID], nil
}

type fakeMetricsStore struct {
	existing []string
	upserted []domain.CampaignMetrics
}

func (f *fakeMetricsStore) UpsertBatch(_ context.Context, rows []domain.CampaignMetrics) error {
	f.upserted = append(f.upserted, rows...)
	return nil
}

func (f *fakeMetricsStore) ExistingCampaignIDs(context.Context, string, []string) ([]string, error) {
	return f.existing, nil
}

type fakeStoreLister struct {
	stores []postgres.Store
	err    error
}

func (f *fakeStoreLister) ListForUser(context.Context, string) ([]postgres.Store, error) {
	return f.stores, f.err
}

type fakeValidator struct{ decision limits.SyncDecision }

func (f *fakeValidator) ValidateSync(_ context.Context, _ string, incoming, _ []string, role domain.Role) limits.SyncDecision {
	if role.BypassesLimits() {
		return limits.SyncDecision{AllowedIDs: incoming}
	}
	return f.decision
}

func newSyncServer(t *testing.T, fetcher *fakeFetcher, store *fakeMetricsStore, lister *fakeStoreLister, v *fakeValidator) *httptest.Server {
	t.Helper()
	h := &Handlers{
		Sync:     NewSyncHandler(fetcher, store, lister, v, nil),
		Logs:     NewLogsHandler(&fakeLogStore{}, &fakeRuleStore{}, &fakeScope{}, &fakeMetricsReader{}),
		Health:   NewHealthChecker(nil, nil),
		Verifier: stubVerifier{},
	}
	srv := httptest.NewServer(SetupRoutes(h))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, token string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestSyncRequiresAuth(t *testing.T) {
	srv := newSyncServer(t, &fakeFetcher{}, &fakeMetricsStore{}, &fakeStoreLister{}, &fakeValidator{})

	resp, _ := get(t, srv.URL+"/api/campaigns/sync", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/api/campaigns/sync", "bogus")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSyncInvalidTimeRange(t *testing.T) {
	srv := newSyncServer(t, &fakeFetcher{}, &fakeMetricsStore{}, &fakeStoreLister{}, &fakeValidator{})

	resp, body := get(t, srv.URL+"/api/campaigns/sync?start_time=notanumber", "user-token")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "start_time")

	resp, _ = get(t, srv.URL+"/api/campaigns/sync?start_time=2000&end_time=1000", "user-token")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncAcceptsDateRange(t *testing.T) {
	fetcher := &fakeFetcher{raws: map[string][]normalize.Raw{
		"S1": {{"campaign_id": 1, "state": "ongoing"}},
	}}
	store := &fakeMetricsStore{}
	lister := &fakeStoreLister{stores: []postgres.Store{{ID: "S1", UserID: "u1", Name: "Toko Satu", Active: true}}}
	validator := &fakeValidator{decision: limits.SyncDecision{AllowedIDs: []string{"1"}}}

	srv := newSyncServer(t, fetcher, store, lister, validator)
	resp, body := get(t, srv.URL+"/api/campaigns/sync?start_time=2026-03-01&end_time=2026-03-02", "user-token")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	require.Len(t, store.upserted, 1)

	// Same-day range is valid: a date end_time covers the whole day.
	resp, _ = get(t, srv.URL+"/api/campaigns/sync?start_time=2026-03-01&end_time=2026-03-01", "user-token")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSyncStoreListFailureIs503(t *testing.T) {
	srv := newSyncServer(t, &fakeFetcher{}, &fakeMetricsStore{},
		&fakeStoreLister{err: fmt.Errorf("pq: connection refused")}, &fakeValidator{})

	resp, body := get(t, srv.URL+"/api/campaigns/sync", "user-token")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "A database error occurred, please retry shortly", body["error"])
}

func TestSyncPartialAllow(t *testing.T) {
	fetcher := &fakeFetcher{raws: map[string][]normalize.Raw{
		"S1": {
			{"campaign_id": 1, "title": "A", "state": "ongoing", "cost": float64(1200000000)},
			{"campaign_id": 2, "title": "B", "state": "paused"},
			{"campaign_id": 3, "title": "C", "state": "ongoing"},
		},
	}}
	store := &fakeMetricsStore{existing: []string{"1"}}
	lister := &fakeStoreLister{stores: []postgres.Store{{ID: "S1", UserID: "u1", Name: "Toko Satu", Active: true}}}
	validator := &fakeValidator{decision: limits.SyncDecision{
		AllowedIDs:   []string{"1", "2"},
		SkippedCount: 1,
		Reason:       "campaign limit reached (2 of 2 in use): 1 new campaigns were not synced; upgrade the plan to track more",
	}}

	srv := newSyncServer(t, fetcher, store, lister, validator)
	resp, body := get(t, srv.URL+"/api/campaigns/sync", "user-token")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, float64(1), meta["skipped_by_limit"])
	assert.Contains(t, meta["limit_reason"], "campaign limit reached")
	assert.Equal(t, float64(2), meta["total_campaigns"])

	require.Len(t, store.upserted, 2)
	assert.Equal(t, "1", store.upserted[0].CampaignID)
	assert.Equal(t, 12000.0, store.upserted[0].Cost)
}

func TestSyncAdminBypassesLimits(t *testing.T) {
	fetcher := &fakeFetcher{raws: map[string][]normalize.Raw{
		"S1": {{"campaign_id": 1, "state": "ongoing"}, {"campaign_id": 2, "state": "ongoing"}},
	}}
	store := &fakeMetricsStore{}
	lister := &fakeStoreLister{stores: []postgres.Store{{ID: "S1", UserID: "a1", Active: true}}}
	validator := &fakeValidator{decision: limits.SyncDecision{SkippedCount: 2}}

	srv := newSyncServer(t, fetcher, store, lister, validator)
	resp, body := get(t, srv.URL+"/api/campaigns/sync", "admin-token")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, float64(0), meta["skipped_by_limit"])
	assert.Len(t, store.upserted, 2)
}

func TestSyncFetchErrorReportedPerStore(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("shopee: session expired")}
	lister := &fakeStoreLister{stores: []postgres.Store{{ID: "S1", UserID: "u1", Active: true}}}

	srv := newSyncServer(t, fetcher, &fakeMetricsStore{}, lister, &fakeValidator{})
	resp, body := get(t, srv.URL+"/api/campaigns/sync", "user-token")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	res := data[0].(map[string]interface{})
	assert.Equal(t, "Failed to fetch campaigns from Shopee", res["error"])
	assert.NotContains(t, res["error"], "session")
}

func TestSyncUnknownAccountFilter(t *testing.T) {
	lister := &fakeStoreLister{stores: []postgres.Store{{ID: "S1", UserID: "u1", Active: true}}}
	srv := newSyncServer(t, &fakeFetcher{}, &fakeMetricsStore{}, lister, &fakeValidator{})

	resp, _ := get(t, srv.URL+"/api/campaigns/sync?account_ids=S9", "user-token")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
