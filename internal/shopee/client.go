// Package shopee talks to the Shopee seller advertising API. All calls are
// cookie-authenticated with the store's seller session, rate limited per
// client, and retried through the shared httpretry policy.
package shopee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iklanku/adpilot/internal/normalize"
	"github.com/iklanku/adpilot/internal/pkg/httpretry"
	"github.com/iklanku/adpilot/internal/pkg/logger"
	"github.com/iklanku/adpilot/internal/pkg/metrics"
)

const (
	defaultBaseURL = "https://seller.shopee.co.id"

	campaignListPath = "/api/pas/v1/report/homepage_query/"
	budgetPath       = "/api/pas/v1/campaign/update_budget/"
	statusPath       = "/api/pas/v1/campaign/update_status/"
)

// CookieSource yields the seller session cookie for a store. Cookies live in
// the database, not the config, because operators refresh them per store.
type CookieSource interface {
	SessionCookie(ctx context.Context, storeID string) (string, error)
}

// Client is a Shopee seller API client shared by sync and the rule engine.
type Client struct {
	baseURL string
	http    httpretry.HTTPDoer
	cookies CookieSource
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewClient builds a client with the default retry policy and a limiter of
// rps requests per second (burst 1). Pass baseURL "" for production.
func NewClient(baseURL string, cookies CookieSource, rps float64, m *metrics.Metrics) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpretry.New(nil, httpretry.DefaultPolicy),
		cookies: cookies,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		metrics: m,
	}
}

// apiEnvelope is the common Shopee response wrapper. A zero code means
// success; anything else carries an upstream message.
type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type campaignListData struct {
	Entries []normalize.Raw `json:"entry_list"`
}

// FetchCampaigns pulls the performance report for a store over [start, end]
// and returns the raw per-campaign payloads. Unix timestamps, matching the
// seller console's own requests.
func (c *Client) FetchCampaigns(ctx context.Context, storeID string, start, end time.Time) ([]normalize.Raw, error) {
	body := map[string]any{
		"start_time": start.Unix(),
		"end_time":   end.Unix(),
		"agg_interval": 1,
		"need_detail":  true,
	}

	raw, err := c.post(ctx, "campaign_list", campaignListPath, storeID, body)
	if err != nil {
		return nil, err
	}

	var data campaignListData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("shopee: decode campaign list: %w", err)
	}
	return data.Entries, nil
}

// UpdateBudget sets a campaign's daily budget. The API takes the budget in
// micro-units, the inverse of the conversion applied on read.
func (c *Client) UpdateBudget(ctx context.Context, storeID, campaignID string, dailyBudget float64) error {
	body := map[string]any{
		"campaign_id":  campaignID,
		"daily_budget": int64(dailyBudget * 100000),
	}
	_, err := c.post(ctx, "update_budget", budgetPath, storeID, body)
	return err
}

// Pause stops a campaign's delivery.
func (c *Client) Pause(ctx context.Context, storeID, campaignID string) error {
	return c.setStatus(ctx, storeID, campaignID, "pause")
}

// Resume restarts a paused campaign.
func (c *Client) Resume(ctx context.Context, storeID, campaignID string) error {
	return c.setStatus(ctx, storeID, campaignID, "resume")
}

func (c *Client) setStatus(ctx context.Context, storeID, campaignID, action string) error {
	body := map[string]any{
		"campaign_id": campaignID,
		"action":      action,
	}
	_, err := c.post(ctx, "update_status", statusPath, storeID, body)
	return err
}

func (c *Client) post(ctx context.Context, endpoint, path, storeID string, body any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	cookie, err := c.cookies.SessionCookie(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("shopee: load session for store %s: %w", storeID, err)
	}
	logger.Debug("shopee request", "endpoint", endpoint, "store_id", storeID, "cookie", cookie)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", NormalizeCookie(cookie))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, "error", start)
		return nil, fmt.Errorf("shopee: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.observe(endpoint, "unauthorized", start)
		return nil, fmt.Errorf("shopee: %s: session expired for store %s", endpoint, storeID)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		c.observe(endpoint, "rate_limited", start)
		return nil, fmt.Errorf("shopee: %s: rate limited", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		c.observe(endpoint, "error", start)
		return nil, fmt.Errorf("shopee: %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, "error", start)
		return nil, fmt.Errorf("shopee: %s: read body: %w", endpoint, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.observe(endpoint, "error", start)
		return nil, fmt.Errorf("shopee: %s: decode envelope: %w", endpoint, err)
	}
	if env.Code != 0 {
		c.observe(endpoint, "api_error", start)
		return nil, c.apiError(endpoint, env)
	}

	c.observe(endpoint, "ok", start)
	return env.Data, nil
}

// apiError maps Shopee application-level error codes to messages the engine's
// classifier recognizes.
func (c *Client) apiError(endpoint string, env apiEnvelope) error {
	msg := strings.ToLower(env.Msg)
	switch {
	case strings.Contains(msg, "login") || strings.Contains(msg, "session") || strings.Contains(msg, "auth"):
		return fmt.Errorf("shopee: %s: session expired: %s", endpoint, env.Msg)
	case strings.Contains(msg, "already"):
		return fmt.Errorf("shopee: %s: already in requested state: %s", endpoint, env.Msg)
	default:
		return fmt.Errorf("shopee: %s: api error %d: %s", endpoint, env.Code, env.Msg)
	}
}

func (c *Client) observe(endpoint, result string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveUpstream(endpoint, result, start)
	}
}

// NormalizeCookie collapses whitespace that clipboard round-trips introduce
// into pasted session cookies. Newlines and tabs become single spaces and
// runs are squeezed, so "SPC_EC=a;\n SPC_F=b" and "SPC_EC=a; SPC_F=b" are
// sent identically.
func NormalizeCookie(cookie string) string {
	return strings.Join(strings.Fields(cookie), " ")
}
