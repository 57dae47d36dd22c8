// Package trends implements the adapter for the Google-Trends-style
// analytics reseller. Authentication is a static API key pair of headers;
// the two reference-data endpoints are cached long-term in the option
// store, everything else is fetched per query.
package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/contentpulse/inspiration-api/internal/apperr"
	"github.com/contentpulse/inspiration-api/internal/platform/observability"
	"github.com/contentpulse/inspiration-api/internal/store"
)

// DefaultCategory is applied when a realtime/today query names none.
const DefaultCategory = "All categories"

// Config is the external configuration collaborator for the adapter.
type Config struct {
	Enabled bool
	APIKey  string
	APIHost string
	BaseURL string
	Timeout time.Duration
}

// Client is the trends upstream adapter. Initialize must be called before
// any operation; every operation fails fast with NotInitialized otherwise.
type Client struct {
	cfg     Config
	client  *http.Client
	store   store.Store
	logger  *observability.Logger
	metrics *observability.Metrics

	mu    sync.RWMutex
	ready bool
}

// NewClient creates an uninitialized trends client.
func NewClient(cfg Config, st store.Store, logger *observability.Logger, metrics *observability.Metrics) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BaseURL == "" && cfg.APIHost != "" {
		cfg.BaseURL = "https://" + cfg.APIHost
	}

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		store:   st,
		logger:  logger,
		metrics: metrics,
	}
}

// Initialize verifies the API key configuration and flips the ready flag.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		if c.logger != nil {
			c.logger.LogWarn(ctx, "trends feature disabled by configuration")
		}
		c.ready = false
		return nil
	}
	if c.cfg.APIKey == "" || c.cfg.APIHost == "" {
		c.ready = false
		return apperr.New(apperr.KindNotInitialized, "trends API key and host are required")
	}

	c.ready = true
	if c.logger != nil {
		c.logger.LogInfo(ctx, "trends adapter initialized", "host", c.cfg.APIHost)
	}
	return nil
}

// Ready reports whether the adapter is configured and enabled.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Client) ensureReady() error {
	if !c.Ready() {
		return apperr.New(apperr.KindNotInitialized, "trends adapter is not initialized")
	}
	return nil
}

// QueryRequest carries the parameters of a keyword-based trends query.
type QueryRequest struct {
	Keywords []string `json:"keywords"`
	Start    string   `json:"start_date"`
	End      string   `json:"end_date,omitempty"`
	Country  string   `json:"country,omitempty"`
	Region   string   `json:"region,omitempty"`
	Category string   `json:"category,omitempty"`
	GProp    string   `json:"gprop,omitempty"`

	// Region-query extensions.
	Resolution       string `json:"resolution,omitempty"`
	IncludeLowVolume bool   `json:"include_low_volume"`
}

func (r *QueryRequest) validate() error {
	if len(r.Keywords) == 0 {
		return apperr.New(apperr.KindValidation, "keywords are required")
	}
	if r.Start == "" {
		return apperr.New(apperr.KindValidation, "start date is required")
	}
	return nil
}

// Categories returns the category reference list, read-through against the
// option store with a 30-day TTL.
func (c *Client) Categories(ctx context.Context, forceRefresh bool) (json.RawMessage, error) {
	return c.optionSet(ctx, store.OptionCategories, "/categories", forceRefresh, func(raw json.RawMessage) error {
		var probe struct {
			Categories []json.RawMessage `json:"categories"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil || probe.Categories == nil {
			return apperr.New(apperr.KindUpstream, "categories response is missing the categories array")
		}
		return nil
	})
}

// Geographic returns the country/region reference map, read-through
// against the option store with a 30-day TTL.
func (c *Client) Geographic(ctx context.Context, forceRefresh bool) (json.RawMessage, error) {
	return c.optionSet(ctx, store.OptionGeographic, "/geo", forceRefresh, func(raw json.RawMessage) error {
		var probe struct {
			Countries map[string]json.RawMessage `json:"countries"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil || probe.Countries == nil {
			return apperr.New(apperr.KindUpstream, "geographic response is missing the countries map")
		}
		return nil
	})
}

func (c *Client) optionSet(ctx context.Context, name, endpoint string, forceRefresh bool, validate func(json.RawMessage) error) (json.RawMessage, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}

	if !forceRefresh {
		set, err := c.store.GetOptionSet(ctx, name)
		if err == nil {
			if c.metrics != nil {
				c.metrics.RecordCacheHit(ctx, "options")
			}
			return set.Data, nil
		}
		if err != store.ErrNotFound {
			// A broken lookup is not fatal; fall through to the fetch.
			if c.logger != nil {
				c.logger.LogWarn(ctx, "option set lookup failed", "name", name, "error", err.Error())
			}
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(ctx, "options")
		}
	}

	raw, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	set := &store.OptionSet{
		Name:        name,
		Data:        raw,
		LastUpdated: now,
		ExpiresAt:   now.Add(store.OptionSetTTL),
	}
	if err := c.store.PutOptionSet(ctx, set); err != nil {
		// Best-effort persist: the fresh data is still returned.
		if c.logger != nil {
			c.logger.LogError(ctx, "failed to persist option set", err, "name", name)
		}
	}

	return raw, nil
}

// InterestOverTime fetches a time series of interest for the keywords.
func (c *Client) InterestOverTime(ctx context.Context, req QueryRequest) (json.RawMessage, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return c.post(ctx, "/interest-over-time", req)
}

// InterestByRegion fetches a per-region interest heatmap. Resolution
// defaults to COUNTRY and low-volume regions are excluded unless asked for.
func (c *Client) InterestByRegion(ctx context.Context, req QueryRequest) (json.RawMessage, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Resolution == "" {
		req.Resolution = "COUNTRY"
	}
	return c.post(ctx, "/interest-by-region", req)
}

// RelatedQueries fetches queries related to the keywords.
func (c *Client) RelatedQueries(ctx context.Context, req QueryRequest) (json.RawMessage, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return c.post(ctx, "/related-queries", req)
}

// RelatedTopics fetches topics related to the first keyword. The upstream
// endpoint accepts a single keyword only, so extra keywords are dropped
// with a warning rather than an error.
func (c *Client) RelatedTopics(ctx context.Context, req QueryRequest) (json.RawMessage, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if len(req.Keywords) > 1 {
		if c.logger != nil {
			c.logger.LogWarn(ctx, "related topics accepts a single keyword, dropping extras",
				"keywords", len(req.Keywords))
		}
		req.Keywords = req.Keywords[:1]
	}
	return c.post(ctx, "/related-topics", req)
}

// realtimeRequest carries the optional parameters of the realtime/today
// endpoints.
type realtimeRequest struct {
	Country  string `json:"country,omitempty"`
	Category string `json:"category"`
}

// RealtimeSearches fetches currently trending searches.
func (c *Client) RealtimeSearches(ctx context.Context, country, category string) (json.RawMessage, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	if category == "" {
		category = DefaultCategory
	}
	return c.post(ctx, "/realtime", realtimeRequest{Country: country, Category: category})
}

// TodaySearches fetches today's trending searches.
func (c *Client) TodaySearches(ctx context.Context, country, category string) (json.RawMessage, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	if category == "" {
		category = DefaultCategory
	}
	return c.post(ctx, "/today", realtimeRequest{Country: country, Category: category})
}

func (c *Client) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+endpoint, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "failed to build request", err)
	}
	return c.do(ctx, endpoint, req)
}

func (c *Client) post(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, endpoint, req)
}

// do executes the request with the RapidAPI auth headers and classifies
// failures: transport errors and non-2xx responses must stay
// distinguishable because only the former is plausibly retryable.
func (c *Client) do(ctx context.Context, endpoint string, req *http.Request) (json.RawMessage, error) {
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.recordCall(ctx, endpoint, "error", duration)
		return nil, apperr.Wrap(apperr.KindUnreachable, fmt.Sprintf("network error calling %s", endpoint), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.recordCall(ctx, endpoint, "rate_limited", duration)
		return nil, apperr.Newf(apperr.KindRateLimited, "trends rate limit exceeded on %s", endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.recordCall(ctx, endpoint, "error", duration)
		return nil, apperr.Newf(apperr.KindUpstream, "API error from %s: status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordCall(ctx, endpoint, "error", duration)
		return nil, apperr.Wrap(apperr.KindUnreachable, fmt.Sprintf("network error reading %s response", endpoint), err)
	}

	c.recordCall(ctx, endpoint, "success", duration)
	return raw, nil
}

func (c *Client) recordCall(ctx context.Context, endpoint, status string, duration time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamCall(ctx, "trends", endpoint, status, duration)
	}
}

// Name identifies the adapter to the cache warmer.
func (c *Client) Name() string {
	return "trends"
}

// Warmup forces both option set refreshes. Implements the warmup provider
// interface used by the seed command and server startup warming.
func (c *Client) Warmup(ctx context.Context) error {
	if _, err := c.Categories(ctx, true); err != nil {
		return fmt.Errorf("failed to warm categories: %w", err)
	}
	if _, err := c.Geographic(ctx, true); err != nil {
		return fmt.Errorf("failed to warm geographic: %w", err)
	}
	return nil
}
