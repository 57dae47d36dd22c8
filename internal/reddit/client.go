package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/contentpulse/inspiration-api/internal/apperr"
	"github.com/contentpulse/inspiration-api/internal/platform/observability"
	"github.com/contentpulse/inspiration-api/internal/platform/resilience"
)

const maxListingLimit = 100

var validSorts = map[string]bool{
	"relevance": true,
	"hot":       true,
	"top":       true,
	"new":       true,
	"comments":  true,
}

var validTimes = map[string]bool{
	"hour":  true,
	"day":   true,
	"week":  true,
	"month": true,
	"year":  true,
	"all":   true,
}

// SearchOptions configures SearchPosts.
type SearchOptions struct {
	Limit     int    // capped at 100, default 25
	Sort      string // relevance, hot, top, new, comments
	Time      string // hour, day, week, month, year, all
	Subreddit string // default "all"
}

// ListOptions configures SubredditPosts.
type ListOptions struct {
	Limit int
	Sort  string // hot, top, new
}

// SubredditInfo is the normalized subreddit metadata record.
type SubredditInfo struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Subscribers int    `json:"subscribers"`
	ActiveUsers int    `json:"active_users"`
	Over18      bool   `json:"over_18"`
	CreatedAt   string `json:"created_at"`
}

// Client fetches posts from the authenticated Reddit API.
type Client struct {
	baseURL   string
	userAgent string

	tokens  *TokenManager
	client  *http.Client
	limiter *rate.Limiter
	cb      *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// ClientConfig holds Reddit client configuration
type ClientConfig struct {
	BaseURL        string
	UserAgent      string
	Tokens         *TokenManager
	Timeout        time.Duration
	RateLimitRPM   int
	RateLimitBurst int
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	RetryConfig    resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreaker
}

// NewClient creates a new Reddit client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://oauth.reddit.com"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "inspiration-api/1.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = 60 // Reddit allows ~60 authenticated requests per minute
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 5
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = resilience.DefaultRetryConfig()
	}

	cb := cfg.CircuitBreaker
	if cb == nil {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "reddit",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				if cfg.Metrics != nil {
					cfg.Metrics.SetCircuitBreakerState(context.Background(), "reddit", int64(to))
				}
			},
		})
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		tokens:    cfg.Tokens,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), cfg.RateLimitBurst),
		cb:        cb,
		retry:     cfg.RetryConfig,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// SearchPosts searches for posts matching the keyword.
func (c *Client) SearchPosts(ctx context.Context, keyword string, opts SearchOptions) ([]Post, error) {
	if keyword == "" {
		return nil, apperr.New(apperr.KindValidation, "keyword is required")
	}

	subreddit := opts.Subreddit
	if subreddit == "" {
		subreddit = "all"
	}
	sort := opts.Sort
	if !validSorts[sort] {
		sort = "relevance"
	}
	window := opts.Time
	if !validTimes[window] {
		window = "all"
	}

	q := url.Values{}
	q.Set("q", keyword)
	q.Set("restrict_sr", "on")
	q.Set("limit", strconv.Itoa(clampLimit(opts.Limit)))
	q.Set("sort", sort)
	q.Set("t", window)

	children, err := c.fetchListing(ctx, "search", fmt.Sprintf("/r/%s/search", url.PathEscape(subreddit)), q)
	if err != nil {
		return nil, err
	}
	return formatPosts(children), nil
}

// SubredditPosts fetches a subreddit listing sorted by opts.Sort.
func (c *Client) SubredditPosts(ctx context.Context, subreddit string, opts ListOptions) ([]Post, error) {
	if subreddit == "" {
		return nil, apperr.New(apperr.KindValidation, "subreddit is required")
	}

	sort := opts.Sort
	switch sort {
	case "hot", "top", "new":
	default:
		sort = "hot"
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(clampLimit(opts.Limit)))

	children, err := c.fetchListing(ctx, "listing", fmt.Sprintf("/r/%s/%s", url.PathEscape(subreddit), sort), q)
	if err != nil {
		return nil, err
	}
	return formatPosts(children), nil
}

// HotPosts fetches hot posts best-effort. It degrades to an empty slice on
// any adapter failure: the trending display must never error because of an
// upstream hiccup. The suppressed error is logged at the boundary and
// reported through the returned flag, so callers can tell a degraded feed
// from a genuinely empty one.
func (c *Client) HotPosts(ctx context.Context, subreddit string, limit int) ([]Post, bool) {
	posts, err := c.SubredditPosts(ctx, subreddit, ListOptions{Limit: limit, Sort: "hot"})
	if err != nil {
		if c.logger != nil {
			c.logger.LogWarn(ctx, "hot posts fetch suppressed", "subreddit", subreddit, "error", err.Error())
		}
		return []Post{}, true
	}
	return posts, false
}

type aboutResponse struct {
	Data struct {
		DisplayName string  `json:"display_name"`
		Title       string  `json:"title"`
		Description string  `json:"public_description"`
		Subscribers int     `json:"subscribers"`
		ActiveUsers int     `json:"active_user_count"`
		Over18      bool    `json:"over18"`
		CreatedUTC  float64 `json:"created_utc"`
	} `json:"data"`
}

// SubredditInfo fetches subreddit metadata.
func (c *Client) SubredditInfo(ctx context.Context, subreddit string) (*SubredditInfo, error) {
	if subreddit == "" {
		return nil, apperr.New(apperr.KindValidation, "subreddit is required")
	}

	body, err := c.get(ctx, "about", fmt.Sprintf("/r/%s/about", url.PathEscape(subreddit)), nil)
	if err != nil {
		return nil, err
	}

	var about aboutResponse
	if err := json.Unmarshal(body, &about); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "failed to decode subreddit info", err)
	}

	return &SubredditInfo{
		Name:        about.Data.DisplayName,
		Title:       about.Data.Title,
		Description: about.Data.Description,
		Subscribers: about.Data.Subscribers,
		ActiveUsers: about.Data.ActiveUsers,
		Over18:      about.Data.Over18,
		CreatedAt:   time.Unix(int64(about.Data.CreatedUTC), 0).UTC().Format(time.RFC3339),
	}, nil
}

type listingResponse struct {
	Data struct {
		Children []listingChild `json:"children"`
	} `json:"data"`
}

func (c *Client) fetchListing(ctx context.Context, endpoint, path string, query url.Values) ([]listingChild, error) {
	body, err := c.get(ctx, endpoint, path, query)
	if err != nil {
		return nil, err
	}

	var listing listingResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "failed to decode listing", err)
	}
	return listing.Data.Children, nil
}

// get issues an authenticated GET through the rate limiter, circuit breaker
// and retry policy. An open breaker surfaces as unreachable: callers see
// the same failure mode as a transport error.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	body, err := resilience.ExecuteWithResult(c.cb, ctx, func(ctx context.Context) ([]byte, error) {
		return resilience.RetryIfWithResult(ctx, c.retry, apperr.Retryable, func(ctx context.Context) ([]byte, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter error: %w", err)
			}

			token, err := c.tokens.Token(ctx)
			if err != nil {
				return nil, err
			}

			u := c.baseURL + path
			if len(query) > 0 {
				u += "?" + query.Encode()
			}

			start := time.Now()
			body, err := c.doGet(ctx, u, token)
			duration := time.Since(start)

			if c.metrics != nil {
				status := "success"
				if err != nil {
					status = "error"
				}
				c.metrics.RecordUpstreamCall(ctx, "reddit", endpoint, status, duration)
			}

			return body, err
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, apperr.Wrap(apperr.KindUnreachable, "reddit requests suspended", err)
	}
	return body, err
}

func (c *Client) doGet(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnreachable, "reddit unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.New(apperr.KindRateLimited, "reddit rate limit exceeded")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.Newf(apperr.KindUpstream, "reddit returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnreachable, "failed to read response body", err)
	}
	return body, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 25
	}
	if limit > maxListingLimit {
		return maxListingLimit
	}
	return limit
}
