// Package inspiration orchestrates content and trends lookups through the
// cache-aside store: look up first, fetch from the upstream adapter on a
// miss, persist best-effort, and serve the payload either way.
package inspiration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/contentpulse/inspiration-api/internal/apperr"
	"github.com/contentpulse/inspiration-api/internal/platform/observability"
	"github.com/contentpulse/inspiration-api/internal/reddit"
	"github.com/contentpulse/inspiration-api/internal/store"
	"github.com/contentpulse/inspiration-api/internal/trends"
)

// DefaultTrendTTL is the lifetime of a cached trend entry.
const DefaultTrendTTL = 24 * time.Hour

// RedditAPI is the content upstream consumed by the service.
type RedditAPI interface {
	SearchPosts(ctx context.Context, keyword string, opts reddit.SearchOptions) ([]reddit.Post, error)
	SubredditPosts(ctx context.Context, subreddit string, opts reddit.ListOptions) ([]reddit.Post, error)
	HotPosts(ctx context.Context, subreddit string, limit int) ([]reddit.Post, bool)
	SubredditInfo(ctx context.Context, subreddit string) (*reddit.SubredditInfo, error)
}

// TrendsAPI is the analytics upstream consumed by the service.
type TrendsAPI interface {
	Ready() bool
	Categories(ctx context.Context, forceRefresh bool) (json.RawMessage, error)
	Geographic(ctx context.Context, forceRefresh bool) (json.RawMessage, error)
	InterestOverTime(ctx context.Context, req trends.QueryRequest) (json.RawMessage, error)
	InterestByRegion(ctx context.Context, req trends.QueryRequest) (json.RawMessage, error)
	RelatedQueries(ctx context.Context, req trends.QueryRequest) (json.RawMessage, error)
	RelatedTopics(ctx context.Context, req trends.QueryRequest) (json.RawMessage, error)
	RealtimeSearches(ctx context.Context, country, category string) (json.RawMessage, error)
	TodaySearches(ctx context.Context, country, category string) (json.RawMessage, error)
}

// Service is the cache-aside orchestrator over both upstreams.
type Service struct {
	store   store.Store
	reddit  RedditAPI
	trends  TrendsAPI
	logger  *observability.Logger
	metrics *observability.Metrics
	ttl     time.Duration

	flight singleflight.Group
}

// Config wires the service dependencies.
type Config struct {
	Store    store.Store
	Reddit   RedditAPI
	Trends   TrendsAPI
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	TrendTTL time.Duration
}

// NewService creates the orchestrator.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Reddit == nil {
		return nil, fmt.Errorf("reddit client is required")
	}
	if cfg.Trends == nil {
		return nil, fmt.Errorf("trends client is required")
	}
	if cfg.TrendTTL == 0 {
		cfg.TrendTTL = DefaultTrendTTL
	}

	return &Service{
		store:   cfg.Store,
		reddit:  cfg.Reddit,
		trends:  cfg.Trends,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		ttl:     cfg.TrendTTL,
	}, nil
}

// TrendQuery is a normalized keyword-based trends request. Region is the
// upstream resolution parameter (COUNTRY, REGION, CITY, DMA), distinct
// from Country which scopes the query geographically.
type TrendQuery struct {
	Keywords []string
	Start    string
	End      string
	Country  string
	Region   string
	Category string
	GProp    string
	Owner    string
}

func (q *TrendQuery) normalize() {
	q.Keywords = normalizeKeywords(q.Keywords)
	q.Country = strings.ToUpper(strings.TrimSpace(q.Country))
	q.Region = strings.ToUpper(strings.TrimSpace(q.Region))
	q.Owner = strings.TrimSpace(q.Owner)
}

func (q *TrendQuery) validate() error {
	if len(q.Keywords) == 0 {
		return apperr.New(apperr.KindValidation, "keywords are required")
	}
	if strings.TrimSpace(q.Start) == "" {
		return apperr.New(apperr.KindValidation, "start date is required")
	}
	return nil
}

func (q *TrendQuery) request() trends.QueryRequest {
	return trends.QueryRequest{
		Keywords: q.Keywords,
		Start:    q.Start,
		End:      q.End,
		Country:  q.Country,
		Region:   q.Region,
		Category: q.Category,
		GProp:    q.GProp,
	}
}

// queryKey builds the stored key segment: keywords plus the date window
// and resolution, since each yields a different series.
func (q *TrendQuery) queryKey() string {
	key := strings.Join(q.Keywords, ",")
	if q.Start != "" {
		key += "@" + q.Start
	}
	if q.End != "" {
		key += ".." + q.End
	}
	if q.Region != "" {
		key += "/" + q.Region
	}
	return key
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// Search runs a cached content search for the topic.
func (s *Service) Search(ctx context.Context, topic string, limit int, owner string) (*SearchPayload, error) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return nil, apperr.New(apperr.KindValidation, "topic is required")
	}

	key := store.EntryKey{
		QueryKey: fmt.Sprintf("%s#%d", topic, clampSearchLimit(limit)),
		Scope:    store.ScopeContentSearch,
		Owner:    strings.TrimSpace(owner),
	}

	raw, err := s.cached(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		posts, err := s.reddit.SearchPosts(ctx, topic, reddit.SearchOptions{Limit: clampSearchLimit(limit)})
		if err != nil {
			return nil, err
		}
		return json.Marshal(SearchPayload{Topic: topic, Posts: posts})
	})
	if err != nil {
		return nil, err
	}

	var payload SearchPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "corrupt cached search payload", err)
	}
	return &payload, nil
}

// Trending returns the best-effort hot feed. Upstream failures are
// suppressed and reported through the Degraded flag instead of an error,
// so a genuinely empty feed stays distinguishable from a broken one.
func (s *Service) Trending(ctx context.Context, limit int) *TrendingResult {
	posts, degraded := s.reddit.HotPosts(ctx, "popular", clampSearchLimit(limit))
	if posts == nil {
		posts = []reddit.Post{}
	}
	return &TrendingResult{
		Posts:    posts,
		Degraded: degraded,
	}
}

// SubredditPosts fetches a subreddit listing, always fresh.
func (s *Service) SubredditPosts(ctx context.Context, subreddit string, opts reddit.ListOptions) ([]reddit.Post, error) {
	return s.reddit.SubredditPosts(ctx, subreddit, opts)
}

// SubredditInfo fetches subreddit metadata, always fresh.
func (s *Service) SubredditInfo(ctx context.Context, subreddit string) (*reddit.SubredditInfo, error) {
	return s.reddit.SubredditInfo(ctx, subreddit)
}

// InterestOverTime returns a cached interest time series.
func (s *Service) InterestOverTime(ctx context.Context, q TrendQuery) (*SeriesPayload, error) {
	q.normalize()
	if err := q.validate(); err != nil {
		return nil, err
	}

	key := store.EntryKey{
		QueryKey: q.queryKey(),
		Scope:    store.ScopeTimeSeries,
		Region:   q.Country,
		Owner:    q.Owner,
	}

	raw, err := s.cached(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		data, err := s.trends.InterestOverTime(ctx, q.request())
		if err != nil {
			return nil, err
		}
		return json.Marshal(SeriesPayload{Keywords: q.Keywords, Start: q.Start, End: q.End, Data: data})
	})
	if err != nil {
		return nil, err
	}

	var payload SeriesPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "corrupt cached series payload", err)
	}
	return &payload, nil
}

// InterestByRegion returns a cached per-region interest breakdown.
func (s *Service) InterestByRegion(ctx context.Context, q TrendQuery) (*RegionPayload, error) {
	q.normalize()
	if err := q.validate(); err != nil {
		return nil, err
	}

	key := store.EntryKey{
		QueryKey: q.queryKey(),
		Scope:    store.ScopeCountryTrends,
		Region:   q.Country,
		Owner:    q.Owner,
	}

	raw, err := s.cached(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		data, err := s.trends.InterestByRegion(ctx, q.request())
		if err != nil {
			return nil, err
		}
		return json.Marshal(RegionPayload{Keywords: q.Keywords, Region: q.Country, Data: data})
	})
	if err != nil {
		return nil, err
	}

	var payload RegionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "corrupt cached region payload", err)
	}
	return &payload, nil
}

// RelatedQueries returns cached queries related to the keywords.
func (s *Service) RelatedQueries(ctx context.Context, q TrendQuery) (*RelatedPayload, error) {
	return s.related(ctx, q, "queries", s.trends.RelatedQueries)
}

// RelatedTopics returns cached topics related to the first keyword.
func (s *Service) RelatedTopics(ctx context.Context, q TrendQuery) (*RelatedPayload, error) {
	return s.related(ctx, q, "topics", s.trends.RelatedTopics)
}

func (s *Service) related(ctx context.Context, q TrendQuery, kind string, fetch func(context.Context, trends.QueryRequest) (json.RawMessage, error)) (*RelatedPayload, error) {
	q.normalize()
	if err := q.validate(); err != nil {
		return nil, err
	}

	key := store.EntryKey{
		QueryKey: kind + ":" + q.queryKey(),
		Scope:    store.ScopeGlobalTrends,
		Region:   q.Country,
		Owner:    q.Owner,
	}

	raw, err := s.cached(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		data, err := fetch(ctx, q.request())
		if err != nil {
			return nil, err
		}
		return json.Marshal(RelatedPayload{Kind: kind, Keywords: q.Keywords, Data: data})
	})
	if err != nil {
		return nil, err
	}

	var payload RelatedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "corrupt cached related payload", err)
	}
	return &payload, nil
}

// RealtimeSearches returns cached currently-trending searches.
func (s *Service) RealtimeSearches(ctx context.Context, country, category string) (*RelatedPayload, error) {
	return s.searches(ctx, "realtime", country, category, s.trends.RealtimeSearches)
}

// TodaySearches returns cached today's-trending searches.
func (s *Service) TodaySearches(ctx context.Context, country, category string) (*RelatedPayload, error) {
	return s.searches(ctx, "today", country, category, s.trends.TodaySearches)
}

func (s *Service) searches(ctx context.Context, kind, country, category string, fetch func(ctx context.Context, country, category string) (json.RawMessage, error)) (*RelatedPayload, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	category = strings.TrimSpace(category)

	key := store.EntryKey{
		QueryKey: kind + ":" + defaultString(category, "all"),
		Scope:    store.ScopeGlobalTrends,
		Region:   country,
	}

	raw, err := s.cached(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		data, err := fetch(ctx, country, category)
		if err != nil {
			return nil, err
		}
		return json.Marshal(RelatedPayload{Kind: kind, Data: data})
	})
	if err != nil {
		return nil, err
	}

	var payload RelatedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "corrupt cached searches payload", err)
	}
	return &payload, nil
}

// Categories returns the category reference list.
func (s *Service) Categories(ctx context.Context, forceRefresh bool) (json.RawMessage, error) {
	return s.trends.Categories(ctx, forceRefresh)
}

// Geographic returns the country reference map.
func (s *Service) Geographic(ctx context.Context, forceRefresh bool) (json.RawMessage, error) {
	return s.trends.Geographic(ctx, forceRefresh)
}

// TrendsReady reports whether the trends upstream is available.
func (s *Service) TrendsReady() bool {
	return s.trends.Ready()
}

// Purge removes all cached trend entries, leaving option sets intact.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	purged, err := s.store.PurgeEntries(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindPersistence, "failed to purge cache entries", err)
	}
	return purged, nil
}

// cached is the lookup/fetch/persist state machine. A hit increments the
// entry counter without touching its TTL; a miss fetches through a
// singleflight group so racing callers share one upstream call. Persist
// failures after a successful fetch are logged, never surfaced.
func (s *Service) cached(ctx context.Context, key store.EntryKey, fetch func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	entry, err := s.store.GetEntry(ctx, key)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.RecordCacheHit(ctx, string(key.Scope))
		}
		if _, err := s.store.IncrementHit(ctx, key); err != nil {
			if s.logger != nil {
				s.logger.LogWarn(ctx, "hit counter increment failed", "scope", string(key.Scope), "error", err.Error())
			}
		}
		return entry.Payload, nil
	case err != store.ErrNotFound:
		return nil, apperr.Wrap(apperr.KindPersistence, "cache lookup failed", err)
	}

	if s.metrics != nil {
		s.metrics.RecordCacheMiss(ctx, string(key.Scope))
	}

	flightKey := fmt.Sprintf("%s|%s|%s|%s", key.Scope, key.Region, key.Owner, key.QueryKey)
	raw, err, _ := s.flight.Do(flightKey, func() (any, error) {
		// A racing caller may have persisted while we queued.
		if entry, err := s.store.GetEntry(ctx, key); err == nil {
			return entry.Payload, nil
		}

		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		entry := &store.CacheEntry{
			QueryKey:  key.QueryKey,
			Scope:     key.Scope,
			Region:    key.Region,
			Owner:     key.Owner,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.PutEntry(ctx, entry, s.ttl); err != nil {
			if s.logger != nil {
				s.logger.LogError(ctx, "cache persist failed", err, "scope", string(key.Scope), "query", key.QueryKey)
			}
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return raw.(json.RawMessage), nil
}

func clampSearchLimit(limit int) int {
	if limit <= 0 {
		return 25
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
