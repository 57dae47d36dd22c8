package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/contentpulse/inspiration-api/internal/apperr"
	"github.com/contentpulse/inspiration-api/internal/inspiration"
	"github.com/contentpulse/inspiration-api/internal/platform/observability"
	"github.com/contentpulse/inspiration-api/internal/reddit"
)

// fakeService returns canned payloads and records the last inputs.
type fakeService struct {
	err        error
	lastTopic  string
	lastQuery  inspiration.TrendQuery
	lastSub    string
	trendsUp   bool
	lastLimit  int
	lastRegion string
}

func (f *fakeService) Search(ctx context.Context, topic string, limit int, owner string) (*inspiration.SearchPayload, error) {
	f.lastTopic, f.lastLimit = topic, limit
	if f.err != nil {
		return nil, f.err
	}
	return &inspiration.SearchPayload{Topic: topic, Posts: []reddit.Post{{ID: "p1"}}}, nil
}

func (f *fakeService) Trending(ctx context.Context, limit int) *inspiration.TrendingResult {
	return &inspiration.TrendingResult{Posts: []reddit.Post{}, Degraded: true}
}

func (f *fakeService) SubredditPosts(ctx context.Context, subreddit string, opts reddit.ListOptions) ([]reddit.Post, error) {
	f.lastSub = subreddit
	return []reddit.Post{{ID: "p1"}}, f.err
}

func (f *fakeService) SubredditInfo(ctx context.Context, subreddit string) (*reddit.SubredditInfo, error) {
	f.lastSub = subreddit
	if f.err != nil {
		return nil, f.err
	}
	return &reddit.SubredditInfo{Name: subreddit}, nil
}

func (f *fakeService) InterestOverTime(ctx context.Context, q inspiration.TrendQuery) (*inspiration.SeriesPayload, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return &inspiration.SeriesPayload{Keywords: q.Keywords, Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeService) InterestByRegion(ctx context.Context, q inspiration.TrendQuery) (*inspiration.RegionPayload, error) {
	f.lastQuery = q
	f.lastRegion = q.Country
	if f.err != nil {
		return nil, f.err
	}
	return &inspiration.RegionPayload{Keywords: q.Keywords, Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeService) RelatedQueries(ctx context.Context, q inspiration.TrendQuery) (*inspiration.RelatedPayload, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return &inspiration.RelatedPayload{Kind: "queries", Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeService) RelatedTopics(ctx context.Context, q inspiration.TrendQuery) (*inspiration.RelatedPayload, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return &inspiration.RelatedPayload{Kind: "topics", Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeService) RealtimeSearches(ctx context.Context, country, category string) (*inspiration.RelatedPayload, error) {
	f.lastRegion = country
	if f.err != nil {
		return nil, f.err
	}
	return &inspiration.RelatedPayload{Kind: "realtime", Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeService) TodaySearches(ctx context.Context, country, category string) (*inspiration.RelatedPayload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &inspiration.RelatedPayload{Kind: "today", Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeService) Categories(ctx context.Context, force bool) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"categories":[]}`), nil
}

func (f *fakeService) Geographic(ctx context.Context, force bool) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"countries":{}}`), nil
}

func (f *fakeService) TrendsReady() bool { return f.trendsUp }

func newTestRouter(svc Service) http.Handler {
	return NewRouter(NewHandler(svc, nil, nil), nil)
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	return env
}

func TestSearch_Envelope(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/inspiration?topic=golang&limit=5", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "success" || env.Message == "" || env.Data == nil {
		t.Errorf("envelope incomplete: %+v", env)
	}
	if svc.lastTopic != "golang" || svc.lastLimit != 5 {
		t.Errorf("query params not forwarded: topic=%q limit=%d", svc.lastTopic, svc.lastLimit)
	}
}

func TestSearch_MissingTopic(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodGet, "/inspiration", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var env errorEnvelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Status != "error" || env.StatusCode != http.StatusBadRequest || env.Message == "" {
		t.Errorf("error envelope incomplete: %+v", env)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindRateLimited, http.StatusTooManyRequests},
		{apperr.KindUnreachable, http.StatusServiceUnavailable},
		{apperr.KindUpstream, http.StatusBadGateway},
		{apperr.KindAuth, http.StatusInternalServerError},
		{apperr.KindNotInitialized, http.StatusInternalServerError},
		{apperr.KindPersistence, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		svc := &fakeService{err: apperr.New(tt.kind, "boom")}
		rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/inspiration?topic=x", "")
		if rec.Code != tt.want {
			t.Errorf("kind %v: expected status %d, got %d", tt.kind, tt.want, rec.Code)
		}
	}
}

func TestTrending_DegradedInBody(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodGet, "/inspiration/trending", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"degraded":true`) {
		t.Errorf("degraded flag missing: %s", rec.Body.String())
	}
}

func TestSubredditRoutes(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/inspiration/subreddit/golang?limit=5&sort=new", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastSub != "golang" {
		t.Errorf("subreddit param not forwarded: %q", svc.lastSub)
	}

	rec = doRequest(t, router, http.MethodGet, "/inspiration/subreddit/golang/about", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for about, got %d", rec.Code)
	}
}

func TestInterestOverTime_ForwardsBody(t *testing.T) {
	svc := &fakeService{}
	body := `{"keywords":["go","rust"],"start":"2024-01-01","end":"2024-06-01","country":"DE","region":"CITY"}`
	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/trends/interest-over-time", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.lastQuery.Keywords) != 2 || svc.lastQuery.Start != "2024-01-01" || svc.lastQuery.End != "2024-06-01" {
		t.Errorf("body not forwarded: %+v", svc.lastQuery)
	}
	if svc.lastQuery.Country != "DE" || svc.lastQuery.Region != "CITY" {
		t.Errorf("country/region not forwarded: %+v", svc.lastQuery)
	}
}

func TestInterestOverTime_DateFieldAliases(t *testing.T) {
	svc := &fakeService{}
	body := `{"keywords":["go"],"start_date":"2024-01-01","end_date":"2024-06-01"}`
	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/trends/interest-over-time", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastQuery.Start != "2024-01-01" || svc.lastQuery.End != "2024-06-01" {
		t.Errorf("legacy date aliases not honored: %+v", svc.lastQuery)
	}

	// The documented names win when both are present.
	body = `{"keywords":["go"],"start":"2024-02-01","start_date":"2024-01-01"}`
	doRequest(t, newTestRouter(svc), http.MethodPost, "/trends/interest-over-time", body)
	if svc.lastQuery.Start != "2024-02-01" {
		t.Errorf("documented field should take precedence, got %q", svc.lastQuery.Start)
	}
}

func TestInterestOverTime_InvalidBody(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodPost, "/trends/interest-over-time", "{not json")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestRealtime_EmptyBodyAllowed(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodPost, "/trends/realtime", "")

	if rec.Code != http.StatusOK {
		t.Errorf("realtime without body should succeed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCategories_RawDataInEnvelope(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodGet, "/trends/categories", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"categories":[]`) {
		t.Errorf("raw option data missing: %s", rec.Body.String())
	}
}

func TestErrorResponsesHitErrorCounter(t *testing.T) {
	metrics, err := observability.NewMetrics("inspiration-api-test", true)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	svc := &fakeService{err: apperr.New(apperr.KindUpstream, "boom")}
	router := NewRouter(NewHandler(svc, nil, metrics), metrics.Handler())

	rec := doRequest(t, router, http.MethodGet, "/inspiration?topic=x", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	scrape := doRequest(t, router, http.MethodGet, "/metrics", "")
	if scrape.Code != http.StatusOK {
		t.Fatalf("metrics scrape failed with %d", scrape.Code)
	}
	if !strings.Contains(scrape.Body.String(), "inspiration_errors") {
		t.Error("error counter missing from the metrics scrape")
	}
}

func TestHealthAndReady(t *testing.T) {
	router := newTestRouter(&fakeService{trendsUp: true})

	rec := doRequest(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"trends_ready":true`) {
		t.Errorf("readiness should report trends state: %s", rec.Body.String())
	}
}
