package inspiration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/contentpulse/inspiration-api/internal/apperr"
	"github.com/contentpulse/inspiration-api/internal/platform/observability"
	"github.com/contentpulse/inspiration-api/internal/reddit"
	"github.com/contentpulse/inspiration-api/internal/store"
	"github.com/contentpulse/inspiration-api/internal/trends"
)

type fakeReddit struct {
	searches    atomic.Int64
	posts       []reddit.Post
	err         error
	hot         []reddit.Post
	hotDegraded bool

	// gate, when set, blocks SearchPosts until released. Used to force
	// caller overlap in the singleflight test.
	gate chan struct{}
}

func (f *fakeReddit) SearchPosts(ctx context.Context, keyword string, opts reddit.SearchOptions) ([]reddit.Post, error) {
	f.searches.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.posts, f.err
}

func (f *fakeReddit) SubredditPosts(ctx context.Context, subreddit string, opts reddit.ListOptions) ([]reddit.Post, error) {
	return f.posts, f.err
}

func (f *fakeReddit) HotPosts(ctx context.Context, subreddit string, limit int) ([]reddit.Post, bool) {
	return f.hot, f.hotDegraded
}

func (f *fakeReddit) SubredditInfo(ctx context.Context, subreddit string) (*reddit.SubredditInfo, error) {
	return &reddit.SubredditInfo{Name: subreddit}, f.err
}

type fakeTrends struct {
	calls   atomic.Int64
	data    json.RawMessage
	err     error
	ready   bool
	lastReq trends.QueryRequest
}

func (f *fakeTrends) Ready() bool { return f.ready }

func (f *fakeTrends) fetch() (json.RawMessage, error) {
	f.calls.Add(1)
	return f.data, f.err
}

func (f *fakeTrends) query(req trends.QueryRequest) (json.RawMessage, error) {
	f.lastReq = req
	return f.fetch()
}

func (f *fakeTrends) Categories(ctx context.Context, force bool) (json.RawMessage, error) {
	return f.fetch()
}
func (f *fakeTrends) Geographic(ctx context.Context, force bool) (json.RawMessage, error) {
	return f.fetch()
}
func (f *fakeTrends) InterestOverTime(ctx context.Context, req trends.QueryRequest) (json.RawMessage, error) {
	return f.query(req)
}
func (f *fakeTrends) InterestByRegion(ctx context.Context, req trends.QueryRequest) (json.RawMessage, error) {
	return f.query(req)
}
func (f *fakeTrends) RelatedQueries(ctx context.Context, req trends.QueryRequest) (json.RawMessage, error) {
	return f.query(req)
}
func (f *fakeTrends) RelatedTopics(ctx context.Context, req trends.QueryRequest) (json.RawMessage, error) {
	return f.query(req)
}
func (f *fakeTrends) RealtimeSearches(ctx context.Context, country, category string) (json.RawMessage, error) {
	return f.fetch()
}
func (f *fakeTrends) TodaySearches(ctx context.Context, country, category string) (json.RawMessage, error) {
	return f.fetch()
}

// failingStore delegates to a memory store but refuses writes.
type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) PutEntry(ctx context.Context, entry *store.CacheEntry, ttl time.Duration) error {
	return errors.New("disk full")
}

func newTestService(t *testing.T, rc RedditAPI, tc TrendsAPI, st store.Store) *Service {
	t.Helper()
	if st == nil {
		mem := store.NewMemoryStore()
		t.Cleanup(func() { mem.Close() })
		st = mem
	}
	svc, err := NewService(Config{
		Store:  st,
		Reddit: rc,
		Trends: tc,
		Logger: observability.NewLogger("error", "json"),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestService_Search_MissThenHit(t *testing.T) {
	rc := &fakeReddit{posts: []reddit.Post{{ID: "p1", Title: "hello"}}}
	svc := newTestService(t, rc, &fakeTrends{}, nil)
	ctx := context.Background()

	first, err := svc.Search(ctx, "golang", 10, "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(first.Posts) != 1 || first.Posts[0].ID != "p1" {
		t.Fatalf("unexpected payload: %+v", first)
	}

	second, err := svc.Search(ctx, "golang", 10, "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(second.Posts) != 1 {
		t.Fatalf("cached payload should match: %+v", second)
	}

	if got := rc.searches.Load(); got != 1 {
		t.Errorf("second call must be served from cache, got %d upstream calls", got)
	}
}

func TestService_Search_HitIncrementsCounter(t *testing.T) {
	rc := &fakeReddit{posts: []reddit.Post{{ID: "p1"}}}
	mem := store.NewMemoryStore()
	defer mem.Close()
	svc := newTestService(t, rc, &fakeTrends{}, mem)
	ctx := context.Background()

	svc.Search(ctx, "golang", 10, "")
	svc.Search(ctx, "golang", 10, "")
	svc.Search(ctx, "golang", 10, "")

	entry, err := mem.GetEntry(ctx, store.EntryKey{QueryKey: "golang#10", Scope: store.ScopeContentSearch})
	if err != nil {
		t.Fatalf("entry not persisted: %v", err)
	}
	if entry.HitCount != 2 {
		t.Errorf("expected 2 hits recorded, got %d", entry.HitCount)
	}
}

func TestService_Search_NormalizesTopic(t *testing.T) {
	rc := &fakeReddit{posts: []reddit.Post{{ID: "p1"}}}
	svc := newTestService(t, rc, &fakeTrends{}, nil)
	ctx := context.Background()

	svc.Search(ctx, "  GoLang ", 10, "")
	svc.Search(ctx, "golang", 10, "")

	if got := rc.searches.Load(); got != 1 {
		t.Errorf("case/whitespace variants must share a cache entry, got %d fetches", got)
	}
}

func TestService_Search_EmptyTopic(t *testing.T) {
	rc := &fakeReddit{}
	svc := newTestService(t, rc, &fakeTrends{}, nil)

	_, err := svc.Search(context.Background(), "   ", 10, "")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation failure, got %v", err)
	}
	if rc.searches.Load() != 0 {
		t.Error("no upstream call expected for invalid input")
	}
}

func TestService_Search_PersistFailureStillServes(t *testing.T) {
	rc := &fakeReddit{posts: []reddit.Post{{ID: "p1"}}}
	mem := store.NewMemoryStore()
	defer mem.Close()
	svc := newTestService(t, rc, &fakeTrends{}, &failingStore{MemoryStore: mem})

	payload, err := svc.Search(context.Background(), "golang", 10, "")
	if err != nil {
		t.Fatalf("persist failure must not surface: %v", err)
	}
	if len(payload.Posts) != 1 {
		t.Errorf("fetched data must be returned despite persist failure: %+v", payload)
	}
}

func TestService_Search_ConcurrentMissesShareFetch(t *testing.T) {
	rc := &fakeReddit{posts: []reddit.Post{{ID: "p1"}}, gate: make(chan struct{})}
	svc := newTestService(t, rc, &fakeTrends{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Search(ctx, "golang", 10, ""); err != nil {
				t.Errorf("Search failed: %v", err)
			}
		}()
	}

	// Give the racing callers time to pile onto the flight, then release.
	time.Sleep(50 * time.Millisecond)
	close(rc.gate)
	wg.Wait()

	if got := rc.searches.Load(); got != 1 {
		t.Errorf("racing misses should collapse to 1 fetch, got %d", got)
	}
}

func TestService_Trending_DegradedOnSuppressedFailure(t *testing.T) {
	svc := newTestService(t, &fakeReddit{hot: []reddit.Post{}, hotDegraded: true}, &fakeTrends{}, nil)

	result := svc.Trending(context.Background(), 10)
	if !result.Degraded {
		t.Error("suppressed upstream failure should be flagged degraded")
	}
	if result.Posts == nil {
		t.Error("posts must be an empty slice, not nil")
	}
}

func TestService_Trending_EmptyFeedIsNotDegraded(t *testing.T) {
	svc := newTestService(t, &fakeReddit{hot: []reddit.Post{}}, &fakeTrends{}, nil)

	result := svc.Trending(context.Background(), 10)
	if result.Degraded {
		t.Error("a genuinely empty feed must not be flagged degraded")
	}
}

func TestService_Trending_Healthy(t *testing.T) {
	svc := newTestService(t, &fakeReddit{hot: []reddit.Post{{ID: "p1"}}}, &fakeTrends{}, nil)

	result := svc.Trending(context.Background(), 10)
	if result.Degraded {
		t.Error("non-empty feed should not be degraded")
	}
	if len(result.Posts) != 1 {
		t.Errorf("expected 1 post, got %d", len(result.Posts))
	}
}

func TestService_InterestOverTime_CachedByWindow(t *testing.T) {
	tc := &fakeTrends{ready: true, data: json.RawMessage(`{"series":[1,2,3]}`)}
	svc := newTestService(t, &fakeReddit{}, tc, nil)
	ctx := context.Background()

	q := TrendQuery{Keywords: []string{"Go", " rust "}, Start: "2024-01-01", Country: "de"}
	first, err := svc.InterestOverTime(ctx, q)
	if err != nil {
		t.Fatalf("InterestOverTime failed: %v", err)
	}
	if first.Keywords[0] != "go" || first.Keywords[1] != "rust" {
		t.Errorf("keywords not normalized: %v", first.Keywords)
	}

	// Same query again: served from cache.
	svc.InterestOverTime(ctx, q)
	if got := tc.calls.Load(); got != 1 {
		t.Fatalf("expected cache hit on repeat, got %d fetches", got)
	}

	// A different window is a different entry.
	q.Start = "2024-06-01"
	svc.InterestOverTime(ctx, q)
	if got := tc.calls.Load(); got != 2 {
		t.Errorf("different date window must refetch, got %d fetches", got)
	}
}

func TestService_InterestByRegion_ForwardsResolution(t *testing.T) {
	tc := &fakeTrends{ready: true, data: json.RawMessage(`{"regions":[]}`)}
	svc := newTestService(t, &fakeReddit{}, tc, nil)
	ctx := context.Background()

	q := TrendQuery{Keywords: []string{"go"}, Start: "2024-01-01", Country: "US", Region: "city"}
	if _, err := svc.InterestByRegion(ctx, q); err != nil {
		t.Fatalf("InterestByRegion failed: %v", err)
	}
	if tc.lastReq.Region != "CITY" {
		t.Errorf("region must reach the upstream request uppercased, got %q", tc.lastReq.Region)
	}

	// A different resolution is a different cache entry.
	q.Region = "DMA"
	svc.InterestByRegion(ctx, q)
	if got := tc.calls.Load(); got != 2 {
		t.Errorf("different resolutions must not share an entry, got %d fetches", got)
	}
}

func TestService_InterestOverTime_Validation(t *testing.T) {
	tc := &fakeTrends{ready: true}
	svc := newTestService(t, &fakeReddit{}, tc, nil)

	_, err := svc.InterestOverTime(context.Background(), TrendQuery{Start: "2024-01-01"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation failure, got %v", err)
	}

	_, err = svc.InterestOverTime(context.Background(), TrendQuery{Keywords: []string{"go"}})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation failure for missing start, got %v", err)
	}
	if tc.calls.Load() != 0 {
		t.Error("no upstream call expected for invalid input")
	}
}

func TestService_RelatedKindsAreDistinctEntries(t *testing.T) {
	tc := &fakeTrends{ready: true, data: json.RawMessage(`{}`)}
	mem := store.NewMemoryStore()
	defer mem.Close()
	svc := newTestService(t, &fakeReddit{}, tc, mem)
	ctx := context.Background()

	q := TrendQuery{Keywords: []string{"go"}, Start: "2024-01-01"}
	queries, err := svc.RelatedQueries(ctx, q)
	if err != nil {
		t.Fatalf("RelatedQueries failed: %v", err)
	}
	topics, err := svc.RelatedTopics(ctx, q)
	if err != nil {
		t.Fatalf("RelatedTopics failed: %v", err)
	}

	if queries.Kind != "queries" || topics.Kind != "topics" {
		t.Errorf("payloads must be tagged by kind: %q, %q", queries.Kind, topics.Kind)
	}
	if got := tc.calls.Load(); got != 2 {
		t.Errorf("queries and topics must not share an entry, got %d fetches", got)
	}
	if mem.Len() != 2 {
		t.Errorf("expected 2 distinct entries, got %d", mem.Len())
	}
}

func TestService_RealtimeSearches_Cached(t *testing.T) {
	tc := &fakeTrends{ready: true, data: json.RawMessage(`{"stories":[]}`)}
	svc := newTestService(t, &fakeReddit{}, tc, nil)
	ctx := context.Background()

	svc.RealtimeSearches(ctx, "us", "")
	svc.RealtimeSearches(ctx, "US", "")

	if got := tc.calls.Load(); got != 1 {
		t.Errorf("country case variants must share an entry, got %d fetches", got)
	}

	svc.TodaySearches(ctx, "US", "")
	if got := tc.calls.Load(); got != 2 {
		t.Errorf("realtime and today are distinct entries, got %d fetches", got)
	}
}

func TestService_UpstreamErrorNotCached(t *testing.T) {
	tc := &fakeTrends{ready: true, err: apperr.New(apperr.KindUpstream, "boom")}
	mem := store.NewMemoryStore()
	defer mem.Close()
	svc := newTestService(t, &fakeReddit{}, tc, mem)
	ctx := context.Background()

	q := TrendQuery{Keywords: []string{"go"}, Start: "2024-01-01"}
	if _, err := svc.InterestOverTime(ctx, q); !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if mem.Len() != 0 {
		t.Error("failed fetches must not be cached")
	}

	// Recovery is fetched fresh.
	tc.err = nil
	tc.data = json.RawMessage(`{"series":[]}`)
	if _, err := svc.InterestOverTime(ctx, q); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if got := tc.calls.Load(); got != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", got)
	}
}

func TestService_Purge(t *testing.T) {
	rc := &fakeReddit{posts: []reddit.Post{{ID: "p1"}}}
	mem := store.NewMemoryStore()
	defer mem.Close()
	svc := newTestService(t, rc, &fakeTrends{}, mem)
	ctx := context.Background()

	svc.Search(ctx, "golang", 10, "")
	svc.Search(ctx, "rust", 10, "")

	purged, err := svc.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if purged != 2 {
		t.Errorf("expected 2 purged entries, got %d", purged)
	}

	svc.Search(ctx, "golang", 10, "")
	if got := rc.searches.Load(); got != 3 {
		t.Errorf("post-purge lookup must refetch, got %d fetches", got)
	}
}
