// Package httpapi exposes the service over REST. Handlers are thin: decode,
// delegate, wrap in the response envelope. All domain behavior lives in the
// orchestration layer.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/contentpulse/inspiration-api/internal/apperr"
	"github.com/contentpulse/inspiration-api/internal/inspiration"
	"github.com/contentpulse/inspiration-api/internal/platform/observability"
	"github.com/contentpulse/inspiration-api/internal/reddit"
)

// Service is the orchestration surface the handlers depend on.
type Service interface {
	Search(ctx context.Context, topic string, limit int, owner string) (*inspiration.SearchPayload, error)
	Trending(ctx context.Context, limit int) *inspiration.TrendingResult
	SubredditPosts(ctx context.Context, subreddit string, opts reddit.ListOptions) ([]reddit.Post, error)
	SubredditInfo(ctx context.Context, subreddit string) (*reddit.SubredditInfo, error)
	InterestOverTime(ctx context.Context, q inspiration.TrendQuery) (*inspiration.SeriesPayload, error)
	InterestByRegion(ctx context.Context, q inspiration.TrendQuery) (*inspiration.RegionPayload, error)
	RelatedQueries(ctx context.Context, q inspiration.TrendQuery) (*inspiration.RelatedPayload, error)
	RelatedTopics(ctx context.Context, q inspiration.TrendQuery) (*inspiration.RelatedPayload, error)
	RealtimeSearches(ctx context.Context, country, category string) (*inspiration.RelatedPayload, error)
	TodaySearches(ctx context.Context, country, category string) (*inspiration.RelatedPayload, error)
	Categories(ctx context.Context, forceRefresh bool) (json.RawMessage, error)
	Geographic(ctx context.Context, forceRefresh bool) (json.RawMessage, error)
	TrendsReady() bool
}

// Handler carries the handler dependencies.
type Handler struct {
	svc     Service
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHandler creates the handler set.
func NewHandler(svc Service, logger *observability.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{svc: svc, logger: logger, metrics: metrics}
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		h.respondError(r.Context(), w, apperr.New(apperr.KindValidation, "topic query parameter is required"))
		return
	}

	payload, err := h.svc.Search(r.Context(), topic, queryInt(r, "limit"), r.URL.Query().Get("owner"))
	if err != nil {
		h.respondError(r.Context(), w, err)
		return
	}
	respond(w, "inspiration fetched", payload)
}

func (h *Handler) trending(w http.ResponseWriter, r *http.Request) {
	result := h.svc.Trending(r.Context(), queryInt(r, "limit"))
	respond(w, "trending fetched", result)
}

func (h *Handler) subredditPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.SubredditPosts(r.Context(), chi.URLParam(r, "subreddit"), reddit.ListOptions{
		Limit: queryInt(r, "limit"),
		Sort:  r.URL.Query().Get("sort"),
	})
	if err != nil {
		h.respondError(r.Context(), w, err)
		return
	}
	respond(w, "subreddit posts fetched", posts)
}

func (h *Handler) subredditInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.SubredditInfo(r.Context(), chi.URLParam(r, "subreddit"))
	if err != nil {
		h.respondError(r.Context(), w, err)
		return
	}
	respond(w, "subreddit info fetched", info)
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Categories(r.Context(), queryBool(r, "refresh"))
	if err != nil {
		h.respondError(r.Context(), w, err)
		return
	}
	respond(w, "categories fetched", data)
}

func (h *Handler) geographic(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Geographic(r.Context(), queryBool(r, "refresh"))
	if err != nil {
		h.respondError(r.Context(), w, err)
		return
	}
	respond(w, "geographic options fetched", data)
}

// trendQueryRequest is the body of the keyword-based trends routes.
// start/end are the documented field names; the start_date/end_date
// aliases are kept for clients of the previous generation of the API.
type trendQueryRequest struct {
	Keywords []string `json:"keywords"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	StartAlt string   `json:"start_date"`
	EndAlt   string   `json:"end_date"`
	Country  string   `json:"country"`
	Region   string   `json:"region"`
	Category string   `json:"category"`
	GProp    string   `json:"gprop"`
	Owner    string   `json:"owner"`
}

func (req *trendQueryRequest) query() inspiration.TrendQuery {
	start := req.Start
	if start == "" {
		start = req.StartAlt
	}
	end := req.End
	if end == "" {
		end = req.EndAlt
	}
	return inspiration.TrendQuery{
		Keywords: req.Keywords,
		Start:    start,
		End:      end,
		Country:  req.Country,
		Region:   req.Region,
		Category: req.Category,
		GProp:    req.GProp,
		Owner:    req.Owner,
	}
}

func (h *Handler) trendQuery(kind string, run func(context.Context, inspiration.TrendQuery) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req trendQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(r.Context(), w, apperr.New(apperr.KindValidation, "invalid request body"))
			return
		}

		payload, err := run(r.Context(), req.query())
		if err != nil {
			h.respondError(r.Context(), w, err)
			return
		}
		respond(w, kind+" fetched", payload)
	}
}

// searchesRequest is the body of the realtime/today routes; both fields
// are optional.
type searchesRequest struct {
	Country  string `json:"country"`
	Category string `json:"category"`
}

func (h *Handler) searches(kind string, run func(ctx context.Context, country, category string) (*inspiration.RelatedPayload, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchesRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				h.respondError(r.Context(), w, apperr.New(apperr.KindValidation, "invalid request body"))
				return
			}
		}

		payload, err := run(r.Context(), req.Country, req.Category)
		if err != nil {
			h.respondError(r.Context(), w, err)
			return
		}
		respond(w, kind+" searches fetched", payload)
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":       "ready",
		"trends_ready": h.svc.TrendsReady(),
	})
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

func queryBool(r *http.Request, name string) bool {
	return r.URL.Query().Get(name) == "true"
}
