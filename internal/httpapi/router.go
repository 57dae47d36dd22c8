package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/contentpulse/inspiration-api/internal/inspiration"
)

// NewRouter assembles the REST API.
func NewRouter(h *Handler, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/inspiration", func(r chi.Router) {
		r.Get("/", h.search)
		r.Get("/trending", h.trending)
		r.Route("/subreddit/{subreddit}", func(r chi.Router) {
			r.Get("/", h.subredditPosts)
			r.Get("/about", h.subredditInfo)
		})
	})

	r.Route("/trends", func(r chi.Router) {
		r.Get("/categories", h.categories)
		r.Get("/geographic", h.geographic)

		r.Post("/interest-over-time", h.trendQuery("interest over time", func(ctx context.Context, q inspiration.TrendQuery) (any, error) {
			return h.svc.InterestOverTime(ctx, q)
		}))
		r.Post("/interest-by-region", h.trendQuery("interest by region", func(ctx context.Context, q inspiration.TrendQuery) (any, error) {
			return h.svc.InterestByRegion(ctx, q)
		}))
		r.Post("/related-queries", h.trendQuery("related queries", func(ctx context.Context, q inspiration.TrendQuery) (any, error) {
			return h.svc.RelatedQueries(ctx, q)
		}))
		r.Post("/related-topics", h.trendQuery("related topics", func(ctx context.Context, q inspiration.TrendQuery) (any, error) {
			return h.svc.RelatedTopics(ctx, q)
		}))
		r.Post("/realtime", h.searches("realtime", h.svc.RealtimeSearches))
		r.Post("/today", h.searches("today", h.svc.TodaySearches))
	})

	return r
}

// instrument opens a span per request and records the duration per route
// pattern once the handler has run.
func (h *Handler) instrument(next http.Handler) http.Handler {
	tracer := otel.Tracer("httpapi")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", ww.Status()),
		)
		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(ctx, route, r.Method, ww.Status(), time.Since(start))
		}
	})
}
