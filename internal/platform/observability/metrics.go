package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Upstream API metrics
	UpstreamCalls    metric.Int64Counter
	UpstreamDuration metric.Float64Histogram

	// Cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Token lifecycle metrics
	TokenRefreshes metric.Int64Counter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Error metrics
	Errors metric.Int64Counter
}

// NewMetrics creates a new Metrics instance
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter: provider.Meter(serviceName),
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// initMetrics initializes all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	m.UpstreamCalls, err = m.meter.Int64Counter(
		"inspiration.upstream.calls",
		metric.WithDescription("Total upstream API calls"),
	)
	if err != nil {
		return err
	}

	m.UpstreamDuration, err = m.meter.Float64Histogram(
		"inspiration.upstream.duration",
		metric.WithDescription("Upstream API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.CacheHits, err = m.meter.Int64Counter(
		"inspiration.cache.hits",
		metric.WithDescription("Cache lookup hits"),
	)
	if err != nil {
		return err
	}

	m.CacheMisses, err = m.meter.Int64Counter(
		"inspiration.cache.misses",
		metric.WithDescription("Cache lookup misses"),
	)
	if err != nil {
		return err
	}

	m.TokenRefreshes, err = m.meter.Int64Counter(
		"inspiration.token.refreshes",
		metric.WithDescription("Upstream credential exchanges performed"),
	)
	if err != nil {
		return err
	}

	m.HTTPRequestDuration, err = m.meter.Float64Histogram(
		"inspiration.http.request.duration",
		metric.WithDescription("Inbound HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"inspiration.circuit_breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	)
	if err != nil {
		return err
	}

	m.Errors, err = m.meter.Int64Counter(
		"inspiration.errors",
		metric.WithDescription("Total errors by component and kind"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordUpstreamCall records a call against an upstream API
func (m *Metrics) RecordUpstreamCall(ctx context.Context, upstream, endpoint, status string, duration time.Duration) {
	if m.UpstreamCalls == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("upstream", upstream),
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	m.UpstreamCalls.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordCacheHit records a cache hit for a collection
func (m *Metrics) RecordCacheHit(ctx context.Context, collection string) {
	if m.CacheHits == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("collection", collection)))
}

// RecordCacheMiss records a cache miss for a collection
func (m *Metrics) RecordCacheMiss(ctx context.Context, collection string) {
	if m.CacheMisses == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("collection", collection)))
}

// RecordTokenRefresh records an upstream credential exchange
func (m *Metrics) RecordTokenRefresh(ctx context.Context, upstream, status string) {
	if m.TokenRefreshes == nil {
		return
	}
	m.TokenRefreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("upstream", upstream),
		attribute.String("status", status),
	))
}

// RecordHTTPRequest records an inbound request duration
func (m *Metrics) RecordHTTPRequest(ctx context.Context, route, method string, statusCode int, duration time.Duration) {
	if m.HTTPRequestDuration == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
		attribute.Int("status_code", statusCode),
	))
}

// SetCircuitBreakerState records the state of a named circuit breaker
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, name string, state int64) {
	if m.CircuitBreakerState == nil {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker", name)))
}

// RecordError records an error by component and kind
func (m *Metrics) RecordError(ctx context.Context, component, kind string) {
	if m.Errors == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("kind", kind),
	))
}

// Handler returns the Prometheus scrape handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
