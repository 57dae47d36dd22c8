package inspiration

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contentpulse/inspiration-api/internal/platform/observability"
)

// WarmupProvider pre-populates its slice of the cache. Implementations
// must be idempotent.
type WarmupProvider interface {
	Name() string
	Warmup(ctx context.Context) error
}

// Warmer runs registered providers concurrently under a shared deadline.
// Used by the seed command and optionally at server startup.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	timeout   time.Duration
}

// NewWarmer creates a warmer with the given per-run timeout.
func NewWarmer(logger *observability.Logger, timeout time.Duration) *Warmer {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Warmer{logger: logger, timeout: timeout}
}

// Register adds a provider.
func (w *Warmer) Register(provider WarmupProvider) {
	w.providers = append(w.providers, provider)
}

// Warmup runs all providers in parallel. Provider failures are collected;
// the first error is returned after every provider has finished.
func (w *Warmer) Warmup(ctx context.Context) error {
	if len(w.providers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for _, provider := range w.providers {
		g.Go(func() error {
			pStart := time.Now()
			if err := provider.Warmup(ctx); err != nil {
				if w.logger != nil {
					w.logger.LogWarn(ctx, "cache warmup failed", "provider", provider.Name(), "error", err.Error())
				}
				return err
			}
			if w.logger != nil {
				w.logger.LogInfo(ctx, "cache warmup done", "provider", provider.Name(), "duration", time.Since(pStart).String())
			}
			return nil
		})
	}

	err := g.Wait()
	if w.logger != nil && err == nil {
		w.logger.LogInfo(ctx, "cache warmup completed", "providers", len(w.providers), "duration", time.Since(start).String())
	}
	return err
}
