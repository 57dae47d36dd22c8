// trendtool is the maintenance CLI: seed forces a refresh of both option
// sets, purge deletes all cached trend entries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/contentpulse/inspiration-api/internal/inspiration"
	"github.com/contentpulse/inspiration-api/internal/platform/config"
	"github.com/contentpulse/inspiration-api/internal/platform/observability"
	"github.com/contentpulse/inspiration-api/internal/store"
	"github.com/contentpulse/inspiration-api/internal/trends"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	timeout := flag.Duration("timeout", time.Minute, "operation timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: trendtool [-config path] [-timeout d] <seed|purge>")
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.MustLoad(*configPath)
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := store.NewRedisStore(cfg.Store.Redis.Address, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to store: %v", err)
	}
	defer st.Close()

	switch flag.Arg(0) {
	case "seed":
		if err := seed(ctx, cfg, st, logger, *timeout); err != nil {
			log.Fatalf("Seed failed: %v", err)
		}
		fmt.Println("option sets refreshed")
	case "purge":
		purged, err := st.PurgeEntries(ctx)
		if err != nil {
			log.Fatalf("Purge failed: %v", err)
		}
		fmt.Printf("purged %d cache entries\n", purged)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		os.Exit(2)
	}
}

func seed(ctx context.Context, cfg *config.Config, st store.Store, logger *observability.Logger, timeout time.Duration) error {
	client := trends.NewClient(trends.Config{
		Enabled: cfg.Trends.Enabled,
		APIKey:  cfg.Trends.APIKey,
		APIHost: cfg.Trends.APIHost,
		BaseURL: cfg.Trends.BaseURL,
		Timeout: cfg.Trends.Timeout,
	}, st, logger, nil)
	if err := client.Initialize(ctx); err != nil {
		return err
	}

	warmer := inspiration.NewWarmer(logger, timeout)
	warmer.Register(client)
	return warmer.Warmup(ctx)
}
