package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"walletflow/internal/batch"
	"walletflow/internal/cache"
	"walletflow/internal/config"
	"walletflow/internal/metrics"
	"walletflow/internal/noderpc"
	"walletflow/internal/retry"
	"walletflow/internal/wallet"
	"walletflow/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional, env vars also apply)")
	tokens := flag.String("tokens", "BTC", "comma-separated token types to analyze")
	days := flag.Int("days", 30, "analysis window in days, ending now")
	warm := flag.Bool("warm", false, "prefetch caches for the addresses and exit")
	watchFeed := flag.Bool("watch", false, "keep running and invalidate caches from the node's activity feed")
	flag.Parse()

	addresses := flag.Args()
	if len(addresses) == 0 {
		fmt.Fprintln(os.Stderr, "usage: walletflow [flags] address [address...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("node", cfg.NodeURL).
		Int("addresses", len(addresses)).
		Str("tokens", *tokens).
		Msg("starting walletflow")

	// Composition root: one cache, one client, one processor per
	// process, shared by every caller.
	localTier, err := cache.NewMemoryTier(cfg.CacheSize, time.Minute)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create local cache tier")
	}
	var sharedTier cache.Tier
	if cfg.RedisURL != "" {
		sharedTier, err = cache.NewRedisTier(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("shared cache tier unavailable, running local-only")
			sharedTier = nil
		}
	}
	tiered := cache.NewTiered(localTier, cache.Options{
		Shared:    sharedTier,
		RepairTTL: cfg.GetCacheTTLDuration(),
	}, logger)
	defer tiered.Close()

	var sink *metrics.Metrics
	if cfg.MetricsPort > 0 {
		sink = metrics.New()
		go func() {
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			logger.Info().Str("addr", addr).Msg("serving metrics")
			mux := http.NewServeMux()
			mux.Handle("/metrics", sink.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	client := noderpc.NewClient(noderpc.Config{
		BaseURL:    cfg.NodeURL,
		Timeout:    cfg.GetRequestTimeoutDuration(),
		DefaultTTL: cfg.GetCacheTTLDuration(),
		Retry: retry.Policy{
			MaxAttempts:    cfg.MaxRetries,
			BaseDelay:      cfg.GetRetryBaseDelayDuration(),
			JitterFraction: 0.1,
		},
		RateLimit:        cfg.RateLimit,
		RateWindow:       cfg.GetRateWindowDuration(),
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.GetBreakerCooldownDuration(),
		BatchConcurrency: cfg.BatchConcurrency,
	}, tiered, sink, logger)

	processor := batch.NewProcessor(logger)
	aggregator := wallet.New(client, tiered, processor, wallet.Config{
		ActivityTTL:  cfg.GetActivityCacheTTLDuration(),
		EventLimit:   cfg.EventLimit,
		Concurrency:  cfg.BatchConcurrency,
		BatchTimeout: cfg.GetBatchTimeoutDuration(),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokenTypes := splitTokens(*tokens)

	if *warm {
		warmed := aggregator.WarmWallets(ctx, addresses, tokenTypes)
		logger.Info().Int("warmed", warmed).Int("requested", len(addresses)).Msg("cache warm complete")
		return
	}

	dateRange := wallet.DateRange{
		From: time.Now().AddDate(0, 0, -*days).UTC(),
		To:   time.Now().UTC(),
	}
	report, err := aggregator.AnalyzeWallets(ctx, addresses, tokenTypes, dateRange)
	if err != nil {
		logger.Fatal().Err(err).Msg("analysis failed")
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to encode report")
	}
	fmt.Println(string(out))

	perf := aggregator.GetPerformanceMetrics()
	logger.Info().
		Float64("cacheHitRate", perf.Cache.HitRate).
		Uint64("processed", perf.Batch.Processed).
		Uint64("failed", perf.Batch.Failed).
		Str("breaker", perf.Breaker).
		Msg("analysis complete")

	if *watchFeed {
		if cfg.NodeWSURL == "" {
			logger.Fatal().Msg("watch mode requires nodeWsUrl")
		}
		watcher := watch.New(watch.Config{WSURL: cfg.NodeWSURL}, aggregator, logger)
		logger.Info().Str("url", cfg.NodeWSURL).Msg("watching activity feed, ^C to stop")
		watcher.Run(ctx)
	}
}

func splitTokens(list string) []string {
	var out []string
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, strings.ToUpper(t))
		}
	}
	if len(out) == 0 {
		out = []string{"BTC"}
	}
	return out
}

// setupLogger configures the zerolog logger.
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}
