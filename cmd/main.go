package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmbridge/agrigate/internal/cache"
	"github.com/farmbridge/agrigate/internal/config"
	"github.com/farmbridge/agrigate/internal/describe"
	"github.com/farmbridge/agrigate/internal/ingest"
	"github.com/farmbridge/agrigate/internal/logging"
	"github.com/farmbridge/agrigate/internal/metrics"
	"github.com/farmbridge/agrigate/internal/score"
	"github.com/farmbridge/agrigate/internal/server"
	"github.com/farmbridge/agrigate/internal/upstream"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "AGRIGATE", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	stores := buildStores(logger.With(slog.String("agent", "cache_factory")), cfg.Server.Cache)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := stores.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	upstreamClient, err := upstream.New(upstream.Config{
		BaseURL:  cfg.Upstream.BaseURL,
		Username: cfg.Upstream.Username,
		Password: cfg.Upstream.Password,
		Timeout:  time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.Error("unable to construct upstream client", slog.Any("error", err))
		os.Exit(1)
	}

	provider, err := buildProvider(cfg, upstreamClient)
	if err != nil {
		logger.Error("unable to construct score provider", slog.Any("error", err))
		os.Exit(1)
	}

	var generator describe.Generator
	if strings.TrimSpace(cfg.Describe.APIKey) != "" {
		gen, err := describe.NewOpenAIGenerator(describe.OpenAIConfig{
			APIKey:      cfg.Describe.APIKey,
			BaseURL:     cfg.Describe.BaseURL,
			Model:       cfg.Describe.Model,
			MaxTokens:   cfg.Describe.MaxTokens,
			Temperature: cfg.Describe.Temperature,
			Timeout:     time.Duration(cfg.Describe.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Warn("description backend setup failed, using local formatter", slog.Any("error", err))
		} else {
			generator = gen
		}
	}
	formatter, err := describe.NewFormatter()
	if err != nil {
		logger.Error("unable to construct description formatter", slog.Any("error", err))
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	router := server.NewRouter(server.RouterDeps{
		Logger:            logger,
		Ingest:            ingest.NewHandler(logger, upstreamClient, stores.Customers, stores.Sectors, metricsRecorder),
		Score:             score.NewHandler(logger, provider, stores.Customers, stores.Sectors, generator, formatter, metricsRecorder),
		Metrics:           metricsRecorder.Handler(),
		CorrelationHeader: cfg.Server.Logging.CorrelationHeader,
	})

	srv, err := server.New(cfg, logger, router)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

func buildStores(logger *slog.Logger, cfg config.ServerCacheConfig) *cache.Stores {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		if logger != nil {
			logger.Info("using memory cache stores")
		}
		return cache.NewMemoryStores()
	case "redis":
		stores, err := cache.NewRedisStores(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			if logger != nil {
				logger.Error("redis cache initialization failed", slog.Any("error", err))
				logger.Info("falling back to memory cache stores")
			}
			return cache.NewMemoryStores()
		}
		if logger != nil {
			logger.Info("using redis cache stores", slog.String("address", cfg.Redis.Address))
		}
		return stores
	default:
		if logger != nil {
			logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		}
		return cache.NewMemoryStores()
	}
}

// buildProvider routes score lookups upstream when a score path is configured
// and synthesizes them locally otherwise.
func buildProvider(cfg config.Config, forwarder score.Forwarder) (score.Provider, error) {
	if path := strings.TrimSpace(cfg.Upstream.ScorePath); path != "" {
		return score.NewUpstreamProvider(forwarder, path)
	}
	return score.NewRandomProvider(cfg.Score.Min, cfg.Score.Max)
}
