package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "mediasearch/searchservice/internal/api/http"
	"mediasearch/searchservice/internal/app"
	"mediasearch/searchservice/internal/auth"
	"mediasearch/searchservice/internal/metrics"
	"mediasearch/searchservice/internal/providers/contentapi"
	"mediasearch/searchservice/internal/providers/emby"
	"mediasearch/searchservice/internal/providers/localcatalog"
	"mediasearch/searchservice/internal/providers/tmdb"
	"mediasearch/searchservice/internal/search"
	"mediasearch/searchservice/internal/telemetry"
)

const serviceName = "media-search"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Int("maxConcurrent", cfg.MaxConcurrent),
		slog.Duration("globalTimeout", cfg.GlobalTimeout),
		slog.Duration("contentApiTimeout", cfg.ContentAPITimeout),
		slog.Duration("mediaServerTimeout", cfg.MediaServerTimeout),
		slog.Duration("localCatalogTimeout", cfg.LocalCatalogTimeout),
		slog.String("sourcesFile", cfg.SourcesFile),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasTMDBKey", cfg.TMDBAPIKey != ""),
		slog.Bool("authDisabled", cfg.Auth.Disabled),
	)
	if cfg.Auth.Disabled {
		logger.Warn("authentication disabled, every caller is treated as admin")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := app.LoadSources(cfg.SourcesFile, logger)
	if err != nil {
		logger.Error("load sources failed", slog.String("path", cfg.SourcesFile), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := sources.Watch(rootCtx); err != nil {
		logger.Warn("sources hot reload disabled", slog.String("error", err.Error()))
	}

	redisClient := buildRedisClient(rootCtx, cfg, logger)

	contentClient := contentapi.NewClient(contentapi.Config{
		Client:    newTracedHTTPClient(cfg.ContentAPITimeout),
		UserAgent: cfg.UserAgent,
		CacheTTL:  cfg.SourceCacheTTL,
	})
	mediaClient := emby.NewClient(emby.Config{
		Client:    newTracedHTTPClient(cfg.MediaServerTimeout),
		UserAgent: cfg.UserAgent,
	})
	tmdbClient := tmdb.NewClient(tmdb.Config{
		APIKey:   cfg.TMDBAPIKey,
		BaseURL:  cfg.TMDBBaseURL,
		Client:   newTracedHTTPClient(10 * time.Second),
		Redis:    redisClient,
		CacheTTL: cfg.TMDBCacheTTL,
	})
	logger.Info("tmdb client initialized", slog.Bool("enabled", tmdbClient.Enabled()))

	var catalogStore localcatalog.Store
	if redisClient != nil {
		redisStore := localcatalog.NewRedisStore(redisClient, "")
		if updatedAt, err := redisStore.UpdatedAt(rootCtx); err == nil && !updatedAt.IsZero() {
			logger.Info("local catalog snapshot found", slog.Time("updatedAt", updatedAt))
		}
		catalogStore = redisStore
	}
	catalogIndex := localcatalog.NewIndex(catalogStore)
	rebuilder := localcatalog.NewRebuilder(localcatalog.RebuilderConfig{
		Settings:   sources,
		Index:      catalogIndex,
		Store:      catalogStore,
		Matcher:    tmdbClient,
		HTTPClient: newTracedHTTPClient(30 * time.Second),
		Logger:     logger,
	})

	enumerator := search.NewEnumerator(search.EnumeratorConfig{
		Sites:         sources,
		MediaServers:  sources,
		Catalog:       sources,
		ContentClient: contentClient,
		MediaClient:   mediaClient,
		CatalogIndex:  catalogIndex,
		Limits: search.AdapterLimits{
			ContentAPITimeout:     cfg.ContentAPITimeout,
			MediaServerTimeout:    cfg.MediaServerTimeout,
			LocalCatalogTimeout:   cfg.LocalCatalogTimeout,
			MaxResultsPerSource:   cfg.MaxResultsPerSource,
			MediaServerPageSize:   cfg.MediaServerPageSize,
			LocalCatalogScanLimit: cfg.LocalCatalogScanLimit,
		},
		Logger: logger,
	})
	searchService := search.NewService(enumerator,
		search.WithConcurrency(cfg.MaxConcurrent),
		search.WithGlobalDeadline(cfg.GlobalTimeout),
		search.WithSettings(sources),
		search.WithSuggestTimeout(cfg.SuggestTimeout),
		search.WithLogger(logger),
	)

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithAuthenticator(auth.NewVerifier(auth.Config{
			Secret:   cfg.Auth.Secret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			Disabled: cfg.Auth.Disabled,
		})),
		apihttp.WithCatalogRefresher(rebuilder),
		apihttp.WithImageHosts(sources.MediaServerHosts),
		apihttp.WithImageUserAgent(cfg.UserAgent),
		apihttp.WithCacheMaxAge(cfg.CacheMaxAge),
		apihttp.WithStreamWriteTimeout(cfg.StreamWriteTimeout),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /search/stream sets per-write deadlines itself.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go rebuilder.Run(rootCtx, cfg.CatalogRefresh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("media search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("globalTimeout", cfg.GlobalTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("media search service stopped")
}

func newTracedHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// buildRedisClient returns nil when Redis is unset or unreachable; callers
// then run with in-process state only.
func buildRedisClient(ctx context.Context, cfg app.Config, logger *slog.Logger) redis.UniversalClient {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, running without redis", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, running without redis", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
