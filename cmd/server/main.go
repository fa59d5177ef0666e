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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "playshelf/catalogsearch/internal/api/http"
	"playshelf/catalogsearch/internal/app"
	"playshelf/catalogsearch/internal/catalog"
	"playshelf/catalogsearch/internal/metrics"
	"playshelf/catalogsearch/internal/providers/igdb"
	"playshelf/catalogsearch/internal/repository/postgres"
	"playshelf/catalogsearch/internal/telemetry"
)

const serviceName = "catalog-search"

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.TraceEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
	})
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
		slog.String("version", version),
		slog.String("environment", cfg.Environment),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Bool("hasDatabase", strings.TrimSpace(cfg.DatabaseURL) != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasIGDBCredentials", cfg.IGDBClientID != "" && cfg.IGDBClientSecret != ""),
		slog.Int("minCachedResults", cfg.MinCachedResults),
		slog.Duration("lockTTL", cfg.LockTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(rootCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database pool init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	initCtx, cancelInit := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancelInit()
	if err := store.EnsureSchema(initCtx); err != nil {
		logger.Error("schema init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redisClient := buildRedisClient(cfg, logger)
	upstream := buildUpstreamClient(cfg, redisClient)

	serviceOpts := []catalog.ServiceOption{
		catalog.WithLogger(logger),
		catalog.WithTimeout(cfg.RequestTimeout),
		catalog.WithPolicy(catalog.CompletenessPolicy{
			MinCachedResults: cfg.MinCachedResults,
			MinimumRatio:     cfg.CompletenessRatio,
			CountFloor:       cfg.CompletenessFloor,
			StaleAfter:       time.Duration(cfg.FranchiseStaleDays) * 24 * time.Hour,
		}),
	}
	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithPinger("postgres", store),
	}
	if redisClient != nil {
		locker := catalog.NewRedisLocker(redisClient, cfg.LockTTL)
		serviceOpts = append(serviceOpts, catalog.WithLocker(locker))
		serverOpts = append(serverOpts, apihttp.WithPinger("redis", locker))
		logger.Info("using redis query locks", slog.Duration("ttl", cfg.LockTTL))
	} else {
		logger.Info("using in-memory query locks")
	}

	searchService := catalog.NewService(store, upstream, serviceOpts...)
	handler := apihttp.NewServer(searchService, serverOpts...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("catalog search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
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
	logger.Info("catalog search service stopped")
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

func buildRedisClient(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, falling back to in-memory locks", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, falling back to in-memory locks", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", opts.Addr))
	return client
}

func buildUpstreamClient(cfg app.Config, redisClient *redis.Client) *igdb.Client {
	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	tokens := igdb.NewClientCredentialsSource(igdb.ClientCredentialsConfig{
		ClientID:     cfg.IGDBClientID,
		ClientSecret: cfg.IGDBClientSecret,
		TokenURL:     cfg.IGDBTokenURL,
		Client:       &http.Client{Timeout: 10 * time.Second},
		Redis:        redisClient,
	})
	return igdb.NewClient(igdb.Config{
		ClientID:          cfg.IGDBClientID,
		BaseURL:           cfg.IGDBBaseURL,
		Client:            httpClient,
		Tokens:            tokens,
		RequestsPerSecond: cfg.IGDBRPS,
		PageSize:          cfg.IGDBPageSize,
	})
}
