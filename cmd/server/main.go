// Package main provides the satellite image API HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
	"go.ngs.io/satellite-image-api/internal/adapter/imagery/earthengine"
	"go.ngs.io/satellite-image-api/internal/adapter/imagery/memory"
	"go.ngs.io/satellite-image-api/internal/cache"
	"go.ngs.io/satellite-image-api/internal/config"
	httpHandler "go.ngs.io/satellite-image-api/internal/http"
	"go.ngs.io/satellite-image-api/internal/observability"
	"go.ngs.io/satellite-image-api/internal/usecase"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

func main() {
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("satellite-image-api version %s\n", version)
		return
	}

	config.ConfigureLogging(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise tracing")
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	catalog, err := cfg.Catalog()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load catalog")
	}
	for i, e := range catalog {
		log.Info().
			Int("priority", i).
			Str("entry", e.Name).
			Str("collection", e.Collection).
			Str("cloud_filter", fmt.Sprintf("%s < %g", e.CloudAttribute, e.CloudThreshold)).
			Msg("Catalog entry")
	}

	service, pixels, err := newImageryService(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to initialise imagery backend")
	}

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	selectionCache, closeCache := newSelectionCache(ctx, cfg)
	defer closeCache()

	selector := usecase.NewSelector(service,
		usecase.WithCache(selectionCache),
		usecase.WithRecorder(metrics),
		usecase.WithRemoteTimeout(cfg.RemoteTimeout),
	)
	imageryUC := usecase.NewImageryUseCase(service, selector, catalog)

	router := httpHandler.SetupRouter(imageryUC, pixels, metrics)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("backend", cfg.Backend).
			Dur("remote_timeout", cfg.RemoteTimeout).
			Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	stop()

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server")
	}
	log.Info().Msg("Server stopped")
}

// newImageryService builds the configured backend. pixels is non-nil only
// when this process renders thumbnails itself.
func newImageryService(ctx context.Context, cfg *config.Config) (imagery.Service, imagery.PixelServer, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		fixtures, err := memory.LoadFixtures(cfg.FixturesPath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Int("fixtures", len(fixtures)).Str("path", cfg.FixturesPath).Msg("Loaded image fixtures")
		svc := memory.New(cfg.PublicURL, fixtures)
		return svc, svc, nil
	default:
		httpClient, project, err := cfg.EarthEngineClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		client, err := earthengine.New(httpClient, earthengine.Config{
			BaseURL: cfg.EEBaseURL,
			Project: project,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("project", project).Msg("Earth Engine client ready")
		return client, nil, nil
	}
}

// newSelectionCache connects to Redis when REDIS_ADDR is set. An unreachable
// Redis disables caching rather than failing startup.
func newSelectionCache(ctx context.Context, cfg *config.Config) (cache.SelectionCache, func()) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("Selection cache disabled (REDIS_ADDR not set)")
		return cache.Noop{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	closeClient := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable, selection cache disabled")
		closeClient()
		return cache.Noop{}, func() {}
	}

	log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.CacheTTL).Msg("Selection cache enabled")
	return cache.NewRedis(client, cfg.CacheTTL), closeClient
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("Satellite Image API Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  satellite-image-api [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  IMAGERY_BACKEND         earthengine or memory (default: earthengine)")
	fmt.Println("  EE_PROJECT              Earth Engine project (default: project_id of the service account key)")
	fmt.Println("  EE_BASE_URL             Earth Engine API base URL (default: https://earthengine.googleapis.com)")
	fmt.Println("  SERVICE_ACCOUNT_JSON    Service account key JSON (takes precedence over SERVICE_ACCOUNT_FILE)")
	fmt.Println("  SERVICE_ACCOUNT_FILE    Service account key file (default: service-key.json)")
	fmt.Println("  FIXTURES_PATH           Image fixtures CSV (required for the memory backend)")
	fmt.Println("  PUBLIC_URL              Base URL for thumbnails served by the memory backend")
	fmt.Println("  CATALOG_PATH            JSON catalog replacing the built-in Sentinel-2/Landsat 9 catalog")
	fmt.Println("  REMOTE_TIMEOUT          Timeout per imagery service call (default: 30s)")
	fmt.Println("  REDIS_ADDR              Redis address for the selection cache (optional)")
	fmt.Println("  REDIS_PASSWORD          Redis password")
	fmt.Println("  REDIS_DB                Redis database (default: 0)")
	fmt.Println("  CACHE_TTL               Selection cache TTL (default: 1h)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  LOG_LEVEL               debug, info, warn or error (default: info)")
	fmt.Println("  LOG_FORMAT              json or console (default: json)")
	fmt.Println("  TRACING_ENABLED         Enable OpenTelemetry tracing (default: false)")
	fmt.Println("  TRACING_EXPORTER        stdout or otlp (default: stdout)")
	fmt.Println("  OTLP_ENDPOINT           OTLP gRPC endpoint (default: localhost:4317)")
	fmt.Println("  TRACING_SAMPLE_RATIO    Trace sampling ratio 0..1 (default: 1)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start server against Earth Engine")
	fmt.Println("  SERVICE_ACCOUNT_FILE=./service-key.json satellite-image-api")
	fmt.Println()
	fmt.Println("  # Start server with local fixtures")
	fmt.Println("  IMAGERY_BACKEND=memory FIXTURES_PATH=./testdata/fixtures.csv satellite-image-api")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  POST /get_satellite_image/     Render a thumbnail for a point or polygon")
	fmt.Println("  GET  /v1/catalog               List image source catalog entries")
	fmt.Println("  GET  /v1/thumbnails/:name      Thumbnail pixels (memory backend only)")
	fmt.Println("  GET  /health                   Health check")
	fmt.Println("  GET  /metrics                  Prometheus metrics")
	fmt.Println()
}
