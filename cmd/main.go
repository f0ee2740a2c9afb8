package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/influence/internal/adapters/avatar"
	"github.com/okian/influence/internal/adapters/http/api"
	"github.com/okian/influence/internal/adapters/http/site"
	"github.com/okian/influence/internal/adapters/http/swagger"
	"github.com/okian/influence/internal/adapters/twitter"
	service "github.com/okian/influence/internal/app"
	"github.com/okian/influence/internal/config"
	"github.com/okian/influence/internal/domain/badge"
	"github.com/okian/influence/pkg/logger"
	"github.com/okian/influence/pkg/metrics"
	"github.com/okian/influence/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Custom system metrics replace the default Go collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithFormat(os.Stdout, cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logger.String("endpoint", cfg.OTelEndpoint), logger.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error(flushCtx, "trace flush failed", logger.Error(err))
		}
	}()

	configureMetrics(cfg)
	svc := newService(ctx, cfg, log)

	handler, err := newHandler(ctx, svc, log)
	if err != nil {
		log.Error(ctx, "failed to build handler", logger.Error(err))
		return
	}

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
}

// configureMetrics applies the configured names, labels and buckets to the
// global metrics manager. It must run before the handler captures the registry.
func configureMetrics(cfg *config.Config) {
	metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.MetricsLatencyBucketsMS),
		metrics.WithConstLabels(cfg.MetricsConstLabels),
	)
}

// newService wires the upstream client, avatar fetcher and badge renderer
// from cfg.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) *service.Service {
	if cfg.BearerToken == "" {
		log.Warn(ctx, "no bearer token configured; upstream lookups will be rejected")
	}

	fonts := badge.LoadFonts(cfg.FontPath, cfg.FontSizeLarge, cfg.FontSizeSmall)
	if reason := fonts.FallbackReason(); reason != nil {
		log.Warn(ctx, "badge font fallback",
			logger.String("font_path", cfg.FontPath),
			logger.String("source", string(fonts.Source())),
			logger.Error(reason))
	}

	gateway := twitter.NewClient(
		twitter.WithBaseURL(cfg.APIBaseURL),
		twitter.WithBearerToken(cfg.BearerToken),
		twitter.WithKeywords(cfg.Keywords...),
		twitter.WithTimeout(cfg.UpstreamTimeout()),
		twitter.WithLogger(log.Named("twitter")),
	)
	fetcher := avatar.NewFetcher(
		avatar.WithTimeout(cfg.AvatarTimeout()),
		avatar.WithMaxBytes(cfg.AvatarMaxBytes),
		avatar.WithLogger(log.Named("avatar")),
	)
	renderer := badge.NewRenderer(fonts,
		badge.WithTitle(cfg.BadgeTitle),
		badge.WithLogger(log.Named("badge")),
	)

	return service.New(
		service.WithGateway(gateway),
		service.WithAvatarFetcher(fetcher),
		service.WithRenderer(renderer),
		service.WithDefaultAvatarURL(cfg.DefaultAvatarURL),
		service.WithAvatarLookup(cfg.BadgeLookupAvatar),
		service.WithLogger(log),
	)
}

// newHandler mounts the API, the docs and the site on one mux behind the
// request id and compression middleware.
func newHandler(ctx context.Context, svc *service.Service, log logger.Logger) (http.Handler, error) {
	mux := http.NewServeMux()
	api.NewServer(svc, svc, api.WithLogger(log.Named("api"))).Register(ctx, mux)
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)

	compressed, err := api.CompressMiddleware(mux)
	if err != nil {
		return nil, err
	}
	return api.RequestIDMiddleware(compressed), nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
