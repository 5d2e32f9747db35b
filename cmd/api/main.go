package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/crm-voice-sync/cmd/mainconfig"
	"github.com/wolfman30/crm-voice-sync/internal/api/router"
	"github.com/wolfman30/crm-voice-sync/internal/app/bootstrap"
	"github.com/wolfman30/crm-voice-sync/internal/archive"
	appconfig "github.com/wolfman30/crm-voice-sync/internal/config"
	"github.com/wolfman30/crm-voice-sync/internal/http/handlers"
	observemetrics "github.com/wolfman30/crm-voice-sync/internal/observability/metrics"
	"github.com/wolfman30/crm-voice-sync/internal/signature"
	"github.com/wolfman30/crm-voice-sync/internal/tenancy"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

func main() {
	// .env is optional; real environments inject variables directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting crm-voice-sync API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WebhookTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	out := &app{}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		out.closers = append(out.closers, func() { _ = redisClient.Close() })
	}

	stores, err := bootstrap.BuildStores(ctx, cfg, redisClient, logger)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.closers = append(out.closers, stores.Close)

	archiveStore, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		out.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	callMetrics := observemetrics.NewCallMetrics(registry)

	provider := bootstrap.BuildRetellClient(cfg, callMetrics, logger)
	notifier := bootstrap.BuildFollowUpNotifier(cfg, redisClient, logger)
	synchronizer := bootstrap.BuildSynchronizer(cfg, stores, provider, notifier, logger)

	verifier := signature.NewVerifier(cfg.CallWebhookSecret)
	if !verifier.Enabled() {
		logger.Warn("CALL_WEBHOOK_SECRET not set, call webhooks are accepted unsigned")
	}

	webhooks := handlers.NewCallWebhookHandler(handlers.CallWebhookConfig{
		Verifier:     verifier,
		Synchronizer: synchronizer,
		Tenants:      tenancy.NewResolver(stores.Tenants),
		Calls:        stores.Calls,
		Provider:     provider,
		Activities:   stores.Activities,
		Archive:      archiveStore,
		Metrics:      callMetrics,
		Logger:       logger,
	})

	var operator *handlers.OperatorCallsHandler
	if cfg.OperatorJWTSecret != "" {
		operator = handlers.NewOperatorCallsHandler(stores.Calls, stores.Activities, logger)
	} else {
		logger.Info("OPERATOR_JWT_SECRET not set, operator API disabled")
	}

	out.handler = router.New(&router.Config{
		Logger:         logger,
		CallWebhooks:   webhooks,
		OperatorCalls:  operator,
		OperatorSecret: cfg.OperatorJWTSecret,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		RequestTimeout: cfg.WebhookTimeout,
	})
	return out, nil
}

func buildArchive(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*archive.Store, error) {
	if cfg.CallArchiveBucket == "" {
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return bootstrap.BuildArchive(mainconfig.NewS3Client(awsCfg, cfg), cfg, logger), nil
}
