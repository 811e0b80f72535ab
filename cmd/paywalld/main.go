package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"paywall/core/events"
	"paywall/crypto"
	"paywall/native/paywall"
	"paywall/observability"
	"paywall/observability/logging"
	telemetry "paywall/observability/otel"
	"paywall/services/paywalld/config"
	"paywall/services/paywalld/index"
	"paywall/services/paywalld/metadata"
	"paywall/services/paywalld/middleware"
	"paywall/services/paywalld/server"
	"paywall/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to paywalld configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.Setup("paywalld", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("paywalld exited", "error", err)
		_ = logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if !cfg.Auth.Enabled {
		if !strings.EqualFold(cfg.Environment, "dev") {
			return errors.New("authentication may only be disabled in the dev environment")
		}
		logger.Warn("authentication disabled; callers are taken from the " + middleware.CallerHeader + " header")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "paywalld",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	admins, err := cfg.AdminAddresses()
	if err != nil {
		return err
	}
	rent, err := cfg.RentPolicy()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewPaywallMetrics(registry)

	bus := events.NewBus()
	engine := paywall.NewEngine(db)
	engine.SetAdmins(admins)
	engine.SetRentPolicy(rent)
	engine.SetEmitter(events.Multi{bus, metrics})
	engine.SetObserver(metrics)
	if policy := engine.RentPolicy(); policy.Enabled() {
		logger.Info("rent backing enabled",
			"per_byte", policy.PerByte,
			"currency", crypto.FormatCurrency(policy.Currency),
			"reserve", crypto.FormatAccount(policy.Reserve))
	}

	indexDB, err := index.Open(cfg.Index.DSN)
	if err != nil {
		return err
	}
	if sqlDB, err := indexDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	indexer := index.NewIndexer(indexDB, logger)
	indexSub := bus.Subscribe(1024)
	go indexer.Run(ctx, indexSub)
	go reportDropped(ctx, indexSub, metrics)

	worker := metadata.NewWorker(engine, metadata.LogRegistrar{Logger: logger}, metadata.Config{
		Interval: cfg.Metadata.Interval,
		Batch:    cfg.Metadata.Batch,
	}, logger, metrics)
	go worker.Run(ctx)

	rateLimits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for group, limit := range cfg.RateLimits {
		rateLimits[group] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	router, err := server.New(server.Config{
		Engine: engine,
		Index:  indexer,
		Bus:    bus,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger),
		RateLimiter:   middleware.NewRateLimiter(rateLimits),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: true}, registry, logger),
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		},
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	handler := http.Handler(router)
	if cfg.Telemetry.Traces {
		handler = otelhttp.NewHandler(router, "paywalld")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("paywalld listening", "address", listener.Addr().String(), "storage", cfg.Storage.Backend)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

// reportDropped forwards the indexer subscription's drop counter to metrics.
func reportDropped(ctx context.Context, sub *events.Subscription, metrics *observability.PaywallMetrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	var reported uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := sub.Dropped(); dropped > reported {
				metrics.RecordDropped(dropped - reported)
				reported = dropped
			}
		}
	}
}
