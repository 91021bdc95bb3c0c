package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banking/fraud-dashboard/internal/analyzer"
	"github.com/banking/fraud-dashboard/internal/api"
	"github.com/banking/fraud-dashboard/internal/config"
	"github.com/banking/fraud-dashboard/internal/crypto"
	"github.com/banking/fraud-dashboard/internal/events"
	"github.com/banking/fraud-dashboard/internal/metrics"
	"github.com/banking/fraud-dashboard/internal/report"
	"github.com/banking/fraud-dashboard/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Info("Starting Fraud Report Dashboard...")

	// 3. Export signing
	signer, err := crypto.NewExportSigner(cfg.Signing.ExportHMACSecret)
	if err != nil {
		sugar.Fatalf("Failed to initialize export signer: %v", err)
	}
	if !signer.Enabled() {
		sugar.Warn("Export signing DISABLED - no HMAC secret configured")
	}

	// 4. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 5. Analyzer client
	analyzerClient := analyzer.NewClient(cfg.Analyzer)

	// 6. Kafka Producer (optional)
	opts := service.Options{
		Report:     cfg.Report.Options(),
		SessionTTL: cfg.Session.TTL,
		Signer:     signer,
		Metrics:    m,
	}
	if cfg.Kafka.Enabled {
		producer, err := events.NewReportProducer(cfg.Kafka, logger)
		if err != nil {
			sugar.Warnf("Failed to create Kafka producer: %v (report events will not be published)", err)
		} else {
			defer producer.Close()
			opts.Publisher = producer
		}
	}

	// 7. Services
	reportService := service.NewReportService(analyzerClient, opts, logger)
	defer reportService.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sugar.Infof("Starting session janitor (ttl=%s, every %s)", cfg.Session.TTL, cfg.Session.SweepInterval)
		reportService.StartJanitor(ctx, cfg.Session.SweepInterval)
	}()

	// 8. API Server
	handler := api.NewReportHandler(reportService, report.NewFormatter(cfg.Report.Locale))
	e := api.NewRouter(handler, api.RouterOptions{
		MaxUploadSize:  cfg.Server.MaxUploadSize,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       reg,
		AnalyzerState:  analyzerClient.State,
		AccessLog:      true,
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	// Start Server
	go func() {
		sugar.Infof("Listening on %s, analyzer at %s", cfg.Server.Addr(), cfg.Analyzer.BaseURL)
		if err := e.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("Shutting down the server: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down service...")
	cancel()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("Server shutdown failed: %v", err)
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level

	return zcfg.Build()
}
