package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"arcreceipts/internal/backend"
	"arcreceipts/internal/cli"
	"arcreceipts/internal/core"
	apphttp "arcreceipts/internal/http"
	applog "arcreceipts/internal/log"
	"arcreceipts/internal/metrics"
	"arcreceipts/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	m := metrics.New()
	bcfg, err := backend.FromAppConfig(cfg, m)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	res, err := backend.NewFactory(logger).CreateBackend(startCtx, bcfg)
	cancelStart()
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}

	receipts := services.NewReceiptService(services.Config{
		Reader:   res.Reader,
		Source:   res.Source,
		Logs:     res.Chain,
		Contract: cfg.Receipts(),
		Explorer: core.Explorer{BaseURL: cfg.ExplorerURL},
		Lookback: cfg.ScanLookback,
		PageSize: cfg.PageSize,
		Metrics:  m,
	})

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Receipts:           receipts,
		Ready:              res.Ready(cfg.Receipts()),
		Metrics:            m,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 45 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.ErrorContext(shutdownCtx, "Backend cleanup error", "error", err)
		}
	})

	logger.InfoContext(ctx, "Starting arcreceipts server",
		"port", cfg.Port,
		"chain_backend", cfg.ChainBackend,
		"cache_backend", cfg.CacheBackend,
		"contract", cfg.ReceiptsContract,
		"lookback", cfg.ScanLookback)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.ErrorContext(ctx, "Server error", "error", err, "port", cfg.Port)
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.InfoContext(context.Background(), "Server stopped gracefully")
}
