package main

import (
	"context"
	"errors"
	"time"

	"arcreceipts/internal/amqp"
	"arcreceipts/internal/backend"
	"arcreceipts/internal/cli"
	"arcreceipts/internal/config"
	"arcreceipts/internal/core"
	applog "arcreceipts/internal/log"
	"arcreceipts/internal/metrics"
	"arcreceipts/internal/sheets"
	gsheet "arcreceipts/internal/sheets/google"
	memsheet "arcreceipts/internal/sheets/memory"
	"arcreceipts/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.InfoContext(context.Background(), "Starting receipts-worker")

	m := metrics.New()
	bcfg, err := backend.FromAppConfig(cfg, m)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	res, err := backend.NewFactory(logger).CreateBackend(startCtx, bcfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer res.Cleanup()

	ledger, err := newLedger(startCtx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize receipt ledger", err)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()
	logger.InfoContext(startCtx, "Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

	watcher := worker.NewHeadWatcher(res.Reader, res.Source, cfg.Receipts(), amqpClient, cfg.PollInterval, cfg.WatchStartID, m)
	exporter := worker.NewSheetExporter(ledger, res.Source, m)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if cfg.BackfillLimit > 0 {
		n, err := exporter.Backfill(ctx, res.Reader, cfg.Receipts(), cfg.BackfillLimit)
		if err != nil {
			// Don't exit - the consumer still handles new events
			logger.ErrorContext(ctx, "Startup backfill failed", "error", err)
		} else {
			logger.InfoContext(ctx, "Startup backfill complete", "appended", n)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		return amqpClient.ConsumeReceiptCreated(gctx, exporter.HandleReceiptCreated)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		amqpClient.Close()
		_ = res.Cleanup()
		cli.Fatal(logger, "Worker stopped with error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.InfoContext(context.Background(), "Worker shutdown complete", "cursor", watcher.Cursor())
}

// newLedger returns the Google Sheets ledger when a spreadsheet is
// configured and an in-process ledger otherwise.
func newLedger(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.Ledger, error) {
	explorer := core.Explorer{BaseURL: cfg.ExplorerURL}
	if !cfg.SheetsConfigured() {
		logger.WarnContext(ctx, "Google Sheets disabled - exported rows are kept in memory only")
		return memsheet.New(explorer), nil
	}

	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		Explorer:        explorer,
	})
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)
	return client, nil
}
