// Package cli holds the start-up steps shared by the arcreceipts,
// receipts-worker and arcpay binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arcreceipts/internal/config"
	applog "arcreceipts/internal/log"

	"github.com/joho/godotenv"
)

// SetupLogger reads LOG_LEVEL and LOG_FORMAT directly from the environment,
// since it runs before the configuration is validated. An unknown level
// logs a warning and falls back to info; any format but "json" is text.
func SetupLogger(component string) *applog.Logger {
	level, levelErr := applog.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := applog.New(applog.Config{
		Level:     level,
		Format:    os.Getenv("LOG_FORMAT"),
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	if levelErr != nil {
		logger.Warn("Falling back to info level", "error", levelErr)
	}
	return logger
}

// LoadEnvFile reads a .env file when one exists.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig exits the process when the environment does not
// describe a valid configuration.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		Fatal(logger, "Configuration validation failed", err)
	}
	return cfg
}

// GracefulShutdown returns a context cancelled by SIGINT or SIGTERM. Once
// it is cancelled, cleanup runs with at most timeout to finish, and done is
// closed afterwards.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-ctx.Done()
		stop()
		logger.Info("Shutdown signal received", "timeout", timeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the shutdown started by GracefulShutdown
// has finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

func Fatal(logger *applog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
