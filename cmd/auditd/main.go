// Command auditd runs the audit service: the stream consumer that persists
// audit envelopes and the HTTP read API over the audit trail.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/meridianfi/ledger/internal/auditserver"
	"github.com/meridianfi/ledger/internal/auditstore"
	"github.com/meridianfi/ledger/internal/config"
	"github.com/meridianfi/ledger/internal/consumer"
	"github.com/meridianfi/ledger/internal/stream"
	"github.com/meridianfi/ledger/internal/telemetry"
	auditmigrations "github.com/meridianfi/ledger/migrations/audit"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("LEDGER_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load("audit-service")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("audit service starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := auditstore.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("auditstore: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, auditmigrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	client, err := stream.Connect(cfg.NATSURL, cfg.ReconnectWait, logger)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	defer client.Close()

	if err := client.EnsureStream(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	// The consumer stops fetching when ctx is cancelled; in-flight envelopes
	// it never acked are redelivered on the next start.
	cons := consumer.New(client, db, logger)
	if err := cons.Start(ctx); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}

	srv := auditserver.New(auditserver.Config{
		DB:                  db,
		Stream:              client,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		ServiceName:         cfg.ServiceName,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		AllowedOrigins:      cfg.AllowedOrigins,
		Production:          cfg.Production(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("audit service shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	if err := client.Drain(); err != nil {
		slog.Error("stream drain error", "error", err)
	}

	slog.Info("audit service stopped")
	return nil
}
