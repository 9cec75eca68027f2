// Command ledgerd runs the transaction service: the user-facing HTTP API
// plus the saga side of the audit stream.
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

	"github.com/meridianfi/ledger/internal/auth"
	"github.com/meridianfi/ledger/internal/config"
	"github.com/meridianfi/ledger/internal/ratelimit"
	"github.com/meridianfi/ledger/internal/registry"
	"github.com/meridianfi/ledger/internal/saga"
	"github.com/meridianfi/ledger/internal/stream"
	"github.com/meridianfi/ledger/internal/telemetry"
	"github.com/meridianfi/ledger/internal/txserver"
	"github.com/meridianfi/ledger/internal/txstore"
	ledgermigrations "github.com/meridianfi/ledger/migrations/ledger"
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

	cfg, err := config.Load("transaction-service")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateJWT(); err != nil {
		return err
	}
	if cfg.WriteTimeout <= cfg.AuditAckTimeout {
		// A saga waits up to AuditAckTimeout inside the handler; the write
		// timeout must leave room for that or every slow saga becomes a
		// truncated response.
		logger.Warn("LEDGER_WRITE_TIMEOUT should exceed LEDGER_AUDIT_ACK_TIMEOUT",
			"write_timeout", cfg.WriteTimeout, "ack_timeout", cfg.AuditAckTimeout)
	}

	slog.Info("transaction service starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := txstore.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("txstore: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, ledgermigrations.FS); err != nil {
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

	// Ack registry must be listening before the first saga publishes.
	reg := registry.New(client, logger)
	if err := reg.Start(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiresIn)
	if err != nil {
		return err
	}

	coord := saga.New(saga.NewStore(db), client, reg, saga.StoreNotFound,
		cfg.ServiceName, cfg.AuditAckTimeout, logger)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		mem := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = mem.Close() }()
		limiter = mem
		logger.Info("rate limiting enabled", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	}

	srv := txserver.New(txserver.Config{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Saga:                coord,
		Stream:              client,
		Limiter:             limiter,
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

	// Graceful shutdown. Stop accepting HTTP first so no new sagas start,
	// then fail any still-pending sagas, then drain the broker connection.
	slog.Info("transaction service shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	reg.Close()

	if err := client.Drain(); err != nil {
		slog.Error("stream drain error", "error", err)
	}

	slog.Info("transaction service stopped")
	return nil
}
