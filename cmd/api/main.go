package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"stegapi/internal/config"
	"stegapi/internal/database"
	"stegapi/internal/database/migration"
	"stegapi/internal/logger"
	"stegapi/internal/otel"
	"stegapi/internal/repository/postgres"
	"stegapi/internal/service"
	"stegapi/internal/storage"
)

// @title Stego API
// @version 1.0
// @description Hide password-protected text in images with optional time and location locks.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log, err := logger.New(logger.Config{
		ServiceName: otel.DefaultServiceName,
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing_shutdown_failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := service.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register domain metrics: %w", err)
	}

	opts := []service.Option{
		service.WithLogger(log.With(zap.String("component", "service"))),
		service.WithMetrics(metrics),
	}

	// Audit trail is optional: no DB_HOST, no database.
	var db *sql.DB
	if cfg.Database.Enabled() {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		opts = append(opts, service.WithOperationRepository(postgres.NewOperationPostgres(db)))
	} else {
		log.Info("audit_trail_disabled", zap.String("reason", "DB_HOST not set"))
	}

	// Archive is optional: no MINIO_ENDPOINT, no archive.
	if cfg.MinIO.Enabled() {
		store, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return fmt.Errorf("initialize object storage: %w", err)
		}
		opts = append(opts, service.WithArchive(store, time.Duration(cfg.MinIO.URLExpirySeconds)*time.Second))
	} else {
		log.Info("archive_disabled", zap.String("reason", "MINIO_ENDPOINT not set"))
	}

	svc, err := service.NewStegoService(cfg.Stego, opts...)
	if err != nil {
		return fmt.Errorf("build stego service: %w", err)
	}

	app, err := newApp(cfg, log, db, svc, reg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server_starting", zap.String("addr", addr), zap.String("app_host", cfg.AppHost))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("server_stopping")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(sctx)
}
