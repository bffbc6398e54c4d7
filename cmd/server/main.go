/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize the store (SQLite file, or in-memory when -db="")
  3. Initialize attachment storage (S3 when S3_ENDPOINT is set)
  4. Build leave and overtime services
  5. Start the overtime resync scheduler
  6. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_PORT)
  -db      SQLite database path (overrides DB_PATH). "" selects the
           in-memory store, ":memory:" an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the resync scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v3"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/overtime"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/objstore"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	port := flag.Int("port", cfg.App.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path (empty for in-memory store)")
	flag.Parse()

	logFormat := httplog.SchemaECS.Concise(false)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.SlogLevel(),
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "leave-engine"),
	)
	slog.SetDefault(logger)

	if err := run(cfg, *port, *dbPath, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, port int, dbPath string, logger *slog.Logger) error {
	ctx := context.Background()

	store, closeStore, err := openStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()

	opts := []leave.Option{leave.WithLogger(logger)}
	if cfg.S3.Enabled() {
		bucket, err := objstore.New(objstore.Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			PublicURL:       cfg.S3.PublicURL,
		})
		if err != nil {
			return err
		}
		if err := bucket.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure bucket %s: %w", cfg.S3.Bucket, err)
		}
		opts = append(opts, leave.WithAttachments(leave.NewAttachments(bucket)))
		logger.Info("attachment storage enabled", slog.String("bucket", cfg.S3.Bucket))
	}

	requests := leave.NewRequestService(store, opts...)
	if err := requests.LoadCategories(ctx); err != nil {
		logger.Warn("failed to load categories, using defaults", slog.Any("error", err))
	}

	ledger := overtime.NewLedger(
		overtime.WithBasePolicy(cfg.Settlement.BasePolicy),
		overtime.WithReauthorize(cfg.Settlement.Reauthorize),
	)
	settlements := overtime.NewService(store, ledger, logger)

	scheduler := overtime.NewResyncScheduler(settlements, logger)
	scheduler.Interval = cfg.Settlement.ResyncInterval
	scheduler.Enabled = cfg.Settlement.ResyncInterval > 0
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, requests, settlements, logger)
	handler.Scheduler = scheduler
	router := api.NewRouter(handler, logger, cfg.App.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.Int("port", port),
			slog.String("db", dbPath),
			slog.String("base_policy", string(ledger.BasePolicy())),
			slog.String("reauthorize", string(ledger.ReauthorizePolicy())),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(dbPath string) (api.Store, func(), error) {
	if dbPath == "" {
		return memory.New(), func() {}, nil
	}
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}
