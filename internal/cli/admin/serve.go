package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/database"
	"github.com/cloo-solutions/tutorcore/internal/jobs"
	"github.com/cloo-solutions/tutorcore/internal/server"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the embedding worker and ops server",
		Long:  "Run migrations, start the background embedding worker and serve /health, /ready and /metrics",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides TUTORCORE_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	if cfg.HasSentry() {
		// Full sampling in development, 10% elsewhere.
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		}, logger)
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		source, _ := cmd.Flags().GetString("migrations")
		if _, err := database.Migrate(cfg.DatabaseURL, source, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now().UTC()
	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{LoadIndex: true})
	if err != nil {
		return err
	}
	defer rt.Close()
	logger.Info("connected to database", zap.String("search_backend", cfg.SearchBackend))

	var worker *jobs.Worker
	if rt.embedding != nil {
		processor := jobs.NewEmbeddingWorker(rt.jobs, rt.embedding, jobs.EmbeddingWorkerConfig{
			Concurrency: cfg.WorkerConcurrency,
		}, logger)
		if err := processor.Recover(ctx, startedAt); err != nil {
			logger.Warn("job recovery failed", zap.Error(err))
		}
		worker = jobs.NewWorker(processor, cfg.WorkerPollInterval, logger)
		go worker.Start(ctx)
		logger.Info("embedding worker started",
			zap.Int("concurrency", cfg.WorkerConcurrency),
			zap.Duration("poll_interval", cfg.WorkerPollInterval),
		)
	}

	routerCfg := server.RouterConfig{
		Logger:  logger,
		DB:      rt.pool,
		Backend: cfg.SearchBackend,
	}
	if rt.index != nil {
		routerCfg.Index = rt.index
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting ops server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	logger.Info("shutting down")

	if worker != nil {
		worker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// MigrateCmd applies pending schema migrations and exits.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			source, _ := cmd.Flags().GetString("migrations")
			result, err := database.Migrate(cfg.DatabaseURL, source, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", result.Version)
			return nil
		},
	}
	cmd.Flags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")
	return cmd
}
