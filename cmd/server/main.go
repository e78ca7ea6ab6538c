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

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	specpkg "github.com/teamup/teamup/api"
	"github.com/teamup/teamup/internal/api"
	"github.com/teamup/teamup/internal/api/handler"
	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/auth"
	"github.com/teamup/teamup/internal/config"
	"github.com/teamup/teamup/internal/database"
	"github.com/teamup/teamup/internal/lifecycle"
	"github.com/teamup/teamup/internal/migrations"
	"github.com/teamup/teamup/internal/notify"
	"github.com/teamup/teamup/internal/team"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	serve := serveCmd()

	cmd := &cobra.Command{
		Use:           "teamup",
		Short:         "Team formation API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.AddCommand(serve, migrateCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			setupLogger(cfg.LogLevel)
			return run(cmd.Context(), cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogger(os.Getenv("LOG_LEVEL"))
			url, err := config.LoadDatabaseURL()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := migrate(cmd.Context(), url); err != nil {
				return err
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}

func migrate(ctx context.Context, databaseURL string) error {
	db, err := migrations.Open(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	return migrations.Apply(ctx, db)
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := migrate(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
	}

	db, err := database.New(ctx, cfg.DatabaseURL, database.WithMaxConns(cfg.DBMaxConns))
	if err != nil {
		return err
	}
	defer db.Close()

	store := lifecycle.NewPostgresStore(db.Pool())
	hub := notify.NewHub(lifecycle.NewManager(store, nil))
	manager := lifecycle.NewManager(store, hub)

	var bus handler.BusChecker
	if cfg.NatsURL != "" {
		nc, err := notify.ConnectNATS(cfg.NatsURL)
		if err != nil {
			slog.Warn("message bus unavailable; notifications stay local to this instance", "error", err)
		} else {
			defer drainNATS(nc)
			bridge, err := notify.NewNATSBridge(nc, hub)
			if err != nil {
				return err
			}
			defer bridge.Close()
			bus = nc
		}
	}

	userRepo := auth.NewRepository(db.Pool())
	accounts := auth.NewService(userRepo, cfg.BcryptCost, cfg.JWTSecret, cfg.TokenTTL)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunSweeper(ctx, limiterSweepInterval, limiterIdleTTL)

	router := api.NewRouter(api.RouterDeps{
		DB:             db,
		Bus:            bus,
		Version:        cfg.Version,
		OpenAPISpec:    specpkg.OpenAPISpec,
		TeamRepo:       team.NewRepository(db.Pool()),
		Manager:        manager,
		Accounts:       accounts,
		Authn:          accounts,
		UserRepo:       userRepo,
		Hub:            hub,
		AllowedOrigins: cfg.WSAllowedOrigins,
		RateLimiter:    limiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting teamup server", "port", cfg.Port, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func drainNATS(nc *nats.Conn) {
	if err := nc.Drain(); err != nil {
		slog.Warn("failed to drain nats connection", "error", err)
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(logHandler))
}
