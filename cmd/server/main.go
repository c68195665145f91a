// Agro Solar - web client server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/agro-solar-web/internal/api"
	"github.com/ashureev/agro-solar-web/internal/auth"
	"github.com/ashureev/agro-solar-web/internal/config"
	"github.com/ashureev/agro-solar-web/internal/dashboard"
	"github.com/ashureev/agro-solar-web/internal/device"
	"github.com/ashureev/agro-solar-web/internal/store"
	"github.com/ashureev/agro-solar-web/internal/worker"
	"github.com/ashureev/agro-solar-web/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.BackendURL)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := device.NewRegistry(ctx, device.Config{
		BackendURL: cfg.BackendURL,
		Auth: auth.Config{
			LoginPath:   cfg.LoginPath,
			LandingPath: cfg.LandingPath,
			GitHub: auth.GitHubConfig{
				ClientID:    cfg.OAuth.GitHubClientID,
				RedirectURL: cfg.OAuth.GitHubRedirectURL,
			},
		},
		UploadMaxBytes:    cfg.UploadMaxBytes,
		AuthRatePerMinute: cfg.AuthRatePerMinute,
		Logger:            logger,
	})

	hub := dashboard.NewHub()
	allowedOrigin := cfg.AllowedOrigins()[0]
	feed := dashboard.NewFeedHandler(hub, cfg.MetricsInterval, allowedOrigin, cfg.IsDevelopment(),
		dashboard.WithActivity(registry.Touch))

	base := api.NewHandler(registry, repo, hub, cfg, logger)
	router := api.NewRouter(base, feed, web.SPAHandler())

	// No WriteTimeout: the metrics websocket is long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	srv.RegisterOnShutdown(hub.CloseAll)

	sweeper := worker.NewSweeper(registry, repo, hub.CloseDevice, worker.Config{
		IdleTTL:   cfg.ClientIdleTTL,
		Retention: cfg.AnalysisRetention,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		registry.Wait()
		return nil
	})

	return g.Wait()
}
