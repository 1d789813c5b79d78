package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MeGustas-5427/powermoniter/internal/aggregate"
	"github.com/MeGustas-5427/powermoniter/internal/auth"
	"github.com/MeGustas-5427/powermoniter/internal/config"
	"github.com/MeGustas-5427/powermoniter/internal/httpapi"
	"github.com/MeGustas-5427/powermoniter/internal/ingress"
	"github.com/MeGustas-5427/powermoniter/internal/status"
	"github.com/MeGustas-5427/powermoniter/internal/store"
	"github.com/MeGustas-5427/powermoniter/internal/subscription"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		slog.Error("missing required env", "key", "JWT_SECRET")
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.Postgres.User) == "" {
		slog.Error("missing required env", "key", "POSTGRES_USER")
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.Postgres.DBName) == "" {
		slog.Error("missing required env", "key", "POSTGRES_DB")
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.Postgres.Host) == "" {
		slog.Error("missing required env", "key", "POSTGRES_HOST")
		os.Exit(1)
	}

	db, err := store.OpenPostgres(cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.SSLMode)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &ingress.Sink{Store: repo}
	manager := subscription.NewManager(repo, &ingress.Factory{Sink: sink})
	if err := manager.ReconcileAll(ctx); err != nil {
		slog.Error("initial reconciliation failed", "error", err)
		os.Exit(1)
	}

	authSvc := auth.NewService(repo, cfg.JWTSecret)
	server := httpapi.NewServer(repo, authSvc, manager, aggregate.NewEngine(repo), status.NewService(repo), ingress.Publisher{})
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: server.Router(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("powermoniter listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
	slog.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	manager.Shutdown()
}

func setupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}
