package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pribylovaa/go-news-poster/internal/composer"
	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/fetcher"
	"github.com/pribylovaa/go-news-poster/internal/history"
	"github.com/pribylovaa/go-news-poster/internal/publisher"
	"github.com/pribylovaa/go-news-poster/internal/ratelimit"
	"github.com/pribylovaa/go-news-poster/internal/scheduler"
	"github.com/pribylovaa/go-news-poster/internal/scorer"
	"github.com/pribylovaa/go-news-poster/internal/service"
	"github.com/pribylovaa/go-news-poster/internal/storage/snapshot"

	logctx "github.com/pribylovaa/go-news-poster/internal/pkg/log"

	"google.golang.org/grpc"
	health "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// jobHealth — имя задачи health-пробы.
const jobHealth = "health_probe"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting poster-service", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rootCtx = logctx.Into(rootCtx, log)

	store := snapshot.New(cfg.History.Path, cfg.History.StatusPath)

	hist, err := history.New(rootCtx, cfg.History, store)
	if err != nil {
		log.Error("history_load_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("history_ready")

	svc := service.New(
		*cfg,
		fetcher.New(nil, cfg.Fetcher),
		scorer.New(cfg.Scorer),
		hist,
		composer.New(cfg.Composer),
		ratelimit.New(cfg.RateLimit),
		publisher.New(nil, cfg.Publisher),
		store,
	)
	log.Info("service_initialized")

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	if cfg.Env == envLocal || cfg.Env == envDev {
		reflection.Register(grpcServer)
	}

	runner := scheduler.NewRunner()
	if err := svc.RegisterJobs(runner); err != nil {
		log.Error("jobs_register_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	if err := runner.Add(jobHealth, cfg.Jobs.Health, func(ctx context.Context) {
		if svc.Health() == ratelimit.StatusUnhealthy {
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}); err != nil {
		log.Error("jobs_register_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}

	runner.Start(rootCtx)
	log.Info("scheduler_started")

	addr := cfg.GRPC.Addr()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("grpc_listen_failed",
			slog.String("addr", addr),
			slog.String("err", err.Error()),
		)
		rootCancel()
		os.Exit(1)
	}
	log.Info("grpc_listen_start", slog.String("addr", addr))

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	serveErrCh := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("grpc_serve_failed", slog.String("err", err.Error()))
		}
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	rootCancel()

	// Планировщик прекращает новые запуски по отмене контекста;
	// активные запуски дорабатывают, ограниченные своими таймаутами.
	runner.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(logctx.Into(context.Background(), log), 10*time.Second)
	if err := hist.Flush(shutdownCtx); err != nil {
		log.Error("final_flush_failed", slog.String("err", err.Error()))
	}
	shutdownCancel()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc_stopped")
	case <-time.After(10 * time.Second):
		log.Warn("grpc_force_stop")
		grpcServer.Stop()
	}

	log.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
