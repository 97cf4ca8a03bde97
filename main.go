// entry point of the application
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"bulkdl/internal/batch"
	"bulkdl/internal/config"
	"bulkdl/internal/depmanager"
	"bulkdl/internal/downloader"
	httprouter "bulkdl/internal/infrastructure/delivery/http"
	"bulkdl/internal/media"
	"bulkdl/internal/observability"
	"bulkdl/internal/proxymgr"
	"bulkdl/internal/service"
	"bulkdl/internal/session"
	"bulkdl/internal/storage"
	"bulkdl/internal/subprocess"
	"bulkdl/internal/transport/telegram"
	httpserver "bulkdl/pkg/http/server"
	"bulkdl/pkg/logger"

	"github.com/joho/godotenv"
)

const goroutineSampleInterval = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		slog.Error("config new", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Options{
		AddSource: true,
		Level:     cfg.App.LogLevel,
		Format:    cfg.App.LogFormat,
	})
	if err != nil {
		log.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	metrics := observability.New(nil)

	workspace := storage.New(log, cfg, metrics)
	if err := workspace.Lock(); err != nil {
		log.ErrorContext(ctx, "lock workspace", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
	defer workspace.Unlock()

	go workspace.RunSweeper(ctx)

	log.InfoContext(ctx, "resolving yt-dlp, ffmpeg and ffprobe. it may take some time...")

	depMgr := depmanager.New(log, cfg)
	if err := depMgr.Resolve(ctx); err != nil {
		log.WarnContext(ctx, "some tools are missing; batches needing them will abort", slog.Any("error", err))
	}

	proxyMgr := proxymgr.New(log, cfg, metrics)
	go proxyMgr.Run(ctx)

	runner := subprocess.NewExec(log, metrics)
	fetcher := downloader.NewYTdlp(log, cfg, runner, depMgr, proxyMgr)
	prober := media.NewProber(log, runner, depMgr)

	bot, err := telegram.New(log, cfg)
	if err != nil {
		log.ErrorContext(ctx, "telegram", slog.Any("error", err))
		stop()
		workspace.Unlock()
		os.Exit(1) //nolint:gocritic
	}

	store := session.NewStore(session.NewMachine(service.SessionOptions(cfg)), nil)
	orchestrator := batch.New(log, cfg, bot, fetcher, prober, workspace, metrics)
	dispatcher := service.New(log, cfg, bot, bot, store, orchestrator, metrics)

	router := httprouter.New(log, store, metrics)

	httpSrv := httpserver.New(router, httpserver.Options{
		Addr:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	dispatcher.Start(ctx)

	log.InfoContext(ctx, "bulkdl started", slog.String("port", cfg.HTTP.Port))

	ticker := time.NewTicker(goroutineSampleInterval)
	defer ticker.Stop()

	serverErr := httpSrv.Notify()

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case err := <-serverErr:
			serverErr = nil

			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.ErrorContext(ctx, "http server stopped", slog.Any("error", err))
			}

			stop()
		case <-ticker.C:
			metrics.SetGoroutines(runtime.NumGoroutine())
		}
	}

	log.Info("shutting down, waiting for running batches")

	dispatcher.Wait()

	if err := httpSrv.Shutdown(context.Background()); err != nil {
		log.Error("http shutdown", slog.Any("error", err))
	}

	log.Info("bulkdl shut down gracefully")
}
