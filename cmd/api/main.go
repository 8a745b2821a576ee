package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "dcsourcing/internal/api"
    "dcsourcing/internal/buildinfo"
    "dcsourcing/internal/config"
    "dcsourcing/internal/logging"
    "dcsourcing/internal/metrics"
)

func main() {
    cfg, err := config.Load()
    log := logging.New(cfg)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to load config")
    }
    metrics.RegisterDefault()

    srvDeps, err := api.NewServer(cfg, log)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init server")
    }

    srv := &http.Server{
        Addr:              cfg.Addr(),
        Handler:           srvDeps.Handler(),
        ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
    }

    worker := srvDeps.NewWebhookWorker()
    worker.Start()

    sched := srvDeps.NewScheduler()
    if sched != nil {
        if err := sched.Start(); err != nil {
            log.Fatal().Err(err).Str("schedule", cfg.Sourcing.Schedule).Msg("invalid sourcing schedule")
        }
    }

    go func() {
        log.Info().Str("addr", srv.Addr).Str("version", buildinfo.Version).Msg("API listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatal().Err(err).Msg("server error")
        }
    }()

    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    log.Info().Msg("shutting down")

    ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
    defer cancel()
    if sched != nil {
        sched.Stop()
    }
    close(worker.Stop)
    if err := srv.Shutdown(ctx); err != nil {
        log.Error().Err(err).Msg("graceful shutdown failed")
    }
}
