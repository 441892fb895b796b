package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"

    "shelterroute/internal/api"
    "shelterroute/internal/buildinfo"
    "shelterroute/internal/config"
    "shelterroute/internal/events"
    "shelterroute/internal/store"
    "shelterroute/internal/webhooks"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        logrus.WithError(err).Fatal("load config")
    }
    log := cfg.NewLogger()
    log.WithFields(logrus.Fields(toFields(buildinfo.Info()))).Info("starting")

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    st, closeStore, err := openStore(ctx, cfg, log)
    if err != nil {
        log.WithError(err).Fatal("open store")
    }
    defer closeStore()

    broker, closeBroker := openBroker(ctx, cfg, log)
    defer closeBroker()

    srvDeps, err := api.NewServer(cfg, st, broker, log)
    if err != nil {
        log.WithError(err).Fatal("init api")
    }

    // callbacks outlive the request ctx; pending retries get a grace period on shutdown
    hookCtx, cancelHooks := context.WithCancel(context.Background())
    hooks := webhooks.NewDispatcher(cfg.Webhook, log.WithField("component", "webhooks"))
    hooks.Start(hookCtx, cfg.Webhook.Workers)
    srvDeps.Planner.Notifier = hooks
    srv := &http.Server{
        Addr:              ":" + cfg.Port,
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       30 * time.Second,
        IdleTimeout:       120 * time.Second,
        // no WriteTimeout: solves run up to the time budget and streams stay open
    }

    go func() {
        log.WithField("addr", srv.Addr).Info("API listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.WithError(err).Fatal("server error")
        }
    }()

    <-ctx.Done()
    log.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.WithError(err).Warn("shutdown")
    }
    t := time.AfterFunc(10*time.Second, cancelHooks)
    hooks.Close()
    t.Stop()
    cancelHooks()
}

// openStore uses Postgres when DATABASE_URL is set, else the in-memory store.
func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (store.Store, func(), error) {
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        log.Info("store: memory")
        return store.NewMemory(), func() {}, nil
    }
    pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
    if err != nil {
        return nil, nil, err
    }
    if cfg.DBMigrate {
        if err := pg.Migrate(ctx); err != nil {
            _ = pg.Close()
            return nil, nil, err
        }
    }
    log.Info("store: postgres")
    return pg, func() { _ = pg.Close() }, nil
}

// openBroker uses Redis pub/sub when REDIS_URL is set and reachable, else
// the in-process broker.
func openBroker(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (events.EventBroker, func()) {
    if cfg.RedisURL != "" {
        rb, err := events.NewRedisBroker(ctx, cfg.RedisURL, log)
        if err == nil {
            log.Info("broker: redis")
            return rb, func() { _ = rb.Close() }
        }
        log.WithError(err).Warn("redis unavailable, using in-process broker")
    }
    return events.NewBroker(), func() {}
}

func toFields(m map[string]string) map[string]any {
    out := make(map[string]any, len(m))
    for k, v := range m { out[k] = v }
    return out
}
