package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"
    "go.uber.org/zap"

    "afrisens.dev/settlement/internal/api"
    "afrisens.dev/settlement/internal/cinetpay"
    "afrisens.dev/settlement/internal/config"
    "afrisens.dev/settlement/internal/events"
    "afrisens.dev/settlement/internal/fees"
    "afrisens.dev/settlement/internal/idempotency"
    "afrisens.dev/settlement/internal/ledger"
    "afrisens.dev/settlement/internal/logger"
    "afrisens.dev/settlement/internal/metrics"
    "afrisens.dev/settlement/internal/payment"
    "afrisens.dev/settlement/internal/store"
)

type publisher interface {
    payment.Publisher
    Close() error
}

func main() {
    if err := run(); err != nil {
        fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
        os.Exit(1)
    }
}

func run() error {
    cfg, err := config.Load()
    if err != nil {
        return fmt.Errorf("config: %w", err)
    }

    log, err := logger.New(logger.Config{
        Level:  cfg.Log.Level,
        Format: cfg.Log.Format,
        Output: cfg.Log.Output,
    })
    if err != nil {
        return fmt.Errorf("logger: %w", err)
    }
    defer func() { _ = log.Sync() }()
    log = log.With(zap.String("env", cfg.App.Env))

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    dsn := cfg.Database.DSN()
    if err := store.Migrate(dsn, log); err != nil {
        return fmt.Errorf("migrate: %w", err)
    }

    poolCfg, err := pgxpool.ParseConfig(dsn)
    if err != nil {
        return fmt.Errorf("db config: %w", err)
    }
    poolCfg.MaxConns = cfg.Database.MaxConns
    pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
    if err != nil {
        return fmt.Errorf("db: %w", err)
    }
    defer pool.Close()

    idem, err := newIdempotencyStore(ctx, cfg, log)
    if err != nil {
        return err
    }
    defer func() { _ = idem.Close() }()

    pub := newPublisher(cfg, log)
    defer func() { _ = pub.Close() }()

    calc, err := fees.New(cfg.Fees.PlatformRate, cfg.Fees.ProviderRate)
    if err != nil {
        return fmt.Errorf("fees: %w", err)
    }

    st := store.New(pool)
    gateway := cinetpay.New(cinetpay.Config{
        APIKey:      cfg.CinetPay.APIKey,
        SiteID:      cfg.CinetPay.SiteID,
        CheckoutURL: cfg.CinetPay.CheckoutURL,
        StatusURL:   cfg.CinetPay.StatusURL,
        Channels:    cfg.CinetPay.Channels,
        Timeout:     cfg.CinetPay.Timeout,
    })

    srv := api.NewServer(api.Deps{
        Payments: payment.NewInitiator(st, gateway, payment.InitiatorConfig{
            Currency:      cfg.Settlement.Currency,
            NotifyURL:     cfg.CinetPay.NotifyURL,
            ReturnURLBase: cfg.CinetPay.ReturnURLBase,
        }, log.Named("payment")),
        Confirmations:  payment.NewConfirmer(st, gateway, calc, pub, log.Named("webhook")),
        Ledger:         ledger.NewService(st, log.Named("ledger")),
        Idempotency:    idem,
        IdempotencyTTL: cfg.Idempotency.TTL,
        DB:             st,
        Metrics:        metrics.New(),
        Auth: api.AuthConfig{
            JWTSecret: cfg.Auth.JWTSecret,
            JWTIssuer: cfg.Auth.JWTIssuer,
        },
        CORSOrigins:    cfg.HTTP.CORSAllowedOrigins,
        RequestTimeout: cfg.HTTP.WriteTimeout,
        Logger:         log.Named("http"),
    })

    httpServer := &http.Server{
        Addr:              ":" + cfg.App.Port,
        Handler:           srv.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       cfg.HTTP.ReadTimeout,
        WriteTimeout:      cfg.HTTP.WriteTimeout + 5*time.Second,
    }

    errCh := make(chan error, 1)
    go func() {
        log.Info("server_listening", zap.String("addr", httpServer.Addr))
        if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errCh <- err
        }
    }()

    select {
    case <-ctx.Done():
        log.Info("server_stopping")
    case err := <-errCh:
        return fmt.Errorf("server: %w", err)
    }

    ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := httpServer.Shutdown(ctxShutdown); err != nil {
        log.Error("server_shutdown_failed", zap.Error(err))
    }
    return nil
}

func newIdempotencyStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (idempotency.Store, error) {
    if cfg.Redis.Addr == "" {
        log.Warn("idempotency_in_memory", zap.String("hint", "set AFRISENS_REDIS_ADDR when running more than one instance"))
        return idempotency.NewMemoryStore(time.Minute), nil
    }
    st, err := idempotency.NewRedisStore(ctx, idempotency.RedisConfig{
        Addr:     cfg.Redis.Addr,
        Password: cfg.Redis.Password,
        DB:       cfg.Redis.DB,
    })
    if err != nil {
        return nil, fmt.Errorf("idempotency: %w", err)
    }
    log.Info("idempotency_redis", zap.String("addr", cfg.Redis.Addr))
    return st, nil
}

func newPublisher(cfg *config.Config, log *zap.Logger) publisher {
    if len(cfg.Kafka.Brokers) == 0 {
        log.Info("settlement_events_disabled")
        return events.NopPublisher{}
    }
    return events.NewKafkaPublisher(events.KafkaConfig{
        Brokers: cfg.Kafka.Brokers,
        Topic:   cfg.Kafka.Topic,
    }, log.Named("events"))
}
