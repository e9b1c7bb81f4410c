package api

import (
    "context"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/go-chi/cors"
    "github.com/go-playground/validator/v10"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "afrisens.dev/settlement/internal/idempotency"
    "afrisens.dev/settlement/internal/metrics"
    "afrisens.dev/settlement/internal/payment"
    "afrisens.dev/settlement/internal/store"
)

const defaultIdempotencyTTL = 24 * time.Hour

type Payments interface {
    Initiate(ctx context.Context, req payment.InitiateRequest) (payment.InitiateResult, error)
}

type Confirmations interface {
    Confirm(ctx context.Context, n payment.Notification) (payment.ConfirmResult, error)
}

type Ledger interface {
    Balance(ctx context.Context, artistID string) (store.ArtistBalance, error)
    Transactions(ctx context.Context, artistID string, limit int) ([]store.Transaction, error)
    DonationHistory(ctx context.Context, deviceID string, limit int) ([]store.DonationHistoryEntry, error)
    Payouts(ctx context.Context, artistID string, limit int) ([]store.PayoutRequest, error)
    Payout(ctx context.Context, id string) (store.PayoutRequest, error)
    AuditTrail(ctx context.Context, referenceID string) ([]store.AdminEvent, error)
    RequestPayout(ctx context.Context, artistID string, amount decimal.Decimal, mobileMoneyNumber string) (store.PayoutRequest, error)
    Approve(ctx context.Context, id, adminID string) (store.PayoutRequest, error)
    Reject(ctx context.Context, id, adminID, reason string) (store.PayoutRequest, error)
    MarkPaid(ctx context.Context, id, adminID string) (store.PayoutRequest, error)
}

type Pinger interface {
    Ping(ctx context.Context) error
}

type AuthConfig struct {
    JWTSecret string
    JWTIssuer string
}

type Deps struct {
    Payments       Payments
    Confirmations  Confirmations
    Ledger         Ledger
    Idempotency    idempotency.Store
    IdempotencyTTL time.Duration
    DB             Pinger
    Metrics        *metrics.Metrics
    Auth           AuthConfig
    CORSOrigins    []string
    RequestTimeout time.Duration
    Logger         *zap.Logger
}

type Server struct {
    payments       Payments
    confirmations  Confirmations
    ledger         Ledger
    idem           idempotency.Store
    idemTTL        time.Duration
    db             Pinger
    metrics        *metrics.Metrics
    auth           AuthConfig
    corsOrigins    []string
    requestTimeout time.Duration
    validate       *validator.Validate
    logger         *zap.Logger
}

func NewServer(d Deps) *Server {
    s := &Server{
        payments:       d.Payments,
        confirmations:  d.Confirmations,
        ledger:         d.Ledger,
        idem:           d.Idempotency,
        idemTTL:        d.IdempotencyTTL,
        db:             d.DB,
        metrics:        d.Metrics,
        auth:           d.Auth,
        corsOrigins:    d.CORSOrigins,
        requestTimeout: d.RequestTimeout,
        validate:       validator.New(validator.WithRequiredStructEnabled()),
        logger:         d.Logger,
    }
    if s.logger == nil {
        s.logger = zap.NewNop()
    }
    if s.metrics == nil {
        s.metrics = metrics.New()
    }
    if s.idemTTL <= 0 {
        s.idemTTL = defaultIdempotencyTTL
    }
    if s.requestTimeout <= 0 {
        s.requestTimeout = 30 * time.Second
    }
    if len(s.corsOrigins) == 0 {
        s.corsOrigins = []string{"*"}
    }
    return s
}

func (s *Server) Routes() http.Handler {
    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(middleware.RealIP)
    r.Use(s.accessLog)
    r.Use(middleware.Recoverer)
    r.Use(middleware.Timeout(s.requestTimeout))
    r.Use(cors.Handler(cors.Options{
        AllowedOrigins:   s.corsOrigins,
        AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
        AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Device-Id"},
        AllowCredentials: false,
        MaxAge:           300,
    }))

    r.Get("/healthz", s.handleHealth)
    r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

    r.Route("/v1", func(r chi.Router) {
        r.Post("/payments", s.handleInitiatePayment)
        r.Post("/webhooks/cinetpay", s.handleCinetPayWebhook)
        r.Get("/donations", s.handleDonationHistory)

        r.Route("/artist", func(r chi.Router) {
            r.Use(s.authMiddleware(roleArtist))
            r.Get("/balance", s.handleBalance)
            r.Get("/transactions", s.handleTransactions)
            r.Get("/payouts", s.handleListPayouts)
            r.Post("/payouts", s.handleRequestPayout)
        })

        r.Route("/admin", func(r chi.Router) {
            r.Use(s.authMiddleware(roleAdmin))
            r.Get("/events", s.handleAuditTrail)
            r.Get("/payouts/{id}", s.handleGetPayout)
            r.Post("/payouts/{id}/approve", s.handleApprovePayout)
            r.Post("/payouts/{id}/reject", s.handleRejectPayout)
            r.Post("/payouts/{id}/paid", s.handleMarkPayoutPaid)
        })
    })

    r.NotFound(func(w http.ResponseWriter, r *http.Request) {
        writeError(w, http.StatusNotFound, "not_found")
    })
    r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
        writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
    })
    return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
    if s.db != nil {
        ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
        defer cancel()
        if err := s.db.Ping(ctx); err != nil {
            s.logger.Warn("health_check_failed", zap.Error(err))
            writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
            return
        }
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
