package api

import (
    "errors"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/shopspring/decimal"

    "afrisens.dev/settlement/internal/ledger"
    "afrisens.dev/settlement/internal/store"
)

type requestPayoutRequest struct {
    Amount            *decimal.Decimal `json:"amount" validate:"required"`
    MobileMoneyNumber string           `json:"mobile_money_number" validate:"required,max=32"`
}

type rejectPayoutRequest struct {
    Reason string `json:"reason" validate:"required,max=500"`
}

type balanceResponse struct {
    ArtistID         string          `json:"artist_id"`
    AvailableBalance decimal.Decimal `json:"available_balance"`
    TotalEarned      decimal.Decimal `json:"total_earned"`
    TotalWithdrawn   decimal.Decimal `json:"total_withdrawn"`
    UpdatedAt        *time.Time      `json:"updated_at,omitempty"`
}

type transactionResponse struct {
    ID                string          `json:"id"`
    PaymentAttemptID  *string         `json:"payment_attempt_id"`
    GrossAmount       decimal.Decimal `json:"gross_amount"`
    PlatformFee       decimal.Decimal `json:"platform_fee"`
    ProviderFee       decimal.Decimal `json:"provider_fee"`
    NetAmount         decimal.Decimal `json:"net_amount"`
    Currency          string          `json:"currency"`
    DonorName         *string         `json:"donor_name"`
    ProviderReference string          `json:"provider_reference"`
    CreatedAt         time.Time       `json:"created_at"`
}

type payoutResponse struct {
    ID                string          `json:"id"`
    ArtistID          string          `json:"artist_id"`
    Amount            decimal.Decimal `json:"amount"`
    Status            string          `json:"status"`
    MobileMoneyNumber *string         `json:"mobile_money_number"`
    RejectionReason   *string         `json:"rejection_reason,omitempty"`
    RequestedAt       time.Time       `json:"requested_at"`
    ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
    artistID := principalFrom(r.Context()).ID

    b, err := s.ledger.Balance(r.Context(), artistID)
    if err != nil {
        s.logFailure("balance_read_failed", "internal_error", err, map[string]any{
            "artist_id": artistID,
        })
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    resp := balanceResponse{
        ArtistID:         artistID,
        AvailableBalance: b.AvailableBalance,
        TotalEarned:      b.TotalEarned,
        TotalWithdrawn:   b.TotalWithdrawn,
    }
    if !b.UpdatedAt.IsZero() {
        resp.UpdatedAt = &b.UpdatedAt
    }
    writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
    artistID := principalFrom(r.Context()).ID

    txs, err := s.ledger.Transactions(r.Context(), artistID, queryLimit(r))
    if err != nil {
        s.logFailure("transactions_read_failed", "internal_error", err, map[string]any{
            "artist_id": artistID,
        })
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    out := make([]transactionResponse, 0, len(txs))
    for _, tx := range txs {
        out = append(out, transactionResponse{
            ID:                tx.ID,
            PaymentAttemptID:  tx.PaymentAttemptID,
            GrossAmount:       tx.GrossAmount,
            PlatformFee:       tx.PlatformFee,
            ProviderFee:       tx.ProviderFee,
            NetAmount:         tx.NetAmount,
            Currency:          tx.Currency,
            DonorName:         tx.DonorName,
            ProviderReference: tx.ProviderReference,
            CreatedAt:         tx.CreatedAt,
        })
    }
    writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
    artistID := principalFrom(r.Context()).ID

    payouts, err := s.ledger.Payouts(r.Context(), artistID, queryLimit(r))
    if err != nil {
        s.logFailure("payouts_read_failed", "internal_error", err, map[string]any{
            "artist_id": artistID,
        })
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    out := make([]payoutResponse, 0, len(payouts))
    for _, p := range payouts {
        out = append(out, toPayoutResponse(p))
    }
    writeJSON(w, http.StatusOK, map[string]any{"payouts": out})
}

func (s *Server) handleRequestPayout(w http.ResponseWriter, r *http.Request) {
    artistID := principalFrom(r.Context()).ID

    var req requestPayoutRequest
    if err := decodeJSON(w, r, &req); err != nil {
        s.metrics.Payout("request", "invalid_request")
        s.logFailure("payout_request_failed", "invalid_request", err, map[string]any{
            "artist_id": artistID,
        })
        writeError(w, http.StatusBadRequest, "invalid_request")
        return
    }
    if err := s.validate.Struct(req); err != nil {
        reason := validationReason(err)
        s.metrics.Payout("request", reason)
        s.logFailure("payout_request_failed", reason, nil, map[string]any{
            "artist_id": artistID,
        })
        writeError(w, http.StatusBadRequest, reason)
        return
    }

    p, err := s.ledger.RequestPayout(r.Context(), artistID, *req.Amount, req.MobileMoneyNumber)
    if err != nil {
        status, reason := payoutError(err)
        s.metrics.Payout("request", reason)
        s.logFailure("payout_request_failed", reason, err, map[string]any{
            "artist_id": artistID,
            "amount":    req.Amount.String(),
        })
        writeError(w, status, reason)
        return
    }

    s.metrics.Payout("request", "ok")
    writeJSON(w, http.StatusCreated, toPayoutResponse(p))
}

type adminEventResponse struct {
    ID          string         `json:"id"`
    EventType   string         `json:"event_type"`
    ReferenceID *string        `json:"reference_id"`
    ActorID     *string        `json:"actor_id"`
    Description *string        `json:"description"`
    Metadata    map[string]any `json:"metadata"`
    CreatedAt   time.Time      `json:"created_at"`
}

func (s *Server) handleGetPayout(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")

    p, err := s.ledger.Payout(r.Context(), id)
    if err != nil {
        status, reason := payoutError(err)
        if status == http.StatusInternalServerError {
            s.logFailure("payout_read_failed", reason, err, map[string]any{"payout_id": id})
        }
        writeError(w, status, reason)
        return
    }
    writeJSON(w, http.StatusOK, toPayoutResponse(p))
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
    ref := r.URL.Query().Get("reference_id")

    evs, err := s.ledger.AuditTrail(r.Context(), ref)
    if err != nil {
        if errors.Is(err, ledger.ErrMissingReference) {
            writeError(w, http.StatusBadRequest, "missing_fields")
            return
        }
        s.logFailure("audit_trail_failed", "internal_error", err, map[string]any{"reference_id": ref})
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    out := make([]adminEventResponse, 0, len(evs))
    for _, e := range evs {
        out = append(out, adminEventResponse{
            ID:          e.ID,
            EventType:   e.EventType,
            ReferenceID: e.ReferenceID,
            ActorID:     e.ActorID,
            Description: e.Description,
            Metadata:    e.Metadata,
            CreatedAt:   e.CreatedAt,
        })
    }
    writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleApprovePayout(w http.ResponseWriter, r *http.Request) {
    s.processPayout(w, r, "approve", func(id, adminID string) (store.PayoutRequest, error) {
        return s.ledger.Approve(r.Context(), id, adminID)
    })
}

func (s *Server) handleMarkPayoutPaid(w http.ResponseWriter, r *http.Request) {
    s.processPayout(w, r, "paid", func(id, adminID string) (store.PayoutRequest, error) {
        return s.ledger.MarkPaid(r.Context(), id, adminID)
    })
}

func (s *Server) handleRejectPayout(w http.ResponseWriter, r *http.Request) {
    var req rejectPayoutRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeError(w, http.StatusBadRequest, "invalid_request")
        return
    }
    if err := s.validate.Struct(req); err != nil {
        writeError(w, http.StatusBadRequest, validationReason(err))
        return
    }
    s.processPayout(w, r, "reject", func(id, adminID string) (store.PayoutRequest, error) {
        return s.ledger.Reject(r.Context(), id, adminID, req.Reason)
    })
}

func (s *Server) processPayout(w http.ResponseWriter, r *http.Request, action string, apply func(id, adminID string) (store.PayoutRequest, error)) {
    id := chi.URLParam(r, "id")
    adminID := principalFrom(r.Context()).ID

    p, err := apply(id, adminID)
    if err != nil {
        status, reason := payoutError(err)
        s.metrics.Payout(action, reason)
        s.logFailure("payout_"+action+"_failed", reason, err, map[string]any{
            "payout_id": id,
            "admin_id":  adminID,
        })
        writeError(w, status, reason)
        return
    }

    s.metrics.Payout(action, "ok")
    writeJSON(w, http.StatusOK, toPayoutResponse(p))
}

func payoutError(err error) (int, string) {
    switch {
    case errors.Is(err, ledger.ErrInvalidAmount):
        return http.StatusBadRequest, "invalid_amount"
    case errors.Is(err, ledger.ErrMissingMobileMoney), errors.Is(err, ledger.ErrMissingReason):
        return http.StatusBadRequest, "missing_fields"
    case errors.Is(err, store.ErrInsufficientBalance):
        return http.StatusConflict, "insufficient_balance"
    case errors.Is(err, store.ErrInvalidStatus):
        return http.StatusConflict, "invalid_status"
    case errors.Is(err, store.ErrNotFound):
        return http.StatusNotFound, "not_found"
    default:
        return http.StatusInternalServerError, "internal_error"
    }
}

func toPayoutResponse(p store.PayoutRequest) payoutResponse {
    return payoutResponse{
        ID:                p.ID,
        ArtistID:          p.ArtistID,
        Amount:            p.Amount,
        Status:            p.Status,
        MobileMoneyNumber: p.MobileMoneyNumber,
        RejectionReason:   p.RejectionReason,
        RequestedAt:       p.RequestedAt,
        ProcessedAt:       p.ProcessedAt,
    }
}
