package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "mime"
    "net/http"
    "strings"
    "time"

    "github.com/go-playground/validator/v10"
    "github.com/shopspring/decimal"

    "afrisens.dev/settlement/internal/idempotency"
    "afrisens.dev/settlement/internal/payment"
)

const idempotencyKeyHeader = "Idempotency-Key"

type initiatePaymentRequest struct {
    ArtistID  string           `json:"artist_id" validate:"required,max=64"`
    Amount    *decimal.Decimal `json:"amount" validate:"required"`
    Currency  string           `json:"currency" validate:"omitempty,max=8"`
    DonorName string           `json:"donor_name" validate:"max=120"`
    DeviceID  string           `json:"device_id" validate:"required,max=128"`
}

type initiatePaymentResponse struct {
    Success          bool   `json:"success"`
    PaymentURL       string `json:"payment_url"`
    PaymentToken     string `json:"payment_token"`
    PaymentAttemptID string `json:"payment_attempt_id"`
}

type webhookResponse struct {
    Success       bool   `json:"success"`
    Outcome       string `json:"outcome"`
    TransactionID string `json:"transaction_id,omitempty"`
}

type donationResponse struct {
    PaymentAttemptID string          `json:"payment_attempt_id"`
    ArtistID         string          `json:"artist_id"`
    ArtistStageName  string          `json:"artist_stage_name"`
    Amount           decimal.Decimal `json:"amount"`
    Currency         string          `json:"currency"`
    DonorName        *string         `json:"donor_name"`
    Status           string          `json:"status"`
    CreatedAt        time.Time       `json:"created_at"`
}

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
    key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
    if s.idem == nil {
        key = ""
    }
    if key != "" && s.replayInitiation(w, r, key) {
        return
    }

    status, body := s.initiatePayment(w, r)
    if key != "" {
        s.finishIdempotentRequest(r.Context(), key, status, body)
    }
    writeJSON(w, status, body)
}

func (s *Server) initiatePayment(w http.ResponseWriter, r *http.Request) (int, any) {
    var req initiatePaymentRequest
    if err := decodeJSON(w, r, &req); err != nil {
        s.metrics.Initiation("invalid_request")
        s.logFailure("payment_initiation_failed", "invalid_request", err, nil)
        return http.StatusBadRequest, errorResponse{Error: "invalid_request"}
    }
    if err := s.validate.Struct(req); err != nil {
        reason := validationReason(err)
        s.metrics.Initiation(reason)
        s.logFailure("payment_initiation_failed", reason, nil, map[string]any{
            "artist_id": req.ArtistID,
        })
        return http.StatusBadRequest, errorResponse{Error: reason}
    }

    res, err := s.payments.Initiate(r.Context(), payment.InitiateRequest{
        ArtistID:  strings.TrimSpace(req.ArtistID),
        DeviceID:  strings.TrimSpace(req.DeviceID),
        Amount:    *req.Amount,
        Currency:  strings.TrimSpace(req.Currency),
        DonorName: req.DonorName,
    })
    if err != nil {
        status, resp := initiationError(err)
        s.metrics.Initiation(resp.Error)
        s.logFailure("payment_initiation_failed", resp.Error, err, map[string]any{
            "artist_id": req.ArtistID,
            "amount":    req.Amount.String(),
        })
        return status, resp
    }

    s.metrics.Initiation("initiated")
    return http.StatusOK, initiatePaymentResponse{
        Success:          true,
        PaymentURL:       res.PaymentURL,
        PaymentToken:     res.PaymentToken,
        PaymentAttemptID: res.AttemptID,
    }
}

func initiationError(err error) (int, errorResponse) {
    var initErr *payment.InitiationError
    switch {
    case errors.Is(err, payment.ErrMissingFields):
        return http.StatusBadRequest, errorResponse{Error: "missing_fields"}
    case errors.Is(err, payment.ErrInvalidAmount):
        return http.StatusBadRequest, errorResponse{Error: "invalid_amount"}
    case errors.Is(err, payment.ErrUnsupportedCurrency):
        return http.StatusBadRequest, errorResponse{Error: "unsupported_currency"}
    case errors.Is(err, payment.ErrInvalidInput):
        return http.StatusBadRequest, errorResponse{Error: "invalid_request"}
    case errors.Is(err, payment.ErrArtistNotFound):
        return http.StatusNotFound, errorResponse{Error: "artist_not_found"}
    case errors.Is(err, payment.ErrArtistNotEligible):
        return http.StatusForbidden, errorResponse{Error: "artist_not_verified"}
    case errors.As(err, &initErr):
        retryable := initErr.Retryable
        status := http.StatusBadGateway
        if retryable {
            status = http.StatusServiceUnavailable
        }
        return status, errorResponse{Error: initErr.Reason, Retryable: &retryable}
    default:
        return http.StatusInternalServerError, errorResponse{Error: "internal_error"}
    }
}

func validationReason(err error) string {
    var verrs validator.ValidationErrors
    if errors.As(err, &verrs) {
        for _, fe := range verrs {
            if fe.Tag() == "required" {
                return "missing_fields"
            }
        }
    }
    return "invalid_request"
}

// replayInitiation reports whether the response was already written from an earlier
// request carrying the same key.
func (s *Server) replayInitiation(w http.ResponseWriter, r *http.Request, key string) bool {
    scoped := "payments:" + key
    reserved, err := s.idem.Reserve(r.Context(), scoped, s.idemTTL)
    if err != nil {
        s.logFailure("idempotency_unavailable", "internal_error", err, map[string]any{
            "idempotency_key": key,
        })
        writeError(w, http.StatusServiceUnavailable, "internal_error")
        return true
    }
    if reserved {
        return false
    }

    entry, err := s.idem.Get(r.Context(), scoped)
    switch {
    case errors.Is(err, idempotency.ErrNotFound):
        writeErrorMessage(w, http.StatusConflict, "idempotency_conflict", "retry the request")
    case err != nil:
        s.logFailure("idempotency_unavailable", "internal_error", err, map[string]any{
            "idempotency_key": key,
        })
        writeError(w, http.StatusServiceUnavailable, "internal_error")
    case entry.Pending:
        writeErrorMessage(w, http.StatusConflict, "idempotency_conflict", "a request with this key is in progress")
    default:
        s.logEvent("payment_initiation_replayed", map[string]any{
            "idempotency_key": key,
        })
        w.Header().Set("Content-Type", "application/json")
        w.Header().Set("Idempotent-Replayed", "true")
        w.WriteHeader(entry.Response.Status)
        _, _ = w.Write(entry.Response.Body)
    }
    return true
}

// finishIdempotentRequest keeps successful responses for replay and frees the key
// otherwise, so a corrected or retried request can go through.
func (s *Server) finishIdempotentRequest(ctx context.Context, key string, status int, body any) {
    scoped := "payments:" + key
    ctx = context.WithoutCancel(ctx)

    if status != http.StatusOK {
        if err := s.idem.Release(ctx, scoped); err != nil {
            s.logFailure("idempotency_release_failed", "internal_error", err, map[string]any{
                "idempotency_key": key,
            })
        }
        return
    }
    raw, err := json.Marshal(body)
    if err == nil {
        err = s.idem.Complete(ctx, scoped, idempotency.Response{Status: status, Body: raw}, s.idemTTL)
    }
    if err != nil {
        s.logFailure("idempotency_complete_failed", "internal_error", err, map[string]any{
            "idempotency_key": key,
        })
    }
}

func (s *Server) handleCinetPayWebhook(w http.ResponseWriter, r *http.Request) {
    n, err := parseNotification(r, w)
    if err != nil {
        s.metrics.Webhook("invalid_request")
        s.logFailure("webhook_rejected", "invalid_request", err, nil)
        writeError(w, http.StatusBadRequest, "invalid_request")
        return
    }

    res, err := s.confirmations.Confirm(r.Context(), n)
    if err != nil {
        fields := map[string]any{
            "payment_attempt_id": n.TransactionID,
            "provider_reference": n.PaymentID,
        }
        switch {
        case errors.Is(err, payment.ErrMissingTransactionID):
            s.metrics.Webhook("invalid_request")
            s.logFailure("webhook_rejected", "invalid_request", err, fields)
            writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "cpm_trans_id is required")
        case errors.Is(err, payment.ErrUnknownAttempt):
            s.metrics.Webhook("unknown_attempt")
            s.logFailure("webhook_rejected", "not_found", err, fields)
            writeError(w, http.StatusNotFound, "not_found")
        case errors.Is(err, payment.ErrVerificationFailed):
            s.metrics.Webhook("verification_failed")
            s.logFailure("webhook_failed", "internal_error", err, fields)
            writeError(w, http.StatusInternalServerError, "provider_unavailable")
        default:
            s.metrics.Webhook("error")
            s.logFailure("webhook_failed", "internal_error", err, fields)
            writeError(w, http.StatusInternalServerError, "internal_error")
        }
        return
    }

    s.metrics.Webhook(string(res.Outcome))
    writeJSON(w, http.StatusOK, webhookResponse{
        Success:       true,
        Outcome:       string(res.Outcome),
        TransactionID: res.TransactionID,
    })
}

// parseNotification accepts the provider's form post as well as a JSON body.
func parseNotification(r *http.Request, w http.ResponseWriter) (payment.Notification, error) {
    mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
    r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

    if mediaType == "application/json" {
        var raw map[string]any
        if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
            return payment.Notification{}, err
        }
        field := func(name string) string {
            switch v := raw[name].(type) {
            case string:
                return strings.TrimSpace(v)
            case float64:
                return decimal.NewFromFloat(v).String()
            case nil:
                return ""
            default:
                return strings.TrimSpace(fmt.Sprint(v))
            }
        }
        return notificationFrom(field), nil
    }

    if err := r.ParseForm(); err != nil {
        return payment.Notification{}, err
    }
    return notificationFrom(func(name string) string {
        return strings.TrimSpace(r.PostForm.Get(name))
    }), nil
}

func notificationFrom(field func(string) string) payment.Notification {
    return payment.Notification{
        PageAction:    field("cpm_page_action"),
        TransactionID: field("cpm_trans_id"),
        PaymentID:     field("cpm_payid"),
        Amount:        field("cpm_amount"),
        Currency:      field("cpm_currency"),
        PaymentMethod: field("payment_method"),
    }
}

func (s *Server) handleDonationHistory(w http.ResponseWriter, r *http.Request) {
    deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
    if deviceID == "" {
        writeError(w, http.StatusBadRequest, "missing_fields")
        return
    }

    entries, err := s.ledger.DonationHistory(r.Context(), deviceID, queryLimit(r))
    if err != nil {
        s.logFailure("donation_history_failed", "internal_error", err, map[string]any{
            "device_id": deviceID,
        })
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    out := make([]donationResponse, 0, len(entries))
    for _, e := range entries {
        out = append(out, donationResponse{
            PaymentAttemptID: e.ID,
            ArtistID:         e.ArtistID,
            ArtistStageName:  e.ArtistStageName,
            Amount:           e.Amount,
            Currency:         e.Currency,
            DonorName:        e.DonorName,
            Status:           e.Status,
            CreatedAt:        e.CreatedAt,
        })
    }
    writeJSON(w, http.StatusOK, map[string]any{"donations": out})
}
