package payment

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "afrisens.dev/settlement/internal/cinetpay"
    "afrisens.dev/settlement/internal/store"
)

const (
    ReasonProviderError       = "provider_error"
    ReasonProviderUnavailable = "provider_unavailable"
)

type InitiatorConfig struct {
    Currency      string
    NotifyURL     string
    ReturnURLBase string
}

type InitiateRequest struct {
    ArtistID  string
    DeviceID  string
    Amount    decimal.Decimal
    Currency  string
    DonorName string
}

type InitiateResult struct {
    AttemptID    string
    PaymentURL   string
    PaymentToken string
}

type Initiator struct {
    store   AttemptStore
    gateway Gateway
    cfg     InitiatorConfig
    logger  *zap.Logger
}

func NewInitiator(st AttemptStore, gw Gateway, cfg InitiatorConfig, logger *zap.Logger) *Initiator {
    if logger == nil {
        logger = zap.NewNop()
    }
    cfg.Currency = strings.ToUpper(cfg.Currency)
    return &Initiator{store: st, gateway: gw, cfg: cfg, logger: logger}
}

// Initiate records a new payment attempt and opens a provider checkout for it. No
// transaction is created here; money only counts once a confirmation is verified.
func (i *Initiator) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
    if err := i.validate(req); err != nil {
        return InitiateResult{}, err
    }

    artist, err := i.store.GetArtist(ctx, req.ArtistID)
    if err != nil {
        if errors.Is(err, store.ErrArtistNotFound) {
            return InitiateResult{}, ErrArtistNotFound
        }
        return InitiateResult{}, fmt.Errorf("get artist: %w", err)
    }
    if !artist.IsVerified {
        return InitiateResult{}, ErrArtistNotEligible
    }

    var donor *string
    if name := strings.TrimSpace(req.DonorName); name != "" {
        donor = &name
    }
    attempt, err := i.store.CreatePaymentAttempt(ctx, store.CreatePaymentAttemptInput{
        ArtistID:  artist.ID,
        DeviceID:  strings.TrimSpace(req.DeviceID),
        Amount:    req.Amount,
        Currency:  i.cfg.Currency,
        DonorName: donor,
    })
    if err != nil {
        return InitiateResult{}, fmt.Errorf("create payment attempt: %w", err)
    }

    checkout, err := i.gateway.InitiateCheckout(ctx, cinetpay.CheckoutRequest{
        TransactionID: attempt.ID,
        Amount:        attempt.Amount,
        Currency:      i.cfg.Currency,
        Description:   "Don pour " + artist.StageName,
        CustomerName:  req.DonorName,
        ReturnURL:     i.cfg.ReturnURLBase + attempt.ID,
        NotifyURL:     i.cfg.NotifyURL,
        Metadata: map[string]string{
            "artist_id":          artist.ID,
            "device_id":          attempt.DeviceID,
            "payment_attempt_id": attempt.ID,
        },
    })
    if err != nil {
        retryable := !errors.Is(err, cinetpay.ErrProviderRejected)
        reason := ReasonProviderError
        if retryable {
            reason = ReasonProviderUnavailable
        }
        // The donor may have gone away; the attempt still has to be closed.
        if ferr := i.store.MarkAttemptFailed(context.WithoutCancel(ctx), attempt.ID); ferr != nil {
            i.logger.Error("payment_attempt_update_failed",
                zap.String("payment_attempt_id", attempt.ID),
                zap.Error(ferr),
            )
        }
        return InitiateResult{}, &InitiationError{
            Reason:    reason,
            Retryable: retryable,
            Err:       err,
        }
    }

    if _, err := i.store.MarkAttemptPending(ctx, attempt.ID, checkout.PaymentToken); err != nil {
        return InitiateResult{}, fmt.Errorf("mark attempt pending: %w", err)
    }

    i.logger.Info("payment_initiated",
        zap.String("payment_attempt_id", attempt.ID),
        zap.String("artist_id", artist.ID),
        zap.String("amount", attempt.Amount.String()),
        zap.String("currency", attempt.Currency),
    )

    return InitiateResult{
        AttemptID:    attempt.ID,
        PaymentURL:   checkout.PaymentURL,
        PaymentToken: checkout.PaymentToken,
    }, nil
}

func (i *Initiator) validate(req InitiateRequest) error {
    if strings.TrimSpace(req.ArtistID) == "" || strings.TrimSpace(req.DeviceID) == "" {
        return ErrMissingFields
    }
    if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
        return ErrInvalidAmount
    }
    if c := strings.TrimSpace(req.Currency); c != "" && !strings.EqualFold(c, i.cfg.Currency) {
        return ErrUnsupportedCurrency
    }
    return nil
}
