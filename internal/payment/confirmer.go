package payment

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "go.uber.org/zap"

    "afrisens.dev/settlement/internal/fees"
    "afrisens.dev/settlement/internal/store"
)

// ActionPaymentConfirmation is the only notification action that can lead to settlement.
const ActionPaymentConfirmation = "PAYMENT_CONFIRMATION"

type Outcome string

const (
    OutcomeIgnored        Outcome = "ignored"
    OutcomeNotAccepted    Outcome = "not_accepted"
    OutcomeRefused        Outcome = "refused"
    OutcomeSettled        Outcome = "settled"
    OutcomeAlreadySettled Outcome = "already_settled"
)

// Notification carries the provider's callback fields. Its status claims are never used
// to decide settlement.
type Notification struct {
    PageAction    string
    TransactionID string
    PaymentID     string
    Amount        string
    Currency      string
    PaymentMethod string
}

type ConfirmResult struct {
    Outcome       Outcome
    TransactionID string
}

type Confirmer struct {
    store     SettlementStore
    gateway   Gateway
    fees      *fees.Calculator
    publisher Publisher
    logger    *zap.Logger
}

func NewConfirmer(st SettlementStore, gw Gateway, calc *fees.Calculator, pub Publisher, logger *zap.Logger) *Confirmer {
    if calc == nil {
        calc = fees.Default()
    }
    if pub == nil {
        pub = nopPublisher{}
    }
    if logger == nil {
        logger = zap.NewNop()
    }
    return &Confirmer{store: st, gateway: gw, fees: calc, publisher: pub, logger: logger}
}

// Confirm settles a payment after verifying it with the provider. Replaying the same
// notification any number of times yields one transaction.
func (c *Confirmer) Confirm(ctx context.Context, n Notification) (ConfirmResult, error) {
    if n.PageAction != ActionPaymentConfirmation {
        c.logger.Info("webhook_ignored",
            zap.String("page_action", n.PageAction),
            zap.String("payment_attempt_id", n.TransactionID),
        )
        return ConfirmResult{Outcome: OutcomeIgnored}, nil
    }

    attemptID := strings.TrimSpace(n.TransactionID)
    if attemptID == "" {
        return ConfirmResult{}, ErrMissingTransactionID
    }

    status, err := c.gateway.CheckStatus(ctx, attemptID)
    if err != nil {
        return ConfirmResult{}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
    }

    if !status.Successful() {
        outcome := OutcomeNotAccepted
        if status.Refused() {
            outcome = OutcomeRefused
            if err := c.store.MarkAttemptFailed(ctx, attemptID); err != nil {
                c.logger.Warn("payment_attempt_update_failed",
                    zap.String("payment_attempt_id", attemptID),
                    zap.Error(err),
                )
            }
        }
        c.logger.Info("payment_not_accepted",
            zap.String("payment_attempt_id", attemptID),
            zap.String("result_code", status.ResultCode),
            zap.String("trans_status", status.TransStatus),
            zap.String("message", status.ErrorMessage),
        )
        return ConfirmResult{Outcome: outcome}, nil
    }

    attempt, err := c.store.GetPaymentAttempt(ctx, attemptID)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            c.logger.Error("payment_attempt_unknown",
                zap.String("payment_attempt_id", attemptID),
                zap.String("provider_reference", status.PaymentID),
            )
            return ConfirmResult{}, ErrUnknownAttempt
        }
        return ConfirmResult{}, fmt.Errorf("get payment attempt: %w", err)
    }

    reference := status.PaymentID
    if reference == "" {
        reference = strings.TrimSpace(n.PaymentID)
    }
    if reference == "" {
        return ConfirmResult{}, fmt.Errorf("%w: accepted payment without provider reference", ErrVerificationFailed)
    }

    existing, err := c.store.GetTransactionByProviderReference(ctx, reference)
    if err == nil {
        return c.alreadySettled(ctx, attempt, reference, existing.ID), nil
    }
    if !errors.Is(err, store.ErrNotFound) {
        return ConfirmResult{}, fmt.Errorf("get transaction: %w", err)
    }

    currency := status.Currency
    if currency == "" {
        currency = attempt.Currency
    }
    if !status.Amount.Equal(attempt.Amount) || currency != attempt.Currency {
        c.logger.Warn("payment_amount_drift",
            zap.String("payment_attempt_id", attempt.ID),
            zap.String("attempt_amount", attempt.Amount.String()),
            zap.String("attempt_currency", attempt.Currency),
            zap.String("verified_amount", status.Amount.String()),
            zap.String("verified_currency", currency),
            zap.String("notified_amount", n.Amount),
            zap.String("notified_currency", n.Currency),
        )
    }

    breakdown, err := c.fees.Calculate(status.Amount)
    if err != nil {
        return ConfirmResult{}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
    }

    attemptRef := attempt.ID
    tx, err := c.store.SettleTransaction(ctx, store.SettleTransactionInput{
        PaymentAttemptID:  &attemptRef,
        ArtistID:          attempt.ArtistID,
        GrossAmount:       breakdown.Gross,
        PlatformFee:       breakdown.PlatformFee,
        ProviderFee:       breakdown.ProviderFee,
        NetAmount:         breakdown.Net,
        Currency:          currency,
        DonorName:         attempt.DonorName,
        ProviderReference: reference,
    })
    if err != nil {
        if errors.Is(err, store.ErrDuplicateTransaction) {
            var id string
            if existing, gerr := c.store.GetTransactionByProviderReference(ctx, reference); gerr == nil {
                id = existing.ID
            }
            return c.alreadySettled(ctx, attempt, reference, id), nil
        }
        c.logger.Error("settlement_failed",
            zap.String("payment_attempt_id", attempt.ID),
            zap.String("provider_reference", reference),
            zap.Error(err),
        )
        return ConfirmResult{}, fmt.Errorf("settle transaction: %w", err)
    }

    c.logger.Info("payment_settled",
        zap.String("transaction_id", tx.ID),
        zap.String("payment_attempt_id", attempt.ID),
        zap.String("artist_id", tx.ArtistID),
        zap.String("provider_reference", reference),
        zap.String("gross_amount", tx.GrossAmount.String()),
        zap.String("net_amount", tx.NetAmount.String()),
        zap.String("currency", tx.Currency),
    )

    method := status.PaymentMethod
    if method == "" {
        method = n.PaymentMethod
    }
    c.audit(ctx, tx, method)

    if err := c.publisher.PublishDonationSettled(ctx, tx); err != nil {
        c.logger.Error("settlement_publish_failed",
            zap.String("transaction_id", tx.ID),
            zap.Error(err),
        )
    }

    return ConfirmResult{Outcome: OutcomeSettled, TransactionID: tx.ID}, nil
}

func (c *Confirmer) alreadySettled(ctx context.Context, attempt store.PaymentAttempt, reference, transactionID string) ConfirmResult {
    if attempt.Status != store.AttemptStatusSuccess {
        if err := c.store.MarkAttemptSucceeded(ctx, attempt.ID, reference); err != nil {
            c.logger.Warn("payment_attempt_update_failed",
                zap.String("payment_attempt_id", attempt.ID),
                zap.Error(err),
            )
        }
    }
    c.logger.Info("payment_already_settled",
        zap.String("payment_attempt_id", attempt.ID),
        zap.String("provider_reference", reference),
        zap.String("transaction_id", transactionID),
    )
    return ConfirmResult{Outcome: OutcomeAlreadySettled, TransactionID: transactionID}
}

// audit appends the payment_confirmed admin event. A failure is logged and leaves the
// settlement in place.
func (c *Confirmer) audit(ctx context.Context, tx store.Transaction, method string) {
    _, err := c.store.AppendAdminEvent(ctx, store.AdminEventInput{
        EventType:   store.EventPaymentConfirmed,
        ReferenceID: tx.ID,
        Description: fmt.Sprintf("Payment confirmed: %s %s to artist %s", tx.GrossAmount.String(), tx.Currency, tx.ArtistID),
        Metadata: map[string]any{
            "payment_method":     method,
            "provider_reference": tx.ProviderReference,
            "gross_amount":       tx.GrossAmount.String(),
            "net_amount":         tx.NetAmount.String(),
        },
    })
    if err != nil {
        c.logger.Error("audit_event_failed",
            zap.String("transaction_id", tx.ID),
            zap.String("event_type", store.EventPaymentConfirmed),
            zap.Error(err),
        )
    }
}
