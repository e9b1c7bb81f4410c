package payment

import (
    "context"
    "errors"
    "fmt"

    "afrisens.dev/settlement/internal/cinetpay"
    "afrisens.dev/settlement/internal/store"
)

// Gateway is the payment provider as seen by initiation and confirmation.
type Gateway interface {
    InitiateCheckout(ctx context.Context, req cinetpay.CheckoutRequest) (cinetpay.Checkout, error)
    CheckStatus(ctx context.Context, transactionID string) (cinetpay.PaymentStatus, error)
}

type AttemptStore interface {
    GetArtist(ctx context.Context, id string) (store.Artist, error)
    CreatePaymentAttempt(ctx context.Context, input store.CreatePaymentAttemptInput) (store.PaymentAttempt, error)
    MarkAttemptPending(ctx context.Context, id, reference string) (store.PaymentAttempt, error)
    MarkAttemptFailed(ctx context.Context, id string) error
}

type SettlementStore interface {
    GetPaymentAttempt(ctx context.Context, id string) (store.PaymentAttempt, error)
    GetTransactionByProviderReference(ctx context.Context, reference string) (store.Transaction, error)
    SettleTransaction(ctx context.Context, input store.SettleTransactionInput) (store.Transaction, error)
    MarkAttemptSucceeded(ctx context.Context, id, providerPaymentID string) error
    MarkAttemptFailed(ctx context.Context, id string) error
    AppendAdminEvent(ctx context.Context, input store.AdminEventInput) (store.AdminEvent, error)
}

// Publisher announces settled donations to other systems.
type Publisher interface {
    PublishDonationSettled(ctx context.Context, tx store.Transaction) error
}

var (
    ErrInvalidInput        = errors.New("invalid input")
    ErrMissingFields       = fmt.Errorf("%w: missing fields", ErrInvalidInput)
    ErrInvalidAmount       = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
    ErrUnsupportedCurrency = fmt.Errorf("%w: unsupported currency", ErrInvalidInput)
    ErrArtistNotFound      = errors.New("artist not found")
    ErrArtistNotEligible   = errors.New("artist not verified")

    ErrMissingTransactionID = errors.New("notification without transaction id")
    ErrUnknownAttempt       = errors.New("payment attempt unknown")
    ErrVerificationFailed   = errors.New("payment verification failed")
)

// InitiationError is returned when the provider could not open a checkout. Retryable
// tells the caller whether trying again can succeed.
type InitiationError struct {
    Reason    string
    Retryable bool
    Err       error
}

func (e *InitiationError) Error() string {
    return fmt.Sprintf("payment initiation failed (%s): %v", e.Reason, e.Err)
}

func (e *InitiationError) Unwrap() error {
    return e.Err
}

type nopPublisher struct{}

func (nopPublisher) PublishDonationSettled(context.Context, store.Transaction) error {
    return nil
}
