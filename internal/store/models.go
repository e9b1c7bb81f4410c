package store

import (
    "time"

    "github.com/shopspring/decimal"
)

const (
    AttemptStatusInitiated = "initiated"
    AttemptStatusPending   = "pending"
    AttemptStatusSuccess   = "success"
    AttemptStatusFailed    = "failed"
)

const (
    PayoutStatusPending  = "pending"
    PayoutStatusApproved = "approved"
    PayoutStatusRejected = "rejected"
    PayoutStatusPaid     = "paid"
)

const (
    EventPaymentConfirmed = "payment_confirmed"
    EventPayoutRequested  = "payout_requested"
    EventPayoutApproved   = "payout_approved"
    EventPayoutRejected   = "payout_rejected"
    EventPayoutPaid       = "payout_paid"
)

type Artist struct {
    ID         string
    StageName  string
    IsVerified bool
    CreatedAt  time.Time
}

type PaymentAttempt struct {
    ID                string
    ArtistID          string
    DeviceID          string
    Amount            decimal.Decimal
    Currency          string
    DonorName         *string
    Status            string
    CinetpayReference *string
    CreatedAt         time.Time
    UpdatedAt         time.Time
}

type CreatePaymentAttemptInput struct {
    ArtistID  string
    DeviceID  string
    Amount    decimal.Decimal
    Currency  string
    DonorName *string
}

// DonationHistoryEntry is a payment attempt as shown to the donor device that made it.
type DonationHistoryEntry struct {
    PaymentAttempt
    ArtistStageName string
}

type Transaction struct {
    ID                string
    PaymentAttemptID  *string
    ArtistID          string
    GrossAmount       decimal.Decimal
    PlatformFee       decimal.Decimal
    ProviderFee       decimal.Decimal
    NetAmount         decimal.Decimal
    Currency          string
    DonorName         *string
    ProviderReference string
    CreatedAt         time.Time
}

type SettleTransactionInput struct {
    PaymentAttemptID  *string
    ArtistID          string
    GrossAmount       decimal.Decimal
    PlatformFee       decimal.Decimal
    ProviderFee       decimal.Decimal
    NetAmount         decimal.Decimal
    Currency          string
    DonorName         *string
    ProviderReference string
}

type ArtistBalance struct {
    ArtistID         string
    AvailableBalance decimal.Decimal
    TotalEarned      decimal.Decimal
    TotalWithdrawn   decimal.Decimal
    UpdatedAt        time.Time
}

type PayoutRequest struct {
    ID                string
    ArtistID          string
    Amount            decimal.Decimal
    Status            string
    MobileMoneyNumber *string
    RejectionReason   *string
    RequestedAt       time.Time
    ProcessedAt       *time.Time
}

type CreatePayoutInput struct {
    ArtistID          string
    Amount            decimal.Decimal
    MobileMoneyNumber string
}

type AdminEvent struct {
    ID          string
    EventType   string
    ReferenceID *string
    ActorID     *string
    Description *string
    Metadata    map[string]any
    CreatedAt   time.Time
}

type AdminEventInput struct {
    EventType   string
    ReferenceID string
    ActorID     string
    Description string
    Metadata    map[string]any
}
