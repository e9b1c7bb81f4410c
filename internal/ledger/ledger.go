package ledger

import (
    "context"
    "errors"
    "strings"

    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "afrisens.dev/settlement/internal/store"
)

const (
    defaultLimit = 50
    maxLimit     = 200
)

var (
    ErrInvalidAmount      = errors.New("invalid payout amount")
    ErrMissingMobileMoney = errors.New("mobile money number required")
    ErrMissingReason      = errors.New("rejection reason required")
    ErrMissingReference   = errors.New("reference id required")
)

type Store interface {
    GetBalance(ctx context.Context, artistID string) (store.ArtistBalance, error)
    ListTransactionsByArtist(ctx context.Context, artistID string, limit int) ([]store.Transaction, error)
    ListAttemptsByDevice(ctx context.Context, deviceID string, limit int) ([]store.DonationHistoryEntry, error)
    CreatePayoutRequest(ctx context.Context, input store.CreatePayoutInput) (store.PayoutRequest, error)
    ListPayoutsByArtist(ctx context.Context, artistID string, limit int) ([]store.PayoutRequest, error)
    GetPayoutRequest(ctx context.Context, id string) (store.PayoutRequest, error)
    ListAdminEvents(ctx context.Context, referenceID string) ([]store.AdminEvent, error)
    ApprovePayout(ctx context.Context, id, adminID string) (store.PayoutRequest, error)
    RejectPayout(ctx context.Context, id, adminID, reason string) (store.PayoutRequest, error)
    MarkPayoutPaid(ctx context.Context, id, adminID string) (store.PayoutRequest, error)
}

// Service exposes artist balances, earnings history and the payout workflow. Balances
// change only through settlement and payout approval, both inside the store.
type Service struct {
    store  Store
    logger *zap.Logger
}

func NewService(st Store, logger *zap.Logger) *Service {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &Service{store: st, logger: logger}
}

func (s *Service) Balance(ctx context.Context, artistID string) (store.ArtistBalance, error) {
    return s.store.GetBalance(ctx, artistID)
}

func (s *Service) Transactions(ctx context.Context, artistID string, limit int) ([]store.Transaction, error) {
    return s.store.ListTransactionsByArtist(ctx, artistID, clampLimit(limit))
}

func (s *Service) DonationHistory(ctx context.Context, deviceID string, limit int) ([]store.DonationHistoryEntry, error) {
    return s.store.ListAttemptsByDevice(ctx, strings.TrimSpace(deviceID), clampLimit(limit))
}

func (s *Service) Payouts(ctx context.Context, artistID string, limit int) ([]store.PayoutRequest, error) {
    return s.store.ListPayoutsByArtist(ctx, artistID, clampLimit(limit))
}

func (s *Service) Payout(ctx context.Context, id string) (store.PayoutRequest, error) {
    return s.store.GetPayoutRequest(ctx, id)
}

// AuditTrail lists the admin events recorded for a payout, transaction or attempt id.
func (s *Service) AuditTrail(ctx context.Context, referenceID string) ([]store.AdminEvent, error) {
    referenceID = strings.TrimSpace(referenceID)
    if referenceID == "" {
        return nil, ErrMissingReference
    }
    return s.store.ListAdminEvents(ctx, referenceID)
}

func (s *Service) RequestPayout(ctx context.Context, artistID string, amount decimal.Decimal, mobileMoneyNumber string) (store.PayoutRequest, error) {
    if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
        return store.PayoutRequest{}, ErrInvalidAmount
    }
    number := strings.TrimSpace(mobileMoneyNumber)
    if number == "" {
        return store.PayoutRequest{}, ErrMissingMobileMoney
    }

    p, err := s.store.CreatePayoutRequest(ctx, store.CreatePayoutInput{
        ArtistID:          artistID,
        Amount:            amount,
        MobileMoneyNumber: number,
    })
    if err != nil {
        return store.PayoutRequest{}, err
    }
    s.logger.Info("payout_requested",
        zap.String("payout_id", p.ID),
        zap.String("artist_id", artistID),
        zap.String("amount", p.Amount.String()),
    )
    return p, nil
}

func (s *Service) Approve(ctx context.Context, id, adminID string) (store.PayoutRequest, error) {
    p, err := s.store.ApprovePayout(ctx, id, adminID)
    if err != nil {
        return store.PayoutRequest{}, err
    }
    s.logTransition("payout_approved", p, adminID)
    return p, nil
}

func (s *Service) Reject(ctx context.Context, id, adminID, reason string) (store.PayoutRequest, error) {
    reason = strings.TrimSpace(reason)
    if reason == "" {
        return store.PayoutRequest{}, ErrMissingReason
    }
    p, err := s.store.RejectPayout(ctx, id, adminID, reason)
    if err != nil {
        return store.PayoutRequest{}, err
    }
    s.logTransition("payout_rejected", p, adminID)
    return p, nil
}

func (s *Service) MarkPaid(ctx context.Context, id, adminID string) (store.PayoutRequest, error) {
    p, err := s.store.MarkPayoutPaid(ctx, id, adminID)
    if err != nil {
        return store.PayoutRequest{}, err
    }
    s.logTransition("payout_paid", p, adminID)
    return p, nil
}

func (s *Service) logTransition(event string, p store.PayoutRequest, adminID string) {
    s.logger.Info(event,
        zap.String("payout_id", p.ID),
        zap.String("artist_id", p.ArtistID),
        zap.String("admin_id", adminID),
        zap.String("status", p.Status),
    )
}

func clampLimit(limit int) int {
    if limit <= 0 {
        return defaultLimit
    }
    if limit > maxLimit {
        return maxLimit
    }
    return limit
}
