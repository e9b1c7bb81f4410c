package api_test

import (
    "context"
    "sync"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/shopspring/decimal"

    "afrisens.dev/settlement/internal/api"
    "afrisens.dev/settlement/internal/ledger"
    "afrisens.dev/settlement/internal/payment"
    "afrisens.dev/settlement/internal/store"
)

const testSecret = "test-secret-with-enough-length-000"

type fakePayments struct {
    mu    sync.Mutex
    calls []payment.InitiateRequest
    err   error
}

func (f *fakePayments) Initiate(_ context.Context, req payment.InitiateRequest) (payment.InitiateResult, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.calls = append(f.calls, req)
    if f.err != nil {
        return payment.InitiateResult{}, f.err
    }
    return payment.InitiateResult{
        AttemptID:    "attempt-1",
        PaymentURL:   "https://checkout.example.test/attempt-1",
        PaymentToken: "tok-1",
    }, nil
}

func (f *fakePayments) callCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.calls)
}

type fakeConfirmations struct {
    got    []payment.Notification
    result payment.ConfirmResult
    err    error
}

func (f *fakeConfirmations) Confirm(_ context.Context, n payment.Notification) (payment.ConfirmResult, error) {
    f.got = append(f.got, n)
    return f.result, f.err
}

type payoutCall struct {
    action  string
    id      string
    adminID string
    reason  string
}

type fakeLedger struct {
    balance     store.ArtistBalance
    lastArtist  string
    lastDevice  string
    lastLimit   int
    payoutErr   error
    requested   []decimal.Decimal
    payoutCalls []payoutCall
}

func (f *fakeLedger) Balance(_ context.Context, artistID string) (store.ArtistBalance, error) {
    f.lastArtist = artistID
    b := f.balance
    b.ArtistID = artistID
    return b, nil
}

func (f *fakeLedger) Transactions(_ context.Context, artistID string, limit int) ([]store.Transaction, error) {
    f.lastArtist = artistID
    f.lastLimit = limit
    attemptID := "attempt-1"
    return []store.Transaction{{
        ID:                "tx-1",
        PaymentAttemptID:  &attemptID,
        ArtistID:          artistID,
        GrossAmount:       decimal.RequireFromString("1000"),
        PlatformFee:       decimal.RequireFromString("50"),
        ProviderFee:       decimal.RequireFromString("25"),
        NetAmount:         decimal.RequireFromString("925"),
        Currency:          "XOF",
        ProviderReference: "pay-1",
        CreatedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
    }}, nil
}

func (f *fakeLedger) DonationHistory(_ context.Context, deviceID string, limit int) ([]store.DonationHistoryEntry, error) {
    f.lastDevice = deviceID
    f.lastLimit = limit
    return []store.DonationHistoryEntry{{
        PaymentAttempt: store.PaymentAttempt{
            ID:       "attempt-1",
            ArtistID: "artist-1",
            DeviceID: deviceID,
            Amount:   decimal.RequireFromString("500"),
            Currency: "XOF",
            Status:   store.AttemptStatusSuccess,
        },
        ArtistStageName: "Chorale Bethel",
    }}, nil
}

func (f *fakeLedger) Payouts(_ context.Context, artistID string, limit int) ([]store.PayoutRequest, error) {
    f.lastArtist = artistID
    f.lastLimit = limit
    return nil, nil
}

func (f *fakeLedger) Payout(_ context.Context, id string) (store.PayoutRequest, error) {
    if f.payoutErr != nil {
        return store.PayoutRequest{}, f.payoutErr
    }
    return store.PayoutRequest{ID: id, ArtistID: "artist-1", Amount: decimal.NewFromInt(100), Status: store.PayoutStatusPending}, nil
}

func (f *fakeLedger) AuditTrail(_ context.Context, referenceID string) ([]store.AdminEvent, error) {
    if referenceID == "" {
        return nil, ledger.ErrMissingReference
    }
    actor := "admin-1"
    return []store.AdminEvent{{
        ID:          "event-1",
        EventType:   store.EventPayoutApproved,
        ReferenceID: &referenceID,
        ActorID:     &actor,
        Metadata:    map[string]any{"amount": "100"},
    }}, nil
}

func (f *fakeLedger) RequestPayout(_ context.Context, artistID string, amount decimal.Decimal, number string) (store.PayoutRequest, error) {
    f.lastArtist = artistID
    if f.payoutErr != nil {
        return store.PayoutRequest{}, f.payoutErr
    }
    f.requested = append(f.requested, amount)
    return store.PayoutRequest{
        ID:                "payout-1",
        ArtistID:          artistID,
        Amount:            amount,
        Status:            store.PayoutStatusPending,
        MobileMoneyNumber: &number,
    }, nil
}

func (f *fakeLedger) transition(action, id, adminID, reason, status string) (store.PayoutRequest, error) {
    f.payoutCalls = append(f.payoutCalls, payoutCall{action: action, id: id, adminID: adminID, reason: reason})
    if f.payoutErr != nil {
        return store.PayoutRequest{}, f.payoutErr
    }
    return store.PayoutRequest{ID: id, ArtistID: "artist-1", Amount: decimal.NewFromInt(100), Status: status}, nil
}

func (f *fakeLedger) Approve(_ context.Context, id, adminID string) (store.PayoutRequest, error) {
    return f.transition("approve", id, adminID, "", store.PayoutStatusApproved)
}

func (f *fakeLedger) Reject(_ context.Context, id, adminID, reason string) (store.PayoutRequest, error) {
    return f.transition("reject", id, adminID, reason, store.PayoutStatusRejected)
}

func (f *fakeLedger) MarkPaid(_ context.Context, id, adminID string) (store.PayoutRequest, error) {
    return f.transition("paid", id, adminID, "", store.PayoutStatusPaid)
}

type fakePinger struct {
    err error
}

func (p fakePinger) Ping(context.Context) error {
    return p.err
}

func signToken(subject, role string, ttl time.Duration) string {
    claims := api.Claims{
        Role: role,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   subject,
            Issuer:    "afrisens-test",
            IssuedAt:  jwt.NewNumericDate(time.Now()),
            ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
    if err != nil {
        panic(err)
    }
    return signed
}
