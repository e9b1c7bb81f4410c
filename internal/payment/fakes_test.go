package payment

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/shopspring/decimal"

    "afrisens.dev/settlement/internal/cinetpay"
    "afrisens.dev/settlement/internal/store"
)

// memStore mimics the Postgres store, including the unique provider_reference key.
type memStore struct {
    mu           sync.Mutex
    seq          int
    artists      map[string]store.Artist
    attempts     map[string]store.PaymentAttempt
    transactions map[string]store.Transaction
    balances     map[string]decimal.Decimal
    events       []store.AdminEventInput

    failSettle error
    failAudit  error
    // hideExisting makes the read-before-insert miss, as in a concurrent delivery.
    hideExisting bool
}

func newMemStore() *memStore {
    return &memStore{
        artists:      map[string]store.Artist{},
        attempts:     map[string]store.PaymentAttempt{},
        transactions: map[string]store.Transaction{},
        balances:     map[string]decimal.Decimal{},
    }
}

func (m *memStore) nextID(prefix string) string {
    m.seq++
    return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) addArtist(id, name string, verified bool) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.artists[id] = store.Artist{ID: id, StageName: name, IsVerified: verified}
}

func (m *memStore) attempt(id string) store.PaymentAttempt {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.attempts[id]
}

func (m *memStore) transactionCount() int {
    m.mu.Lock()
    defer m.mu.Unlock()
    return len(m.transactions)
}

func (m *memStore) GetArtist(_ context.Context, id string) (store.Artist, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    a, ok := m.artists[id]
    if !ok {
        return store.Artist{}, store.ErrArtistNotFound
    }
    return a, nil
}

func (m *memStore) CreatePaymentAttempt(_ context.Context, input store.CreatePaymentAttemptInput) (store.PaymentAttempt, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    a := store.PaymentAttempt{
        ID:        m.nextID("attempt"),
        ArtistID:  input.ArtistID,
        DeviceID:  input.DeviceID,
        Amount:    input.Amount,
        Currency:  input.Currency,
        DonorName: input.DonorName,
        Status:    store.AttemptStatusInitiated,
        CreatedAt: time.Now(),
    }
    m.attempts[a.ID] = a
    return a, nil
}

func (m *memStore) GetPaymentAttempt(_ context.Context, id string) (store.PaymentAttempt, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    a, ok := m.attempts[id]
    if !ok {
        return store.PaymentAttempt{}, store.ErrNotFound
    }
    return a, nil
}

func (m *memStore) MarkAttemptPending(_ context.Context, id, reference string) (store.PaymentAttempt, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    a, ok := m.attempts[id]
    if !ok {
        return store.PaymentAttempt{}, store.ErrNotFound
    }
    if a.Status != store.AttemptStatusInitiated {
        return store.PaymentAttempt{}, store.ErrInvalidStatus
    }
    a.Status = store.AttemptStatusPending
    a.CinetpayReference = &reference
    m.attempts[id] = a
    return a, nil
}

func (m *memStore) MarkAttemptFailed(_ context.Context, id string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    a, ok := m.attempts[id]
    if !ok {
        return nil
    }
    if a.Status == store.AttemptStatusInitiated || a.Status == store.AttemptStatusPending {
        a.Status = store.AttemptStatusFailed
        m.attempts[id] = a
    }
    return nil
}

func (m *memStore) MarkAttemptSucceeded(_ context.Context, id, providerPaymentID string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.markSucceeded(id, providerPaymentID)
}

func (m *memStore) markSucceeded(id, providerPaymentID string) error {
    a, ok := m.attempts[id]
    if !ok {
        return store.ErrNotFound
    }
    a.Status = store.AttemptStatusSuccess
    a.CinetpayReference = &providerPaymentID
    m.attempts[id] = a
    return nil
}

func (m *memStore) GetTransactionByProviderReference(_ context.Context, reference string) (store.Transaction, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.hideExisting {
        return store.Transaction{}, store.ErrNotFound
    }
    t, ok := m.transactions[reference]
    if !ok {
        return store.Transaction{}, store.ErrNotFound
    }
    return t, nil
}

func (m *memStore) SettleTransaction(_ context.Context, input store.SettleTransactionInput) (store.Transaction, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.failSettle != nil {
        return store.Transaction{}, m.failSettle
    }
    if _, ok := m.transactions[input.ProviderReference]; ok {
        return store.Transaction{}, store.ErrDuplicateTransaction
    }
    t := store.Transaction{
        ID:                m.nextID("tx"),
        PaymentAttemptID:  input.PaymentAttemptID,
        ArtistID:          input.ArtistID,
        GrossAmount:       input.GrossAmount,
        PlatformFee:       input.PlatformFee,
        ProviderFee:       input.ProviderFee,
        NetAmount:         input.NetAmount,
        Currency:          input.Currency,
        DonorName:         input.DonorName,
        ProviderReference: input.ProviderReference,
        CreatedAt:         time.Now(),
    }
    m.transactions[input.ProviderReference] = t
    m.balances[input.ArtistID] = m.balances[input.ArtistID].Add(input.NetAmount)
    if input.PaymentAttemptID != nil {
        if err := m.markSucceeded(*input.PaymentAttemptID, input.ProviderReference); err != nil {
            return store.Transaction{}, err
        }
    }
    return t, nil
}

func (m *memStore) AppendAdminEvent(_ context.Context, input store.AdminEventInput) (store.AdminEvent, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.failAudit != nil {
        return store.AdminEvent{}, m.failAudit
    }
    m.events = append(m.events, input)
    return store.AdminEvent{ID: m.nextID("event"), EventType: input.EventType}, nil
}

type fakeGateway struct {
    mu          sync.Mutex
    checkoutErr error
    statusErr   error
    statuses    map[string]cinetpay.PaymentStatus
    checkouts   []cinetpay.CheckoutRequest
    statusCalls int
}

func newFakeGateway() *fakeGateway {
    return &fakeGateway{statuses: map[string]cinetpay.PaymentStatus{}}
}

func (g *fakeGateway) accept(attemptID, payID, amount string) {
    g.mu.Lock()
    defer g.mu.Unlock()
    g.statuses[attemptID] = cinetpay.PaymentStatus{
        TransactionID: attemptID,
        ResultCode:    cinetpay.ResultSuccess,
        TransStatus:   cinetpay.StatusAccepted,
        Amount:        decimal.RequireFromString(amount),
        Currency:      "XOF",
        PaymentID:     payID,
        PaymentMethod: "OM",
    }
}

func (g *fakeGateway) setStatus(attemptID string, status cinetpay.PaymentStatus) {
    g.mu.Lock()
    defer g.mu.Unlock()
    g.statuses[attemptID] = status
}

func (g *fakeGateway) InitiateCheckout(_ context.Context, req cinetpay.CheckoutRequest) (cinetpay.Checkout, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    g.checkouts = append(g.checkouts, req)
    if g.checkoutErr != nil {
        return cinetpay.Checkout{}, g.checkoutErr
    }
    return cinetpay.Checkout{
        PaymentURL:   "https://checkout.example.test/" + req.TransactionID,
        PaymentToken: "tok-" + req.TransactionID,
    }, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, transactionID string) (cinetpay.PaymentStatus, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    g.statusCalls++
    if g.statusErr != nil {
        return cinetpay.PaymentStatus{}, g.statusErr
    }
    s, ok := g.statuses[transactionID]
    if !ok {
        return cinetpay.PaymentStatus{TransactionID: transactionID, ErrorMessage: "TRANSACTION_NOT_FOUND"}, nil
    }
    return s, nil
}

type recordingPublisher struct {
    mu  sync.Mutex
    got []store.Transaction
    err error
}

func (p *recordingPublisher) PublishDonationSettled(_ context.Context, tx store.Transaction) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.got = append(p.got, tx)
    return p.err
}

var errBoom = errors.New("boom")
