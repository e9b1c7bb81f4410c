package payment

import (
    "context"
    "fmt"
    "sync"
    "testing"

    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "go.uber.org/zap/zaptest/observer"

    "afrisens.dev/settlement/internal/cinetpay"
    "afrisens.dev/settlement/internal/fees"
    "afrisens.dev/settlement/internal/store"
)

type confirmEnv struct {
    store     *memStore
    gateway   *fakeGateway
    publisher *recordingPublisher
    logs      *observer.ObservedLogs
    confirmer *Confirmer
}

func newConfirmEnv(t *testing.T) *confirmEnv {
    t.Helper()

    core, logs := observer.New(zapcore.InfoLevel)
    env := &confirmEnv{
        store:     newMemStore(),
        gateway:   newFakeGateway(),
        publisher: &recordingPublisher{},
        logs:      logs,
    }
    env.store.addArtist("artist-1", "Chorale Bethel", true)
    env.confirmer = NewConfirmer(env.store, env.gateway, fees.Default(), env.publisher, zap.New(core))
    return env
}

// pendingAttempt runs a real initiation so the attempt looks like production data.
func (e *confirmEnv) pendingAttempt(t *testing.T, amount string) string {
    t.Helper()

    in := NewInitiator(e.store, e.gateway, InitiatorConfig{Currency: "XOF", ReturnURLBase: "afrisens://payment-return/"}, nil)
    res, err := in.Initiate(context.Background(), InitiateRequest{
        ArtistID: "artist-1",
        DeviceID: "device-1",
        Amount:   decimal.RequireFromString(amount),
    })
    require.NoError(t, err)
    return res.AttemptID
}

func confirmation(attemptID, payID, amount string) Notification {
    return Notification{
        PageAction:    ActionPaymentConfirmation,
        TransactionID: attemptID,
        PaymentID:     payID,
        Amount:        amount,
        Currency:      "XOF",
    }
}

func TestConfirmSettlesTenDonation(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")
    assert.Equal(t, store.AttemptStatusPending, env.store.attempt(attemptID).Status)

    env.gateway.accept(attemptID, "P1", "10")

    res, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeSettled, res.Outcome)
    assert.NotEmpty(t, res.TransactionID)

    tx := env.store.transactions["P1"]
    assert.Equal(t, res.TransactionID, tx.ID)
    assert.True(t, tx.GrossAmount.Equal(decimal.RequireFromString("10")))
    assert.True(t, tx.PlatformFee.Equal(decimal.RequireFromString("0.5")))
    assert.True(t, tx.ProviderFee.Equal(decimal.RequireFromString("0.25")))
    assert.True(t, tx.NetAmount.Equal(decimal.RequireFromString("9.25")))
    assert.Equal(t, "artist-1", tx.ArtistID)
    require.NotNil(t, tx.PaymentAttemptID)
    assert.Equal(t, attemptID, *tx.PaymentAttemptID)

    attempt := env.store.attempt(attemptID)
    assert.Equal(t, store.AttemptStatusSuccess, attempt.Status)
    assert.Equal(t, "P1", *attempt.CinetpayReference)

    require.Len(t, env.store.events, 1)
    event := env.store.events[0]
    assert.Equal(t, store.EventPaymentConfirmed, event.EventType)
    assert.Equal(t, tx.ID, event.ReferenceID)
    assert.Equal(t, "P1", event.Metadata["provider_reference"])
    assert.Equal(t, "OM", event.Metadata["payment_method"])
    assert.Equal(t, "9.25", event.Metadata["net_amount"])

    require.Len(t, env.publisher.got, 1)
    assert.Equal(t, tx.ID, env.publisher.got[0].ID)
    assert.Equal(t, 1, env.logs.FilterMessage("payment_settled").Len())
}

func TestConfirmIsIdempotent(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")
    env.gateway.accept(attemptID, "P1", "10")

    first, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    require.NoError(t, err)

    for i := 0; i < 3; i++ {
        res, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
        require.NoError(t, err)
        assert.Equal(t, OutcomeAlreadySettled, res.Outcome)
        assert.Equal(t, first.TransactionID, res.TransactionID)
    }

    assert.Equal(t, 1, env.store.transactionCount())
    assert.Equal(t, store.AttemptStatusSuccess, env.store.attempt(attemptID).Status)
    assert.True(t, env.store.balances["artist-1"].Equal(decimal.RequireFromString("9.25")))
    assert.Len(t, env.store.events, 1)
    assert.Equal(t, 3, env.logs.FilterMessage("payment_already_settled").Len())
}

func TestConfirmDuplicateInsertIsAlreadySettled(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "1000")
    env.gateway.accept(attemptID, "P9", "1000")

    _, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P9", "1000"))
    require.NoError(t, err)

    env.store.hideExisting = true
    res, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P9", "1000"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeAlreadySettled, res.Outcome)
    assert.Equal(t, 1, env.store.transactionCount())
}

func TestConfirmConcurrentDeliveries(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "2500")
    env.gateway.accept(attemptID, "P-concurrent", "2500")

    var wg sync.WaitGroup
    outcomes := make(chan Outcome, 10)
    for i := 0; i < 10; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            res, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P-concurrent", "2500"))
            assert.NoError(t, err)
            outcomes <- res.Outcome
        }()
    }
    wg.Wait()
    close(outcomes)

    settled := 0
    for o := range outcomes {
        if o == OutcomeSettled {
            settled++
        }
    }
    assert.Equal(t, 1, settled)
    assert.Equal(t, 1, env.store.transactionCount())
}

func TestConfirmIgnoresOtherActions(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")

    res, err := env.confirmer.Confirm(context.Background(), Notification{PageAction: "PAYMENT_REFUND", TransactionID: attemptID})
    require.NoError(t, err)
    assert.Equal(t, OutcomeIgnored, res.Outcome)
    assert.Equal(t, 0, env.gateway.statusCalls)
    assert.Equal(t, store.AttemptStatusPending, env.store.attempt(attemptID).Status)
}

func TestConfirmNeverTrustsNotification(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")
    env.gateway.setStatus(attemptID, cinetpay.PaymentStatus{
        ResultCode:  "00",
        TransStatus: "PENDING",
    })

    res, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeNotAccepted, res.Outcome)
    assert.Equal(t, 0, env.store.transactionCount())
    assert.Equal(t, store.AttemptStatusPending, env.store.attempt(attemptID).Status)

    entries := env.logs.FilterMessage("payment_not_accepted").All()
    require.Len(t, entries, 1)
    assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
    assert.Equal(t, 0, env.logs.FilterMessage("settlement_failed").Len())
}

func TestConfirmRefusedMarksAttemptFailed(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")
    env.gateway.setStatus(attemptID, cinetpay.PaymentStatus{
        ResultCode:  "00",
        TransStatus: cinetpay.StatusRefused,
    })

    res, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeRefused, res.Outcome)
    assert.Equal(t, store.AttemptStatusFailed, env.store.attempt(attemptID).Status)
    assert.Equal(t, 0, env.store.transactionCount())
}

func TestConfirmRefusedNeverDowngradesSettledAttempt(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")
    env.gateway.accept(attemptID, "P1", "10")
    _, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    require.NoError(t, err)

    env.gateway.setStatus(attemptID, cinetpay.PaymentStatus{ResultCode: "00", TransStatus: cinetpay.StatusCanceled})
    _, err = env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    require.NoError(t, err)
    assert.Equal(t, store.AttemptStatusSuccess, env.store.attempt(attemptID).Status)
}

func TestConfirmUnknownAttempt(t *testing.T) {
    env := newConfirmEnv(t)
    env.gateway.accept("ghost", "P404", "10")

    _, err := env.confirmer.Confirm(context.Background(), confirmation("ghost", "P404", "10"))
    assert.ErrorIs(t, err, ErrUnknownAttempt)
    assert.Equal(t, 0, env.store.transactionCount())
    assert.Equal(t, 1, env.logs.FilterMessage("payment_attempt_unknown").Len())
}

func TestConfirmMissingTransactionID(t *testing.T) {
    env := newConfirmEnv(t)

    _, err := env.confirmer.Confirm(context.Background(), Notification{PageAction: ActionPaymentConfirmation})
    assert.ErrorIs(t, err, ErrMissingTransactionID)
}

func TestConfirmProviderUnavailable(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")
    env.gateway.statusErr = fmt.Errorf("%w: timeout", cinetpay.ErrProviderUnavailable)

    _, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    assert.ErrorIs(t, err, ErrVerificationFailed)
    assert.ErrorIs(t, err, cinetpay.ErrProviderUnavailable)
    assert.Equal(t, store.AttemptStatusPending, env.store.attempt(attemptID).Status)
}

func TestConfirmUsesVerifiedAmount(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")
    env.gateway.accept(attemptID, "P1", "6550")

    _, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "999999"))
    require.NoError(t, err)

    tx := env.store.transactions["P1"]
    assert.True(t, tx.GrossAmount.Equal(decimal.RequireFromString("6550")))
    assert.Equal(t, 1, env.logs.FilterMessage("payment_amount_drift").Len())
}

func TestConfirmSettlementFailureIsError(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")
    env.gateway.accept(attemptID, "P1", "10")
    env.store.failSettle = errBoom

    _, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    assert.ErrorIs(t, err, errBoom)

    entries := env.logs.FilterMessage("settlement_failed").All()
    require.Len(t, entries, 1)
    assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)

    env.store.failSettle = nil
    res, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeSettled, res.Outcome)
}

func TestConfirmAuditFailureKeepsTransaction(t *testing.T) {
    env := newConfirmEnv(t)
    attemptID := env.pendingAttempt(t, "10")
    env.gateway.accept(attemptID, "P1", "10")
    env.store.failAudit = errBoom
    env.publisher.err = errBoom

    res, err := env.confirmer.Confirm(context.Background(), confirmation(attemptID, "P1", "10"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeSettled, res.Outcome)
    assert.Equal(t, 1, env.store.transactionCount())
    assert.Equal(t, 1, env.logs.FilterMessage("audit_event_failed").Len())
    assert.Equal(t, 1, env.logs.FilterMessage("settlement_publish_failed").Len())
}
