package store

import (
    "context"
    "errors"

    "github.com/jackc/pgx/v5"
    "github.com/shopspring/decimal"
)

const payoutColumns = `id, artist_id, amount, status, mobile_money_number, rejection_reason, requested_at, processed_at`

func scanPayout(row rowScanner) (PayoutRequest, error) {
    var p PayoutRequest
    err := row.Scan(
        &p.ID,
        &p.ArtistID,
        &p.Amount,
        &p.Status,
        &p.MobileMoneyNumber,
        &p.RejectionReason,
        &p.RequestedAt,
        &p.ProcessedAt,
    )
    return p, err
}

// lockBalance returns the available balance of an artist with the row held until the
// transaction ends. An artist without a balance row has nothing to withdraw.
func lockBalance(ctx context.Context, tx pgx.Tx, artistID string) (decimal.Decimal, error) {
    var available decimal.Decimal
    err := tx.QueryRow(ctx, `
        SELECT available_balance
        FROM artist_balances
        WHERE artist_id = $1
        FOR UPDATE
    `, artistID).Scan(&available)
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return decimal.Zero, nil
        }
        return decimal.Decimal{}, err
    }
    return available, nil
}

func (s *Store) CreatePayoutRequest(ctx context.Context, input CreatePayoutInput) (PayoutRequest, error) {
    if !validID(input.ArtistID) {
        return PayoutRequest{}, ErrArtistNotFound
    }

    tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return PayoutRequest{}, err
    }
    defer func() {
        _ = tx.Rollback(ctx)
    }()

    available, err := lockBalance(ctx, tx, input.ArtistID)
    if err != nil {
        return PayoutRequest{}, err
    }

    var reserved decimal.Decimal
    err = tx.QueryRow(ctx, `
        SELECT COALESCE(SUM(amount), 0)
        FROM payout_requests
        WHERE artist_id = $1 AND status = $2
    `, input.ArtistID, PayoutStatusPending).Scan(&reserved)
    if err != nil {
        return PayoutRequest{}, err
    }

    if input.Amount.Add(reserved).GreaterThan(available) {
        return PayoutRequest{}, ErrInsufficientBalance
    }

    created, err := scanPayout(tx.QueryRow(ctx, `
        INSERT INTO payout_requests (id, artist_id, amount, status, mobile_money_number)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING `+payoutColumns,
        newID(),
        input.ArtistID,
        input.Amount,
        PayoutStatusPending,
        input.MobileMoneyNumber,
    ))
    if err != nil {
        return PayoutRequest{}, err
    }

    _, err = insertAdminEvent(ctx, tx, AdminEventInput{
        EventType:   EventPayoutRequested,
        ReferenceID: created.ID,
        ActorID:     input.ArtistID,
        Metadata: map[string]any{
            "amount": created.Amount.String(),
        },
    })
    if err != nil {
        return PayoutRequest{}, err
    }

    if err := tx.Commit(ctx); err != nil {
        return PayoutRequest{}, err
    }
    return created, nil
}

func (s *Store) GetPayoutRequest(ctx context.Context, id string) (PayoutRequest, error) {
    if !validID(id) {
        return PayoutRequest{}, ErrNotFound
    }
    p, err := scanPayout(s.pool.QueryRow(ctx, `
        SELECT `+payoutColumns+`
        FROM payout_requests
        WHERE id = $1
    `, id))
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return PayoutRequest{}, ErrNotFound
        }
        return PayoutRequest{}, err
    }
    return p, nil
}

func (s *Store) ListPayoutsByArtist(ctx context.Context, artistID string, limit int) ([]PayoutRequest, error) {
    if !validID(artistID) {
        return nil, nil
    }
    rows, err := s.pool.Query(ctx, `
        SELECT `+payoutColumns+`
        FROM payout_requests
        WHERE artist_id = $1
        ORDER BY requested_at DESC
        LIMIT $2
    `, artistID, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var out []PayoutRequest
    for rows.Next() {
        p, err := scanPayout(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, p)
    }
    return out, rows.Err()
}

func (s *Store) ApprovePayout(ctx context.Context, id, adminID string) (PayoutRequest, error) {
    return s.transitionPayout(ctx, id, adminID, PayoutStatusPending, PayoutStatusApproved, "")
}

func (s *Store) RejectPayout(ctx context.Context, id, adminID, reason string) (PayoutRequest, error) {
    return s.transitionPayout(ctx, id, adminID, PayoutStatusPending, PayoutStatusRejected, reason)
}

func (s *Store) MarkPayoutPaid(ctx context.Context, id, adminID string) (PayoutRequest, error) {
    return s.transitionPayout(ctx, id, adminID, PayoutStatusApproved, PayoutStatusPaid, "")
}

var payoutEvents = map[string]string{
    PayoutStatusApproved: EventPayoutApproved,
    PayoutStatusRejected: EventPayoutRejected,
    PayoutStatusPaid:     EventPayoutPaid,
}

// transitionPayout moves a payout request from one status to the next. Repeating a
// transition that already happened returns the request unchanged. Approval debits the
// artist balance in the same transaction.
func (s *Store) transitionPayout(ctx context.Context, id, adminID, from, to, reason string) (PayoutRequest, error) {
    if !validID(id) {
        return PayoutRequest{}, ErrNotFound
    }

    tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return PayoutRequest{}, err
    }
    defer func() {
        _ = tx.Rollback(ctx)
    }()

    p, err := scanPayout(tx.QueryRow(ctx, `
        SELECT `+payoutColumns+`
        FROM payout_requests
        WHERE id = $1
        FOR UPDATE
    `, id))
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return PayoutRequest{}, ErrNotFound
        }
        return PayoutRequest{}, err
    }

    if p.Status == to {
        if err := tx.Commit(ctx); err != nil {
            return PayoutRequest{}, err
        }
        return p, nil
    }
    if p.Status != from {
        return PayoutRequest{}, ErrInvalidStatus
    }

    if to == PayoutStatusApproved {
        available, err := lockBalance(ctx, tx, p.ArtistID)
        if err != nil {
            return PayoutRequest{}, err
        }
        if p.Amount.GreaterThan(available) {
            return PayoutRequest{}, ErrInsufficientBalance
        }
        _, err = tx.Exec(ctx, `
            UPDATE artist_balances
            SET available_balance = available_balance - $1,
                total_withdrawn = total_withdrawn + $1,
                updated_at = NOW()
            WHERE artist_id = $2
        `, p.Amount, p.ArtistID)
        if err != nil {
            return PayoutRequest{}, err
        }
    }

    updated, err := scanPayout(tx.QueryRow(ctx, `
        UPDATE payout_requests
        SET status = $2, rejection_reason = COALESCE($3, rejection_reason), processed_at = NOW()
        WHERE id = $1
        RETURNING `+payoutColumns,
        id,
        to,
        nullString(reason),
    ))
    if err != nil {
        return PayoutRequest{}, err
    }

    metadata := map[string]any{
        "amount":      updated.Amount.String(),
        "artist_id":   updated.ArtistID,
        "from_status": from,
    }
    if reason != "" {
        metadata["reason"] = reason
    }
    _, err = insertAdminEvent(ctx, tx, AdminEventInput{
        EventType:   payoutEvents[to],
        ReferenceID: updated.ID,
        ActorID:     adminID,
        Metadata:    metadata,
    })
    if err != nil {
        return PayoutRequest{}, err
    }

    if err := tx.Commit(ctx); err != nil {
        return PayoutRequest{}, err
    }
    return updated, nil
}
