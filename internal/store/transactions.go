package store

import (
    "context"
    "errors"

    "github.com/jackc/pgx/v5"
)

const transactionColumns = `id, payment_attempt_id, artist_id, gross_amount, platform_fee, provider_fee, net_amount, currency, donor_name, provider_reference, created_at`

func scanTransaction(row rowScanner) (Transaction, error) {
    var t Transaction
    err := row.Scan(
        &t.ID,
        &t.PaymentAttemptID,
        &t.ArtistID,
        &t.GrossAmount,
        &t.PlatformFee,
        &t.ProviderFee,
        &t.NetAmount,
        &t.Currency,
        &t.DonorName,
        &t.ProviderReference,
        &t.CreatedAt,
    )
    return t, err
}

func (s *Store) GetTransactionByProviderReference(ctx context.Context, reference string) (Transaction, error) {
    t, err := scanTransaction(s.pool.QueryRow(ctx, `
        SELECT `+transactionColumns+`
        FROM transactions
        WHERE provider_reference = $1
    `, reference))
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return Transaction{}, ErrNotFound
        }
        return Transaction{}, err
    }
    return t, nil
}

// SettleTransaction records a settled payment, credits the artist balance with the
// net amount and marks the originating attempt successful, all in one unit. A second
// settlement for the same provider reference or attempt returns ErrDuplicateTransaction
// and changes nothing.
func (s *Store) SettleTransaction(ctx context.Context, input SettleTransactionInput) (Transaction, error) {
    tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return Transaction{}, err
    }
    defer func() {
        _ = tx.Rollback(ctx)
    }()

    created, err := scanTransaction(tx.QueryRow(ctx, `
        INSERT INTO transactions (
            id, payment_attempt_id, artist_id, gross_amount, platform_fee,
            provider_fee, net_amount, currency, donor_name, provider_reference
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING `+transactionColumns,
        newID(),
        input.PaymentAttemptID,
        input.ArtistID,
        input.GrossAmount,
        input.PlatformFee,
        input.ProviderFee,
        input.NetAmount,
        input.Currency,
        input.DonorName,
        input.ProviderReference,
    ))
    if err != nil {
        if isUniqueViolation(err) {
            return Transaction{}, ErrDuplicateTransaction
        }
        return Transaction{}, err
    }

    _, err = tx.Exec(ctx, `
        INSERT INTO artist_balances (artist_id, available_balance, total_earned, total_withdrawn)
        VALUES ($1, $2, $2, 0)
        ON CONFLICT (artist_id) DO UPDATE
        SET available_balance = artist_balances.available_balance + EXCLUDED.available_balance,
            total_earned = artist_balances.total_earned + EXCLUDED.total_earned,
            updated_at = NOW()
    `, input.ArtistID, input.NetAmount)
    if err != nil {
        return Transaction{}, err
    }

    if input.PaymentAttemptID != nil {
        if err := markAttemptSucceeded(ctx, tx, *input.PaymentAttemptID, input.ProviderReference); err != nil {
            return Transaction{}, err
        }
    }

    if err := tx.Commit(ctx); err != nil {
        if isUniqueViolation(err) {
            return Transaction{}, ErrDuplicateTransaction
        }
        return Transaction{}, err
    }

    return created, nil
}

func (s *Store) ListTransactionsByArtist(ctx context.Context, artistID string, limit int) ([]Transaction, error) {
    if !validID(artistID) {
        return nil, nil
    }
    rows, err := s.pool.Query(ctx, `
        SELECT `+transactionColumns+`
        FROM transactions
        WHERE artist_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `, artistID, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var out []Transaction
    for rows.Next() {
        t, err := scanTransaction(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, t)
    }
    return out, rows.Err()
}

func (s *Store) GetBalance(ctx context.Context, artistID string) (ArtistBalance, error) {
    if !validID(artistID) {
        return ArtistBalance{ArtistID: artistID}, nil
    }
    var b ArtistBalance
    err := s.pool.QueryRow(ctx, `
        SELECT artist_id, available_balance, total_earned, total_withdrawn, updated_at
        FROM artist_balances
        WHERE artist_id = $1
    `, artistID).Scan(
        &b.ArtistID,
        &b.AvailableBalance,
        &b.TotalEarned,
        &b.TotalWithdrawn,
        &b.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return ArtistBalance{ArtistID: artistID}, nil
        }
        return ArtistBalance{}, err
    }
    return b, nil
}
