package store

import (
    "context"
    "errors"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
)

const attemptColumns = `id, artist_id, device_id, amount, currency, donor_name, status, cinetpay_reference, created_at, updated_at`

func newID() string {
    return uuid.NewString()
}

// validID guards uuid columns so malformed ids read as missing rows.
func validID(id string) bool {
    _, err := uuid.Parse(id)
    return err == nil
}

func scanAttempt(row rowScanner) (PaymentAttempt, error) {
    var a PaymentAttempt
    err := row.Scan(
        &a.ID,
        &a.ArtistID,
        &a.DeviceID,
        &a.Amount,
        &a.Currency,
        &a.DonorName,
        &a.Status,
        &a.CinetpayReference,
        &a.CreatedAt,
        &a.UpdatedAt,
    )
    return a, err
}

func (s *Store) CreatePaymentAttempt(ctx context.Context, input CreatePaymentAttemptInput) (PaymentAttempt, error) {
    a, err := scanAttempt(s.pool.QueryRow(ctx, `
        INSERT INTO payment_attempts (id, artist_id, device_id, amount, currency, donor_name, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING `+attemptColumns,
        newID(),
        input.ArtistID,
        input.DeviceID,
        input.Amount,
        input.Currency,
        input.DonorName,
        AttemptStatusInitiated,
    ))
    if err != nil {
        return PaymentAttempt{}, err
    }
    return a, nil
}

func (s *Store) GetPaymentAttempt(ctx context.Context, id string) (PaymentAttempt, error) {
    if !validID(id) {
        return PaymentAttempt{}, ErrNotFound
    }
    a, err := scanAttempt(s.pool.QueryRow(ctx, `
        SELECT `+attemptColumns+`
        FROM payment_attempts
        WHERE id = $1
    `, id))
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return PaymentAttempt{}, ErrNotFound
        }
        return PaymentAttempt{}, err
    }
    return a, nil
}

func (s *Store) MarkAttemptPending(ctx context.Context, id, reference string) (PaymentAttempt, error) {
    a, err := scanAttempt(s.pool.QueryRow(ctx, `
        UPDATE payment_attempts
        SET status = $2, cinetpay_reference = $3, updated_at = NOW()
        WHERE id = $1 AND status = $4
        RETURNING `+attemptColumns,
        id,
        AttemptStatusPending,
        nullString(reference),
        AttemptStatusInitiated,
    ))
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            if _, gerr := s.GetPaymentAttempt(ctx, id); gerr != nil {
                return PaymentAttempt{}, gerr
            }
            return PaymentAttempt{}, ErrInvalidStatus
        }
        return PaymentAttempt{}, err
    }
    return a, nil
}

// MarkAttemptFailed never touches an attempt that already settled.
func (s *Store) MarkAttemptFailed(ctx context.Context, id string) error {
    if !validID(id) {
        return nil
    }
    _, err := s.pool.Exec(ctx, `
        UPDATE payment_attempts
        SET status = $2, updated_at = NOW()
        WHERE id = $1 AND status IN ($3, $4)
    `, id, AttemptStatusFailed, AttemptStatusInitiated, AttemptStatusPending)
    return err
}

func (s *Store) MarkAttemptSucceeded(ctx context.Context, id, providerPaymentID string) error {
    return markAttemptSucceeded(ctx, s.pool, id, providerPaymentID)
}

func markAttemptSucceeded(ctx context.Context, q queryer, id, providerPaymentID string) error {
    if !validID(id) {
        return ErrNotFound
    }
    var status string
    err := q.QueryRow(ctx, `
        UPDATE payment_attempts
        SET status = $2, cinetpay_reference = $3, updated_at = NOW()
        WHERE id = $1
        RETURNING status
    `, id, AttemptStatusSuccess, providerPaymentID).Scan(&status)
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return ErrNotFound
        }
        return err
    }
    return nil
}

func (s *Store) ListAttemptsByDevice(ctx context.Context, deviceID string, limit int) ([]DonationHistoryEntry, error) {
    rows, err := s.pool.Query(ctx, `
        SELECT pa.id, pa.artist_id, pa.device_id, pa.amount, pa.currency, pa.donor_name,
               pa.status, pa.cinetpay_reference, pa.created_at, pa.updated_at,
               COALESCE(ar.stage_name, '')
        FROM payment_attempts pa
        LEFT JOIN artists ar ON ar.id = pa.artist_id
        WHERE pa.device_id = $1
        ORDER BY pa.created_at DESC
        LIMIT $2
    `, deviceID, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var entries []DonationHistoryEntry
    for rows.Next() {
        var e DonationHistoryEntry
        if err := rows.Scan(
            &e.ID,
            &e.ArtistID,
            &e.DeviceID,
            &e.Amount,
            &e.Currency,
            &e.DonorName,
            &e.Status,
            &e.CinetpayReference,
            &e.CreatedAt,
            &e.UpdatedAt,
            &e.ArtistStageName,
        ); err != nil {
            return nil, err
        }
        entries = append(entries, e)
    }
    return entries, rows.Err()
}
