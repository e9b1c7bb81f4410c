package store

import (
    "context"
    "encoding/json"
    "errors"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
    pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
    return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
    return s.pool.Ping(ctx)
}

type rowScanner interface {
    Scan(dest ...any) error
}

func (s *Store) GetArtist(ctx context.Context, id string) (Artist, error) {
    if !validID(id) {
        return Artist{}, ErrArtistNotFound
    }
    var a Artist
    err := s.pool.QueryRow(ctx, `
        SELECT id, stage_name, is_verified, created_at
        FROM artists
        WHERE id = $1
    `, id).Scan(
        &a.ID,
        &a.StageName,
        &a.IsVerified,
        &a.CreatedAt,
    )
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return Artist{}, ErrArtistNotFound
        }
        return Artist{}, err
    }
    return a, nil
}

func (s *Store) AppendAdminEvent(ctx context.Context, input AdminEventInput) (AdminEvent, error) {
    return insertAdminEvent(ctx, s.pool, input)
}

func (s *Store) ListAdminEvents(ctx context.Context, referenceID string) ([]AdminEvent, error) {
    rows, err := s.pool.Query(ctx, `
        SELECT id, event_type, reference_id, actor_id, description, metadata, created_at
        FROM admin_events
        WHERE reference_id = $1
        ORDER BY created_at, id
    `, referenceID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var events []AdminEvent
    for rows.Next() {
        var e AdminEvent
        var metadata []byte
        if err := rows.Scan(
            &e.ID,
            &e.EventType,
            &e.ReferenceID,
            &e.ActorID,
            &e.Description,
            &metadata,
            &e.CreatedAt,
        ); err != nil {
            return nil, err
        }
        if len(metadata) > 0 {
            if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
                return nil, err
            }
        }
        events = append(events, e)
    }
    return events, rows.Err()
}

type queryer interface {
    QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAdminEvent(ctx context.Context, q queryer, input AdminEventInput) (AdminEvent, error) {
    var metadata []byte
    if len(input.Metadata) > 0 {
        data, err := json.Marshal(input.Metadata)
        if err != nil {
            return AdminEvent{}, err
        }
        metadata = data
    }

    var e AdminEvent
    err := q.QueryRow(ctx, `
        INSERT INTO admin_events (id, event_type, reference_id, actor_id, description, metadata)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, event_type, reference_id, actor_id, description, created_at
    `,
        newID(),
        input.EventType,
        nullString(input.ReferenceID),
        nullString(input.ActorID),
        nullString(input.Description),
        metadata,
    ).Scan(
        &e.ID,
        &e.EventType,
        &e.ReferenceID,
        &e.ActorID,
        &e.Description,
        &e.CreatedAt,
    )
    if err != nil {
        return AdminEvent{}, err
    }
    e.Metadata = input.Metadata
    return e, nil
}

func nullString(s string) *string {
    if s == "" {
        return nil
    }
    return &s
}

func isUniqueViolation(err error) bool {
    var pgErr *pgconn.PgError
    if !errors.As(err, &pgErr) {
        return false
    }
    return pgErr.Code == "23505"
}
