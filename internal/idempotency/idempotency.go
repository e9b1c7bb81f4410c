package idempotency

import (
    "context"
    "encoding/json"
    "errors"
    "time"
)

var ErrNotFound = errors.New("idempotency key not found")

// Response is the replayable outcome of the first request made with a key.
type Response struct {
    Status int             `json:"status"`
    Body   json.RawMessage `json:"body"`
}

// Entry is the state held under a key. Pending means the first request has reserved
// the key and not finished yet.
type Entry struct {
    Pending  bool
    Response Response
}

// Store de-duplicates requests carrying the same client key.
//
// Reserve returns true only for the first caller. Complete stores the response that
// later callers replay. Release drops the reservation so the client may retry.
type Store interface {
    Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
    Complete(ctx context.Context, key string, resp Response, ttl time.Duration) error
    Get(ctx context.Context, key string) (Entry, error)
    Release(ctx context.Context, key string) error
    Close() error
}

const pendingMarker = "pending"

type record struct {
    State    string   `json:"state"`
    Response Response `json:"response"`
}

func encodeCompleted(resp Response) ([]byte, error) {
    return json.Marshal(record{State: "done", Response: resp})
}

func decodeEntry(raw []byte) (Entry, error) {
    if string(raw) == pendingMarker {
        return Entry{Pending: true}, nil
    }
    var r record
    if err := json.Unmarshal(raw, &r); err != nil {
        return Entry{}, err
    }
    return Entry{Response: r.Response}, nil
}
