package idempotency

import (
    "context"
    "sync"
    "time"
)

type memEntry struct {
    value     []byte
    expiresAt time.Time
}

// MemoryStore is the single-instance fallback used when no Redis address is configured.
type MemoryStore struct {
    mu        sync.Mutex
    entries   map[string]memEntry
    now       func() time.Time
    stop      chan struct{}
    wg        sync.WaitGroup
    closeOnce sync.Once
}

// NewMemoryStore starts a janitor that drops expired keys every interval.
func NewMemoryStore(interval time.Duration) *MemoryStore {
    s := &MemoryStore{
        entries: make(map[string]memEntry),
        now:     time.Now,
        stop:    make(chan struct{}),
    }
    if interval <= 0 {
        interval = time.Minute
    }
    s.wg.Add(1)
    go s.janitor(interval)
    return s
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if e, ok := s.entries[key]; ok && s.now().Before(e.expiresAt) {
        return false, nil
    }
    s.entries[key] = memEntry{value: []byte(pendingMarker), expiresAt: s.now().Add(ttl)}
    return true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, resp Response, ttl time.Duration) error {
    raw, err := encodeCompleted(resp)
    if err != nil {
        return err
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    s.entries[key] = memEntry{value: raw, expiresAt: s.now().Add(ttl)}
    return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
    s.mu.Lock()
    e, ok := s.entries[key]
    s.mu.Unlock()

    if !ok || !s.now().Before(e.expiresAt) {
        return Entry{}, ErrNotFound
    }
    return decodeEntry(e.value)
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    delete(s.entries, key)
    return nil
}

// Len counts stored keys, expired ones included until the janitor runs.
func (s *MemoryStore) Len() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.entries)
}

func (s *MemoryStore) Close() error {
    s.closeOnce.Do(func() {
        close(s.stop)
        s.wg.Wait()
    })
    return nil
}

func (s *MemoryStore) janitor(interval time.Duration) {
    defer s.wg.Done()
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    for {
        select {
        case <-s.stop:
            return
        case <-ticker.C:
            s.purgeExpired()
        }
    }
}

func (s *MemoryStore) purgeExpired() {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := s.now()
    for k, e := range s.entries {
        if !now.Before(e.expiresAt) {
            delete(s.entries, k)
        }
    }
}

var _ Store = (*MemoryStore)(nil)
