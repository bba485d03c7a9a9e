package cache

import (
	"context"
	"sync"
	"time"

	"github.com/plchld/news-copilot/internal/pkg/logger"
)

// MemoryStore is the in-process session cache. Entries expire after the
// configured TTL; expiry is enforced lazily on Get and by a background
// sweep so abandoned sessions do not accumulate.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	ttl    time.Duration
	logger *logger.Logger

	stopSweep chan struct{}
	closeOnce sync.Once
}

type memoryEntry struct {
	entry     *Entry
	expiresAt time.Time
}

func NewMemoryStore(ttl, sweepInterval time.Duration, log *logger.Logger) *MemoryStore {
	store := &MemoryStore{
		entries:   make(map[string]memoryEntry),
		ttl:       ttl,
		logger:    log,
		stopSweep: make(chan struct{}),
	}

	if sweepInterval > 0 {
		go store.sweep(sweepInterval)
	}

	return store
}

func (s *MemoryStore) Put(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	s.entries[entry.SessionID] = memoryEntry{
		entry:     entry,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	s.logger.Debug("session cached",
		"session_id", entry.SessionID,
		"core_results", len(entry.CoreResults),
		"ttl", s.ttl.String(),
	)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*Entry, error) {
	s.mu.RLock()
	me, ok := s.entries[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	if time.Now().After(me.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have
		// refreshed the session.
		if current, still := s.entries[sessionID]; still && time.Now().After(current.expiresAt) {
			delete(s.entries, sessionID)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	return me.entry, nil
}

func (s *MemoryStore) Evict(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopSweep)
	})
	return nil
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := s.sweepOnce(time.Now())
			if removed > 0 {
				s.logger.Debug("session cache sweep", "removed", removed)
			}
		case <-s.stopSweep:
			return
		}
	}
}

func (s *MemoryStore) sweepOnce(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sessionID, me := range s.entries {
		if now.After(me.expiresAt) {
			delete(s.entries, sessionID)
			removed++
		}
	}
	return removed
}
