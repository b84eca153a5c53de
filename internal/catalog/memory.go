package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

// MemoryStore keeps the catalog in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	cache  map[string]CacheEntry
	models []models.ModelRecord
	byID   map[string]string
	now    Clock
}

// NewMemoryStore creates an empty in-memory store. now may be nil.
func NewMemoryStore(now Clock) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		cache: make(map[string]CacheEntry),
		byID:  make(map[string]string),
		now:   now,
	}
}

func (s *MemoryStore) GetCache(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok || !entry.Valid(s.now()) {
		return nil, false, nil
	}
	return append([]byte(nil), entry.Value...), true, nil
}

func (s *MemoryStore) PutCache(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = CacheEntry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		ExpiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) ReplaceModels(_ context.Context, records []models.ModelRecord) error {
	rows := make([]models.ModelRecord, 0, len(records))
	byID := make(map[string]string, len(records))
	for _, r := range records {
		if _, dup := byID[r.ID]; dup {
			continue
		}
		byID[r.ID] = r.Group
		rows = append(rows, r)
	}

	s.mu.Lock()
	s.models = rows
	s.byID = byID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FindGroup(_ context.Context, modelID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.byID[modelID]
	return g, ok, nil
}

func (s *MemoryStore) ListModels(_ context.Context) ([]models.ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.ModelRecord(nil), s.models...), nil
}

func (s *MemoryStore) Close() error { return nil }
