package catalog

import (
	"context"
	"time"

	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

// CacheKey gates catalog freshness
const CacheKey = "model_list"

// CacheEntry is a value that is only usable while now < ExpiresAt
type CacheEntry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

// Valid reports whether the entry may still be served at now
func (e CacheEntry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Store persists the cached listing and the model -> group table.
// ReplaceModels must be atomic: readers observe either the previous or the
// new set of rows, never a mix.
type Store interface {
	GetCache(ctx context.Context, key string) ([]byte, bool, error)
	PutCache(ctx context.Context, key string, value []byte, ttl time.Duration) error
	ReplaceModels(ctx context.Context, records []models.ModelRecord) error
	FindGroup(ctx context.Context, modelID string) (string, bool, error)
	ListModels(ctx context.Context) ([]models.ModelRecord, error)
	Close() error
}

// Clock returns the current time; stores take one so expiry is testable
type Clock func() time.Time
