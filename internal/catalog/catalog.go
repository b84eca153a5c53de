package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/shehryarbajwa/browserbase-chat/internal/metrics"
	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

// Source produces a fresh model list
type Source interface {
	Refresh(ctx context.Context) ([]models.ModelRecord, error)
}

type snapshot struct {
	models []models.ModelRecord
	byID   map[string]string
}

func newSnapshot(recs []models.ModelRecord) *snapshot {
	s := &snapshot{
		models: recs,
		byID:   make(map[string]string, len(recs)),
	}
	for _, r := range recs {
		s.byID[r.ID] = r.Group
	}
	return s
}

// Catalog serves the model list from an immutable snapshot and refreshes it
// through Source when the cache entry expires or a model is missing.
type Catalog struct {
	store  Store
	source Source
	ttl    time.Duration
	log    zerolog.Logger

	current atomic.Pointer[snapshot]
	flight  singleflight.Group
}

// New creates a catalog. ttl is how long a refresh stays fresh.
func New(store Store, source Source, ttl time.Duration, log zerolog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		source: source,
		ttl:    ttl,
		log:    log.With().Str("component", "catalog").Logger(),
	}
}

// Warm publishes the rows persisted by a previous process
func (c *Catalog) Warm(ctx context.Context) error {
	recs, err := c.store.ListModels(ctx)
	if err != nil {
		return err
	}
	c.publish(recs)
	c.log.Info().Int("models", len(recs)).Msg("catalog warmed from store")
	return nil
}

func (c *Catalog) publish(recs []models.ModelRecord) {
	c.current.Store(newSnapshot(recs))
	metrics.CatalogModels.Set(float64(len(recs)))
}

func (c *Catalog) models() []models.ModelRecord {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	return append([]models.ModelRecord(nil), snap.models...)
}

// GetModelsList returns the cached catalog while it is fresh, otherwise it
// refreshes. A failed refresh falls back to the previous snapshot when there
// is one.
func (c *Catalog) GetModelsList(ctx context.Context, forceRefresh bool) ([]models.ModelRecord, error) {
	if !forceRefresh {
		_, fresh, err := c.store.GetCache(ctx, CacheKey)
		if err != nil {
			c.log.Warn().Err(err).Msg("cache read failed")
		}
		if fresh {
			if recs := c.models(); len(recs) > 0 {
				return recs, nil
			}
		}
	}

	recs, err := c.Refresh(ctx)
	if err != nil {
		if stale := c.models(); len(stale) > 0 && !forceRefresh {
			c.log.Warn().Err(err).Int("models", len(stale)).Msg("refresh failed, serving stale catalog")
			return stale, nil
		}
		return nil, err
	}
	return recs, nil
}

// Refresh rebuilds the catalog. Concurrent callers share one refresh.
func (c *Catalog) Refresh(ctx context.Context) ([]models.ModelRecord, error) {
	// The shared refresh must not die with whichever caller started it
	shared := context.WithoutCancel(ctx)

	ch := c.flight.DoChan("refresh", func() (any, error) {
		return c.refresh(shared)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]models.ModelRecord(nil), res.Val.([]models.ModelRecord)...), nil
	}
}

func (c *Catalog) refresh(ctx context.Context) ([]models.ModelRecord, error) {
	started := time.Now()

	recs, err := c.source.Refresh(ctx)
	if err != nil {
		metrics.CatalogRefreshesTotal.WithLabelValues("failed").Inc()
		c.log.Error().Err(err).Msg("catalog refresh failed, keeping previous catalog")
		return nil, err
	}

	if err := c.store.ReplaceModels(ctx, recs); err != nil {
		metrics.CatalogRefreshesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("replace models: %w", err)
	}

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	payload, _ := json.Marshal(ids)
	if err := c.store.PutCache(ctx, CacheKey, payload, c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("cache write failed")
	}

	c.publish(recs)
	metrics.CatalogRefreshesTotal.WithLabelValues("ok").Inc()
	c.log.Info().Int("models", len(recs)).Dur("took", time.Since(started)).Msg("catalog refreshed")
	return recs, nil
}

// Resolve returns the group that serves modelID. An unknown model triggers
// one forced refresh before it is reported missing.
func (c *Catalog) Resolve(ctx context.Context, modelID string) (string, error) {
	if g, ok, err := c.lookup(ctx, modelID); err != nil {
		return "", err
	} else if ok {
		return g, nil
	}

	c.log.Info().Str("model", modelID).Msg("model not in catalog, refreshing")
	if _, err := c.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, models.ErrRefreshEmpty) {
			c.log.Warn().Err(err).Str("model", modelID).Msg("refresh on miss failed")
		}
		return "", &models.ModelNotFoundError{Model: modelID}
	}

	if g, ok, err := c.lookup(ctx, modelID); err != nil {
		return "", err
	} else if ok {
		return g, nil
	}
	return "", &models.ModelNotFoundError{Model: modelID}
}

func (c *Catalog) lookup(ctx context.Context, modelID string) (string, bool, error) {
	if snap := c.current.Load(); snap != nil {
		g, ok := snap.byID[modelID]
		return g, ok, nil
	}
	return c.store.FindGroup(ctx, modelID)
}
