package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

// Groups is the part of the group registry the refresher needs
type Groups interface {
	Groups() []string
	URL(group string) (string, error)
}

// Refresher rebuilds the model list from every configured remote path
type Refresher struct {
	groups   Groups
	fetcher  Fetcher
	selector string
	timeout  time.Duration
	now      Clock
	log      zerolog.Logger
}

// NewRefresher creates a refresher. selector locates the model <select>.
func NewRefresher(groups Groups, fetcher Fetcher, selector string, timeout time.Duration, log zerolog.Logger) *Refresher {
	return &Refresher{
		groups:   groups,
		fetcher:  fetcher,
		selector: selector,
		timeout:  timeout,
		now:      time.Now,
		log:      log.With().Str("component", "refresher").Logger(),
	}
}

// Refresh fetches every path concurrently and returns the union of their
// models in configuration order. A failing path contributes nothing; only
// an empty union is an error.
func (r *Refresher) Refresh(ctx context.Context) ([]models.ModelRecord, error) {
	groups := r.groups.Groups()
	results := make([][]models.ModelRecord, len(groups))
	now := r.now()

	// Workers never return errors so one path cannot cancel the others
	var g errgroup.Group
	for i, group := range groups {
		g.Go(func() error {
			recs, err := r.fetchGroup(ctx, group, now)
			if err != nil {
				r.log.Warn().Err(err).Str("group", group).Msg("catalog fetch failed")
				return nil
			}
			r.log.Debug().Str("group", group).Int("models", len(recs)).Msg("catalog fetched")
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var union []models.ModelRecord
	seen := make(map[string]bool)
	for _, recs := range results {
		for _, rec := range recs {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			union = append(union, rec)
		}
	}

	if len(union) == 0 {
		return nil, models.ErrRefreshEmpty
	}
	return union, nil
}

func (r *Refresher) fetchGroup(ctx context.Context, group string, now time.Time) ([]models.ModelRecord, error) {
	url, err := r.groups.URL(group)
	if err != nil {
		return nil, &models.UpstreamFetchError{Group: group, Err: err}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	page, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &models.UpstreamFetchError{Group: group, Err: err}
	}

	ids, err := ParseModelOptions(page, r.selector)
	if err != nil {
		return nil, &models.UpstreamFetchError{Group: group, Err: err}
	}

	recs := make([]models.ModelRecord, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, models.ModelRecord{
			ID:        id,
			Group:     group,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return recs, nil
}
