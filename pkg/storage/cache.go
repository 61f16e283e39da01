package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sahithikokkula/explorer/pkg/anonapi"
	"github.com/sahithikokkula/explorer/pkg/explorer"
)

// DefaultMetadataTTL is how long cached data sources are served without
// asking the service.
const DefaultMetadataTTL = 5 * time.Minute

// DefaultRefreshTimeout bounds one upstream refresh.
const DefaultRefreshTimeout = 30 * time.Second

// CachedMetadata serves data source metadata from SQLite and refreshes it from
// an upstream source once it is older than the TTL. When a refresh fails,
// stale metadata is served. A refresh is shared by concurrent callers and
// outlives any one of them.
type CachedMetadata struct {
	db       *sql.DB
	upstream explorer.MetadataSource
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	refresh singleflight.Group
}

func NewCachedMetadata(db *sql.DB, upstream explorer.MetadataSource, ttl time.Duration, logger *slog.Logger) *CachedMetadata {
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedMetadata{db: db, upstream: upstream, ttl: ttl, timeout: DefaultRefreshTimeout, logger: logger, now: time.Now}
}

func (c *CachedMetadata) DataSources(ctx context.Context) ([]anonapi.DataSource, error) {
	cached, updated, err := LoadDataSources(ctx, c.db)
	if err != nil {
		c.logger.Warn("reading cached data sources failed", slog.Any("error", err))
	}
	if err == nil && !updated.IsZero() && c.now().Sub(updated) < c.ttl {
		return cached, nil
	}
	ch := c.refresh.DoChan("data_sources", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.Refresh(rctx)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	if err := res.Err; err != nil {
		if len(cached) > 0 {
			c.logger.Warn("serving stale data sources",
				slog.Time("cached_at", updated),
				slog.Any("error", err),
			)
			return cached, nil
		}
		return nil, err
	}
	return res.Val.([]anonapi.DataSource), nil
}

// Refresh fetches the data sources from upstream and replaces the cache.
func (c *CachedMetadata) Refresh(ctx context.Context) ([]anonapi.DataSource, error) {
	sources, err := c.upstream.DataSources(ctx)
	if err != nil {
		return nil, err
	}
	if err := ReplaceDataSources(ctx, c.db, sources, c.now()); err != nil {
		c.logger.Warn("caching data sources failed", slog.Any("error", err))
	} else {
		c.logger.Info("data sources cached", slog.Int("count", len(sources)))
	}
	return sources, nil
}
