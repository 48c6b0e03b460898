package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/redis/go-redis/v9"
)

const linkCachePrefix = "tracking:link:"

// CachedTrackingLinks is a cache-aside decorator over a TrackingLinkRepository.
// Cache errors are logged and fall through to the database; misses are not cached.
//
// The traffic source is re-read on every hit, so pausing a source takes effect
// immediately. Placement data (offers, weights, landing page) may be up to ttl
// old unless Invalidate is called.
type CachedTrackingLinks struct {
	inner   TrackingLinkRepository
	sources TrafficSourceRepository
	rdb     redis.Cmdable
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCachedTrackingLinks wraps inner. A nil rdb disables caching.
func NewCachedTrackingLinks(inner TrackingLinkRepository, sources TrafficSourceRepository, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedTrackingLinks {
	return &CachedTrackingLinks{inner: inner, sources: sources, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedTrackingLinks) FindByID(ctx context.Context, db DBTX, id string) (*domain.TrackingLink, error) {
	if c.rdb == nil {
		return c.inner.FindByID(ctx, db, id)
	}

	raw, err := c.rdb.Get(ctx, linkCachePrefix+id).Bytes()
	switch {
	case err == nil:
		var link domain.TrackingLink
		if jsonErr := json.Unmarshal(raw, &link); jsonErr != nil {
			c.logger.Warn("discarding undecodable cached tracking link", "tracking_link_id", id)
			break
		}
		if refreshErr := c.refreshSource(ctx, db, &link); refreshErr != nil {
			c.logger.Warn("traffic source refresh failed, reloading tracking link", "tracking_link_id", id, "error", refreshErr)
			break
		}
		return &link, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("tracking link cache read failed", "tracking_link_id", id, "error", err)
	}

	link, err := c.inner.FindByID(ctx, db, id)
	if err != nil || link == nil {
		return link, err
	}

	if payload, err := json.Marshal(link); err == nil {
		if err := c.rdb.Set(ctx, linkCachePrefix+id, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("tracking link cache write failed", "tracking_link_id", id, "error", err)
		}
	}
	return link, nil
}

// refreshSource replaces the cached traffic source with the stored one.
func (c *CachedTrackingLinks) refreshSource(ctx context.Context, db DBTX, link *domain.TrackingLink) error {
	if link.TrafficSource == nil {
		return nil
	}
	ts, err := c.sources.FindByID(ctx, db, link.TrafficSource.ID)
	if err != nil {
		return err
	}
	link.TrafficSource = ts
	return nil
}

// Invalidate drops the cached copy of a tracking link.
func (c *CachedTrackingLinks) Invalidate(ctx context.Context, id string) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, linkCachePrefix+id).Err()
}
