package repository_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/policy"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/attaboy/tracking/internal/repository/memrepo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func springLink(name string) *domain.TrackingLink {
	return &domain.TrackingLink{
		ID:            "tl-1",
		Name:          name,
		TrafficSource: &domain.TrafficSource{ID: "ts-1", Name: "fb", Status: domain.SourceActive},
		Placement: domain.Placement{
			TargetType: domain.TargetOffer,
			Offer:      &domain.Offer{ID: "offer-1", Name: "o", URL: "https://net.com/"},
		},
	}
}

// newRedisCache returns a cache over store backed by an in-process redis.
func newRedisCache(t *testing.T, store *memrepo.Store) (*repository.CachedTrackingLinks, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repos := store.Repos()
	return repository.NewCachedTrackingLinks(repos.Links, repos.TrafficSources, rdb, time.Minute, discardLogger()), mr
}

func TestCachedTrackingLinks_NilClientPassesThrough(t *testing.T) {
	store := memrepo.New()
	store.PutLink(&domain.TrackingLink{ID: "tl-1", Name: "spring"})

	repos := store.Repos()
	cache := repository.NewCachedTrackingLinks(repos.Links, repos.TrafficSources, nil, time.Minute, discardLogger())
	link, err := cache.FindByID(context.Background(), store, "tl-1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "spring", link.Name)

	assert.NoError(t, cache.Invalidate(context.Background(), "tl-1"))
}

func TestCachedTrackingLinks_UnreachableRedisFallsBack(t *testing.T) {
	store := memrepo.New()
	store.PutLink(&domain.TrackingLink{ID: "tl-1", Name: "spring"})

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	repos := store.Repos()
	cache := repository.NewCachedTrackingLinks(repos.Links, repos.TrafficSources, rdb, time.Minute, discardLogger())

	link, err := cache.FindByID(context.Background(), store, "tl-1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "spring", link.Name)

	missing, err := cache.FindByID(context.Background(), store, "tl-404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCachedTrackingLinks_InnerErrorPropagates(t *testing.T) {
	store := memrepo.New()
	store.LinkErr = errors.New("db down")

	repos := store.Repos()
	cache := repository.NewCachedTrackingLinks(repos.Links, repos.TrafficSources, nil, time.Minute, discardLogger())
	_, err := cache.FindByID(context.Background(), store, "tl-1")
	assert.EqualError(t, err, "db down")
}

func TestCachedTrackingLinks_HitRefreshesSourceStatus(t *testing.T) {
	ctx := context.Background()
	store := memrepo.New()
	store.PutLink(springLink("spring"))
	cache, mr := newRedisCache(t, store)

	first, err := cache.FindByID(ctx, store, "tl-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, mr.Exists("tracking:link:tl-1"))
	assert.NoError(t, policy.EvaluateTrafficSource(first.TrafficSource).Err())

	// Renaming in the store is invisible while the entry is cached.
	store.PutLink(springLink("summer"))
	hit, err := cache.FindByID(ctx, store, "tl-1")
	require.NoError(t, err)
	assert.Equal(t, "spring", hit.Name)

	store.SetSourceStatus("ts-1", domain.SourcePaused)
	paused, err := cache.FindByID(ctx, store, "tl-1")
	require.NoError(t, err)
	assert.Equal(t, "spring", paused.Name, "placement still served from cache")
	require.NotNil(t, paused.TrafficSource)
	assert.Equal(t, domain.SourcePaused, paused.TrafficSource.Status)
	assert.True(t, domain.HasCode(policy.EvaluateTrafficSource(paused.TrafficSource).Err(), domain.CodeInactiveSource))
}

func TestCachedTrackingLinks_SourceLookupFailureReloadsLink(t *testing.T) {
	ctx := context.Background()
	store := memrepo.New()
	store.PutLink(springLink("spring"))
	cache, _ := newRedisCache(t, store)

	_, err := cache.FindByID(ctx, store, "tl-1")
	require.NoError(t, err)

	store.LinkErr = errors.New("db down")
	_, err = cache.FindByID(ctx, store, "tl-1")
	assert.EqualError(t, err, "db down", "a hit is never served without a fresh source")
}

func TestCachedTrackingLinks_InvalidateDropsEntry(t *testing.T) {
	ctx := context.Background()
	store := memrepo.New()
	store.PutLink(springLink("spring"))
	cache, mr := newRedisCache(t, store)

	_, err := cache.FindByID(ctx, store, "tl-1")
	require.NoError(t, err)
	store.PutLink(springLink("summer"))

	require.NoError(t, cache.Invalidate(ctx, "tl-1"))
	assert.False(t, mr.Exists("tracking:link:tl-1"))

	link, err := cache.FindByID(ctx, store, "tl-1")
	require.NoError(t, err)
	assert.Equal(t, "summer", link.Name)
}

func TestCachedTrackingLinks_UndecodableEntryFallsBack(t *testing.T) {
	ctx := context.Background()
	store := memrepo.New()
	store.PutLink(springLink("spring"))
	cache, mr := newRedisCache(t, store)

	require.NoError(t, mr.Set("tracking:link:tl-1", "{not json"))

	link, err := cache.FindByID(ctx, store, "tl-1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "spring", link.Name)

	cached, err := mr.Get("tracking:link:tl-1")
	require.NoError(t, err)
	assert.Contains(t, cached, `"name":"spring"`)
}

func TestCachedTrackingLinks_MissIsNotCached(t *testing.T) {
	store := memrepo.New()
	cache, mr := newRedisCache(t, store)

	link, err := cache.FindByID(context.Background(), store, "tl-404")
	require.NoError(t, err)
	assert.Nil(t, link)
	assert.False(t, mr.Exists("tracking:link:tl-404"))
}
