package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidateLinks(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, mr.Set("tracking:link:tl-1", "{}"))
	require.NoError(t, mr.Set("tracking:link:tl-2", "{}"))

	cache := repository.NewCachedTrackingLinks(nil, nil, rdb, time.Minute, discardLogger())
	var out bytes.Buffer
	require.NoError(t, InvalidateLinks(context.Background(), &out, cache, []string{"tl-1", "tl-3"}))

	assert.Equal(t, "invalidated tl-1\ninvalidated tl-3\n", out.String())
	assert.False(t, mr.Exists("tracking:link:tl-1"))
	assert.True(t, mr.Exists("tracking:link:tl-2"))
}

func TestInvalidateLinks_StopsOnRedisError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	cache := repository.NewCachedTrackingLinks(nil, nil, rdb, time.Minute, discardLogger())
	var out bytes.Buffer
	err := InvalidateLinks(context.Background(), &out, cache, []string{"tl-1", "tl-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to invalidate tl-1")
	assert.Empty(t, out.String())
}
