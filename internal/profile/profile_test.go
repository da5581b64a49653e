package profile

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() Entry {
	return Entry{
		ID:       "acc-1",
		Username: "alice",
		Email:    "alice@example.com",
		Media:    []MediaSummary{{RemoteID: "r1", DisplayName: "a.jpg", Link: "https://i.example/r1.jpg"}},
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// exerciseCache runs the shared Cache contract against any implementation.
func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	_, hit, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, hit)

	gen, err := c.Generation(ctx, "alice")
	require.NoError(t, err)
	stored, err := c.Put(ctx, "alice", gen, sampleEntry())
	require.NoError(t, err)
	require.True(t, stored)

	got, hit, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, sampleEntry(), got)

	require.NoError(t, c.Invalidate(ctx, "alice"))
	_, hit, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Invalidate(ctx, "never-cached"))
}

// exerciseStalePut checks that a projection loaded before an invalidation
// is never stored after it.
func exerciseStalePut(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	before, err := c.Generation(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "alice"))
	after, err := c.Generation(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	stored, err := c.Put(ctx, "alice", before, sampleEntry())
	require.NoError(t, err)
	assert.False(t, stored)
	_, hit, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, hit)

	stored, err = c.Put(ctx, "alice", after, sampleEntry())
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestMemoryCache_Contract(t *testing.T) {
	exerciseCache(t, NewMemoryCache())
}

func TestMemoryCache_StalePutDropped(t *testing.T) {
	exerciseStalePut(t, NewMemoryCache())
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_, err := c.Put(ctx, "alice", 0, sampleEntry())
	require.NoError(t, err)

	got, _, _ := c.Get(ctx, "alice")
	got.Media[0].DisplayName = "mutated"

	again, _, _ := c.Get(ctx, "alice")
	assert.Equal(t, "a.jpg", again.Media[0].DisplayName)
}

func TestRedisCache_Contract(t *testing.T) {
	_, rdb := newTestRedis(t)
	exerciseCache(t, NewRedisCache(rdb, "", time.Minute))
}

func TestRedisCache_StalePutDropped(t *testing.T) {
	_, rdb := newTestRedis(t)
	exerciseStalePut(t, NewRedisCache(rdb, "profile", time.Minute))
}

// Two service instances share one Redis: instance A misses and loads the
// old account while instance B records a new object and invalidates.
func TestRedisCache_InvalidationFromAnotherClient(t *testing.T) {
	mr, rdbA := newTestRedis(t)
	rdbB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdbB.Close()

	a := NewRedisCache(rdbA, "profile", time.Minute)
	b := NewRedisCache(rdbB, "profile", time.Minute)
	ctx := context.Background()

	gen, err := a.Generation(ctx, "alice")
	require.NoError(t, err)
	stale := sampleEntry()

	require.NoError(t, b.Invalidate(ctx, "alice"))

	stored, err := a.Put(ctx, "alice", gen, stale)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("profile:alice"))
	assert.Equal(t, "1", mustGet(t, mr, "profile:alice:gen"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestRedisCache_TTLAndKeyLayout(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewRedisCache(rdb, "profile", time.Minute)
	ctx := context.Background()

	_, err := c.Put(ctx, "alice", 0, sampleEntry())
	require.NoError(t, err)
	assert.True(t, mr.Exists("profile:alice"))
	assert.Equal(t, time.Minute, mr.TTL("profile:alice"))

	mr.FastForward(2 * time.Minute)
	_, hit, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewRedisCache(rdb, "profile", time.Minute)

	require.NoError(t, mr.Set("profile:alice", "{not json"))

	_, hit, err := c.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("profile:alice"))
}

func TestRedisCache_BackendErrors(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	c := NewRedisCache(rdb, "profile", time.Minute)
	ctx := context.Background()

	_, _, err = c.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrBackend)
	_, err = c.Generation(ctx, "alice")
	assert.ErrorIs(t, err, ErrBackend)
	_, err = c.Put(ctx, "alice", 0, sampleEntry())
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, c.Invalidate(ctx, "alice"), ErrBackend)
}
