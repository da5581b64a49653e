package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/picshelf/service/internal/events"
	"github.com/picshelf/service/internal/logging"
	"github.com/picshelf/service/internal/profile"
	"github.com/picshelf/service/internal/storage"
	"github.com/picshelf/service/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSink) Publish(accountID, mediaName string) {
	s.mu.Lock()
	s.messages = append(s.messages, events.Message(accountID, mediaName))
	s.mu.Unlock()
}

func (s *recordingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// flakyStore wraps MemoryStorage with switchable failures.
type flakyStore struct {
	*storage.MemoryStorage
	failUpload bool
	failDelete bool
}

func (s *flakyStore) Upload(ctx context.Context, data []byte, name string) (storage.MediaObject, error) {
	if s.failUpload {
		return storage.MediaObject{}, fmt.Errorf("%w: upstream 500", storage.ErrUploadFailed)
	}
	return s.MemoryStorage.Upload(ctx, data, name)
}

func (s *flakyStore) Delete(ctx context.Context, handle string) error {
	if s.failDelete {
		return fmt.Errorf("%w: upstream 500", storage.ErrDeleteFailed)
	}
	return s.MemoryStorage.Delete(ctx, handle)
}

// countingCache wraps MemoryCache and counts invalidations.
type countingCache struct {
	*profile.MemoryCache
	mu            sync.Mutex
	invalidations int
	failGet       bool
	failInvalid   bool
}

func (c *countingCache) Get(ctx context.Context, id string) (profile.Entry, bool, error) {
	if c.failGet {
		return profile.Entry{}, false, errors.New("cache down")
	}
	return c.MemoryCache.Get(ctx, id)
}

func (c *countingCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	c.invalidations++
	c.mu.Unlock()
	if c.failInvalid {
		return errors.New("cache down")
	}
	return c.MemoryCache.Invalidate(ctx, id)
}

func (c *countingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

// brokenAppendRepo fails every AppendMedia.
type brokenAppendRepo struct {
	*MemoryRepository
}

func (r brokenAppendRepo) AppendMedia(context.Context, string, storage.MediaObject) error {
	return errors.New("connection reset")
}

type fixture struct {
	svc   *Service
	repo  *MemoryRepository
	store *flakyStore
	sink  *recordingSink
	cache *countingCache
}

func newFixture(t *testing.T, usernames ...string) *fixture {
	t.Helper()
	f := &fixture{
		repo:  NewMemoryRepository(),
		store: &flakyStore{MemoryStorage: storage.NewMemoryStorage("http://media.test")},
		sink:  &recordingSink{},
		cache: &countingCache{MemoryCache: profile.NewMemoryCache()},
	}
	for _, u := range usernames {
		_, err := f.repo.Create(context.Background(), u, u+"@example.com", "hash")
		require.NoError(t, err)
	}
	f.svc = NewService(f.repo, f.store, f.sink, f.cache, logging.Discard())
	return f
}

func as(username string) token.Principal {
	return token.Principal{Subject: username}
}

func TestService_UploadFetchDeleteLifecycle(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	obj, err := f.svc.UploadMedia(ctx, as("alice"), []byte("jpeg-bytes"), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", obj.DisplayName)
	assert.NoError(t, storage.ValidateRemoteID(obj.RemoteID))
	assert.Equal(t, []string{"User: alice, Image: a.jpg"}, f.sink.all())

	entry, err := f.svc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entry.Media, 1)
	assert.Equal(t, profile.MediaSummary{RemoteID: obj.RemoteID, DisplayName: "a.jpg", Link: obj.Link}, entry.Media[0])

	content, err := f.svc.FetchMedia(ctx, as("alice"), obj.RemoteID)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), content.Bytes)

	require.NoError(t, f.svc.DeleteMedia(ctx, as("alice"), obj.RemoteID))
	assert.False(t, f.store.Has(obj.RemoteID))

	entry, err = f.svc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, entry.Media)

	_, err = f.svc.FetchMedia(ctx, as("alice"), obj.RemoteID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_MutationsInvalidateProfile(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	_, err := f.svc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	_, hit, _ := f.cache.Get(ctx, "alice")
	require.True(t, hit)

	obj, err := f.svc.UploadMedia(ctx, as("alice"), []byte("x"), "x.png")
	require.NoError(t, err)
	_, hit, _ = f.cache.Get(ctx, "alice")
	assert.False(t, hit, "upload must invalidate the cached profile")
	assert.Equal(t, 1, f.cache.count())

	_, err = f.svc.GetProfile(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteMedia(ctx, as("alice"), obj.RemoteID))
	_, hit, _ = f.cache.Get(ctx, "alice")
	assert.False(t, hit, "delete must invalidate the cached profile")
	assert.Equal(t, 2, f.cache.count())
}

func TestService_GetProfileServesFromCache(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	cached := profile.Entry{ID: "x", Username: "alice", Email: "cached@example.com"}
	_, err := f.cache.Put(ctx, "alice", 0, cached)
	require.NoError(t, err)

	got, err := f.svc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "cached@example.com", got.Email)
}

// loadHookRepo runs onLoad before every GetByUsername.
type loadHookRepo struct {
	*MemoryRepository
	onLoad func()
}

func (r loadHookRepo) GetByUsername(ctx context.Context, username string) (*Account, error) {
	r.onLoad()
	return r.MemoryRepository.GetByUsername(ctx, username)
}

func TestService_GetProfileDropsProjectionInvalidatedDuringLoad(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	// Another instance records an object and invalidates while this one is
	// loading the account; its own lock does not cover that instance.
	repo := loadHookRepo{MemoryRepository: f.repo, onLoad: func() {
		require.NoError(t, f.cache.MemoryCache.Invalidate(ctx, "alice"))
	}}
	svc := NewService(repo, f.store, f.sink, f.cache, logging.Discard())

	got, err := svc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, hit, err := f.cache.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, hit, "a projection loaded before an invalidation must not be cached")
}

func TestService_GetProfileCacheErrorIsMiss(t *testing.T) {
	f := newFixture(t, "alice")
	f.cache.failGet = true

	got, err := f.svc.GetProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestService_GetProfileUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestService_CrossAccountAccessIsNotFound(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	obj, err := f.svc.UploadMedia(ctx, as("alice"), []byte("secret"), "a.jpg")
	require.NoError(t, err)

	err = f.svc.DeleteMedia(ctx, as("bob"), obj.RemoteID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.FetchMedia(ctx, as("bob"), obj.RemoteID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, f.store.Has(obj.RemoteID))
	acct, err := f.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, acct.Media, 1)
}

func TestService_UnknownAndInvalidIDsAreNotFound(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	for _, id := range []string{"r1", "abc 123", ""} {
		_, err := f.svc.FetchMedia(ctx, as("alice"), id)
		assert.ErrorIs(t, err, ErrNotFound, id)
		assert.ErrorIs(t, f.svc.DeleteMedia(ctx, as("alice"), id), ErrNotFound, id)
	}
	assert.Zero(t, f.cache.count())
}

func TestService_FailedUploadChangesNothing(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()
	f.store.failUpload = true

	_, err := f.svc.GetProfile(ctx, "alice")
	require.NoError(t, err)

	_, err = f.svc.UploadMedia(ctx, as("alice"), []byte("x"), "a.jpg")
	assert.ErrorIs(t, err, storage.ErrUploadFailed)

	assert.Empty(t, f.sink.all())
	assert.Zero(t, f.cache.count())
	acct, err := f.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, acct.Media)
}

func TestService_FailedRemoteDeleteKeepsRecord(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	obj, err := f.svc.UploadMedia(ctx, as("alice"), []byte("x"), "a.jpg")
	require.NoError(t, err)
	f.store.failDelete = true

	err = f.svc.DeleteMedia(ctx, as("alice"), obj.RemoteID)
	assert.ErrorIs(t, err, storage.ErrDeleteFailed)

	acct, err := f.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, acct.Media, 1)
	assert.Equal(t, 1, f.cache.count())
}

func TestService_PartialUpload(t *testing.T) {
	f := newFixture(t, "alice")
	svc := NewService(brokenAppendRepo{f.repo}, f.store, f.sink, f.cache, logging.Discard())

	_, err := svc.UploadMedia(context.Background(), as("alice"), []byte("x"), "a.jpg")
	assert.ErrorIs(t, err, ErrPartialUpload)

	assert.Equal(t, 1, f.store.Len(), "remote object stays for reconciliation")
	assert.Len(t, f.sink.all(), 1)
	assert.Zero(t, f.cache.count())
}

func TestService_InvalidationFailureFailsRequest(t *testing.T) {
	f := newFixture(t, "alice")
	f.cache.failInvalid = true

	_, err := f.svc.UploadMedia(context.Background(), as("alice"), []byte("x"), "a.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidate profile")
}

func TestService_UnknownPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UploadMedia(ctx, as("ghost"), []byte("x"), "a.jpg")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.sink.all())

	_, err = f.svc.FetchMedia(ctx, as("ghost"), "r1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.ErrorIs(t, f.svc.DeleteMedia(ctx, as("ghost"), "r1"), ErrAccountNotFound)
}

func TestService_ConcurrentUploadsKeepEveryObject(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.UploadMedia(ctx, as("alice"), []byte{byte(i)}, fmt.Sprintf("%d.jpg", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entry, err := f.svc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, entry.Media, n)
	assert.Len(t, f.sink.all(), n)
	assert.Equal(t, n, f.cache.count())
	assert.Zero(t, f.svc.locks.size())
}

func TestService_ConcurrentDeletesOfSameObject(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	obj, err := f.svc.UploadMedia(ctx, as("alice"), []byte("x"), "a.jpg")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.svc.DeleteMedia(ctx, as("alice"), obj.RemoteID)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	acct, err := f.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, acct.Media)
}
