package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/picshelf/service/internal/events"
	"github.com/picshelf/service/internal/profile"
	"github.com/picshelf/service/internal/storage"
	"github.com/picshelf/service/internal/token"
)

// Service coordinates the account store with the media store, the event
// sink and the profile cache. A per-account lock serialises every change to
// an account's collection together with the cache invalidation that follows
// it; the lock is never held while talking to the media store or the sink.
type Service struct {
	repo  Repository
	store storage.MediaStore
	sink  events.Sink
	cache profile.Cache
	log   *slog.Logger
	locks *keyedMutex
}

// NewService creates a new account Service.
func NewService(repo Repository, store storage.MediaStore, sink events.Sink, cache profile.Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		store: store,
		sink:  sink,
		cache: cache,
		log:   log,
		locks: newKeyedMutex(),
	}
}

// UploadMedia stores data remotely, announces it and records it on the
// principal's account. A store failure is returned unchanged and leaves the
// account untouched.
func (s *Service) UploadMedia(ctx context.Context, p token.Principal, data []byte, displayName string) (storage.MediaObject, error) {
	acct, err := s.repo.GetByUsername(ctx, p.Subject)
	if err != nil {
		return storage.MediaObject{}, err
	}

	// Once the upload starts the request may go away; the remote object and
	// its record must still land together.
	ctx = context.WithoutCancel(ctx)

	obj, err := s.store.Upload(ctx, data, displayName)
	if err != nil {
		s.log.Warn("account: upload failed", "account", acct.Username, "name", displayName, "error", err)
		return storage.MediaObject{}, err
	}

	s.sink.Publish(acct.Username, displayName)

	unlock := s.locks.Lock(acct.Username)
	defer unlock()

	if err := s.repo.AppendMedia(ctx, acct.Username, obj); err != nil {
		s.log.Error("account: uploaded media not recorded",
			"account", acct.Username,
			"remote_id", obj.RemoteID,
			"error", err,
		)
		return storage.MediaObject{}, fmt.Errorf("%w: remote id %s: %v", ErrPartialUpload, obj.RemoteID, err)
	}
	if err := s.invalidate(ctx, acct.Username); err != nil {
		return storage.MediaObject{}, err
	}

	s.log.Info("account: media uploaded", "account", acct.Username, "remote_id", obj.RemoteID)
	return obj, nil
}

// FetchMedia returns the bytes of an object the principal owns.
func (s *Service) FetchMedia(ctx context.Context, p token.Principal, remoteID string) (storage.Content, error) {
	acct, err := s.repo.GetByUsername(ctx, p.Subject)
	if err != nil {
		return storage.Content{}, err
	}
	if _, ok := acct.FindMedia(remoteID); !ok {
		return storage.Content{}, ErrNotFound
	}

	url, err := s.store.ResolveRetrievalURL(remoteID)
	if err != nil {
		return storage.Content{}, err
	}
	return s.store.Fetch(ctx, url)
}

// DeleteMedia removes an owned object remotely, then from the account. If
// the remote delete fails the account is left as it was.
func (s *Service) DeleteMedia(ctx context.Context, p token.Principal, remoteID string) error {
	acct, err := s.repo.GetByUsername(ctx, p.Subject)
	if err != nil {
		return err
	}
	obj, ok := acct.FindMedia(remoteID)
	if !ok {
		return ErrNotFound
	}

	ctx = context.WithoutCancel(ctx)

	if err := s.store.Delete(ctx, obj.RemovalHandle); err != nil {
		s.log.Warn("account: remote delete failed", "account", acct.Username, "remote_id", remoteID, "error", err)
		return err
	}

	unlock := s.locks.Lock(acct.Username)
	defer unlock()

	if err := s.repo.RemoveMedia(ctx, acct.Username, remoteID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("account: deleted media still recorded",
				"account", acct.Username,
				"remote_id", remoteID,
				"error", err,
			)
		}
		return err
	}
	if err := s.invalidate(ctx, acct.Username); err != nil {
		return err
	}

	s.log.Info("account: media deleted", "account", acct.Username, "remote_id", remoteID)
	return nil
}

// GetProfile returns the cached projection of an account, loading it from
// the repository on a miss.
func (s *Service) GetProfile(ctx context.Context, accountID string) (profile.Entry, error) {
	entry, hit, err := s.cache.Get(ctx, accountID)
	if err != nil {
		s.log.Warn("account: profile cache read failed", "account", accountID, "error", err)
	}
	if hit {
		return entry, nil
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	// The generation is taken before the load so that an invalidation from
	// another process in between makes Put drop this projection.
	gen, genErr := s.cache.Generation(ctx, accountID)
	if genErr != nil {
		s.log.Warn("account: profile cache generation read failed", "account", accountID, "error", genErr)
	}

	acct, err := s.repo.GetByUsername(ctx, accountID)
	if err != nil {
		return profile.Entry{}, err
	}
	entry = acct.Profile()
	if genErr != nil {
		return entry, nil
	}
	stored, err := s.cache.Put(ctx, accountID, gen, entry)
	switch {
	case err != nil:
		s.log.Warn("account: profile cache write failed", "account", accountID, "error", err)
	case !stored:
		s.log.Debug("account: stale profile projection dropped", "account", accountID)
	}
	return entry, nil
}

func (s *Service) invalidate(ctx context.Context, accountID string) error {
	if err := s.cache.Invalidate(ctx, accountID); err != nil {
		s.log.Error("account: profile cache invalidation failed", "account", accountID, "error", err)
		return fmt.Errorf("invalidate profile: %w", err)
	}
	return nil
}
