package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/picshelf/service/internal/storage"
)

// MemoryRepository keeps accounts in process, keyed by username. It backs
// ACCOUNT_STORE=memory and the service tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	emails   map[string]string // email -> username
	now      func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]*Account),
		emails:   make(map[string]string),
		now:      time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, username, email, passwordHash string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[username]; ok {
		return nil, ErrUsernameTaken
	}
	if _, ok := r.emails[email]; ok {
		return nil, ErrEmailTaken
	}

	a := &Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    r.now().UTC(),
	}
	r.accounts[username] = a
	r.emails[email] = username
	return copyAccount(a), nil
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (r *MemoryRepository) AppendMedia(_ context.Context, username string, obj storage.MediaObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[username]
	if !ok {
		return ErrAccountNotFound
	}
	if _, dup := a.FindMedia(obj.RemoteID); dup {
		return fmt.Errorf("append media: duplicate remote id %q", obj.RemoteID)
	}
	a.Media = append(a.Media, obj)
	return nil
}

func (r *MemoryRepository) RemoveMedia(_ context.Context, username, remoteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[username]
	if !ok {
		return ErrAccountNotFound
	}
	for i, m := range a.Media {
		if m.RemoteID == remoteID {
			a.Media = append(a.Media[:i:i], a.Media[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func copyAccount(a *Account) *Account {
	c := *a
	c.Media = append([]storage.MediaObject(nil), a.Media...)
	return &c
}
