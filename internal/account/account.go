// Package account owns user accounts and the media objects they hold, and
// orchestrates every change to that collection against the media store, the
// event sink and the profile cache.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/picshelf/service/internal/profile"
	"github.com/picshelf/service/internal/storage"
)

var (
	// ErrAccountNotFound is returned when no account exists for a username.
	ErrAccountNotFound = errors.New("account not found")
	// ErrNotFound is returned when a media object is absent or owned by
	// another account.
	ErrNotFound = errors.New("media not found")
	// ErrPartialUpload is returned when an object was stored remotely but
	// could not be recorded on the account.
	ErrPartialUpload = errors.New("media uploaded but not recorded")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = errors.New("email already taken")
)

// Account is a registered user and the ordered collection of media it owns.
type Account struct {
	ID           string                `json:"id"`
	Username     string                `json:"username"`
	Email        string                `json:"email"`
	PasswordHash string                `json:"-"`
	CreatedAt    time.Time             `json:"createdAt"`
	Media        []storage.MediaObject `json:"media"`
}

// FindMedia returns the owned object with remoteID.
func (a *Account) FindMedia(remoteID string) (storage.MediaObject, bool) {
	for _, m := range a.Media {
		if m.RemoteID == remoteID {
			return m, true
		}
	}
	return storage.MediaObject{}, false
}

// Profile projects the account into its public cache entry.
func (a *Account) Profile() profile.Entry {
	media := make([]profile.MediaSummary, 0, len(a.Media))
	for _, m := range a.Media {
		media = append(media, profile.MediaSummary{
			RemoteID:    m.RemoteID,
			DisplayName: m.DisplayName,
			Link:        m.Link,
		})
	}
	return profile.Entry{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		Media:    media,
	}
}

// Repository is the authoritative account store.
type Repository interface {
	// Create inserts a new account with no media.
	Create(ctx context.Context, username, email, passwordHash string) (*Account, error)
	// GetByUsername loads an account with its media in upload order.
	GetByUsername(ctx context.Context, username string) (*Account, error)
	// AppendMedia records obj at the end of the account's collection.
	AppendMedia(ctx context.Context, username string, obj storage.MediaObject) error
	// RemoveMedia drops the object with remoteID from the account's collection.
	RemoveMedia(ctx context.Context, username, remoteID string) error
}
