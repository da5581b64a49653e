// Package storage is the integration boundary to the remote object service
// holding media bytes. Swap implementations by changing the concrete type
// injected at startup: Imgur, any S3-compatible provider through MinIO, or the
// in-process store used in development.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
)

// MaxObjectSize caps the bytes accepted by Upload callers and read back by Fetch.
const MaxObjectSize = 10 << 20

var (
	// ErrUploadFailed is returned when the object service rejects or fails an upload.
	ErrUploadFailed = errors.New("media upload failed")
	// ErrFetchFailed is returned when object bytes cannot be retrieved.
	ErrFetchFailed = errors.New("media fetch failed")
	// ErrDeleteFailed is returned when the object service does not confirm a delete.
	ErrDeleteFailed = errors.New("media delete failed")
	// ErrInvalidID is returned for remote identifiers outside [A-Za-z0-9]+.
	ErrInvalidID = errors.New("invalid media id")
)

var remoteIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// MediaObject describes one uploaded object as returned by the store.
type MediaObject struct {
	RemoteID      string `json:"remoteId"`
	DisplayName   string `json:"displayName"`
	Link          string `json:"link"`
	RemovalHandle string `json:"-"`
}

// Content is the payload returned by Fetch.
type Content struct {
	Bytes       []byte
	ContentType string
}

// MediaStore is the interface for uploading, fetching and deleting objects.
// Every call is synchronous; failures wrap one of the package sentinels.
type MediaStore interface {
	// Upload stores data and returns the store-assigned object description.
	Upload(ctx context.Context, data []byte, displayName string) (MediaObject, error)
	// ResolveRetrievalURL deterministically builds the URL for remoteID.
	ResolveRetrievalURL(remoteID string) (string, error)
	// Fetch reads the bytes behind a retrieval URL.
	Fetch(ctx context.Context, url string) (Content, error)
	// Delete removes the object identified by its removal handle.
	Delete(ctx context.Context, removalHandle string) error
}

// ValidateRemoteID reports ErrInvalidID unless id is non-empty and strictly alphanumeric.
func ValidateRemoteID(id string) error {
	if !remoteIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// readLimited reads r to EOF, failing once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("object exceeds %d bytes", limit)
	}
	return data, nil
}
