package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

type memoryObject struct {
	data   []byte
	handle string
}

// MemoryStorage keeps objects in process. It backs MEDIA_BACKEND=memory for
// local development and is the reference fake in tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	base    string
	objects map[string]memoryObject
	handles map[string]string // removal handle -> remote id
}

// NewMemoryStorage returns an empty in-process store whose URLs start with base.
func NewMemoryStorage(base string) *MemoryStorage {
	return &MemoryStorage{
		base:    strings.TrimRight(base, "/"),
		objects: make(map[string]memoryObject),
		handles: make(map[string]string),
	}
}

func (s *MemoryStorage) Upload(_ context.Context, data []byte, displayName string) (MediaObject, error) {
	id := newAlphanumericID()
	handle := newAlphanumericID()

	s.mu.Lock()
	s.objects[id] = memoryObject{data: append([]byte(nil), data...), handle: handle}
	s.handles[handle] = id
	s.mu.Unlock()

	return MediaObject{
		RemoteID:      id,
		DisplayName:   displayName,
		Link:          s.base + "/" + id,
		RemovalHandle: handle,
	}, nil
}

func (s *MemoryStorage) ResolveRetrievalURL(remoteID string) (string, error) {
	if err := ValidateRemoteID(remoteID); err != nil {
		return "", err
	}
	return s.base + "/" + remoteID, nil
}

func (s *MemoryStorage) Fetch(_ context.Context, url string) (Content, error) {
	key, err := keyFromURL(s.base, url)
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return Content{}, fmt.Errorf("%w: no object %q", ErrFetchFailed, key)
	}

	data := append([]byte(nil), obj.data...)
	return Content{Bytes: data, ContentType: http.DetectContentType(data)}, nil
}

func (s *MemoryStorage) Delete(_ context.Context, removalHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.handles[removalHandle]
	if !ok {
		return fmt.Errorf("%w: unknown removal handle", ErrDeleteFailed)
	}
	delete(s.handles, removalHandle)
	delete(s.objects, id)
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Has reports whether an object with remoteID is stored.
func (s *MemoryStorage) Has(remoteID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[remoteID]
	return ok
}
