package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrObjectNotFound is returned by Get when the key does not exist
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore persists drawing artifacts as opaque blobs
type ObjectStore interface {
	// Put stores data under key and returns a URL that identifies it
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// memoryStore keeps objects in process memory. Used for local runs and tests.
type memoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory object store
func NewMemoryStore() ObjectStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (s *memoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[key] = buf
	s.mu.Unlock()
	return fmt.Sprintf("memory://%s", key), nil
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
