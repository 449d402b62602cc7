// Package storage holds binary objects such as profile pictures.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrEmptyKey is returned when an object key is blank.
var ErrEmptyKey = errors.New("storage: empty key")

// BlobStore saves an object under key and returns the location clients should use to fetch it.
type BlobStore interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// Object is a stored blob held by MemoryStore.
type Object struct {
	ContentType string
	Data        []byte
}

// MemoryStore keeps objects in process memory. It backs the memory store driver and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object
}

// NewMemoryStore constructs an empty MemoryStore. baseURL may be empty.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string]Object),
	}
}

// Save reads r fully and stores it under key.
func (m *MemoryStore) Save(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("read object %s: %w", key, err)
	}

	m.mu.Lock()
	m.objects[key] = Object{ContentType: contentType, Data: buf.Bytes()}
	m.mu.Unlock()

	return publicLocation(m.baseURL, key), nil
}

// Get returns the object stored under key.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[strings.TrimLeft(key, "/")]
	return obj, ok
}

func publicLocation(baseURL, key string) string {
	if baseURL == "" {
		return key
	}
	return baseURL + "/" + key
}

var _ BlobStore = (*MemoryStore)(nil)
