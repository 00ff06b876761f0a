package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	orderapp "github.com/serialtrack/backend/internal/application/order"
)

// Ensure StubObjectStorage implements ObjectStorageService
var _ orderapp.ObjectStorageService = (*StubObjectStorage)(nil)

// StubObjectStorage keeps uploaded objects in memory. Use it for development
// and tests until a real backend is configured.
type StubObjectStorage struct {
	// BaseURL is the base URL for generated object URLs.
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

// NewStubObjectStorage creates a new StubObjectStorage
func NewStubObjectStorage() *StubObjectStorage {
	return &StubObjectStorage{
		BaseURL: "https://storage.example.com",
		objects: make(map[string][]byte),
	}
}

// Upload stores the object in memory and returns a stub URL.
func (s *StubObjectStorage) Upload(_ context.Context, storageKey, _ string, body io.Reader) (string, error) {
	if storageKey == "" {
		return "", errors.New("storage key is required")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.objects[storageKey] = data
	s.mu.Unlock()

	return s.BaseURL + "/" + storageKey, nil
}

// GenerateDownloadURL generates a stub download URL.
func (s *StubObjectStorage) GenerateDownloadURL(_ context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, errors.New("storage key is required")
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/download/" + storageKey + "?expires=" + expiresAt.Format(time.RFC3339), expiresAt, nil
}

// DeleteObject removes the object. Deleting an absent key succeeds.
func (s *StubObjectStorage) DeleteObject(_ context.Context, storageKey string) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}
	s.mu.Lock()
	delete(s.objects, storageKey)
	s.mu.Unlock()
	return nil
}

// Object returns a stored object's bytes, for assertions in tests.
func (s *StubObjectStorage) Object(storageKey string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[storageKey]
	return data, ok
}
