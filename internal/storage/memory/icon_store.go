package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/progress-overlay/internal/store"
)

// IconStore keeps encoded icons in memory.
type IconStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewIconStore creates a new in-memory icon store.
func NewIconStore() *IconStore {
	return &IconStore{data: make(map[string][]byte)}
}

// Put copies the icon bytes under packageID.
func (s *IconStore) Put(_ context.Context, packageID string, r io.Reader) error {
	byteData, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read data from reader: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[packageID] = byteData
	return nil
}

// Open returns a reader over a copy of the stored icon.
func (s *IconStore) Open(_ context.Context, packageID string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[packageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}
