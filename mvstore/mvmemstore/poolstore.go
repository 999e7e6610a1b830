package mvmemstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/kzmapvote/kzmapvote/mvstore"
)

type PoolStore struct {
	mu sync.Mutex

	data []byte
}

func NewPoolStore() *PoolStore {
	return new(PoolStore)
}

func (s *PoolStore) SavePoolSnapshot(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = bytes.Clone(data)
	if s.data == nil {
		// Distinguish an explicitly saved empty value from nothing saved.
		s.data = []byte{}
	}
	return nil
}

func (s *PoolStore) LoadPoolSnapshot(_ context.Context, dst []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return nil, mvstore.ErrSnapshotNotFound
	}

	return append(dst, s.data...), nil
}
