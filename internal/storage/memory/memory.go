package memory

import (
	"context"
	"sync"

	"github.com/nkiryanov/authsession/internal/apperrors"
)

// Scope keeps values in process memory, so they are gone when the process exits
type Scope struct {
	mu     sync.RWMutex
	values map[string]string
}

func New() *Scope {
	return &Scope{values: make(map[string]string)}
}

func (s *Scope) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return v, nil
}

func (s *Scope) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *Scope) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}
