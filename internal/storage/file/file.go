package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/nkiryanov/authsession/internal/apperrors"
)

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// Scope stores values as a JSON object in a single file
// Every access takes a lock on a sibling '.lock' file, so several processes may share the file
type Scope struct {
	path string

	// flock guards against other processes only, mu guards against other goroutines
	mu   sync.Mutex
	lock *flock.Flock
}

func New(path string) (*Scope, error) {
	if path == "" {
		return nil, errors.New("session file path must not be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &Scope{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

func (s *Scope) Get(ctx context.Context, key string) (string, error) {
	var value string

	err := s.withLock(ctx, s.lock.TryRLockContext, func() error {
		values, err := s.read()
		if err != nil {
			return err
		}

		v, ok := values[key]
		if !ok {
			return apperrors.ErrNotFound
		}
		value = v
		return nil
	})

	return value, err
}

func (s *Scope) Set(ctx context.Context, key string, value string) error {
	return s.update(ctx, func(values map[string]string) {
		values[key] = value
	})
}

func (s *Scope) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(values map[string]string) {
		delete(values, key)
	})
}

// Locked read-modify-write of the whole file
func (s *Scope) update(ctx context.Context, fn func(map[string]string)) error {
	return s.withLock(ctx, s.lock.TryLockContext, func() error {
		values, err := s.read()
		if err != nil {
			return err
		}

		fn(values)
		return s.write(values)
	})
}

type lockFunc func(ctx context.Context, retryDelay time.Duration) (bool, error)

func (s *Scope) withLock(ctx context.Context, lock lockFunc, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := lock(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", errors.Join(apperrors.ErrStorageUnavailable, err))
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock: timeout after %v: %w", lockTimeout, apperrors.ErrStorageUnavailable)
	}
	defer s.lock.Unlock() // nolint:errcheck

	return fn()
}

func (s *Scope) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return values, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read session file: %w", errors.Join(apperrors.ErrStorageUnavailable, err))
	case len(data) == 0:
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("session file is corrupted: %w", errors.Join(apperrors.ErrStorageUnavailable, err))
	}
	return values, nil
}

// Write to a temp file and rename it, so readers never see half-written JSON
func (s *Scope) write(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode session file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", errors.Join(apperrors.ErrStorageUnavailable, err))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", errors.Join(apperrors.ErrStorageUnavailable, err))
	}
	return nil
}
