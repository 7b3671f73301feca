package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authsession/internal/apperrors"
)

func TestScope(t *testing.T) {
	newScope := func(t *testing.T, ttl time.Duration) (*Scope, *miniredis.Miniredis) {
		mr := miniredis.RunT(t)

		s, err := New(t.Context(), Config{Addr: mr.Addr(), KeyPrefix: "test:", TTL: ttl})
		require.NoError(t, err, "redis scope should connect to miniredis")
		t.Cleanup(func() { _ = s.Close() })

		return s, mr
	}

	t.Run("empty address", func(t *testing.T) {
		_, err := New(t.Context(), Config{})
		require.Error(t, err)
	})

	t.Run("set get delete", func(t *testing.T) {
		s, mr := newScope(t, 0)

		_, err := s.Get(t.Context(), "refresh-token")
		require.ErrorIs(t, err, apperrors.ErrNotFound)

		require.NoError(t, s.Set(t.Context(), "refresh-token", "R"))
		got, err := s.Get(t.Context(), "refresh-token")
		require.NoError(t, err)
		require.Equal(t, "R", got)

		raw, err := mr.Get("test:refresh-token")
		require.NoError(t, err)
		require.Equal(t, "R", raw, "key must be stored under prefix")

		require.NoError(t, s.Delete(t.Context(), "refresh-token"))
		require.NoError(t, s.Delete(t.Context(), "refresh-token"), "delete is idempotent")
		require.False(t, mr.Exists("test:refresh-token"))
	})

	t.Run("ttl", func(t *testing.T) {
		s, mr := newScope(t, time.Hour)
		require.NoError(t, s.Set(t.Context(), "refresh-token", "R"))

		mr.FastForward(2 * time.Hour)

		_, err := s.Get(t.Context(), "refresh-token")
		require.ErrorIs(t, err, apperrors.ErrNotFound, "value must expire after ttl")
	})

	t.Run("server gone", func(t *testing.T) {
		s, mr := newScope(t, 0)
		mr.Close()

		_, err := s.Get(t.Context(), "refresh-token")
		require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	})
}
