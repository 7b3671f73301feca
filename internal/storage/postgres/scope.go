package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/authsession/internal/apperrors"
)

const DefaultScopeName = "durable"

// Both pool and transaction satisfy it
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Scope keeps values in 'session_values' table, namespaced by scope name
type Scope struct {
	DB   DBTX
	Name string
}

func NewScope(db DBTX, name string) *Scope {
	if name == "" {
		name = DefaultScopeName
	}
	return &Scope{DB: db, Name: name}
}

const getValue = `-- name: Get value by key
SELECT value
FROM session_values
WHERE scope = $1 AND key = $2
`

func (s *Scope) Get(ctx context.Context, key string) (string, error) {
	rows, _ := s.DB.Query(ctx, getValue, s.Name, key)
	value, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", apperrors.ErrNotFound
	default:
		return "", dbError(err)
	}
}

const setValue = `-- name: Upsert value
INSERT INTO session_values (scope, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (scope, key) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`

func (s *Scope) Set(ctx context.Context, key string, value string) error {
	_, err := s.DB.Exec(ctx, setValue, s.Name, key, value)
	if err != nil {
		return dbError(err)
	}
	return nil
}

const deleteValue = `-- name: Delete value
DELETE FROM session_values
WHERE scope = $1 AND key = $2
`

func (s *Scope) Delete(ctx context.Context, key string) error {
	_, err := s.DB.Exec(ctx, deleteValue, s.Name, key)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func dbError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("db error: migrations are not applied: %w", errors.Join(apperrors.ErrStorageUnavailable, err))
	}
	return fmt.Errorf("db error: %w", errors.Join(apperrors.ErrStorageUnavailable, err))
}
