package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authsession/internal/apperrors"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

const DefaultKeyPrefix = "authsession:"

type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	// Prefix prepended to every key, e.g. "authsession:"
	KeyPrefix string

	// Expire values after TTL. Zero keeps them forever
	TTL time.Duration
}

// Scope stores every key as a plain redis string under a prefix
type Scope struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// New connects to redis and checks the connection with PING
func New(ctx context.Context, cfg Config) (*Scope, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address must not be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

func NewWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *Scope {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Scope{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *Scope) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, redis.Nil):
		return "", apperrors.ErrNotFound
	default:
		return "", fmt.Errorf("redis get %q: %w", key, errors.Join(apperrors.ErrStorageUnavailable, err))
	}
}

func (s *Scope) Set(ctx context.Context, key string, value string) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, errors.Join(apperrors.ErrStorageUnavailable, err))
	}
	return nil
}

func (s *Scope) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, errors.Join(apperrors.ErrStorageUnavailable, err))
	}
	return nil
}

func (s *Scope) Close() error {
	return s.client.Close()
}
