package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authsession/internal/logger"
	"github.com/nkiryanov/authsession/internal/service/profile"
	"github.com/nkiryanov/authsession/internal/storage/keyring"
)

// Durable scope backends
const (
	BackendFile     = "file"
	BackendKeyring  = "keyring"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const (
	defaultAPIURL         = "http://localhost:3000/api/"
	defaultLoggingLevel   = logger.LevelInfo
	defaultEnvironment    = logger.EnvProduction
	defaultBackend        = BackendFile
	defaultRedisAddr      = "localhost:6379"
	defaultMetricsAddr    = "localhost:9090"
	defaultRequestTimeout = 30 * time.Second
)

type Config struct {
	// Base URL of the auth API, endpoints are resolved against it
	APIURL string

	LogLevel    string
	Environment string

	// Where the refresh token survives restarts
	Backend string

	// File backend. Empty means session.json in the user config dir
	SessionFile string

	KeyringService string

	RedisAddr     string
	RedisPassword string

	DatabaseDSN string

	RequestTimeout time.Duration
	SyncInterval   time.Duration

	// Address of /metrics served by the sync command
	MetricsAddr string

	// Login and register input
	Email     string
	Password  string
	DNI       string
	Name      string
	Surname   string
	BirthDate string
	Phone     string
}

func NewConfig() *Config {
	return &Config{
		APIURL:         defaultAPIURL,
		LogLevel:       defaultLoggingLevel,
		Environment:    defaultEnvironment,
		Backend:        defaultBackend,
		KeyringService: keyring.DefaultService,
		RedisAddr:      defaultRedisAddr,
		RequestTimeout: defaultRequestTimeout,
		SyncInterval:   profile.DefaultSyncInterval,
		MetricsAddr:    defaultMetricsAddr,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"AUTH_API_URL":    setString(&c.APIURL),
		"LOG_LEVEL":       setString(&c.LogLevel),
		"ENVIRONMENT":     setString(&c.Environment),
		"SESSION_BACKEND": setString(&c.Backend),
		"SESSION_FILE":    setString(&c.SessionFile),
		"KEYRING_SERVICE": setString(&c.KeyringService),
		"REDIS_ADDR":      setString(&c.RedisAddr),
		"REDIS_PASSWORD":  setString(&c.RedisPassword),
		"DATABASE_URI":    setString(&c.DatabaseDSN),
		"REQUEST_TIMEOUT": setDuration(&c.RequestTimeout),
		"SYNC_INTERVAL":   setDuration(&c.SyncInterval),
		"METRICS_ADDRESS": setString(&c.MetricsAddr),
		"AUTH_EMAIL":      setString(&c.Email),
		"AUTH_PASSWORD":   setString(&c.Password),
		"AUTH_DNI":        setString(&c.DNI),
		"AUTH_NAME":       setString(&c.Name),
		"AUTH_SURNAME":    setString(&c.Surname),
		"AUTH_BIRTH_DATE": setString(&c.BirthDate),
		"AUTH_PHONE":      setString(&c.Phone),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ParseFlags parses options and returns positional arguments: the command and its args
func (c *Config) ParseFlags(args []string) ([]string, error) {
	fs := pflag.NewFlagSet("authsession", pflag.ContinueOnError)

	fs.StringVarP(&c.APIURL, "api-url", "u", c.APIURL, "Auth API base URL")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.Backend, "backend", "b", c.Backend, "Refresh token storage (file, keyring, redis, postgres)")
	fs.StringVarP(&c.SessionFile, "session-file", "f", c.SessionFile, "Session file for the file backend")
	fs.StringVar(&c.KeyringService, "keyring-service", c.KeyringService, "Service name for the keyring backend")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for the redis backend")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string for the postgres backend")
	fs.DurationVarP(&c.RequestTimeout, "timeout", "t", c.RequestTimeout, "Timeout of a single API request")
	fs.DurationVar(&c.SyncInterval, "sync-interval", c.SyncInterval, "Profile sync interval")
	fs.StringVarP(&c.MetricsAddr, "metrics-address", "m", c.MetricsAddr, "Listen address of /metrics for sync")
	fs.StringVar(&c.Email, "email", c.Email, "Account email")
	fs.StringVar(&c.Password, "password", c.Password, "Account password")
	fs.StringVar(&c.DNI, "dni", c.DNI, "National id, register only")
	fs.StringVar(&c.Name, "name", c.Name, "First name, register only")
	fs.StringVar(&c.Surname, "surname", c.Surname, "Last name, register only")
	fs.StringVar(&c.BirthDate, "birth-date", c.BirthDate, "Birth date as YYYY-MM-DD, register only")
	fs.StringVar(&c.Phone, "phone", c.Phone, "Phone, register only")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api url must not be empty")
	}

	switch c.Backend {
	case BackendFile, BackendKeyring, BackendRedis:
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return errors.New("database connection string is required for postgres backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Backend)
	}

	return nil
}

// Session file used when none is configured
func defaultSessionFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "authsession", "session.json"), nil
}
