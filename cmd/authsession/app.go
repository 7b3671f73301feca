package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/authsession/internal/authapi"
	"github.com/nkiryanov/authsession/internal/guard"
	"github.com/nkiryanov/authsession/internal/logger"
	"github.com/nkiryanov/authsession/internal/metrics"
	"github.com/nkiryanov/authsession/internal/service/auth"
	"github.com/nkiryanov/authsession/internal/service/profile"
	"github.com/nkiryanov/authsession/internal/service/refresh"
	"github.com/nkiryanov/authsession/internal/session"
	"github.com/nkiryanov/authsession/internal/storage"
	"github.com/nkiryanov/authsession/internal/storage/file"
	"github.com/nkiryanov/authsession/internal/storage/keyring"
	"github.com/nkiryanov/authsession/internal/storage/memory"
	"github.com/nkiryanov/authsession/internal/storage/postgres"
	"github.com/nkiryanov/authsession/internal/storage/redis"
	"github.com/nkiryanov/authsession/internal/transport"
)

// App is the whole client stack wired for one process
type App struct {
	Store       *session.Store
	State       *session.State
	Coordinator *refresh.Coordinator
	Auth        *auth.Service
	Profile     *profile.Service
	Guard       *guard.Guard
	Registry    *prometheus.Registry

	config  *Config
	logger  logger.Logger
	closers []func()
}

func NewApp(ctx context.Context, c *Config) (*App, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &App{config: c, logger: l}

	durable, err := app.durableScope(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while opening session storage: %w", err)
	}

	// Access token and profile never outlive the process
	store, err := session.NewStore(memory.New(), durable, l)
	if err != nil {
		app.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while registering metrics: %w", err)
	}

	// The API client goes through the auth transport, which needs the coordinator built on that client
	httpClient := &http.Client{Timeout: c.RequestTimeout}
	api := authapi.NewClient(c.APIURL, httpClient, l)
	coordinator := refresh.New(store, api, refresh.WithMetrics(m), refresh.WithLogger(l))
	httpClient.Transport = transport.Chain(
		http.DefaultTransport,
		transport.Auth(store, coordinator, m, l),
		transport.Logging(l),
	)

	state := session.NewState(store, l)
	profiles := profile.NewService(ctx, store, state, api, l)
	coordinator.OnLogout(func(error) { profiles.Clear() })

	authService, err := auth.NewService(api, store, profiles, coordinator, l)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating auth service: %w", err)
	}

	app.Store = store
	app.State = state
	app.Coordinator = coordinator
	app.Auth = authService
	app.Profile = profiles
	app.Guard = guard.New(state, guard.DefaultRoutes())
	app.Registry = registry

	return app, nil
}

func (a *App) durableScope(ctx context.Context) (storage.Scope, error) {
	c := a.config

	switch c.Backend {
	case BackendFile:
		path := c.SessionFile
		if path == "" {
			var err error
			if path, err = defaultSessionFile(); err != nil {
				return nil, err
			}
		}
		return file.New(path)

	case BackendKeyring:
		return keyring.New(c.KeyringService), nil

	case BackendRedis:
		scope, err := redis.New(ctx, redis.Config{Addr: c.RedisAddr, Password: c.RedisPassword})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = scope.Close() })
		return scope, nil

	case BackendPostgres:
		pool, err := postgres.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		return postgres.NewScope(pool, postgres.DefaultScopeName), nil

	default:
		return nil, fmt.Errorf("unknown session backend %q", c.Backend)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ServeMetrics serves /metrics until ctx is cancelled and closes gracefully
func (a *App) ServeMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              a.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			a.logger.Error("Metrics server shutdown timeout exceeded, forcing shutdown...")
		}
		a.logger.Info("Metrics server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	a.logger.Info("Starting metrics server", "address", a.config.MetricsAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// describe turns an error into a line for the terminal
func describe(err error) string {
	var verr *auth.ValidationError
	var apiErr *authapi.Error

	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &apiErr):
		return apiErr.UserMessage()
	default:
		return err.Error()
	}
}
