package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/authsession/internal/authapi"
	"github.com/nkiryanov/authsession/internal/logger"
	"github.com/nkiryanov/authsession/internal/models"
	"github.com/nkiryanov/authsession/internal/session"
)

type API interface {
	Login(ctx context.Context, credentials models.Credentials) (authapi.AuthResult, error)
	Register(ctx context.Context, req models.RegisterRequest) (authapi.AuthResult, error)
	Me(ctx context.Context) (models.UserProfile, error)
}

type profilePublisher interface {
	Publish(profile *models.UserProfile)
}

type sessionCloser interface {
	Logout(ctx context.Context, reason error)
}

// Service runs the user facing auth flows on top of the session store
type Service struct {
	api      API
	store    *session.Store
	profile  profilePublisher
	sessions sessionCloser
	validate *validator.Validate
	logger   logger.Logger
}

func NewService(api API, store *session.Store, profile profilePublisher, sessions sessionCloser, l logger.Logger) (*Service, error) {
	if api == nil || store == nil || profile == nil || sessions == nil {
		return nil, errors.New("api, store, profile and sessions must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		api:      api,
		store:    store,
		profile:  profile,
		sessions: sessions,
		validate: newValidator(),
		logger:   l.With("component", "auth"),
	}, nil
}

// Login validates credentials, authenticates and starts a new session
// Failures from the server are *authapi.Error, invalid input is *ValidationError
func (s *Service) Login(ctx context.Context, credentials models.Credentials) (models.UserProfile, error) {
	if err := s.validate.Struct(credentials); err != nil {
		return models.UserProfile{}, validationError(err)
	}

	res, err := s.api.Login(ctx, credentials)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to login: %w", err)
	}

	s.start(ctx, res)
	s.logger.Info("User logged in", "user_id", res.User.ID, "role", res.User.Role)

	return res.User, nil
}

// Register creates the account and starts a session for it
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (models.UserProfile, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.UserProfile{}, validationError(err)
	}

	res, err := s.api.Register(ctx, req)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to register: %w", err)
	}

	s.start(ctx, res)
	s.logger.Info("User registered", "user_id", res.User.ID)

	return res.User, nil
}

// Me fetches the profile of the session owner
func (s *Service) Me(ctx context.Context) (models.UserProfile, error) {
	p, err := s.api.Me(ctx)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// Logout ends the session and notifies logout listeners
func (s *Service) Logout(ctx context.Context) {
	s.sessions.Logout(ctx, nil)
}

func (s *Service) start(ctx context.Context, res authapi.AuthResult) {
	s.store.Save(ctx, res.Pair, res.User)

	user := res.User
	s.profile.Publish(&user)
}
