package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/nkiryanov/authsession/internal/apperrors"
	"github.com/nkiryanov/authsession/internal/logger"
	"github.com/nkiryanov/authsession/internal/models"
)

// Endpoints relative to the API base URL
const (
	PathLogin          = "auth/login"
	PathRegister       = "auth/register"
	PathRefreshToken   = "auth/refresh-token"
	PathForgotPassword = "auth/forgot-password"
	PathMe             = "me"
)

// Responses larger than this are not auth responses
const maxResponseSize = 1 << 20

// Result of a successful login or register
type AuthResult struct {
	Message string
	Pair    models.TokenPair
	User    models.UserProfile
}

type envelope[T any] struct {
	StatusCode int    `json:"statusCode"`
	Success    *bool  `json:"success"`
	Message    string `json:"message"`
	Data       *T     `json:"data"`
}

type authData struct {
	Token        string              `json:"token"`
	RefreshToken string              `json:"refreshToken"`
	TokenType    string              `json:"tokenType"`
	User         *models.UserProfile `json:"user"`
}

type refreshData struct {
	Token string `json:"token"`
}

type Client struct {
	BaseURL string

	client *http.Client
	logger logger.Logger
}

// NewClient creates API client. Requests go through httpClient, so its transport decides
// about timeouts and authorization headers
func NewClient(baseURL string, httpClient *http.Client, l logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		BaseURL: baseURL,
		client:  httpClient,
		logger:  l.With("component", "authapi"),
	}
}

func (c *Client) Login(ctx context.Context, credentials models.Credentials) (AuthResult, error) {
	return c.authenticate(ctx, PathLogin, credentials)
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (AuthResult, error) {
	return c.authenticate(ctx, PathRegister, req)
}

// RefreshToken exchanges refresh token for a new access token
// Every failure wraps apperrors.ErrRefreshRejected or apperrors.ErrMalformedResponse,
// except transport failures that are returned as is
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	body := map[string]string{"refreshToken": refresh}

	var env envelope[refreshData]
	status, err := c.do(ctx, http.MethodPost, PathRefreshToken, body, &env)
	if err != nil {
		return "", err
	}

	switch {
	case status < 200 || status > 299:
		return "", fmt.Errorf("%w: %w", apperrors.ErrRefreshRejected, &Error{StatusCode: status, ServerMessage: env.Message})
	case env.Success != nil && !*env.Success:
		return "", fmt.Errorf("%w: %s", apperrors.ErrRefreshRejected, env.Message)
	case env.Data == nil || env.Data.Token == "":
		return "", fmt.Errorf("%w: no token in refresh response", apperrors.ErrMalformedResponse)
	}

	return env.Data.Token, nil
}

func (c *Client) Me(ctx context.Context) (models.UserProfile, error) {
	var env envelope[models.UserProfile]
	status, err := c.do(ctx, http.MethodGet, PathMe, nil, &env)
	if err != nil {
		return models.UserProfile{}, err
	}

	switch {
	case status < 200 || status > 299:
		return models.UserProfile{}, &Error{StatusCode: status, ServerMessage: env.Message}
	case env.Data == nil:
		return models.UserProfile{}, fmt.Errorf("%w: no user in profile response", apperrors.ErrMalformedResponse)
	}

	return *env.Data, nil
}

func (c *Client) authenticate(ctx context.Context, path string, payload any) (AuthResult, error) {
	var env envelope[authData]
	status, err := c.do(ctx, http.MethodPost, path, payload, &env)
	if err != nil {
		return AuthResult{}, err
	}

	switch {
	case status < 200 || status > 299:
		return AuthResult{}, &Error{StatusCode: status, ServerMessage: env.Message}
	case env.Success != nil && !*env.Success:
		code := env.StatusCode
		if code == 0 {
			code = http.StatusBadRequest
		}
		return AuthResult{}, &Error{StatusCode: code, ServerMessage: env.Message}
	case env.Data == nil || env.Data.Token == "" || env.Data.User == nil:
		return AuthResult{}, fmt.Errorf("%w: token or user missing in %s response", apperrors.ErrMalformedResponse, path)
	}

	tokenType := env.Data.TokenType
	if tokenType == "" {
		tokenType = models.TokenTypeBearer
	}

	return AuthResult{
		Message: env.Message,
		Pair: models.TokenPair{
			AccessToken:  env.Data.Token,
			RefreshToken: env.Data.RefreshToken,
			TokenType:    tokenType,
		},
		User: *env.Data.User,
	}, nil
}

// do sends JSON request and decodes JSON response into out whatever the status is
// Error bodies that are not JSON are tolerated: out stays empty
func (c *Client) do(ctx context.Context, method string, path string, payload any, out any) (int, error) {
	endpoint, err := url.JoinPath(c.BaseURL, path)
	if err != nil {
		return 0, fmt.Errorf("failed to build url: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	err = json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out)
	switch {
	case err == nil, errors.Is(err, io.EOF):
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		c.logger.Warn("Failed to decode response", "path", path, "error", err)
		return resp.StatusCode, fmt.Errorf("%w: %w", apperrors.ErrMalformedResponse, err)
	default:
		c.logger.Debug("Error response is not JSON", "path", path, "status_code", resp.StatusCode)
	}

	return resp.StatusCode, nil
}
