package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
	"github.com/jrsteele09/go-session-sync/sessions"
	"github.com/jrsteele09/go-session-sync/workouts"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var _ sessions.Gateway = (*Client)(nil)

const (
	RouteLogin    = "/api/v1/auth/login"
	RouteRegister = "/api/v1/auth/register"
	RouteRefresh  = "/api/v1/auth/refresh"
	RouteLogout   = "/api/v1/auth/logout"
	RouteWorkouts = "/api/v1/workouts"
	RouteProfile  = "/api/v1/profile"

	DefaultTimeout  = 15 * time.Second
	maxErrorBodyLen = 64 << 10
)

// Client talks JSON over HTTP to the fitness backend.
// Non-2xx answers are returned as *errors.StatusError; transport failures are statusless.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = logger
	}
}

// New creates a client for the API rooted at baseURL, e.g. https://api.example.com.
func New(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        log.With().Str("component", "gateway").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*sessions.AuthResponse, error) {
	return c.authenticate(ctx, RouteLogin, credentialsRequest{Email: email, Password: password})
}

// Register creates an account and returns its session.
func (c *Client) Register(ctx context.Context, email, password string) (*sessions.AuthResponse, error) {
	return c.authenticate(ctx, RouteRegister, credentialsRequest{Email: email, Password: password})
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*sessions.AuthResponse, error) {
	return c.authenticate(ctx, RouteRefresh, refreshRequest{RefreshToken: refreshToken})
}

// Logout revokes refreshToken on the server.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, RouteLogout, "", refreshRequest{RefreshToken: refreshToken}, nil)
}

func (c *Client) authenticate(ctx context.Context, route string, body interface{}) (*sessions.AuthResponse, error) {
	var resp sessions.AuthResponse
	if err := c.do(ctx, http.MethodPost, route, "", body, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil || resp.Tokens == nil || resp.Tokens.AccessToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidResponse, "POST %s: missing user or tokens", route)
	}
	return &resp, nil
}

// CreateWorkout posts a raw workout payload and returns the stored record.
func (c *Client) CreateWorkout(ctx context.Context, accessToken string, payload json.RawMessage) (*workouts.Record, error) {
	var record workouts.Record
	if err := c.do(ctx, http.MethodPost, RouteWorkouts, accessToken, payload, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// SubmitWorkout is CreateWorkout for callers that only need the acknowledgement.
func (c *Client) SubmitWorkout(ctx context.Context, accessToken string, payload json.RawMessage) error {
	_, err := c.CreateWorkout(ctx, accessToken, payload)
	return err
}

// ListWorkouts returns the workouts of the token owner.
func (c *Client) ListWorkouts(ctx context.Context, accessToken string) ([]workouts.Record, error) {
	var records []workouts.Record
	if err := c.do(ctx, http.MethodGet, RouteWorkouts, accessToken, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Profile returns the user owning accessToken.
func (c *Client) Profile(ctx context.Context, accessToken string) (*sessions.User, error) {
	var user sessions.User
	if err := c.do(ctx, http.MethodGet, RouteProfile, accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) do(ctx context.Context, method, route, accessToken string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s request: %w", method, route, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s %s request: %w", method, route, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client(ctx, accessToken).Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("route", route).Msg("request failed")
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	c.log.Debug().Str("method", method).Str("route", route).Int("status", resp.StatusCode).Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", apperrors.ErrInvalidResponse, method, route, err)
	}
	return nil
}

// client returns an HTTP client that sends accessToken as a bearer credential.
func (c *Client) client(ctx context.Context, accessToken string) *http.Client {
	if accessToken == "" {
		return c.httpClient
	}
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	authed := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), source)
	authed.Timeout = c.httpClient.Timeout
	return authed
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))

	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return apperrors.NewStatusError(resp.StatusCode, body.Error)
	}
	return apperrors.NewStatusError(resp.StatusCode, strings.TrimSpace(string(raw)))
}
