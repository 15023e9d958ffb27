package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-session-sync/gateway"
	"github.com/jrsteele09/go-session-sync/gateway/fakegateway"
	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "athlete@example.com"
	testPassword = "password123"
	testWorkout  = `{"startedAt":"2026-03-01T07:00:00Z","completedAt":"2026-03-01T07:45:00Z","entries":[{"exerciseId":"squat","sets":5,"reps":5,"weight":100}]}`
)

type testFixture struct {
	backend *fakegateway.Backend
	server  *httptest.Server
	client  *gateway.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := fakegateway.NewBackend()
	server := httptest.NewServer(fakegateway.NewServer(backend))
	t.Cleanup(server.Close)

	return &testFixture{
		backend: backend,
		server:  server,
		client:  gateway.New(server.URL + "/"),
	}
}

func TestAuthRoundTrip(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	registered, err := f.client.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, testEmail, registered.User.Email)
	assert.False(t, registered.User.CreatedAt.IsZero())

	login, err := f.client.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, login.User.ID)

	refreshed, err := f.client.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	require.NoError(t, f.client.Logout(ctx, refreshed.Tokens.RefreshToken))
	_, err = f.client.Refresh(ctx, refreshed.Tokens.RefreshToken)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestErrorBodyBecomesStatusError(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.Login(context.Background(), testEmail, "nope")
	var statusErr *apperrors.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
	assert.Equal(t, "invalid credentials", statusErr.Message)
}

func TestScriptedTransientFailureIsRetryable(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.FailNext(fakegateway.OpLogin, errors.New("database unavailable"))

	_, err := f.client.Login(context.Background(), testEmail, testPassword)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestTransportFailureIsStatusless(t *testing.T) {
	f := setupTestFixture(t)
	f.server.Close()

	_, err := f.client.Login(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	_, hasStatus := apperrors.Status(err)
	assert.False(t, hasStatus)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestWorkoutsUseBearerToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	resp, err := f.client.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	err = f.client.SubmitWorkout(ctx, "bogus", json.RawMessage(testWorkout))
	assert.True(t, apperrors.IsUnauthorized(err))

	record, err := f.client.CreateWorkout(ctx, resp.Tokens.AccessToken, json.RawMessage(testWorkout))
	require.NoError(t, err)
	assert.Len(t, record.Entries, 1)

	records, err := f.client.ListWorkouts(ctx, resp.Tokens.AccessToken)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)

	profile, err := f.client.Profile(ctx, resp.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, profile.ID)
}

func TestInvalidAuthResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":null}`))
	}))
	t.Cleanup(server.Close)

	_, err := gateway.New(server.URL).Login(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, apperrors.ErrInvalidResponse)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestPlainTextErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	_, err := gateway.New(server.URL).Profile(context.Background(), "token")
	var statusErr *apperrors.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "unauthorized", statusErr.Message)
}
