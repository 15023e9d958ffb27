package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-sync/gateway/fakegateway"
	"github.com/jrsteele09/go-session-sync/internal/app"
	"github.com/jrsteele09/go-session-sync/internal/config"
	"github.com/jrsteele09/go-session-sync/outbox"
	"github.com/jrsteele09/go-session-sync/sessions"
	"github.com/jrsteele09/go-session-sync/workouts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "athlete@example.com"
	testPassword = "password123"
)

// flakyServer drops every connection while down.
type flakyServer struct {
	down atomic.Bool
	next http.Handler
}

func (s *flakyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.down.Load() {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	}
	s.next.ServeHTTP(w, r)
}

type testFixture struct {
	backend *fakegateway.Backend
	server  *flakyServer
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := fakegateway.NewBackend()
	_, err := backend.AddUser(testEmail, testPassword, sessions.RoleUser)
	require.NoError(t, err)

	flaky := &flakyServer{next: fakegateway.NewServer(backend)}
	server := httptest.NewServer(flaky)
	t.Cleanup(server.Close)

	t.Setenv("API_URL", server.URL+"/api")
	t.Setenv("FOLDER", t.TempDir())
	t.Setenv("CONNECTIVITY_PROBE_INTERVAL", "20ms")
	t.Setenv("REFRESH_BASE_DELAY", "1ms")

	return &testFixture{backend: backend, server: flaky}
}

func (f *testFixture) start(t *testing.T, attemptRefresh bool, options ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(config.New(), options...)
	require.NoError(t, err)
	a.Start(context.Background(), attemptRefresh)
	return a
}

func sampleWorkout(exercise string) workouts.Workout {
	start := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	return workouts.Workout{
		StartedAt:   start,
		CompletedAt: start.Add(30 * time.Minute),
		Entries:     []workouts.Entry{{ExerciseID: exercise, Sets: 3, Reps: 8, Weight: 60}},
	}
}

func TestOfflineWorkoutSyncsWhenBackOnline(t *testing.T) {
	f := setupTestFixture(t)
	a := f.start(t, false)
	defer a.Close()
	ctx := context.Background()

	assert.Equal(t, sessions.PhaseUnauthenticated, a.Session.State().Phase)
	_, err := a.Session.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	res, err := a.LogWorkout(ctx, sampleWorkout("squat"))
	require.NoError(t, err)
	assert.Equal(t, outbox.Delivered, res.Status)

	f.server.down.Store(true)
	require.Eventually(t, func() bool { return !a.Network.Online() }, 2*time.Second, 10*time.Millisecond)

	res, err = a.LogWorkout(ctx, sampleWorkout("bench"))
	require.NoError(t, err)
	assert.Equal(t, outbox.Queued, res.Status)
	assert.Len(t, f.backend.Workouts(testEmail), 1)

	f.server.down.Store(false)
	require.Eventually(t, func() bool { return len(f.backend.Workouts(testEmail)) == 2 }, 2*time.Second, 10*time.Millisecond)
	a.Sync.Wait()

	pending, err := a.Outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	records, err := a.Workouts(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSessionSurvivesRestart(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	first := f.start(t, false)
	user, err := first.Session.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := f.start(t, true)
	defer second.Close()

	state := second.Session.State()
	require.Equal(t, sessions.PhaseAuthenticated, state.Phase)
	assert.Equal(t, user.ID, state.User.ID)
	assert.Equal(t, 1, f.backend.Calls(fakegateway.OpRefresh))

	profile, err := second.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, testEmail, profile.Email)
}

func TestQueuedWritesDrainAfterLogin(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	drained := make(chan outbox.DrainResult, 4)
	a := f.start(t, false, app.WithDrainHandler(func(r outbox.DrainResult, _ error) {
		drained <- r
	}))
	defer a.Close()

	// Signed out: the write cannot be delivered and is not queued.
	_, err := a.LogWorkout(ctx, sampleWorkout("squat"))
	require.Error(t, err)

	// Offline writes are queued regardless of the session.
	f.server.down.Store(true)
	a.Network.Set(false)
	res, err := a.LogWorkout(ctx, sampleWorkout("row"))
	require.NoError(t, err)
	assert.Equal(t, outbox.Queued, res.Status)

	f.server.down.Store(false)
	require.Eventually(t, a.Network.Online, 2*time.Second, 10*time.Millisecond)
	a.Sync.Wait()
	assert.Empty(t, f.backend.Workouts(testEmail))

	_, err = a.Session.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(f.backend.Workouts(testEmail)) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestLogWorkoutValidates(t *testing.T) {
	f := setupTestFixture(t)
	a := f.start(t, false)
	defer a.Close()

	_, err := a.LogWorkout(context.Background(), workouts.Workout{})
	assert.ErrorIs(t, err, workouts.ErrNoEntries)
}
