// Package app constructs the session, connectivity and sync components once and wires them together.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/jrsteele09/go-session-sync/connectivity"
	"github.com/jrsteele09/go-session-sync/gateway"
	"github.com/jrsteele09/go-session-sync/internal/config"
	"github.com/jrsteele09/go-session-sync/kvstore/sqlitestore"
	"github.com/jrsteele09/go-session-sync/outbox"
	"github.com/jrsteele09/go-session-sync/sessions"
	"github.com/jrsteele09/go-session-sync/workouts"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type App struct {
	config config.Config
	db     *sqlitestore.DB
	log    zerolog.Logger

	Gateway *gateway.Client
	Network *connectivity.Monitor
	Session *sessions.Manager
	Outbox  *outbox.Outbox
	Sync    *outbox.Coordinator

	prober        *connectivity.Prober
	httpClient    *http.Client
	onDrain       outbox.ResultHandler
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	detachSession func()
}

type Option func(*App)

func WithHTTPClient(client *http.Client) Option {
	return func(a *App) {
		a.httpClient = client
	}
}

// WithDrainHandler is called after every background drain pass.
func WithDrainHandler(handler outbox.ResultHandler) Option {
	return func(a *App) {
		a.onDrain = handler
	}
}

// New opens the local database and builds every component. Nothing touches the network until Start.
func New(cfg config.Config, options ...Option) (*App, error) {
	a := &App{
		config: cfg,
		log:    log.With().Str("component", "app").Logger(),
	}
	for _, opt := range options {
		opt(a)
	}

	db, err := sqlitestore.Open(cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("[app New] failed to open local store: %w", err)
	}
	a.db = db

	gatewayOptions := []gateway.ClientOption{}
	proberOptions := []connectivity.ProberOption{connectivity.WithInterval(cfg.GetConnectivityProbeInterval())}
	if a.httpClient != nil {
		gatewayOptions = append(gatewayOptions, gateway.WithHTTPClient(a.httpClient))
		proberOptions = append(proberOptions, connectivity.WithHTTPClient(a.httpClient))
	}
	a.Gateway = gateway.New(cfg.GetAPIURL(), gatewayOptions...)

	// Assume online until the first probe says otherwise.
	a.Network = connectivity.NewMonitor(true)
	a.prober = connectivity.NewProber(cfg.GetConnectivityProbeURL(), a.Network, proberOptions...)

	a.Session = sessions.New(a.Gateway, db.Bucket(sqlitestore.BucketCredentials),
		sessions.WithStorageKey(cfg.GetSessionStorageKey()),
		sessions.WithBackoff(cfg.GetRefreshBaseDelay(), cfg.GetRefreshMaxRetries()),
		sessions.WithConnectivity(a.Network),
	)

	a.Outbox = outbox.New(db.Bucket(sqlitestore.BucketPendingWorkouts), a.Session, a.Gateway.SubmitWorkout,
		outbox.WithMaxEntries(cfg.GetOutboxMaxEntries()),
		outbox.WithConnectivity(a.Network),
	)

	coordinatorOptions := []outbox.CoordinatorOption{}
	if a.onDrain != nil {
		coordinatorOptions = append(coordinatorOptions, outbox.WithResultHandler(a.onDrain))
	}
	a.Sync = outbox.NewCoordinator(a.Outbox, a.Network, coordinatorOptions...)

	return a, nil
}

// Start probes connectivity, restores the session and starts background sync.
// With attemptRefresh the stored refresh token is exchanged once on startup.
func (a *App) Start(ctx context.Context, attemptRefresh bool) {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.prober.Probe(runCtx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.prober.Run(runCtx)
	}()

	// A fresh login can deliver writes queued while signed out.
	authenticated := false
	a.detachSession = a.Session.Subscribe(func(s sessions.State) {
		now := s.Authenticated() && s.Phase == sessions.PhaseAuthenticated
		if now && !authenticated {
			a.Sync.Trigger()
		}
		authenticated = now
	})

	a.Session.Initialize(runCtx, attemptRefresh)
	a.Sync.Start(runCtx)

	state := a.Session.State()
	a.log.Info().
		Str("phase", string(state.Phase)).
		Bool("online", a.Network.Online()).
		Msg("started")
}

// LogWorkout validates a completed workout and delivers or queues it.
func (a *App) LogWorkout(ctx context.Context, w workouts.Workout) (outbox.SubmitResult, error) {
	payload, err := w.Payload()
	if err != nil {
		return outbox.SubmitResult{}, err
	}
	return a.Outbox.Submit(ctx, payload)
}

// Workouts lists the signed-in user's workouts from the server.
func (a *App) Workouts(ctx context.Context) ([]workouts.Record, error) {
	return sessions.Call(ctx, a.Session, a.Gateway.ListWorkouts)
}

// Profile returns the signed-in user as the server sees it.
func (a *App) Profile(ctx context.Context) (*sessions.User, error) {
	return sessions.Call(ctx, a.Session, a.Gateway.Profile)
}

// Close stops background work and closes the local store.
func (a *App) Close() error {
	if a.detachSession != nil {
		a.detachSession()
	}
	a.Sync.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return a.db.Close()
}
