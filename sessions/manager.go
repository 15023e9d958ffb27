package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-sync/internal/clock"
	"github.com/jrsteele09/go-session-sync/kvstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultStorageKey = "mm-auth"
	DefaultMaxRetries = 4
	DefaultBaseDelay  = 250 * time.Millisecond
)

// Manager is the single owner of the session record and of the credential slot in its store.
// Create one per application with New and pass it to every consumer.
type Manager struct {
	gateway      Gateway
	store        kvstore.Repo
	storageKey   string
	connectivity Connectivity
	sleeper      clock.Sleeper
	backoff      Backoff
	nowFunc      func() time.Time
	log          zerolog.Logger

	// transitionLock serialises transitions with their write-through and
	// notification so observers see snapshots in transition order.
	transitionLock sync.Mutex
	lock           sync.RWMutex
	state          State
	generation     uint64

	refreshGroup singleflight.Group

	listenersLock  sync.Mutex
	listeners      map[uint64]Listener
	nextListenerID uint64
}

type ManagerOption func(*Manager)

// WithStorageKey sets the credential slot key. Defaults to DefaultStorageKey.
func WithStorageKey(key string) ManagerOption {
	return func(m *Manager) {
		m.storageKey = key
	}
}

// WithBackoff sets the refresh retry schedule: base delay and retries after the first attempt.
func WithBackoff(base time.Duration, maxRetries int) ManagerOption {
	return func(m *Manager) {
		m.backoff = Backoff{Base: base, MaxRetries: maxRetries}
	}
}

// WithSleeper replaces the sleeper used between refresh retries.
func WithSleeper(sleeper clock.Sleeper) ManagerOption {
	return func(m *Manager) {
		m.sleeper = sleeper
	}
}

// WithNowFunc sets the clock used to stamp persisted snapshots.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithConnectivity makes refresh and remote logout skip the network while offline.
func WithConnectivity(c Connectivity) ManagerOption {
	return func(m *Manager) {
		m.connectivity = c
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = logger
	}
}

// New creates a session manager over gateway and the credential store.
// The manager starts Uninitialized; call Initialize to hydrate it.
func New(gateway Gateway, store kvstore.Repo, options ...ManagerOption) *Manager {
	m := &Manager{
		gateway:    gateway,
		store:      store,
		storageKey: DefaultStorageKey,
		sleeper:    clock.Real{},
		backoff:    Backoff{Base: DefaultBaseDelay, MaxRetries: DefaultMaxRetries},
		nowFunc:    time.Now,
		log:        log.With().Str("component", "session").Logger(),
		state:      State{Phase: PhaseUninitialized, Loading: true},
		listeners:  make(map[uint64]Listener),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.backoff.MaxRetries < 0 {
		m.backoff.MaxRetries = 0
	}
	return m
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state.clone()
}

// Subscribe registers a listener, calls it immediately with the current state and
// then after every transition. Listeners run synchronously and must not call
// Login, Logout, Refresh or Initialize. The returned func detaches the listener.
func (m *Manager) Subscribe(listener Listener) (detach func()) {
	m.transitionLock.Lock()
	defer m.transitionLock.Unlock()

	m.listenersLock.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = listener
	m.listenersLock.Unlock()

	listener(m.State())

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersLock.Lock()
			delete(m.listeners, id)
			m.listenersLock.Unlock()
		})
	}
}

// Initialize hydrates the session from the credential store and, when attemptRefresh is set
// and a refresh token was found, refreshes once. It always ends with Loading cleared.
func (m *Manager) Initialize(ctx context.Context, attemptRefresh bool) {
	m.update(func(s *State) {
		s.Phase = PhaseHydrating
		s.Loading = true
	})
	defer m.update(func(s *State) {
		s.Loading = false
		s.Phase = phaseOf(s.User, s.Tokens)
	})

	m.hydrate(ctx)

	if !attemptRefresh || m.refreshToken() == "" {
		return
	}
	if _, err := m.Refresh(ctx); err != nil {
		m.log.Warn().Err(err).Msg("refresh on startup failed")
		m.setLastError(err)
	}
}

func (m *Manager) hydrate(ctx context.Context) {
	raw, err := m.store.Get(ctx, m.storageKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return
	}
	if err != nil {
		m.log.Error().Err(err).Msg("failed to read stored session")
		m.setLastError(err)
		return
	}

	snap, err := DecodeSnapshot(raw)
	if err != nil {
		m.log.Warn().Err(err).Msg("discarding unreadable stored session")
		if delErr := m.store.Delete(context.WithoutCancel(ctx), m.storageKey); delErr != nil {
			m.log.Error().Err(delErr).Msg("failed to clear unreadable stored session")
		}
		m.setLastError(err)
		return
	}
	if snap.Empty() {
		return
	}
	m.apply(ctx, snap.User, snap.Tokens, nil, nil, false)
}

// Login authenticates and replaces the session. Errors are returned unchanged and never retried.
func (m *Manager) Login(ctx context.Context, email, password string) (*User, error) {
	resp, err := m.gateway.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, resp)
}

// Register creates an account and replaces the session. Errors are returned unchanged.
func (m *Manager) Register(ctx context.Context, email, password string) (*User, error) {
	resp, err := m.gateway.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, resp)
}

func (m *Manager) establish(ctx context.Context, resp *AuthResponse) (*User, error) {
	if !resp.complete() {
		return nil, errInvalidAuthResponse
	}
	m.apply(ctx, resp.User, resp.Tokens, nil, nil, true)
	user := *resp.User
	return &user, nil
}

// Logout clears the session immediately, then tells the gateway when online.
// It never fails; gateway errors are only recorded as LastError.
func (m *Manager) Logout(ctx context.Context) {
	previous, _ := m.clear(ctx, nil, nil)
	if previous == nil || previous.RefreshToken == "" {
		return
	}
	if !m.online() {
		m.log.Info().Msg("offline, skipping remote logout")
		return
	}
	if err := m.gateway.Logout(ctx, previous.RefreshToken); err != nil {
		m.log.Warn().Err(err).Msg("remote logout failed")
		m.setLastError(err)
	}
}

func (m *Manager) online() bool {
	return m.connectivity == nil || m.connectivity.Online()
}

func (m *Manager) refreshToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.state.Tokens == nil {
		return ""
	}
	return m.state.Tokens.RefreshToken
}

// apply replaces the session record wholesale. When guard is set the change is skipped
// if another transition happened since that generation was read. It returns the tokens
// it replaced and whether the record was applied.
func (m *Manager) apply(ctx context.Context, user *User, tokens *Tokens, cause error, guard *uint64, writeThrough bool) (*Tokens, bool) {
	m.transitionLock.Lock()
	defer m.transitionLock.Unlock()

	m.lock.Lock()
	if guard != nil && *guard != m.generation {
		m.lock.Unlock()
		return nil, false
	}
	previous := m.state.Tokens
	m.generation++
	m.state.User, m.state.Tokens = copyUser(user), copyTokens(tokens)
	m.state.LastError = cause
	if m.state.Phase != PhaseHydrating {
		m.state.Phase = phaseOf(m.state.User, m.state.Tokens)
	}
	m.lock.Unlock()

	if writeThrough {
		if err := m.writeThrough(context.WithoutCancel(ctx), user, tokens); err != nil {
			m.log.Error().Err(err).Msg("failed to persist session")
			m.lock.Lock()
			m.state.LastError = err
			m.lock.Unlock()
		}
	}

	m.notify()
	return previous, true
}

// clear destroys the session and returns the tokens it held.
func (m *Manager) clear(ctx context.Context, cause error, guard *uint64) (*Tokens, bool) {
	return m.apply(ctx, nil, nil, cause, guard, true)
}

func (m *Manager) writeThrough(ctx context.Context, user *User, tokens *Tokens) error {
	if user == nil || tokens == nil {
		return m.store.Delete(ctx, m.storageKey)
	}
	raw, err := EncodeSnapshot(user, tokens, m.nowFunc())
	if err != nil {
		return err
	}
	return m.store.Put(ctx, m.storageKey, raw)
}

// update changes non-session fields and notifies.
func (m *Manager) update(mutate func(s *State)) {
	m.transitionLock.Lock()
	defer m.transitionLock.Unlock()

	m.lock.Lock()
	mutate(&m.state)
	m.lock.Unlock()
	m.notify()
}

func (m *Manager) setLastError(err error) {
	m.update(func(s *State) {
		s.LastError = err
	})
}

// notify must be called with transitionLock held.
func (m *Manager) notify() {
	snapshot := m.State()

	m.listenersLock.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenersLock.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func copyTokens(t *Tokens) *Tokens {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
