package fakegateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
	"github.com/jrsteele09/go-session-sync/sessions"
	"github.com/jrsteele09/go-session-sync/workouts"
	"golang.org/x/crypto/bcrypt"
)

var _ sessions.Gateway = (*Backend)(nil)

const (
	DefaultAccessTTL  = 15 * time.Minute
	minPasswordLength = 8
)

// Operation names a backend call that failures can be scripted for.
type Operation string

const (
	OpLogin         Operation = "login"
	OpRegister      Operation = "register"
	OpRefresh       Operation = "refresh"
	OpLogout        Operation = "logout"
	OpCreateWorkout Operation = "create_workout"
	OpListWorkouts  Operation = "list_workouts"
	OpProfile       Operation = "profile"
)

type account struct {
	user         sessions.User
	passwordHash []byte
}

// Backend is an in-memory fitness backend. It implements sessions.Gateway directly and
// can be served over HTTP with NewServer.
type Backend struct {
	lock sync.Mutex

	secret    []byte
	accessTTL time.Duration
	nowFunc   func() time.Time

	accounts      map[string]*account // keyed by lower-cased email
	accountsByID  map[string]*account
	refreshTokens map[string]string // token -> user id
	workouts      map[string][]workouts.Record

	// Access tokens issued before the last ExpireAccessTokens call are rejected.
	tokenGeneration int

	failures    map[Operation][]error
	calls       map[Operation]int
	refreshGate chan struct{}
}

type BackendOption func(*Backend)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(ttl time.Duration) BackendOption {
	return func(b *Backend) {
		b.accessTTL = ttl
	}
}

func WithNowFunc(now func() time.Time) BackendOption {
	return func(b *Backend) {
		b.nowFunc = now
	}
}

func WithSecret(secret []byte) BackendOption {
	return func(b *Backend) {
		b.secret = secret
	}
}

// NewBackend creates an empty backend with a random signing secret.
func NewBackend(options ...BackendOption) *Backend {
	b := &Backend{
		secret:        []byte(uuid.NewString()),
		accessTTL:     DefaultAccessTTL,
		nowFunc:       time.Now,
		accounts:      make(map[string]*account),
		accountsByID:  make(map[string]*account),
		refreshTokens: make(map[string]string),
		workouts:      make(map[string][]workouts.Record),
		failures:      make(map[Operation][]error),
		calls:         make(map[Operation]int),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// AddUser creates an account directly, bypassing registration rules.
func (b *Backend) AddUser(email, password string, role sessions.Role) (*sessions.User, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	acc, err := b.addAccount(email, password, role)
	if err != nil {
		return nil, err
	}
	user := acc.user
	return &user, nil
}

// Register creates a user account with RoleUser and issues a token pair.
func (b *Backend) Register(ctx context.Context, email, password string) (*sessions.AuthResponse, error) {
	if err := b.begin(ctx, OpRegister); err != nil {
		return nil, err
	}

	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.NewStatusError(http.StatusBadRequest, "a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.NewStatusError(http.StatusBadRequest, "password must be at least 8 characters long")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	acc, err := b.addAccount(email, password, sessions.RoleUser)
	if err != nil {
		return nil, err
	}
	return b.issue(acc)
}

// Login verifies the password and issues a new token pair.
func (b *Backend) Login(ctx context.Context, email, password string) (*sessions.AuthResponse, error) {
	if err := b.begin(ctx, OpLogin); err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	acc, ok := b.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)) != nil {
		return nil, apperrors.NewStatusError(http.StatusUnauthorized, "invalid credentials")
	}
	return b.issue(acc)
}

// Refresh rotates the refresh token: the presented token stops working.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*sessions.AuthResponse, error) {
	if err := b.begin(ctx, OpRefresh); err != nil {
		return nil, err
	}

	b.lock.Lock()
	gate := b.refreshGate
	b.lock.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	userID, ok := b.refreshTokens[refreshToken]
	if !ok {
		return nil, apperrors.NewStatusError(http.StatusUnauthorized, "invalid refresh token")
	}
	delete(b.refreshTokens, refreshToken)
	return b.issue(b.accountsByID[userID])
}

// Logout revokes refreshToken. Unknown tokens are ignored.
func (b *Backend) Logout(ctx context.Context, refreshToken string) error {
	if err := b.begin(ctx, OpLogout); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.refreshTokens, refreshToken)
	return nil
}

// CreateWorkout stores a workout for the owner of accessToken.
func (b *Backend) CreateWorkout(ctx context.Context, accessToken string, payload json.RawMessage) (*workouts.Record, error) {
	if err := b.begin(ctx, OpCreateWorkout); err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	acc, err := b.validateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	w, err := workouts.Decode(payload)
	if err != nil {
		return nil, apperrors.NewStatusError(http.StatusBadRequest, err.Error())
	}

	record := workouts.Record{
		ID:          uuid.New().String(),
		UserID:      acc.user.ID,
		StartedAt:   w.StartedAt,
		CompletedAt: w.CompletedAt,
		CreatedAt:   b.nowFunc().UTC(),
		Entries:     w.Entries,
	}
	b.workouts[acc.user.ID] = append(b.workouts[acc.user.ID], record)
	return &record, nil
}

func (b *Backend) ListWorkouts(ctx context.Context, accessToken string) ([]workouts.Record, error) {
	if err := b.begin(ctx, OpListWorkouts); err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	acc, err := b.validateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	return append([]workouts.Record{}, b.workouts[acc.user.ID]...), nil
}

func (b *Backend) Profile(ctx context.Context, accessToken string) (*sessions.User, error) {
	if err := b.begin(ctx, OpProfile); err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	acc, err := b.validateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	user := acc.user
	return &user, nil
}

// FailNext makes the next len(errs) calls of op return errs in order.
func (b *Backend) FailNext(op Operation, errs ...error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.failures[op] = append(b.failures[op], errs...)
}

// Calls returns how many times op has been invoked.
func (b *Backend) Calls(op Operation) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.calls[op]
}

// HoldRefresh blocks refresh calls until the returned func is called.
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	b.lock.Lock()
	b.refreshGate = gate
	b.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.lock.Lock()
			if b.refreshGate == gate {
				b.refreshGate = nil
			}
			b.lock.Unlock()
			close(gate)
		})
	}
}

// ExpireAccessTokens invalidates every access token issued so far.
func (b *Backend) ExpireAccessTokens() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.tokenGeneration++
}

// RevokeRefreshTokens invalidates every refresh token held by the user with email.
func (b *Backend) RevokeRefreshTokens(email string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	acc, ok := b.accounts[strings.ToLower(email)]
	if !ok {
		return
	}
	for token, owner := range b.refreshTokens {
		if owner == acc.user.ID {
			delete(b.refreshTokens, token)
		}
	}
}

// Workouts returns the workouts stored for the user with email.
func (b *Backend) Workouts(email string) []workouts.Record {
	b.lock.Lock()
	defer b.lock.Unlock()
	acc, ok := b.accounts[strings.ToLower(email)]
	if !ok {
		return nil
	}
	return append([]workouts.Record{}, b.workouts[acc.user.ID]...)
}

// begin counts the call and returns any scripted failure for it.
func (b *Backend) begin(ctx context.Context, op Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	b.calls[op]++
	if queued := b.failures[op]; len(queued) > 0 {
		b.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

// addAccount must be called with the lock held.
func (b *Backend) addAccount(email, password string, role sessions.Role) (*account, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if _, exists := b.accounts[key]; exists {
		return nil, apperrors.NewStatusError(http.StatusBadRequest, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to hash password")
	}
	acc := &account{
		user: sessions.User{
			ID:        uuid.New().String(),
			Email:     key,
			Role:      role,
			CreatedAt: b.nowFunc().UTC().Truncate(time.Second),
		},
		passwordHash: hash,
	}
	b.accounts[key] = acc
	b.accountsByID[acc.user.ID] = acc
	return acc, nil
}

// issue must be called with the lock held.
func (b *Backend) issue(acc *account) (*sessions.AuthResponse, error) {
	access, err := b.createAccessToken(acc)
	if err != nil {
		return nil, err
	}
	refresh, err := b.createRefreshToken(acc.user.ID)
	if err != nil {
		return nil, err
	}
	user := acc.user
	return &sessions.AuthResponse{
		User:   &user,
		Tokens: &sessions.Tokens{AccessToken: access, RefreshToken: refresh},
	}, nil
}
