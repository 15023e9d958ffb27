package sessions

import (
	"context"
	"time"
)

// Role is the closed set of user roles issued by the backend.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the identity half of a session record.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tokens is the credential half of a session record.
// AccessToken is short-lived; RefreshToken is the only durable credential.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is returned by login, register and refresh.
type AuthResponse struct {
	User   *User   `json:"user"`
	Tokens *Tokens `json:"tokens"`
}

func (r *AuthResponse) complete() bool {
	return r != nil && r.User != nil && r.User.Role.Valid() && r.Tokens != nil && r.Tokens.AccessToken != ""
}

// Gateway is the remote authentication API.
// Failures carry a status code (see internal/errors.StatusCoder) or are statusless network errors.
type Gateway interface {
	Login(ctx context.Context, email, password string) (*AuthResponse, error)
	Register(ctx context.Context, email, password string) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Connectivity reports whether the device is currently online.
type Connectivity interface {
	Online() bool
}

// Phase is the lifecycle position of the manager.
type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseHydrating       Phase = "hydrating"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// State is the projection of the session handed to observers.
// User and Tokens are both set or both nil.
type State struct {
	Phase     Phase
	User      *User
	Tokens    *Tokens
	Loading   bool
	LastError error
}

// Authenticated reports whether the record holds a user and a usable access token.
func (s State) Authenticated() bool {
	return s.User != nil && s.Tokens != nil && s.Tokens.AccessToken != ""
}

// clone copies the record so observers never share memory with the manager.
func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	if s.Tokens != nil {
		t := *s.Tokens
		s.Tokens = &t
	}
	return s
}

func phaseOf(user *User, tokens *Tokens) Phase {
	if (State{User: user, Tokens: tokens}).Authenticated() {
		return PhaseAuthenticated
	}
	return PhaseUnauthenticated
}

// Listener receives a state snapshot after every transition.
type Listener func(State)
