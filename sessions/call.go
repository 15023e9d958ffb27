package sessions

import (
	"context"
	"errors"

	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
)

// AuthorizedFunc performs one authenticated request with the given access token.
type AuthorizedFunc func(ctx context.Context, accessToken string) error

// CallWithAuth runs op with the current access token. On a 401 it refreshes once and
// retries op once with the new token. A failed refresh clears the session unless the
// caller gave up or the session had already changed.
func (m *Manager) CallWithAuth(ctx context.Context, op AuthorizedFunc) error {
	m.lock.RLock()
	generation := m.generation
	var accessToken string
	if m.state.Tokens != nil {
		accessToken = m.state.Tokens.AccessToken
	}
	m.lock.RUnlock()

	if accessToken == "" {
		return apperrors.ErrNotAuthenticated
	}

	err := op(ctx, accessToken)
	if err == nil || !apperrors.IsUnauthorized(err) {
		return err
	}

	m.log.Debug().Err(err).Msg("request unauthorized, refreshing")
	tokens, refreshErr := m.Refresh(ctx)
	if refreshErr != nil {
		if !apperrors.IsCancelled(refreshErr) && !errors.Is(refreshErr, apperrors.ErrSessionChanged) {
			m.clear(ctx, refreshErr, &generation)
		}
		return refreshErr
	}
	return op(ctx, tokens.AccessToken)
}

// Call is CallWithAuth for requests that produce a value.
func Call[T any](ctx context.Context, m *Manager, op func(ctx context.Context, accessToken string) (T, error)) (T, error) {
	var result T
	err := m.CallWithAuth(ctx, func(ctx context.Context, accessToken string) error {
		value, err := op(ctx, accessToken)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}
