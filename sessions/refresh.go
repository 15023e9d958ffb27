package sessions

import (
	"context"
	"fmt"

	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
)

var errInvalidAuthResponse = fmt.Errorf("%w: auth response without user, known role or access token", apperrors.ErrInvalidResponse)

// Refresh exchanges the refresh token for a new token pair. Concurrent callers share one
// in-flight refresh and its outcome. A caller whose ctx ends stops waiting, but the
// shared refresh runs to completion for the others. Only callers that saw the same
// session share a refresh; a refresh started for an earlier session is never joined.
func (m *Manager) Refresh(ctx context.Context) (Tokens, error) {
	m.lock.RLock()
	generation := m.generation
	var refreshToken string
	if m.state.Tokens != nil {
		refreshToken = m.state.Tokens.RefreshToken
	}
	m.lock.RUnlock()

	if refreshToken == "" {
		return Tokens{}, apperrors.ErrNoRefreshToken
	}
	if !m.online() {
		return Tokens{}, apperrors.ErrOffline
	}

	key := fmt.Sprintf("refresh-%d", generation)
	ch := m.refreshGroup.DoChan(key, func() (interface{}, error) {
		return m.performRefresh(context.WithoutCancel(ctx), generation, refreshToken)
	})

	select {
	case <-ctx.Done():
		return Tokens{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Tokens{}, res.Err
		}
		return res.Val.(Tokens), nil
	}
}

func (m *Manager) performRefresh(ctx context.Context, generation uint64, refreshToken string) (Tokens, error) {
	for attempt := 0; ; attempt++ {
		resp, err := m.gateway.Refresh(ctx, refreshToken)
		if err == nil && !resp.complete() {
			err = errInvalidAuthResponse
		}
		if err == nil {
			if _, applied := m.apply(ctx, resp.User, resp.Tokens, nil, &generation, true); !applied {
				return Tokens{}, apperrors.ErrSessionChanged
			}
			m.log.Debug().Int("attempt", attempt).Msg("session refreshed")
			return *resp.Tokens, nil
		}

		switch apperrors.Classify(err) {
		case apperrors.KindUnauthorized:
			if _, cleared := m.clear(ctx, err, &generation); !cleared {
				return Tokens{}, apperrors.ErrSessionChanged
			}
			m.log.Info().Err(err).Msg("refresh rejected, session cleared")
			return Tokens{}, err

		case apperrors.KindRetryable:
			if attempt >= m.backoff.MaxRetries {
				m.log.Warn().Err(err).Int("attempts", attempt+1).Msg("refresh retries exhausted")
				m.setLastErrorIfUnchanged(err, generation)
				return Tokens{}, err
			}
			delay := m.backoff.Delay(attempt)
			m.log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("refresh failed, retrying")
			if sleepErr := m.sleeper.Sleep(ctx, delay); sleepErr != nil {
				return Tokens{}, sleepErr
			}
			if m.generationChanged(generation) {
				return Tokens{}, apperrors.ErrSessionChanged
			}

		default:
			m.log.Warn().Err(err).Msg("refresh failed")
			m.setLastErrorIfUnchanged(err, generation)
			return Tokens{}, err
		}
	}
}

func (m *Manager) generationChanged(generation uint64) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.generation != generation
}

func (m *Manager) setLastErrorIfUnchanged(err error, generation uint64) {
	m.transitionLock.Lock()
	defer m.transitionLock.Unlock()

	m.lock.Lock()
	if m.generation != generation {
		m.lock.Unlock()
		return
	}
	m.state.LastError = err
	m.lock.Unlock()
	m.notify()
}
