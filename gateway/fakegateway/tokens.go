package fakegateway

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
)

const refreshTokenLength = 32

// accessClaims are the claims carried by issued access tokens.
type accessClaims struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	Generation int    `json:"gen"`
	jwtlib.RegisteredClaims
}

// createAccessToken must be called with the lock held.
func (b *Backend) createAccessToken(acc *account) (string, error) {
	now := b.nowFunc()
	claims := accessClaims{
		Email:      acc.user.Email,
		Role:       string(acc.user.Role),
		Generation: b.tokenGeneration,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   acc.user.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(b.accessTTL)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// createRefreshToken replaces any refresh token the user already holds.
// It must be called with the lock held.
func (b *Backend) createRefreshToken(userID string) (string, error) {
	for token, owner := range b.refreshTokens {
		if owner == userID {
			delete(b.refreshTokens, token)
		}
	}

	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)
	b.refreshTokens[token] = userID
	return token, nil
}

// validateAccessToken must be called with the lock held.
func (b *Backend) validateAccessToken(accessToken string) (*account, error) {
	claims := &accessClaims{}
	_, err := jwtlib.ParseWithClaims(accessToken, claims, func(*jwtlib.Token) (interface{}, error) {
		return b.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(b.nowFunc))
	if err != nil {
		return nil, apperrors.NewStatusError(http.StatusUnauthorized, "invalid access token")
	}
	if claims.Generation != b.tokenGeneration {
		return nil, apperrors.NewStatusError(http.StatusUnauthorized, "access token expired")
	}

	acc, ok := b.accountsByID[claims.Subject]
	if !ok {
		return nil, apperrors.NewStatusError(http.StatusUnauthorized, "unknown user")
	}
	return acc, nil
}
