package sessions

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// AccessExpiry reads the exp claim of a JWT access token without verifying it.
// Opaque tokens report false.
func (t Tokens) AccessExpiry() (time.Time, bool) {
	if t.AccessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// OAuth2Token converts the pair for use with an oauth2 token source.
func (t Tokens) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
	}
	if exp, ok := t.AccessExpiry(); ok {
		token.Expiry = exp
	}
	return token
}
