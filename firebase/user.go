package firebase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	iam "github.com/chimerakang/portfolio-iam"
)

// User is a signed-in Firebase account. It caches its ID token until shortly
// before expiry.
type User struct {
	provider    *Provider
	uid         string
	email       string
	displayName string

	mu           sync.RWMutex
	idToken      string
	refreshToken string
	expiresAt    time.Time

	sf singleflight.Group
}

var _ iam.Principal = (*User)(nil)

func (u *User) UID() string   { return u.uid }
func (u *User) Email() string { return u.email }

// DisplayName returns the profile name set at sign-up.
func (u *User) DisplayName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.displayName
}

// Token returns the cached ID token, refreshing it when forceRefresh is set or
// the token is within the refresh buffer of its expiry.
func (u *User) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		u.mu.RLock()
		if u.idToken != "" && u.provider.clock.Now().Before(u.expiresAt.Add(-u.provider.refreshBuffer)) {
			defer u.mu.RUnlock()
			return u.idToken, nil
		}
		u.mu.RUnlock()
	}

	result, err, _ := u.sf.Do("token", func() (interface{}, error) {
		return u.provider.refresh(ctx, u)
	})
	if err != nil {
		if mustReauthenticate(err) {
			u.provider.expire(u, err)
		}
		return "", fmt.Errorf("iam/firebase: refresh token: %w", err)
	}
	return result.(string), nil
}

func (u *User) setTokens(idToken, refreshToken string, expiresIn time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.idToken = idToken
	if refreshToken != "" {
		u.refreshToken = refreshToken
	}
	u.expiresAt = tokenExpiry(idToken, u.provider.clock.Now().Add(expiresIn))
}

func (u *User) currentRefreshToken() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.refreshToken
}

// idClaims are the ID token claims the provider reads. The token is not
// verified here; the backend verifies it on every request.
type idClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func parseIDToken(token string) (*idClaims, error) {
	claims := &idClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// tokenExpiry prefers the token's exp claim over the response's expiresIn.
func tokenExpiry(token string, fallback time.Time) time.Time {
	claims, err := parseIDToken(token)
	if err != nil || claims.ExpiresAt == nil {
		return fallback
	}
	return claims.ExpiresAt.Time
}
