// Package firebase implements iam.IdentityProvider over the Firebase Auth
// REST API: email/password sign-in and sign-up, ID token refresh, password
// reset and password change.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	iam "github.com/chimerakang/portfolio-iam"
)

// Default REST endpoints.
const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1/token"
)

// Provider is a Firebase Auth identity provider holding at most one signed-in user.
type Provider struct {
	apiKey        string
	identityURL   string
	tokenURL      string
	refreshBuffer time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
	clock         clock.Clock

	mu          sync.Mutex
	current     *User
	subscribers map[int]subscriber
	nextID      int
}

type subscriber struct {
	onChange func(iam.Principal)
	onError  func(error)
}

var _ iam.IdentityProvider = (*Provider)(nil)

// Option configures the Provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithEndpoints overrides the identity toolkit base URL and the secure token URL.
func WithEndpoints(identityURL, tokenURL string) Option {
	return func(p *Provider) {
		p.identityURL = strings.TrimSuffix(identityURL, "/")
		p.tokenURL = tokenURL
	}
}

// WithRefreshBuffer sets how long before expiry a cached ID token is refreshed.
func WithRefreshBuffer(d time.Duration) Option {
	return func(p *Provider) { p.refreshBuffer = d }
}

// WithClock sets the time source used for token expiry.
func WithClock(c clock.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// New creates a signed-out Provider for the web API key.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:        apiKey,
		identityURL:   DefaultIdentityURL,
		tokenURL:      DefaultTokenURL,
		refreshBuffer: 5 * time.Minute,
		httpClient:    &http.Client{Timeout: iam.DefaultHTTPTimeout},
		logger:        slog.Default(),
		clock:         clock.WallClock,
		subscribers:   make(map[int]subscriber),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// CurrentPrincipal returns the signed-in user, or nil.
func (p *Provider) CurrentPrincipal() iam.Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current
}

// Subscribe registers listeners and immediately reports the current user.
func (p *Provider) Subscribe(onChange func(iam.Principal), onError func(error)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = subscriber{onChange: onChange, onError: onError}
	p.mu.Unlock()

	onChange(p.CurrentPrincipal())
	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// authResponse is returned by signInWithPassword and signUp.
type authResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

// SignIn authenticates with email and password and becomes the current user.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*User, error) {
	var resp authResponse
	err := p.post(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		p.logger.Warn("sign in failed", "email", email, "code", iam.IdentityErrorCode(err))
		return nil, fmt.Errorf("iam/firebase: sign in: %w", err)
	}
	u := p.newUser(resp)
	p.setCurrent(u)
	p.logger.Info("signed in", "uid", u.uid)
	return u, nil
}

// SignUp creates an account, sets its display name and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (iam.Principal, error) {
	var resp authResponse
	err := p.post(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("iam/firebase: sign up: %w", err)
	}
	u := p.newUser(resp)

	if displayName != "" {
		err := p.post(ctx, "accounts:update", map[string]any{
			"idToken":           resp.IDToken,
			"displayName":       displayName,
			"returnSecureToken": false,
		}, nil)
		if err != nil {
			// The account exists either way; the backend stores its own display name.
			p.logger.Warn("set display name failed", "uid", u.uid, "error", err)
		} else {
			u.displayName = displayName
		}
	}

	p.setCurrent(u)
	p.logger.Info("account created", "uid", u.uid)
	return u, nil
}

// SignOut drops the current user locally. Firebase has no server-side sign-out.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &iam.IdentityError{Code: iam.CodeNetwork, Message: err.Error()}
	}
	p.setCurrent(nil)
	return nil
}

// SendPasswordReset emails a password reset link.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	err := p.post(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
	if err != nil {
		return fmt.Errorf("iam/firebase: send password reset: %w", err)
	}
	return nil
}

// UpdatePassword changes the current user's password. A stale sign-in fails
// with iam.CodeRequiresRecentLogin; the user must sign in again first.
func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	p.mu.Lock()
	u := p.current
	p.mu.Unlock()
	if u == nil {
		return iam.ErrNotAuthenticated
	}
	token, err := u.Token(ctx, false)
	if err != nil {
		return err
	}

	var resp authResponse
	err = p.post(ctx, "accounts:update", map[string]any{
		"idToken":           token,
		"password":          newPassword,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return fmt.Errorf("iam/firebase: update password: %w", err)
	}
	if resp.IDToken != "" {
		u.setTokens(resp.IDToken, resp.RefreshToken, expiresIn(resp.ExpiresIn))
	}
	return nil
}

// refreshResponse is returned by the secure token endpoint.
type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

func (p *Provider) refresh(ctx context.Context, u *User) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {u.currentRefreshToken()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL+"?key="+url.QueryEscape(p.apiKey), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("iam/firebase: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := p.do(req, &resp); err != nil {
		return "", err
	}
	if resp.IDToken == "" {
		return "", &iam.IdentityError{Code: iam.CodeInternal, Message: "empty id_token in response"}
	}
	u.setTokens(resp.IDToken, resp.RefreshToken, expiresIn(resp.ExpiresIn))
	p.logger.Debug("id token refreshed", "uid", u.uid)
	return resp.IDToken, nil
}

// expire signs u out after its refresh token stopped working and reports err
// to the listeners.
func (p *Provider) expire(u *User, err error) {
	p.mu.Lock()
	if p.current != u {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.logger.Warn("session expired", "uid", u.uid, "error", err)
	for _, s := range p.snapshot() {
		if s.onError != nil {
			s.onError(err)
		}
	}
	p.setCurrent(nil)
}

func (p *Provider) newUser(resp authResponse) *User {
	u := &User{
		provider:    p,
		uid:         resp.LocalID,
		email:       resp.Email,
		displayName: resp.DisplayName,
	}
	if claims, err := parseIDToken(resp.IDToken); err == nil {
		if u.uid == "" {
			u.uid = claims.UserID
		}
		if u.email == "" {
			u.email = claims.Email
		}
	}
	u.setTokens(resp.IDToken, resp.RefreshToken, expiresIn(resp.ExpiresIn))
	return u
}

// setCurrent swaps the current user and notifies listeners outside the lock.
func (p *Provider) setCurrent(u *User) {
	p.mu.Lock()
	p.current = u
	p.mu.Unlock()

	var principal iam.Principal
	if u != nil {
		principal = u
	}
	for _, s := range p.snapshot() {
		s.onChange(principal)
	}
}

func (p *Provider) snapshot() []subscriber {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := make([]subscriber, 0, len(p.subscribers))
	for _, s := range p.subscribers {
		subs = append(subs, s)
	}
	return subs
}

// post sends a JSON body to an identity toolkit method.
func (p *Provider) post(ctx context.Context, method string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("iam/firebase: encode %s: %w", method, err)
	}
	endpoint := p.identityURL + "/" + method + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("iam/firebase: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *Provider) do(req *http.Request, out any) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &iam.IdentityError{Code: iam.CodeNetwork, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &iam.IdentityError{Code: iam.CodeNetwork, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &iam.IdentityError{Code: iam.CodeInternal, Message: "decode response: " + err.Error()}
	}
	return nil
}

// expiresIn parses the REST API's string seconds, defaulting to one hour.
func expiresIn(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return time.Hour
	}
	return time.Duration(n) * time.Second
}
