// Package fake provides in-memory implementations of the iam collaborator
// interfaces for testing.
//
// Use fake.NewClient() in unit tests to avoid network calls and external dependencies.
package fake

import (
	"context"
	"net/http"
	"sync"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/store"
)

// TokenFor returns the token a fake Principal issues for uid.
func TokenFor(uid string) string { return "token-" + uid }

// --- Principal ---

// Principal is an in-memory iam.Principal that counts token requests.
type Principal struct {
	uid   string
	email string

	mu       sync.Mutex
	token    string
	tokenErr error
	calls    int
	forced   int
}

var _ iam.Principal = (*Principal)(nil)

// NewPrincipal returns a principal issuing TokenFor(uid).
func NewPrincipal(uid, email string) *Principal {
	return &Principal{uid: uid, email: email, token: TokenFor(uid)}
}

func (p *Principal) UID() string   { return p.uid }
func (p *Principal) Email() string { return p.email }

func (p *Principal) Token(_ context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if forceRefresh {
		p.forced++
	}
	if p.tokenErr != nil {
		return "", p.tokenErr
	}
	return p.token, nil
}

// FailTokens makes every later Token call return err.
func (p *Principal) FailTokens(err error) {
	p.mu.Lock()
	p.tokenErr = err
	p.mu.Unlock()
}

// TokenCalls returns the total and forced-refresh token request counts.
func (p *Principal) TokenCalls() (total, forced int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.forced
}

// --- IdentityProvider ---

// Option configures the fake identity provider.
type Option func(*IdentityProvider)

// WithPrincipal starts the provider signed in as p.
func WithPrincipal(p *Principal) Option {
	return func(f *IdentityProvider) { f.current = p }
}

// WithSignOutError makes SignOut fail with err and keep the principal.
func WithSignOutError(err error) Option {
	return func(f *IdentityProvider) { f.signOutErr = err }
}

// WithSilentStart suppresses the initial callback on Subscribe, simulating a
// provider that never reports its state.
func WithSilentStart() Option {
	return func(f *IdentityProvider) { f.silent = true }
}

type subscriber struct {
	onChange func(iam.Principal)
	onError  func(error)
}

// IdentityProvider is an in-memory iam.IdentityProvider.
type IdentityProvider struct {
	mu           sync.Mutex
	current      *Principal
	subscribers  map[int]subscriber
	nextID       int
	signOutErr   error
	signOutCalls int
	silent       bool
}

var _ iam.IdentityProvider = (*IdentityProvider)(nil)

// NewIdentityProvider creates a signed-out provider unless WithPrincipal is given.
func NewIdentityProvider(opts ...Option) *IdentityProvider {
	f := &IdentityProvider{subscribers: make(map[int]subscriber)}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *IdentityProvider) CurrentPrincipal() iam.Principal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	return f.current
}

func (f *IdentityProvider) Subscribe(onChange func(iam.Principal), onError func(error)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subscribers[id] = subscriber{onChange: onChange, onError: onError}
	silent := f.silent
	f.mu.Unlock()

	if !silent {
		onChange(f.CurrentPrincipal())
	}
	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

// SignIn switches the current principal and notifies subscribers.
func (f *IdentityProvider) SignIn(p *Principal) {
	f.mu.Lock()
	f.current = p
	f.mu.Unlock()
	f.notify()
}

func (f *IdentityProvider) SignOut(_ context.Context) error {
	f.mu.Lock()
	f.signOutCalls++
	if f.signOutErr != nil {
		err := f.signOutErr
		f.mu.Unlock()
		return err
	}
	f.current = nil
	f.mu.Unlock()
	f.notify()
	return nil
}

// SignOutCalls returns how many times SignOut was invoked.
func (f *IdentityProvider) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}

// Subscribers returns the number of registered listeners.
func (f *IdentityProvider) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// EmitError delivers err to every subscriber's error callback.
func (f *IdentityProvider) EmitError(err error) {
	for _, s := range f.snapshot() {
		if s.onError != nil {
			s.onError(err)
		}
	}
}

func (f *IdentityProvider) notify() {
	p := f.CurrentPrincipal()
	for _, s := range f.snapshot() {
		s.onChange(p)
	}
}

func (f *IdentityProvider) snapshot() []subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := make([]subscriber, 0, len(f.subscribers))
	for _, s := range f.subscribers {
		subs = append(subs, s)
	}
	return subs
}

// --- AdminUserResolver ---

type step struct {
	user *iam.AdminUser
	err  error
}

// Resolver is an in-memory iam.AdminUserResolver.
// Scripted responses are consumed first; afterwards users are looked up by token.
type Resolver struct {
	mu     sync.Mutex
	users  map[string]*iam.AdminUser
	script []step
	tokens []string
}

var _ iam.AdminUserResolver = (*Resolver)(nil)

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{users: make(map[string]*iam.AdminUser)}
}

// WithAdminUser registers u as the record behind token.
func (r *Resolver) WithAdminUser(token string, u *iam.AdminUser) *Resolver {
	r.mu.Lock()
	r.users[token] = u
	r.mu.Unlock()
	return r
}

// Enqueue scripts the next response.
func (r *Resolver) Enqueue(u *iam.AdminUser, err error) *Resolver {
	r.mu.Lock()
	r.script = append(r.script, step{user: u, err: err})
	r.mu.Unlock()
	return r
}

func (r *Resolver) CurrentAdminUser(_ context.Context, token string) (*iam.AdminUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)

	if len(r.script) > 0 {
		s := r.script[0]
		r.script = r.script[1:]
		if s.err != nil {
			return nil, s.err
		}
		return s.user.Clone(), nil
	}
	u, ok := r.users[token]
	if !ok {
		return nil, NotFound()
	}
	return u.Clone(), nil
}

// Calls returns how many lookups were made.
func (r *Resolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// Tokens returns the tokens presented so far.
func (r *Resolver) Tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

// NotFound is the backend's 404 for a principal without an admin record.
func NotFound() error {
	return &iam.APIError{Op: "get current admin user", StatusCode: http.StatusNotFound, Message: "Not found."}
}

// ClockSkew is the backend's 403 when the token's issue time is in its future.
func ClockSkew() error {
	body := `{"detail":"Token used too early, 1700000001 < 1700000000"}`
	return &iam.APIError{Op: "get current admin user", StatusCode: http.StatusForbidden, Message: body, Body: body}
}

// AdminUser builds an active admin record for uid.
func AdminUser(uid, roleName string, perms ...string) *iam.AdminUser {
	return &iam.AdminUser{
		ID:          1,
		FirebaseUID: uid,
		Email:       uid + "@example.com",
		DisplayName: uid,
		Role: iam.Role{
			ID:          1,
			Name:        roleName,
			Permissions: iam.PermissionSet{Permissions: perms},
		},
		IsActive: true,
	}
}

// NewClient creates an *iam.Client wired to the given fakes and an in-memory snapshot store.
func NewClient(idp *IdentityProvider, resolver *Resolver) *iam.Client {
	c, _ := iam.NewClient(
		iam.Config{APIBaseURL: "http://fake.local"},
		iam.WithIdentityProvider(idp),
		iam.WithAdminUserResolver(resolver),
		iam.WithSnapshotStore(store.NewMemory()),
	)
	return c
}
