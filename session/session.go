// Package session implements the Session Engine: the single source of truth
// for who is signed in and what their admin record allows.
//
// The engine subscribes to an iam.IdentityProvider, resolves the matching
// AdminUser through an iam.AdminUserResolver, persists a best-effort
// ActivitySnapshot and forces a logout after a period of inactivity.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/audit"
	"github.com/chimerakang/portfolio-iam/metrics"
	"github.com/chimerakang/portfolio-iam/retry"
)

// User-facing error messages stored in SessionState.Error.
const (
	MsgAdminNotFound    = "Admin account not found. Please contact support."
	MsgFetchFailed      = "Failed to fetch admin user."
	MsgSignOutFailed    = "Failed to sign out."
	clockSkewMarker     = "Token used too early"
	logoutReasonUser    = "user"
	logoutReasonIdle    = "inactivity"
	clockSkewRetryDelay = 2 * time.Second
	notFoundRetryDelay  = 1 * time.Second
)

var allStatuses = []string{
	iam.StatusUnknown.String(),
	iam.StatusLoading.String(),
	iam.StatusUnauthenticated.String(),
	iam.StatusAuthenticatedNoAdminRecord.String(),
	iam.StatusAuthenticatedWithAdminRecord.String(),
}

// Engine owns the authenticated-principal lifecycle.
type Engine struct {
	cfg       iam.Config
	identity  iam.IdentityProvider
	resolver  iam.AdminUserResolver
	snapshots iam.SnapshotStore
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
	audit     *audit.Logger

	clockSkew retry.Policy
	notFound  retry.Policy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.RWMutex
	started      bool
	closed       bool
	loading      bool
	fetching     int
	principal    iam.Principal
	adminUser    *iam.AdminUser
	errMsg       string
	lastFetch    time.Time
	lastActivity time.Time
	seeded       bool
	watchdog     clock.Timer
	unsubscribe  func()
}

var _ iam.SessionReader = (*Engine)(nil)

// Option configures the Engine.
type Option func(*Engine)

// WithClock sets the time source for debounce, watchdog, retry and inactivity timers.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger overrides the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records fetch, permission and logout metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAudit emits session events to the audit trail.
func WithAudit(a *audit.Logger) Option {
	return func(e *Engine) { e.audit = a }
}

// New creates an engine from the collaborators configured on client.
// The engine does nothing until Start is called.
func New(client *iam.Client, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("iam/session: client is required")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		return nil, fmt.Errorf("iam/session: %w", err)
	}

	e := &Engine{
		cfg:       client.Config(),
		identity:  client.Identity(),
		resolver:  client.Resolver(),
		snapshots: client.Snapshots(),
		clock:     clock.WallClock,
		logger:    client.Logger(),
		metrics:   metrics.New(false),
	}
	for _, o := range opts {
		o(e)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.clockSkew = retry.Policy{
		MaxRetries:  2,
		Delay:       clockSkewRetryDelay,
		ShouldRetry: isClockSkew,
		Notify: func(err error, attempt int) {
			e.logger.Debug("clock skew detected, retrying admin user fetch", "attempt", attempt, "delay", clockSkewRetryDelay)
			e.metrics.RecordAdminUserFetch(metrics.FetchClockSkew, 0)
		},
	}
	e.notFound = retry.Policy{
		MaxRetries:  1,
		Delay:       notFoundRetryDelay,
		ShouldRetry: isNotFound,
		Notify: func(err error, attempt int) {
			e.logger.Debug("admin user not found, retrying", "attempt", attempt, "delay", notFoundRetryDelay)
			e.metrics.RecordAdminUserFetch(metrics.FetchRetryLater, 0)
		},
	}
	return e, nil
}

// Start restores the activity snapshot, arms the loading watchdog, starts the
// inactivity check and subscribes to the identity provider.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("iam/session: engine closed")
	}
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("iam/session: engine already started")
	}
	e.started = true
	e.loading = true
	e.lastActivity = e.clock.Now()
	e.mu.Unlock()
	e.publish()

	if _, err := e.RestoreActivitySnapshot(ctx); err != nil {
		e.logger.Warn("discarding unreadable activity snapshot", "error", err)
	}

	watchdog := e.clock.AfterFunc(e.cfg.LoadingTimeout, e.onLoadingTimeout)
	e.mu.Lock()
	e.watchdog = watchdog
	e.mu.Unlock()

	e.wg.Add(1)
	go e.watchInactivity()

	unsubscribe := e.identity.Subscribe(e.OnPrincipalChanged, e.onListenerError)
	e.mu.Lock()
	e.unsubscribe = unsubscribe
	e.mu.Unlock()
	return nil
}

// Close unsubscribes from the identity provider, cancels pending timers and
// retries, and persists the final activity snapshot.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	unsubscribe, watchdog := e.unsubscribe, e.watchdog
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if watchdog != nil {
		watchdog.Stop()
	}
	if err := e.PersistActivitySnapshot(context.Background()); err != nil {
		e.logger.Warn("failed to persist activity snapshot", "error", err)
	}
	e.cancel()
	e.wg.Wait()
	return nil
}

// State returns a copy of the current session state.
func (e *Engine) State() iam.SessionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return iam.SessionState{
		Status:       e.statusLocked(),
		Principal:    e.principal,
		AdminUser:    e.adminUser.Clone(),
		Loading:      e.loading,
		Fetching:     e.fetching > 0,
		Error:        e.errMsg,
		LastFetch:    e.lastFetch,
		LastActivity: e.lastActivity,
	}
}

func (e *Engine) statusLocked() iam.Status {
	switch {
	case !e.started:
		return iam.StatusUnknown
	case e.loading:
		return iam.StatusLoading
	case e.principal == nil:
		return iam.StatusUnauthenticated
	case e.adminUser == nil:
		return iam.StatusAuthenticatedNoAdminRecord
	default:
		return iam.StatusAuthenticatedWithAdminRecord
	}
}

func (e *Engine) publish() {
	if !e.metrics.Enabled() {
		return
	}
	e.mu.RLock()
	status := e.statusLocked().String()
	e.mu.RUnlock()
	e.metrics.SetSessionState(status, allStatuses)
}

// HasPermission is false when no active AdminUser is loaded.
func (e *Engine) HasPermission(token string) bool {
	e.mu.RLock()
	granted := e.adminUser.HasPermission(token)
	e.mu.RUnlock()

	e.logger.Debug("permission check", "permission", token, "granted", granted)
	e.metrics.RecordPermissionCheck(granted)
	return granted
}

// IsAdmin reports whether an active AdminUser is loaded.
func (e *Engine) IsAdmin() bool { return e.State().IsAdmin() }

// IsSuperAdmin reports whether the loaded role is named exactly "superadmin".
func (e *Engine) IsSuperAdmin() bool { return e.State().IsSuperAdmin() }

// ClearError resets the user-visible error.
func (e *Engine) ClearError() {
	e.mu.Lock()
	e.errMsg = ""
	e.mu.Unlock()
}

// OnPrincipalChanged is the identity provider's change callback. A nil
// principal clears the session; a new principal triggers an AdminUser fetch
// in the background unless a matching record is already loaded.
func (e *Engine) OnPrincipalChanged(p iam.Principal) {
	if p == nil {
		e.clearSession(e.ctx)
		e.finishLoading()
		return
	}

	now := e.clock.Now()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	prev := e.principal
	switched := prev == nil || prev.UID() != p.UID()
	e.principal = p
	if switched {
		if !e.seeded || prev != nil {
			e.lastActivity = now
		}
		e.seeded = false
		if e.adminUser != nil && e.adminUser.FirebaseUID != p.UID() {
			e.adminUser = nil
		}
	}
	needFetch := e.adminUser == nil || e.adminUser.FirebaseUID != p.UID()
	if needFetch {
		e.fetching++
		e.wg.Add(1)
	}
	e.mu.Unlock()

	if switched {
		e.logger.Info("principal signed in", "uid", p.UID(), "email", p.Email())
		e.audit.Log(audit.Event{
			Action:      audit.ActionSignedIn,
			Result:      audit.ResultSuccess,
			PrincipalID: p.UID(),
			Email:       p.Email(),
		})
	}
	if err := e.PersistActivitySnapshot(e.ctx); err != nil {
		e.logger.Warn("failed to persist activity snapshot", "uid", p.UID(), "error", err)
	}

	if !needFetch {
		e.finishLoading()
		e.publish()
		return
	}
	go func() {
		defer e.wg.Done()
		defer e.finishLoading()
		e.fetch(e.ctx, p)
		e.mu.Lock()
		e.fetching--
		e.mu.Unlock()
	}()
}

func (e *Engine) onListenerError(err error) {
	if err == nil {
		return
	}
	e.logger.Error("identity provider listener failed", "error", err)
	e.mu.Lock()
	e.errMsg = errorMessage(err)
	e.mu.Unlock()
	e.finishLoading()
}

func (e *Engine) onLoadingTimeout() {
	e.mu.Lock()
	expired := e.loading
	e.loading = false
	e.mu.Unlock()
	if expired {
		e.logger.Warn("authentication loading timed out", "timeout", e.cfg.LoadingTimeout)
		e.publish()
	}
}

func (e *Engine) finishLoading() {
	e.mu.Lock()
	e.loading = false
	watchdog := e.watchdog
	e.mu.Unlock()
	if watchdog != nil {
		watchdog.Stop()
	}
	e.publish()
}

// FetchAdminUser resolves the AdminUser for p with a forced-fresh token.
// Calls within the debounce window of the previous fetch are dropped. The
// outcome is stored in the session state; it is never returned.
func (e *Engine) FetchAdminUser(ctx context.Context, p iam.Principal) {
	if p == nil {
		return
	}
	e.mu.Lock()
	e.fetching++
	e.mu.Unlock()
	e.fetch(ctx, p)
	e.mu.Lock()
	e.fetching--
	e.mu.Unlock()
	e.publish()
}

// RefreshAdminUser re-fetches the record of the current principal, e.g. after a profile edit.
func (e *Engine) RefreshAdminUser(ctx context.Context) {
	e.mu.RLock()
	p := e.principal
	e.mu.RUnlock()
	if p == nil {
		return
	}
	e.FetchAdminUser(ctx, p)
}

func (e *Engine) fetch(ctx context.Context, p iam.Principal) {
	started := e.clock.Now()

	e.mu.Lock()
	if !e.lastFetch.IsZero() && started.Sub(e.lastFetch) < e.cfg.FetchDebounce {
		e.mu.Unlock()
		e.logger.Debug("debouncing admin user fetch", "uid", p.UID())
		e.metrics.RecordAdminUserFetch(metrics.FetchDebounced, 0)
		return
	}
	e.lastFetch = started
	e.mu.Unlock()

	e.logger.Debug("fetching admin user", "uid", p.UID(), "email", p.Email())
	var u *iam.AdminUser
	err := retry.Do(ctx, e.clock, e.notFound, func(ctx context.Context) error {
		return retry.Do(ctx, e.clock, e.clockSkew, func(ctx context.Context) error {
			token, err := p.Token(ctx, true)
			if err != nil {
				return fmt.Errorf("get token: %w", err)
			}
			u, err = e.resolver.CurrentAdminUser(ctx, token)
			return err
		})
	})
	if err == nil && u == nil {
		err = errors.New("empty admin user response")
	}
	e.apply(ctx, p, u, err, e.clock.Now().Sub(started))
}

func (e *Engine) apply(ctx context.Context, p iam.Principal, u *iam.AdminUser, err error, elapsed time.Duration) {
	if ctx.Err() != nil {
		e.logger.Debug("admin user fetch abandoned", "uid", p.UID(), "error", ctx.Err())
		return
	}

	e.mu.Lock()
	if e.principal == nil || e.principal.UID() != p.UID() {
		e.mu.Unlock()
		e.logger.Debug("discarding admin user for a stale principal", "uid", p.UID())
		e.metrics.RecordAdminUserFetch(metrics.FetchStale, elapsed.Seconds())
		return
	}

	result := metrics.FetchSuccess
	switch {
	case err == nil:
		e.adminUser = u.Clone()
		e.errMsg = ""
	case isNotFound(err):
		result = metrics.FetchNotFound
		e.adminUser = nil
		e.errMsg = MsgAdminNotFound
	default:
		result = metrics.FetchFailure
		e.adminUser = nil
		e.errMsg = MsgFetchFailed
	}
	msg := e.errMsg
	e.mu.Unlock()

	e.metrics.RecordAdminUserFetch(result, elapsed.Seconds())
	if err != nil {
		e.logger.Error("failed to fetch admin user", "uid", p.UID(), "status", iam.StatusCode(err), "error", err)
		e.audit.Log(audit.Event{
			Action:      audit.ActionAdminUserFetchFailed,
			Result:      audit.ResultFailure,
			PrincipalID: p.UID(),
			Email:       p.Email(),
			Error:       msg,
		})
		return
	}
	e.logger.Debug("admin user loaded", "uid", p.UID(), "role", u.Role.Name, "active", u.IsActive)
	e.audit.Log(audit.Event{
		Action:      audit.ActionAdminUserFetched,
		Result:      audit.ResultSuccess,
		PrincipalID: p.UID(),
		Email:       p.Email(),
		Details:     "role=" + u.Role.Name,
	})
}

// Logout signs out of the identity provider and always clears local state.
// A sign-out failure is stored as the session error and returned.
func (e *Engine) Logout(ctx context.Context) error {
	return e.logout(ctx, logoutReasonUser)
}

func (e *Engine) logout(ctx context.Context, reason string) error {
	e.mu.RLock()
	p := e.principal
	e.mu.RUnlock()

	err := e.identity.SignOut(ctx)
	e.clearSession(ctx)
	e.metrics.RecordLogout(reason, err)
	if err == nil {
		return nil
	}

	e.mu.Lock()
	e.errMsg = errorMessage(err)
	e.mu.Unlock()

	e.logger.Error("sign out failed", "reason", reason, "error", err)
	ev := audit.Event{Action: audit.ActionSignOutFailed, Result: audit.ResultFailure, Details: "reason=" + reason, Error: err.Error()}
	if p != nil {
		ev.PrincipalID, ev.Email = p.UID(), p.Email()
	}
	e.audit.Log(ev)
	return fmt.Errorf("iam/session: sign out: %w", err)
}

func (e *Engine) clearSession(ctx context.Context) {
	e.mu.Lock()
	prev := e.principal
	e.principal = nil
	e.adminUser = nil
	e.mu.Unlock()

	if e.snapshots != nil {
		if err := e.snapshots.Delete(ctx); err != nil {
			e.logger.Warn("failed to delete activity snapshot", "error", err)
		}
	}
	if prev != nil {
		e.logger.Info("principal signed out", "uid", prev.UID())
		e.audit.Log(audit.Event{
			Action:      audit.ActionSignedOut,
			Result:      audit.ResultSuccess,
			PrincipalID: prev.UID(),
			Email:       prev.Email(),
		})
	}
	e.publish()
}

// RecordActivity marks the user as active now. Call it for every pointer,
// key, click or scroll event.
func (e *Engine) RecordActivity() {
	now := e.clock.Now()
	e.mu.Lock()
	e.lastActivity = now
	e.mu.Unlock()
}

// CheckInactivity logs out a principal idle for longer than the inactivity
// limit and reports whether it did.
func (e *Engine) CheckInactivity(ctx context.Context) bool {
	e.mu.RLock()
	p, last := e.principal, e.lastActivity
	e.mu.RUnlock()
	if p == nil || last.IsZero() {
		return false
	}

	idle := e.clock.Now().Sub(last)
	if idle <= e.cfg.InactivityLimit {
		return false
	}

	e.logger.Info("logging out inactive principal", "uid", p.UID(), "idle", idle.Round(time.Second))
	e.audit.Log(audit.Event{
		Action:      audit.ActionInactivityLogout,
		Result:      audit.ResultSuccess,
		PrincipalID: p.UID(),
		Email:       p.Email(),
		Details:     "idle=" + idle.Round(time.Second).String(),
	})
	_ = e.logout(ctx, logoutReasonIdle)
	return true
}

func (e *Engine) watchInactivity() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.clock.After(e.cfg.InactivityCheckInterval):
			e.CheckInactivity(e.ctx)
		}
	}
}

// PersistActivitySnapshot saves {uid, email, lastActivityTime} for the current principal.
func (e *Engine) PersistActivitySnapshot(ctx context.Context) error {
	if e.snapshots == nil {
		return nil
	}
	e.mu.RLock()
	p, last := e.principal, e.lastActivity
	e.mu.RUnlock()
	if p == nil {
		return nil
	}
	if err := e.snapshots.Save(ctx, iam.NewActivitySnapshot(p.UID(), p.Email(), last)); err != nil {
		return fmt.Errorf("iam/session: save snapshot: %w", err)
	}
	return nil
}

// RestoreActivitySnapshot seeds the last activity time from a persisted
// snapshot. An unreadable snapshot is deleted and its error returned.
func (e *Engine) RestoreActivitySnapshot(ctx context.Context) (*iam.ActivitySnapshot, error) {
	if e.snapshots == nil {
		return nil, nil
	}
	snap, err := e.snapshots.Load(ctx)
	if err != nil {
		if delErr := e.snapshots.Delete(ctx); delErr != nil {
			e.logger.Warn("failed to delete activity snapshot", "error", delErr)
		}
		return nil, fmt.Errorf("iam/session: load snapshot: %w", err)
	}
	if snap == nil || snap.LastActivityTime == 0 {
		return snap, nil
	}

	e.mu.Lock()
	e.lastActivity = snap.LastActivity()
	e.seeded = true
	e.mu.Unlock()
	e.logger.Debug("restored activity snapshot", "uid", snap.UID, "last_activity", snap.LastActivity())
	return snap, nil
}

func isClockSkew(err error) bool {
	var apiErr *iam.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 {
		return false
	}
	return strings.Contains(apiErr.Body, clockSkewMarker) || strings.Contains(apiErr.Message, clockSkewMarker)
}

func isNotFound(err error) bool {
	return iam.StatusCode(err) == 404
}

func errorMessage(err error) string {
	var idErr *iam.IdentityError
	if errors.As(err, &idErr) && idErr.Message != "" {
		return idErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgSignOutFailed
}
