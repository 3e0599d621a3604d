// Package ginmw provides Gin HTTP middleware that gates admin routes on
// Session Engine state.
//
// The middleware only reads state through iam.SessionReader and
// iam.Authorizer; it never fetches the admin user itself.
package ginmw

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/audit"
	"github.com/chimerakang/portfolio-iam/guard"
)

// Context keys for storing session data in gin.Context.
const (
	KeySessionState = "iam_session_state"
	KeyAdminUser    = "iam_admin_user"
	KeyRequestID    = "iam_request_id"
)

const headerRequestID = "X-Request-Id"

// GuardOption configures Guard middleware behavior.
type GuardOption func(*guardConfig)

type guardConfig struct {
	signInPath    string
	landingPath   string
	excludedPaths map[string]bool
	audit         *audit.Logger
}

// WithRedirects overrides the sign-in and landing paths.
func WithRedirects(signIn, landing string) GuardOption {
	return func(cfg *guardConfig) {
		cfg.signInPath = signIn
		cfg.landingPath = landing
	}
}

// WithExcludedPaths sets paths that skip the guard (e.g. the sign-in page itself).
func WithExcludedPaths(paths ...string) GuardOption {
	return func(cfg *guardConfig) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// WithAudit records every redirect as an access_denied event.
func WithAudit(a *audit.Logger) GuardOption {
	return func(cfg *guardConfig) { cfg.audit = a }
}

// Guard returns Gin middleware applying guard.Decide to the session.
//
//   - loading: 503 with Retry-After: 1 and {"status":"loading"}
//   - redirect: 302 to the sign-in or landing path
//   - allow: stores the state snapshot in the Gin and request contexts
func Guard(session iam.SessionReader, req guard.Requirement, opts ...GuardOption) gin.HandlerFunc {
	cfg := &guardConfig{
		signInPath:    guard.SignInPath,
		landingPath:   guard.LandingPath,
		excludedPaths: make(map[string]bool),
	}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		requestID := ensureRequestID(c)
		state := session.State()
		d := guard.Decide(state, req)

		switch d.Outcome {
		case guard.ShowLoading:
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		case guard.RedirectSignIn, guard.RedirectLanding:
			target := cfg.signInPath
			if d.Outcome == guard.RedirectLanding {
				target = cfg.landingPath
			}
			cfg.audit.Log(deniedEvent(requestID, state, c.Request.URL.Path, d.Reason))
			c.Redirect(http.StatusFound, target)
			c.Abort()
		default:
			c.Set(KeySessionState, state)
			c.Set(KeyAdminUser, state.AdminUser)
			ctx := iam.WithSessionState(c.Request.Context(), state)
			ctx = iam.WithAdminUser(ctx, state.AdminUser)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		}
	}
}

// RequirePermission returns Gin middleware that checks a single permission.
// Run Guard first so the check sees the request's session snapshot.
// Responds with 401 when signed out and 403 when the permission is denied.
func RequirePermission(a iam.Authorizer, permission string) gin.HandlerFunc {
	return RequireAny(a, permission)
}

// RequireAny returns Gin middleware that passes if any permission is held.
func RequireAny(a iam.Authorizer, permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		for _, perm := range permissions {
			ok, err := a.Check(ctx, perm)
			if errors.Is(err, iam.ErrNotAuthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
				return
			}
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization check failed"})
				return
			}
			if ok {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	}
}

// ActivityRecorder is told about user activity. *session.Engine implements it.
type ActivityRecorder interface {
	RecordActivity()
}

// Activity returns Gin middleware that counts every request as user activity
// for the inactivity timeout.
func Activity(r ActivityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		r.RecordActivity()
		c.Next()
	}
}

// --- Context helpers ---

// GetSessionState returns the session snapshot stored by Guard.
func GetSessionState(c *gin.Context) (iam.SessionState, bool) {
	v, ok := c.Get(KeySessionState)
	if !ok {
		return iam.SessionState{}, false
	}
	s, ok := v.(iam.SessionState)
	return s, ok
}

// GetAdminUser returns the admin user stored by Guard, or nil.
func GetAdminUser(c *gin.Context) *iam.AdminUser {
	v, _ := c.Get(KeyAdminUser)
	u, _ := v.(*iam.AdminUser)
	return u
}

// GetRequestID returns the request id assigned by Guard.
func GetRequestID(c *gin.Context) string {
	return c.GetString(KeyRequestID)
}

// --- internal helpers ---

func ensureRequestID(c *gin.Context) string {
	id := c.GetHeader(headerRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(KeyRequestID, id)
	c.Header(headerRequestID, id)
	c.Request = c.Request.WithContext(audit.WithRequestID(c.Request.Context(), id))
	return id
}

func deniedEvent(requestID string, s iam.SessionState, path, reason string) audit.Event {
	e := audit.Event{
		RequestID: requestID,
		Action:    audit.ActionAccessDenied,
		Resource:  path,
		Result:    audit.ResultDenied,
		Details:   reason,
	}
	if s.Principal != nil {
		e.PrincipalID = s.Principal.UID()
		e.Email = s.Principal.Email()
	}
	return e
}
