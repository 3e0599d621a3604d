package ginmw_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/audit"
	"github.com/chimerakang/portfolio-iam/authz"
	"github.com/chimerakang/portfolio-iam/fake"
	"github.com/chimerakang/portfolio-iam/guard"
	"github.com/chimerakang/portfolio-iam/middleware/ginmw"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockSession struct {
	mu    sync.Mutex
	state iam.SessionState
}

func (m *mockSession) State() iam.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func signedIn(u *iam.AdminUser) *mockSession {
	s := iam.SessionState{
		Status:    iam.StatusAuthenticatedNoAdminRecord,
		Principal: fake.NewPrincipal("uid-1", "uid-1@example.com"),
		AdminUser: u,
	}
	if u != nil {
		s.Status = iam.StatusAuthenticatedWithAdminRecord
	}
	return &mockSession{state: s}
}

func serve(r *gin.Engine, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ok(c *gin.Context) { c.String(http.StatusOK, "ok") }

func TestGuard_Loading(t *testing.T) {
	r := gin.New()
	r.GET("/admin/projects", ginmw.Guard(&mockSession{state: iam.SessionState{Status: iam.StatusLoading, Loading: true}}, guard.Admin), ok)

	w := serve(r, "/admin/projects")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "loading" {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGuard_PendingAdminRecordShowsLoading(t *testing.T) {
	s := signedIn(nil)
	s.state.Fetching = true
	r := gin.New()
	r.GET("/admin/dashboard", ginmw.Guard(s, guard.Admin), ok)

	if w := serve(r, "/admin/dashboard"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestGuard_Redirects(t *testing.T) {
	tests := []struct {
		name    string
		session *mockSession
		req     guard.Requirement
		want    string
	}{
		{"signed out", &mockSession{state: iam.SessionState{Status: iam.StatusUnauthenticated}}, guard.Admin, "/admin/login"},
		{"no admin record", signedIn(nil), guard.Admin, "/admin/login"},
		{"not super admin", signedIn(fake.AdminUser("uid-1", "editor")), guard.SuperAdmin, "/admin/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/admin/x", ginmw.Guard(tt.session, tt.req), ok)
			w := serve(r, "/admin/x")
			if w.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", w.Code)
			}
			if loc := w.Header().Get("Location"); loc != tt.want {
				t.Errorf("Location = %q, want %q", loc, tt.want)
			}
		})
	}
}

func TestGuard_CustomRedirectsAndExcludedPaths(t *testing.T) {
	s := &mockSession{state: iam.SessionState{Status: iam.StatusUnauthenticated}}
	r := gin.New()
	r.Use(ginmw.Guard(s, guard.Authenticated,
		ginmw.WithRedirects("/login", "/home"),
		ginmw.WithExcludedPaths("/login"),
	))
	r.GET("/login", ok)
	r.GET("/home", ok)

	if w := serve(r, "/login"); w.Code != http.StatusOK {
		t.Errorf("excluded path status = %d, want 200", w.Code)
	}
	w := serve(r, "/home")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestGuard_AllowStoresSnapshot(t *testing.T) {
	u := fake.AdminUser("uid-1", "superadmin", authz.ManageProjects)
	r := gin.New()
	r.GET("/admin/settings", ginmw.Guard(signedIn(u), guard.SuperAdmin), func(c *gin.Context) {
		s, found := ginmw.GetSessionState(c)
		if !found || !s.IsSuperAdmin() {
			t.Error("session state not stored in gin context")
		}
		if got := ginmw.GetAdminUser(c); got == nil || got.FirebaseUID != "uid-1" {
			t.Errorf("GetAdminUser() = %+v", got)
		}
		if iam.AdminUserFromContext(c.Request.Context()) == nil {
			t.Error("admin user not stored in request context")
		}
		if audit.RequestID(c.Request.Context()) != "req-42" || ginmw.GetRequestID(c) != "req-42" {
			t.Error("request id not propagated")
		}
		c.Status(http.StatusNoContent)
	})

	w := serve(r, "/admin/settings", "X-Request-Id", "req-42")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("X-Request-Id") != "req-42" {
		t.Errorf("X-Request-Id = %q", w.Header().Get("X-Request-Id"))
	}
}

func TestGuard_AuditsDenials(t *testing.T) {
	var mu sync.Mutex
	var events []audit.Event
	logger := audit.New(10, audit.WithHandler(func(e audit.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	r := gin.New()
	r.GET("/admin/admin-users", ginmw.Guard(signedIn(fake.AdminUser("uid-1", "editor")), guard.SuperAdmin, ginmw.WithAudit(logger)), ok)
	serve(r, "/admin/admin-users")
	logger.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.Action != audit.ActionAccessDenied || e.PrincipalID != "uid-1" || e.Details != "not_super_admin" || e.RequestID == "" {
		t.Errorf("event = %+v", e)
	}
}

func TestRequirePermission(t *testing.T) {
	u := fake.AdminUser("uid-1", "editor", authz.DefaultRoles[authz.RoleEditor]...)
	s := signedIn(u)
	a := authz.New(s)

	r := gin.New()
	admin := r.Group("/admin", ginmw.Guard(s, guard.Admin))
	admin.GET("/projects", ginmw.RequirePermission(a, authz.ManageProjects), ok)
	admin.GET("/roles", ginmw.RequirePermission(a, authz.ManageAdminRoles), ok)
	admin.GET("/analytics", ginmw.RequireAny(a, authz.ViewAnalytics, authz.ManageProjects), ok)

	tests := []struct {
		path string
		want int
	}{
		{"/admin/projects", http.StatusOK},
		{"/admin/roles", http.StatusForbidden},
		{"/admin/analytics", http.StatusOK},
	}
	for _, tt := range tests {
		if w := serve(r, tt.path); w.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestRequirePermission_SignedOut(t *testing.T) {
	s := &mockSession{state: iam.SessionState{Status: iam.StatusUnauthenticated}}
	r := gin.New()
	r.GET("/x", ginmw.RequirePermission(authz.New(s), authz.ManageProjects), ok)
	if w := serve(r, "/x"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) RecordActivity() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func TestActivity(t *testing.T) {
	rec := &counter{}
	r := gin.New()
	r.Use(ginmw.Activity(rec))
	r.GET("/a", ok)
	serve(r, "/a")
	serve(r, "/a")
	if rec.n != 2 {
		t.Errorf("activity events = %d, want 2", rec.n)
	}
}
