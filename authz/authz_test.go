package authz_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/authz"
	"github.com/chimerakang/portfolio-iam/fake"
	"github.com/chimerakang/portfolio-iam/metrics"
)

// mockSession is a fixed iam.SessionReader.
type mockSession struct {
	state iam.SessionState
	calls int
}

func (m *mockSession) State() iam.SessionState {
	m.calls++
	return m.state
}

func sessionFor(role string, active bool) *mockSession {
	u := fake.AdminUser("uid-1", role, authz.DefaultRoles[role]...)
	u.IsActive = active
	return &mockSession{state: iam.SessionState{
		Status:    iam.StatusAuthenticatedWithAdminRecord,
		Principal: fake.NewPrincipal("uid-1", "uid-1@example.com"),
		AdminUser: u,
	}}
}

func TestCheck_Allowed(t *testing.T) {
	a := authz.New(sessionFor(authz.RoleEditor, true))
	allowed, err := a.Check(context.Background(), authz.ManageProjects)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !allowed {
		t.Error("Check() should return true for allowed permission")
	}
}

func TestCheck_Denied(t *testing.T) {
	a := authz.New(sessionFor(authz.RoleEditor, true))
	allowed, err := a.Check(context.Background(), authz.ManageAdminUsers)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if allowed {
		t.Error("Check() should return false for denied permission")
	}
}

func TestCheck_InactiveUser(t *testing.T) {
	a := authz.New(sessionFor(authz.RoleSuperAdmin, false))
	allowed, _ := a.Check(context.Background(), authz.ManageProjects)
	if allowed {
		t.Error("inactive admin users hold no permissions")
	}
	perms, err := a.GetPermissions(context.Background())
	if err != nil || len(perms) != 0 {
		t.Errorf("GetPermissions() = %v, %v", perms, err)
	}
}

func TestCheck_NotAuthenticated(t *testing.T) {
	a := authz.New(&mockSession{state: iam.SessionState{Status: iam.StatusUnauthenticated}})
	_, err := a.Check(context.Background(), authz.ManageProjects)
	if !errors.Is(err, iam.ErrNotAuthenticated) {
		t.Fatalf("Check() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestCheck_NoAdminRecord(t *testing.T) {
	a := authz.New(&mockSession{state: iam.SessionState{
		Status:    iam.StatusAuthenticatedNoAdminRecord,
		Principal: fake.NewPrincipal("uid-1", "uid-1@example.com"),
	}})
	allowed, err := a.Check(context.Background(), authz.ViewAnalytics)
	if err != nil || allowed {
		t.Errorf("Check() = %v, %v; want false, nil", allowed, err)
	}
}

func TestCheck_ContextSnapshotWins(t *testing.T) {
	live := sessionFor(authz.RoleViewer, true)
	a := authz.New(live)

	ctx := iam.WithSessionState(context.Background(), sessionFor(authz.RoleAdmin, true).state)
	allowed, _ := a.Check(ctx, authz.ManageSettings)
	if !allowed {
		t.Error("Check() should use the request's session snapshot")
	}
	if live.calls != 0 {
		t.Errorf("live session read %d times, want 0", live.calls)
	}
}

func TestCheckResource(t *testing.T) {
	a := authz.New(sessionFor(authz.RoleViewer, true))
	tests := []struct {
		resource, action string
		want             bool
	}{
		{"projects", "view", true},
		{"projects", "manage", false},
		{"analytics", "view", true},
		{"admin_users", "manage", false},
	}
	for _, tt := range tests {
		got, err := a.CheckResource(context.Background(), tt.resource, tt.action)
		if err != nil {
			t.Fatalf("CheckResource() error: %v", err)
		}
		if got != tt.want {
			t.Errorf("CheckResource(%s, %s) = %v, want %v", tt.resource, tt.action, got, tt.want)
		}
	}
}

func TestGetPermissions_ReturnsCopy(t *testing.T) {
	s := sessionFor(authz.RoleAdmin, true)
	a := authz.New(s)
	perms, err := a.GetPermissions(context.Background())
	if err != nil {
		t.Fatalf("GetPermissions() error: %v", err)
	}
	if !slices.Equal(perms, authz.DefaultRoles[authz.RoleAdmin]) {
		t.Errorf("GetPermissions() = %v", perms)
	}
	perms[0] = "tampered"
	if s.state.AdminUser.Role.Permissions.Permissions[0] == "tampered" {
		t.Error("GetPermissions() must not expose session-owned slices")
	}
}

func TestDefaultRoles(t *testing.T) {
	super := authz.DefaultRoles[authz.RoleSuperAdmin]
	for _, role := range []string{authz.RoleAdmin, authz.RoleEditor} {
		for _, p := range authz.DefaultRoles[role] {
			if !slices.Contains(super, p) {
				t.Errorf("%s grants %s which superadmin lacks", role, p)
			}
		}
	}
	if slices.Contains(authz.DefaultRoles[authz.RoleEditor], authz.ManageAdminUsers) {
		t.Error("editor must not manage admin users")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(true, metrics.WithRegisterer(reg))
	a := authz.New(sessionFor(authz.RoleEditor, true), authz.WithMetrics(m))

	a.Check(context.Background(), authz.ManageProjects)
	a.Check(context.Background(), authz.ManageAdminRoles)

	if n, err := testutil.GatherAndCount(reg, "portfolio_iam_permission_checks_total"); err != nil || n != 2 {
		t.Errorf("permission check series = %d (%v), want 2", n, err)
	}
}
