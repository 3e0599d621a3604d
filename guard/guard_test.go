package guard

import (
	"testing"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/fake"
)

func adminUser(role string, active bool) *iam.AdminUser {
	u := fake.AdminUser("uid-1", role)
	u.IsActive = active
	return u
}

func state(status iam.Status, u *iam.AdminUser, fetching bool) iam.SessionState {
	s := iam.SessionState{Status: status, AdminUser: u, Fetching: fetching}
	if status == iam.StatusLoading {
		s.Loading = true
	}
	if status == iam.StatusAuthenticatedNoAdminRecord || status == iam.StatusAuthenticatedWithAdminRecord {
		s.Principal = fake.NewPrincipal("uid-1", "uid-1@example.com")
	}
	return s
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		state iam.SessionState
		req   Requirement
		want  Outcome
	}{
		{"unknown", state(iam.StatusUnknown, nil, false), Authenticated, ShowLoading},
		{"loading", state(iam.StatusLoading, nil, false), Admin, ShowLoading},
		{"signed out", state(iam.StatusUnauthenticated, nil, false), Authenticated, RedirectSignIn},
		{"signed out admin route", state(iam.StatusUnauthenticated, nil, false), SuperAdmin, RedirectSignIn},
		{"principal only", state(iam.StatusAuthenticatedNoAdminRecord, nil, false), Authenticated, Allow},
		{"record pending admin", state(iam.StatusAuthenticatedNoAdminRecord, nil, true), Admin, ShowLoading},
		{"record pending super", state(iam.StatusAuthenticatedNoAdminRecord, nil, true), SuperAdmin, ShowLoading},
		{"record pending plain route", state(iam.StatusAuthenticatedNoAdminRecord, nil, true), Authenticated, Allow},
		{"no record admin", state(iam.StatusAuthenticatedNoAdminRecord, nil, false), Admin, RedirectSignIn},
		{"no record super", state(iam.StatusAuthenticatedNoAdminRecord, nil, false), SuperAdmin, RedirectLanding},
		{"admin", state(iam.StatusAuthenticatedWithAdminRecord, adminUser("editor", true), false), Admin, Allow},
		{"inactive admin", state(iam.StatusAuthenticatedWithAdminRecord, adminUser("editor", false), false), Admin, RedirectSignIn},
		{"admin on super route", state(iam.StatusAuthenticatedWithAdminRecord, adminUser("editor", true), false), SuperAdmin, RedirectLanding},
		{"super admin", state(iam.StatusAuthenticatedWithAdminRecord, adminUser("superadmin", true), false), SuperAdmin, Allow},
		{"case mismatch is not super", state(iam.StatusAuthenticatedWithAdminRecord, adminUser("SuperAdmin", true), false), SuperAdmin, RedirectLanding},
		{"both flags", state(iam.StatusAuthenticatedWithAdminRecord, adminUser("superadmin", true), false), Requirement{Admin: true, SuperAdmin: true}, Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.state, tt.req); got.Outcome != tt.want {
				t.Errorf("Decide() = %v (%s), want %v", got.Outcome, got.Reason, tt.want)
			}
		})
	}
}

func TestDecision_Redirect(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{Allow, ""},
		{ShowLoading, ""},
		{RedirectSignIn, SignInPath},
		{RedirectLanding, LandingPath},
	}
	for _, tt := range tests {
		if got := (Decision{Outcome: tt.outcome}).Redirect(); got != tt.want {
			t.Errorf("Redirect(%v) = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}

type staticReader iam.SessionState

func (s staticReader) State() iam.SessionState { return iam.SessionState(s) }

func TestCheck(t *testing.T) {
	r := staticReader(state(iam.StatusAuthenticatedWithAdminRecord, adminUser("superadmin", true), false))
	if d := Check(r, SuperAdmin); d.Outcome != Allow {
		t.Errorf("Check() = %v", d.Outcome)
	}
}
