// Package guard decides whether a navigation may proceed given the current
// session state. It only reads state and never triggers a fetch.
package guard

import iam "github.com/chimerakang/portfolio-iam"

// Default routes.
const (
	SignInPath  = "/admin/login"
	LandingPath = "/admin/dashboard"
)

// Requirement is what a route demands beyond a signed-in principal.
type Requirement struct {
	Admin      bool
	SuperAdmin bool
}

// Common requirements.
var (
	Authenticated = Requirement{}
	Admin         = Requirement{Admin: true}
	SuperAdmin    = Requirement{SuperAdmin: true}
)

// Outcome is the guard's verdict.
type Outcome int

const (
	Allow Outcome = iota
	ShowLoading
	RedirectSignIn
	RedirectLanding
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case ShowLoading:
		return "loading"
	case RedirectSignIn:
		return "redirect_sign_in"
	case RedirectLanding:
		return "redirect_landing"
	default:
		return "unknown"
	}
}

// Decision is an Outcome plus a short machine-readable reason.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Redirect returns the target path for redirect outcomes, or "".
func (d Decision) Redirect() string {
	switch d.Outcome {
	case RedirectSignIn:
		return SignInPath
	case RedirectLanding:
		return LandingPath
	}
	return ""
}

// Decide evaluates, in order: loading, principal presence, a pending admin
// record, super-admin and admin.
func Decide(s iam.SessionState, req Requirement) Decision {
	if s.Status == iam.StatusUnknown || s.Loading {
		return Decision{Outcome: ShowLoading, Reason: "session_loading"}
	}
	if s.Principal == nil {
		return Decision{Outcome: RedirectSignIn, Reason: "no_principal"}
	}
	// Avoids a false redirect while the record is still on its way.
	if (req.Admin || req.SuperAdmin) && s.AdminUser == nil && s.Fetching {
		return Decision{Outcome: ShowLoading, Reason: "admin_record_pending"}
	}
	// Under-privileged but valid users go to the landing page, not to sign-in.
	if req.SuperAdmin && !s.IsSuperAdmin() {
		return Decision{Outcome: RedirectLanding, Reason: "not_super_admin"}
	}
	if req.Admin && !s.IsAdmin() {
		return Decision{Outcome: RedirectSignIn, Reason: "not_admin"}
	}
	return Decision{Outcome: Allow}
}

// Check reads the current state from r and decides.
func Check(r iam.SessionReader, req Requirement) Decision {
	return Decide(r.State(), req)
}
