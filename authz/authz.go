// Package authz answers permission questions for the signed-in admin user
// from Session Engine state.
package authz

import (
	"context"
	"slices"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/metrics"
)

// Permission tokens granted by the default roles.
const (
	ManageProjects      = "manage_projects"
	ManageSkills        = "manage_skills"
	ManageAbout         = "manage_about"
	ManageExperience    = "manage_experience"
	ManageEducation     = "manage_education"
	ManageTestimonials  = "manage_testimonials"
	ManageServices      = "manage_services"
	ManageSettings      = "manage_settings"
	ManageAdminUsers    = "manage_admin_users"
	ManageAdminRoles    = "manage_admin_roles"
	SendInvitations     = "send_invitations"
	ViewAnalytics       = "view_analytics"
	SystemConfiguration = "system_configuration"

	ViewProjects     = "view_projects"
	ViewSkills       = "view_skills"
	ViewAbout        = "view_about"
	ViewExperience   = "view_experience"
	ViewEducation    = "view_education"
	ViewTestimonials = "view_testimonials"
	ViewServices     = "view_services"
)

// Default role names.
const (
	RoleSuperAdmin = iam.SuperAdminRoleName
	RoleAdmin      = "admin"
	RoleEditor     = "editor"
	RoleViewer     = "viewer"
)

var content = []string{
	ManageProjects, ManageSkills, ManageAbout, ManageExperience,
	ManageEducation, ManageTestimonials, ManageServices,
}

// DefaultRoles maps each default role to the permissions the backend seeds it with.
var DefaultRoles = map[string][]string{
	RoleSuperAdmin: append(slices.Clone(content),
		ManageSettings, ManageAdminUsers, ManageAdminRoles, SendInvitations, ViewAnalytics, SystemConfiguration),
	RoleAdmin:  append(slices.Clone(content), ManageSettings, ViewAnalytics),
	RoleEditor: slices.Clone(content),
	RoleViewer: {
		ViewProjects, ViewSkills, ViewAbout, ViewExperience,
		ViewEducation, ViewTestimonials, ViewServices, ViewAnalytics,
	},
}

// Token builds the permission token for action on resource, e.g.
// Token("projects", "manage") is "manage_projects".
func Token(resource, action string) string {
	return action + "_" + resource
}

// Authorizer implements iam.Authorizer over a session.
type Authorizer struct {
	session iam.SessionReader
	metrics *metrics.Metrics
}

var _ iam.Authorizer = (*Authorizer)(nil)

// Option configures the Authorizer.
type Option func(*Authorizer)

// WithMetrics counts granted and denied checks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

// New creates an Authorizer reading from session.
func New(session iam.SessionReader, opts ...Option) *Authorizer {
	a := &Authorizer{session: session, metrics: metrics.New(false)}
	for _, o := range opts {
		o(a)
	}
	return a
}

// state prefers a snapshot stored in ctx so one request sees one state.
func (a *Authorizer) state(ctx context.Context) (iam.SessionState, error) {
	s, ok := iam.SessionStateFromContext(ctx)
	if !ok {
		s = a.session.State()
	}
	if s.Principal == nil {
		return s, iam.ErrNotAuthenticated
	}
	return s, nil
}

// Check returns true if the active admin user holds permission.
func (a *Authorizer) Check(ctx context.Context, permission string) (bool, error) {
	s, err := a.state(ctx)
	if err != nil {
		return false, err
	}
	granted := s.HasPermission(permission)
	a.metrics.RecordPermissionCheck(granted)
	return granted, nil
}

// CheckResource checks the token Token(resource, action).
func (a *Authorizer) CheckResource(ctx context.Context, resource, action string) (bool, error) {
	return a.Check(ctx, Token(resource, action))
}

// GetPermissions returns the active admin user's permission tokens.
// Inactive or missing admin records have none.
func (a *Authorizer) GetPermissions(ctx context.Context) ([]string, error) {
	s, err := a.state(ctx)
	if err != nil {
		return nil, err
	}
	if !s.IsAdmin() {
		return []string{}, nil
	}
	return slices.Clone(s.AdminUser.Role.Permissions.Permissions), nil
}
