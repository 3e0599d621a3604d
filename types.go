package iam

import (
	"slices"
	"time"
)

// SuperAdminRoleName is the role name that grants super-admin status.
// The comparison is an exact, case-sensitive string match: "SuperAdmin" is not elevated.
const SuperAdminRoleName = "superadmin"

// AdminUser is the application-level authorization record linked to a Principal.
type AdminUser struct {
	ID          int64      `json:"id"`
	FirebaseUID string     `json:"firebase_uid"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        Role       `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLogin   *time.Time `json:"last_login"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Role is a named bundle of permission tokens.
type Role struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Permissions PermissionSet `json:"permissions"`
}

// PermissionSet mirrors the backend's {"permissions": [...]} envelope.
type PermissionSet struct {
	Permissions []string `json:"permissions"`
}

// Contains reports whether token is a member of the set.
func (p PermissionSet) Contains(token string) bool {
	return slices.Contains(p.Permissions, token)
}

// IsSuperAdmin reports whether the role name is exactly SuperAdminRoleName.
func (r Role) IsSuperAdmin() bool {
	return r.Name == SuperAdminRoleName
}

// Active reports whether u is present and active.
func (u *AdminUser) Active() bool {
	return u != nil && u.IsActive
}

// HasPermission is false for an absent or inactive user, otherwise a membership test.
func (u *AdminUser) HasPermission(token string) bool {
	if !u.Active() {
		return false
	}
	return u.Role.Permissions.Contains(token)
}

// Clone returns a deep copy so callers cannot mutate engine-owned state.
func (u *AdminUser) Clone() *AdminUser {
	if u == nil {
		return nil
	}
	c := *u
	c.Role.Permissions.Permissions = slices.Clone(u.Role.Permissions.Permissions)
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// Status is the Session Engine's coarse state.
type Status int

const (
	StatusUnknown Status = iota
	StatusLoading
	StatusUnauthenticated
	StatusAuthenticatedNoAdminRecord
	StatusAuthenticatedWithAdminRecord
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticatedNoAdminRecord:
		return "authenticated_no_admin_record"
	case StatusAuthenticatedWithAdminRecord:
		return "authenticated_with_admin_record"
	default:
		return "unknown"
	}
}

// SessionState is a read-only snapshot of the Session Engine.
type SessionState struct {
	Status       Status
	Principal    Principal
	AdminUser    *AdminUser
	Loading      bool
	Fetching     bool // an AdminUser fetch for Principal is in flight
	Error        string
	LastFetch    time.Time
	LastActivity time.Time
}

// IsAdmin is true iff an AdminUser is present and active.
func (s SessionState) IsAdmin() bool {
	return s.AdminUser.Active()
}

// IsSuperAdmin is true iff IsAdmin and the role name is exactly "superadmin".
func (s SessionState) IsSuperAdmin() bool {
	return s.IsAdmin() && s.AdminUser.Role.IsSuperAdmin()
}

// HasPermission delegates to the AdminUser membership test.
func (s SessionState) HasPermission(token string) bool {
	return s.AdminUser.HasPermission(token)
}

// ActivitySnapshot is the reload-continuity record kept under SnapshotKey.
// It is a best-effort cache, never authoritative.
type ActivitySnapshot struct {
	UID              string `json:"uid"`
	Email            string `json:"email"`
	LastActivityTime int64  `json:"lastActivityTime"` // unix milliseconds
}

// SnapshotKey is the storage key of the ActivitySnapshot.
const SnapshotKey = "firebase_user"

// NewActivitySnapshot builds a snapshot for the given principal and activity time.
func NewActivitySnapshot(uid, email string, lastActivity time.Time) ActivitySnapshot {
	return ActivitySnapshot{UID: uid, Email: email, LastActivityTime: lastActivity.UnixMilli()}
}

// LastActivity returns the activity timestamp, or the zero time if unset.
func (a ActivitySnapshot) LastActivity() time.Time {
	if a.LastActivityTime == 0 {
		return time.Time{}
	}
	return time.UnixMilli(a.LastActivityTime)
}
