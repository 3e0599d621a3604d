package iam

import "context"

type ctxKey string

const (
	ctxKeyAdminUser ctxKey = "iam_admin_user"
	ctxKeySession   ctxKey = "iam_session_state"
)

// WithAdminUser stores the signed-in admin user in the context.
func WithAdminUser(ctx context.Context, u *AdminUser) context.Context {
	return context.WithValue(ctx, ctxKeyAdminUser, u)
}

// AdminUserFromContext extracts the admin user from the context.
func AdminUserFromContext(ctx context.Context) *AdminUser {
	v, _ := ctx.Value(ctxKeyAdminUser).(*AdminUser)
	return v
}

// WithSessionState stores a session snapshot in the context.
func WithSessionState(ctx context.Context, s SessionState) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// SessionStateFromContext extracts the session snapshot from the context.
func SessionStateFromContext(ctx context.Context) (SessionState, bool) {
	v, ok := ctx.Value(ctxKeySession).(SessionState)
	return v, ok
}
