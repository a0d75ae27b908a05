package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context, or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// PrincipalFromContext returns the user and tenant bound to the request
// session. ok is false for anonymous requests.
func PrincipalFromContext(ctx context.Context) (userID, tenantID int64, ok bool) {
	sess := SessionFromContext(ctx)
	if sess == nil || sess.User() == 0 {
		return 0, 0, false
	}
	return sess.User(), sess.Tenant(), true
}
