package auth

import "context"

// ContextKey is the key type for context values
type ContextKey string

// UserContextKey carries the *UserContext set by the auth middleware.
const UserContextKey ContextKey = "user"

func WithUser(ctx context.Context, u *UserContext) context.Context {
	return context.WithValue(ctx, UserContextKey, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*UserContext, bool) {
	u, ok := ctx.Value(UserContextKey).(*UserContext)
	return u, ok && u != nil
}
