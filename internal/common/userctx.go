package common

import "context"

// UserContext carries the authenticated caller's identity and plan tier as
// asserted by the external auth collaborator's token.
type UserContext struct {
	UserID string
	Email  string
	Plan   string
}

type userContextKey struct{}

// WithUserContext attaches a user context to the request context.
func WithUserContext(ctx context.Context, uc UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, uc)
}

// UserContextFrom extracts the user context, if any.
func UserContextFrom(ctx context.Context) (UserContext, bool) {
	uc, ok := ctx.Value(userContextKey{}).(UserContext)
	return uc, ok
}
