package recordstore

import "context"

// Caller identifies who a store call is made for. Procedures such as is_admin
// read it instead of taking arguments, and the REST store forwards AccessToken
// as the bearer token.
type Caller struct {
	UserID      string
	Email       string
	AccessToken string
}

type ctxKey struct{}

// WithCaller attaches the caller to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// CallerFromContext returns the caller attached to ctx, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}
