package identity

import "context"

type stateContextKey struct{}

// WithState stores state in ctx.
func WithState(ctx context.Context, state State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, state)
}

// FromContext returns the state stored by Middleware.
func FromContext(ctx context.Context) (State, bool) {
	state, ok := ctx.Value(stateContextKey{}).(State)
	return state, ok
}
