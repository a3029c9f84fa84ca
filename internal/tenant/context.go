package tenant

import "context"

// Context identifies the tenant and acting user for a single operation. It is
// passed explicitly to every core operation instead of living in ambient
// mutable state, so concurrent requests can never leak each other's tenancy.
type Context struct {
	TenantID string
	ActorID  string
}

// System returns a tenant context for internally triggered operations such as
// the auto-close sweep, which act on behalf of a tenant without a human actor.
func System(tenantID string) Context {
	return Context{TenantID: tenantID}
}

type ctxKey struct{}

// Into attaches the tenant context to a context.Context for boundary layers
// that cannot thread it as a parameter (Fiber handlers).
func Into(ctx context.Context, tcx Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tcx)
}

// From extracts a tenant context previously stored with Into.
func From(ctx context.Context) (Context, bool) {
	tcx, ok := ctx.Value(ctxKey{}).(Context)
	return tcx, ok
}
