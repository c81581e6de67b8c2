package auth

import "context"

type (
	contextKey struct{}
	captureKey struct{}
)

// AuthContext identifies the caller of an API request. Tenant requests carry
// the organization and API key; admin requests carry only Admin.
type AuthContext struct {
	OrganizationID string
	APIKeyID       string
	Admin          bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	if dst, ok := ctx.Value(captureKey{}).(*AuthContext); ok {
		*dst = ac
	}
	return context.WithValue(ctx, contextKey{}, ac)
}

// WithCapture makes later WithAuth calls on derived contexts also store the
// AuthContext in dst, so outer middleware can see who the caller was.
func WithCapture(ctx context.Context, dst *AuthContext) context.Context {
	return context.WithValue(ctx, captureKey{}, dst)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func OrganizationID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.OrganizationID
}

func APIKeyID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.APIKeyID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Admin
}
