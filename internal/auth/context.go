package auth

import "context"

type contextKey string

const contextKeyPrincipal contextKey = "auth.principal"

// Principal is the authenticated caller.
type Principal struct {
	ID             string `json:"id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// System is the principal used by scheduled jobs and signed ingestion.
func System() Principal {
	return Principal{ID: "system", Role: RoleOfficer}
}

// Valid reports whether the principal carries an identity and a known role.
func (p Principal) Valid() bool {
	if p.ID == "" {
		return false
	}
	_, ok := NormalizeRole(string(p.Role))
	return ok
}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(contextKeyPrincipal).(Principal)
	if !ok || !p.Valid() {
		return Principal{}, false
	}
	return p, true
}
