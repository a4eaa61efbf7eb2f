package auth

import (
	"net/http"
	"strings"

	"solar-portal/internal/platform/apperr"
	"solar-portal/internal/platform/httpx"
)

// Middleware validates JWTs and attaches the principal to the request context.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies authentication to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := ParseJWT(extractBearer(r), m.Secret)
		if err != nil {
			httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorBody{Code: "unauthorized", Message: "unauthorized"})
			return
		}
		ctx := WithPrincipal(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePrincipal extracts the principal or writes 401.
func RequirePrincipal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorBody{Code: "unauthorized", Message: "unauthorized"})
		return Principal{}, false
	}
	return p, true
}

// RequireAction authorizes a route-level action that carries no resource owner.
func RequireAction(w http.ResponseWriter, r *http.Request, action Action) (Principal, bool) {
	p, ok := RequirePrincipal(w, r)
	if !ok {
		return Principal{}, false
	}
	if err := Authorize(p, action, Resource{}); err != nil {
		httpx.WriteJSON(w, http.StatusForbidden, httpx.ErrorBody{Code: apperr.Forbidden, Message: apperr.MessageOf(err)})
		return Principal{}, false
	}
	return p, true
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
