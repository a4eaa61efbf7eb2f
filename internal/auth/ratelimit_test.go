package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterPerPrincipal(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, nil)
	handler := rl.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(p Principal) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/app-1/bids", nil)
		req = req.WithContext(WithPrincipal(req.Context(), p))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	a := Principal{ID: "inst-a", Role: RoleInstaller, OrganizationID: "org-a"}
	b := Principal{ID: "inst-b", Role: RoleInstaller, OrganizationID: "org-b"}
	if send(a) != http.StatusCreated || send(a) != http.StatusCreated {
		t.Fatalf("burst should pass")
	}
	if code := send(a); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send(b); code != http.StatusCreated {
		t.Fatalf("other principal throttled: %d", code)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Allow("k1")
	if removed := rl.Prune(time.Now().Add(time.Hour)); removed != 1 {
		t.Fatalf("expected 1 pruned, got %d", removed)
	}
}
