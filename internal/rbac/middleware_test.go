package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMiddleware() Middleware {
	return Middleware{Verifier: NewTokenVerifier("test-secret", "medconsult")}
}

func protected(m Middleware, roles ...Role) http.Handler {
	return m.Authenticate(m.RequireAny(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		_, _ = w.Write([]byte(p.Name))
	})))
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	rr := httptest.NewRecorder()
	protected(newTestMiddleware()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	m := newTestMiddleware()
	token, err := m.Verifier.Issue(Principal{ID: 4, Name: "Musu", Role: RoleAccountant}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protected(m, RoleAdmin, RoleAccountant).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Musu", rr.Body.String())
}

func TestRequireAnyForbidsOtherRoles(t *testing.T) {
	m := newTestMiddleware()
	token, err := m.Verifier.Issue(Principal{ID: 9, Role: RoleClient}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protected(m, RoleAdmin).ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestVerifyRejectsWrongSecretAndExpired(t *testing.T) {
	other := NewTokenVerifier("other", "medconsult")
	token, err := other.Issue(Principal{ID: 1, Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = newTestMiddleware().Verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	v := NewTokenVerifier("test-secret", "medconsult")
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := v.Issue(Principal{ID: 1, Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = newTestMiddleware().Verifier.Verify(expired)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	v := newTestMiddleware().Verifier
	token, err := v.Issue(Principal{ID: 1, Role: Role("superuser")}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
