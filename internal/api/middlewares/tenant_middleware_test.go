package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func runMiddleware(t *testing.T, authHeader string) (*httptest.ResponseRecorder, int64, bool) {
	t.Helper()
	var gotTenant int64
	var gotOK bool
	handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant, gotOK = TenantID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/materials", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotTenant, gotOK
}

func TestTenantMiddlewareValidToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token := signToken(t, "test-secret", jwt.MapClaims{"tenant_id": 42.0, "user_id": "u-1"})

	rec, tenant, ok := runMiddleware(t, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ok)
	assert.Equal(t, int64(42), tenant)
}

func TestTenantMiddlewareMissingHeader(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	rec, _, ok := runMiddleware(t, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, ok)
}

func TestTenantMiddlewareWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token := signToken(t, "other-secret", jwt.MapClaims{"tenant_id": 42.0})

	rec, _, _ := runMiddleware(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantMiddlewareMissingTenantClaim(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token := signToken(t, "test-secret", jwt.MapClaims{"user_id": "u-1"})

	rec, _, _ := runMiddleware(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantMiddlewareNonPositiveTenant(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token := signToken(t, "test-secret", jwt.MapClaims{"tenant_id": 0.0})

	rec, _, _ := runMiddleware(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
