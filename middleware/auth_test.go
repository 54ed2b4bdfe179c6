package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xkonka/CDP-backend/utils"
)

func protected(t *testing.T, role string) http.Handler {
	t.Helper()
	return RequireRole(role, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func authRequest(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRequireRole(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	handler := protected(t, utils.RoleAdmin)

	w := authRequest(handler, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = authRequest(handler, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := utils.GenerateAccessToken(utils.RoleTelegram, time.Hour)
	require.NoError(t, err)
	w = authRequest(handler, token)
	require.Equal(t, http.StatusForbidden, w.Code)

	token, err = utils.GenerateAccessToken(utils.RoleAdmin, time.Hour)
	require.NoError(t, err)
	w = authRequest(handler, token)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRoleRejectsExpiredToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	handler := protected(t, utils.RoleAdmin)

	token, err := utils.GenerateAccessToken(utils.RoleAdmin, -time.Minute)
	require.NoError(t, err)
	w := authRequest(handler, token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoleRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := utils.GenerateAccessToken(utils.RoleAdmin, time.Hour)
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", "rotated-secret")
	w := authRequest(protected(t, utils.RoleAdmin), token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
