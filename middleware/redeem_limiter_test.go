package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func limiterRequest(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/referral/user/redeem", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRedeemLimiterDeduplicates(t *testing.T) {
	limiter := NewRedeemLimiter(50 * time.Millisecond)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"account":"0xa1","invite_code":"A1B2C"}`
	require.Equal(t, http.StatusOK, limiterRequest(t, handler, body).Code)
	require.Equal(t, http.StatusTooManyRequests, limiterRequest(t, handler, body).Code)

	// a different code is an independent key
	other := `{"account":"0xa1","invite_code":"X9Y8Z"}`
	require.Equal(t, http.StatusOK, limiterRequest(t, handler, other).Code)

	// and the original passes again once the TTL lapses
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, http.StatusOK, limiterRequest(t, handler, body).Code)
}

func TestRedeemLimiterPreservesBody(t *testing.T) {
	limiter := NewRedeemLimiter(time.Minute)
	var got string
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		got = string(b)
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"account":"0xb2","invite_code":"C3D4E"}`
	require.Equal(t, http.StatusOK, limiterRequest(t, handler, body).Code)
	require.Equal(t, body, got)
}

func TestRedeemLimiterAllow(t *testing.T) {
	limiter := NewRedeemLimiter(50 * time.Millisecond)
	ctx := context.Background()

	require.True(t, limiter.Allow(ctx, "POST-/x-A1B2C"))
	require.False(t, limiter.Allow(ctx, "POST-/x-A1B2C"))
	require.True(t, limiter.Allow(ctx, "POST-/x-other"))

	time.Sleep(60 * time.Millisecond)
	require.True(t, limiter.Allow(ctx, "POST-/x-A1B2C"))
}
