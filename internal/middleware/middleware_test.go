package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikoajp/EventHub-sub001/internal/config"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(sub, role string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

func whoami(c echo.Context) error {
	id, _ := UserID(c)
	return c.JSON(http.StatusOK, echo.Map{"user_id": id, "role": Role(c)})
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(testSecret))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, validClaims("u1", RoleCustomer), jwt.SigningMethodHS256, []byte("other")), http.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix()}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusUnauthorized},
		{"no expiry", "Bearer " + signed(t, jwt.MapClaims{"sub": "u1"}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusUnauthorized},
		{"no subject", "Bearer " + signed(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusUnauthorized},
		{"wrong algorithm", "Bearer " + signed(t, validClaims("u1", RoleCustomer), jwt.SigningMethodHS512, []byte(testSecret)), http.StatusUnauthorized},
		{"valid", "Bearer " + signed(t, validClaims("u1", RoleCustomer), jwt.SigningMethodHS256, []byte(testSecret)), http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := serve(e, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"u1","role":"CUSTOMER"}`, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", whoami, JWTAuth(testSecret), RequireRole(RoleAdmin))

	for role, want := range map[string]int{RoleAdmin: http.StatusOK, RoleCustomer: http.StatusForbidden, "": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+signed(t, validClaims("u1", role), jwt.SigningMethodHS256, []byte(testSecret)))
		assert.Equal(t, want, serve(e, req).Code, role)
	}
}

func TestTokenBucket(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 2, Prefix: "rl"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var keys []string
	results := []bucketResult{
		{allowed: true, remaining: 1},
		{allowed: false, remaining: 0, retryMs: 1500},
	}
	take := func(_ context.Context, key string) (bucketResult, error) {
		keys = append(keys, key)
		r := results[0]
		results = results[1:]
		return r, nil
	}

	e := echo.New()
	e.POST("/v1/purchases", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
		JWTAuth(testSecret), tokenBucket(cfg, take, logger))
	token := "Bearer " + signed(t, validClaims("u1", RoleCustomer), jwt.SigningMethodHS256, []byte(testSecret))

	req := httptest.NewRequest(http.MethodPost, "/v1/purchases", nil)
	req.Header.Set("Authorization", token)
	rec := serve(e, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	req = httptest.NewRequest(http.MethodPost, "/v1/purchases", nil)
	req.Header.Set("Authorization", token)
	rec = serve(e, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	assert.Equal(t, []string{"rl:user:u1:POST:/v1/purchases", "rl:user:u1:POST:/v1/purchases"}, keys)
}

func TestTokenBucketFailsOpen(t *testing.T) {
	take := func(context.Context, string) (bucketResult, error) { return bucketResult{}, errors.New("connection refused") }
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		tokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1, Prefix: "rl"}, take, slog.New(slog.NewTextHandler(io.Discard, nil))))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTokenBucketDisabled(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, mw)
	assert.Equal(t, http.StatusNoContent, serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestMetricsPassesErrorsThrough(t *testing.T) {
	e := echo.New()
	e.Use(Metrics())
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "no") })
	assert.Equal(t, http.StatusTeapot, serve(e, httptest.NewRequest(http.MethodGet, "/boom", nil)).Code)
}
