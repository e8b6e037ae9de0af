package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/holdings-ingest/internal/auth"
)

func setupMiddlewareTest(t *testing.T) (*gin.Engine, *auth.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := auth.NewService("test-secret")
	svc.RegisterAPICredentials("viewer", "pw")
	svc.RegisterAPICredentials("ops", "pw", auth.PermissionRead, auth.PermissionAdmin)

	r := gin.New()
	ok := func(c *gin.Context) { c.String(http.StatusOK, c.GetString("clientID")) }
	r.GET("/api/v1/filings/:accession", JWTAuth(svc), ok)
	r.GET("/api/v1/internal/status", InternalAuth(svc), ok)
	r.POST("/api/v1/auth/token", ok)
	r.GET("/healthz", ok)
	return r, svc
}

func token(t *testing.T, svc *auth.Service, key string) string {
	t.Helper()
	tok, err := svc.GenerateToken(auth.Credentials{APIKey: key, APISecret: "pw"})
	require.NoError(t, err)
	return tok.Token
}

func get(r *gin.Engine, path, bearer string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r, svc := setupMiddlewareTest(t)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/filings/a", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/filings/b", "garbage").Code)

	w := get(r, "/api/v1/filings/c", token(t, svc, "viewer"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "viewer", w.Body.String())
}

func TestJWTAuth_MalformedHeader(t *testing.T) {
	r, svc := setupMiddlewareTest(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/filings/x", nil)
	req.Header.Set("Authorization", "Token "+token(t, svc, "viewer"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInternalAuth_RequiresAdmin(t *testing.T) {
	r, svc := setupMiddlewareTest(t)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/internal/status", token(t, svc, "viewer")).Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/internal/status", token(t, svc, "ops")).Code)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.POST("/api/v1/auth/token", ok)
	r.GET("/healthz", ok)

	post := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post(), "auth is limited to a burst of one")

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/healthz", "").Code, "health is never limited")
	}
}

func TestLimitFor(t *testing.T) {
	assert.Equal(t, authLimit, limitFor("/api/v1/auth/token"))
	assert.Equal(t, filingsLimit, limitFor("/api/v1/filings/:accession"))
	assert.Equal(t, statusLimit, limitFor("/api/v1/internal/status"))
	assert.Equal(t, internalLimit, limitFor("/api/v1/internal/watchlist/reload"))
}
