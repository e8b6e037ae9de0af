package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	s := NewService("test-secret")
	s.RegisterAPICredentials("ops", "s3cret", PermissionRead, PermissionAdmin)

	token, err := s.GenerateToken(Credentials{APIKey: "ops", APISecret: "s3cret"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(TokenTTL), token.Expiration, time.Minute)

	claims, err := s.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.ClientID)
	assert.True(t, claims.HasPermission(PermissionAdmin))
}

func TestGenerateToken_InvalidCredentials(t *testing.T) {
	s := NewService("test-secret")
	s.RegisterAPICredentials("ops", "s3cret")

	_, err := s.GenerateToken(Credentials{APIKey: "ops", APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.GenerateToken(Credentials{APIKey: "nobody", APISecret: "s3cret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterAPICredentials_DefaultsToReadOnly(t *testing.T) {
	s := NewService("test-secret")
	s.RegisterAPICredentials("viewer", "pw")

	token, err := s.GenerateToken(Credentials{APIKey: "viewer", APISecret: "pw"})
	require.NoError(t, err)
	claims, err := s.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.True(t, claims.HasPermission(PermissionRead))
	assert.False(t, claims.HasPermission(PermissionAdmin))
}

func TestValidateToken_Rejects(t *testing.T) {
	s := NewService("test-secret")

	other := NewService("other-secret")
	other.RegisterAPICredentials("ops", "pw")
	foreign, err := other.GenerateToken(Credentials{APIKey: "ops", APISecret: "pw"})
	require.NoError(t, err)
	_, err = s.ValidateToken(foreign.Token)
	assert.Error(t, err, "wrong signing key")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		ClientID:         "ops",
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = s.ValidateToken(signed)
	assert.Error(t, err, "expired")

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ClientID: "ops"})
	signed, err = noExpiry.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = s.ValidateToken(signed)
	assert.Error(t, err, "expiry is required")

	_, err = s.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestGenerateTokenHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewService("test-secret")
	s.RegisterAPICredentials("ops", "s3cret")
	r := gin.New()
	r.POST("/api/v1/auth/token", NewGinHandlers(s).GenerateTokenHandler())

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	w := post(`{"api_key":"ops","api_secret":"s3cret"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.Token)

	assert.Equal(t, http.StatusUnauthorized, post(`{"api_key":"ops","api_secret":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"api_key":"ops"}`).Code)
}
