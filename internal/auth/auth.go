package auth

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ksred/holdings-ingest/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
	ErrInvalidToken       = errors.New("invalid token")
)

// Permissions carried in operator tokens
const (
	PermissionRead  = "read"
	PermissionAdmin = "admin"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 24 * time.Hour

// Credentials represents the API authentication credentials
type Credentials struct {
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	ClientID    string   `json:"client_id"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the token grants perm.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type credential struct {
	secret      string
	permissions []string
}

// Service issues and validates operator tokens for the admin API
type Service struct {
	jwtSecret []byte

	mu          sync.RWMutex
	credentials map[string]credential
}

// NewService creates a new authentication service with the given JWT secret
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret:   []byte(jwtSecret),
		credentials: make(map[string]credential),
	}
}

// GenerateToken issues an HS256 token for valid API credentials
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	cred, ok := s.lookup(creds)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	expiration := now.Add(TokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		ClientID:    creds.APIKey,
		Permissions: cred.permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken verifies signature and expiry and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ClientID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) lookup(creds Credentials) (credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, exists := s.credentials[creds.APIKey]
	if !exists || subtle.ConstantTimeCompare([]byte(cred.secret), []byte(creds.APISecret)) != 1 {
		return credential{}, false
	}
	return cred, true
}

// RegisterAPICredentials registers an operator key with the given
// permissions. With no permissions the key is read-only.
func (s *Service) RegisterAPICredentials(apiKey, apiSecret string, permissions ...string) {
	if len(permissions) == 0 {
		permissions = []string{PermissionRead}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[apiKey] = credential{secret: apiSecret, permissions: permissions}
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates the HTTP handlers for token issuing.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
// Request body should contain API credentials
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
