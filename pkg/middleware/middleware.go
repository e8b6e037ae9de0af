package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ksred/holdings-ingest/internal/auth"
	"github.com/ksred/holdings-ingest/pkg/response"
)

// TokenValidator checks bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.Mutex

	// Configure limits per endpoint type
	authLimit     = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	filingsLimit  = rate.Limit(120.0 / 60.0)  // 120 requests per minute
	internalLimit = rate.Limit(30.0 / 60.0)   // 30 requests per minute
	statusLimit   = rate.Limit(1000.0 / 60.0) // 1000 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func limitFor(path string) rate.Limit {
	switch {
	case strings.HasPrefix(path, "/api/v1/auth"):
		return authLimit
	case strings.HasPrefix(path, "/api/v1/filings"):
		return filingsLimit
	case strings.HasPrefix(path, "/api/v1/internal/status"):
		return statusLimit
	case strings.HasPrefix(path, "/api/v1/internal"):
		return internalLimit
	default:
		return rate.Inf // health and metrics are never limited
	}
}

func getLimiter(path, clientID string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientID + ":" + path
	v, exists := visitors[key]
	if !exists {
		v = &visitor{
			limiter: rate.NewLimiter(limitFor(path), 1), // burst of 1
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit throttles each client per route.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			clientID = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), clientID)
		if !limiter.Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth accepts any valid operator token.
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, validator)
		if !ok {
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// InternalAuth additionally requires the admin permission.
func InternalAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, validator)
		if !ok {
			return
		}
		if !claims.HasPermission(auth.PermissionAdmin) {
			response.Unauthorized(c, "Admin permission required")
			c.Abort()
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

func authenticate(c *gin.Context, validator TokenValidator) (*auth.Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.Unauthorized(c, "Authorization header required")
		c.Abort()
		return nil, false
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
		response.Unauthorized(c, "Invalid authorization header format")
		c.Abort()
		return nil, false
	}

	claims, err := validator.ValidateToken(bearerToken[1])
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, false
	}
	return claims, true
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set("claims", claims)
	c.Set("clientID", claims.ClientID)
}
