package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/holdings-ingest/internal/types"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeDuplicateResource  = "DUPLICATE_RESOURCE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, types.ErrUnknownEntity):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		handleError(c, err)
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	errorResponse(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	errorResponse(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	errorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	errorResponse(c, http.StatusTooManyRequests, ErrCodeRateLimited, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	errorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	errorResponse(c, http.StatusConflict, ErrCodeDuplicateResource, message)
}

// ServiceUnavailable sends a 503 response that still carries data, used by
// health checks to report which dependency is down.
func ServiceUnavailable(c *gin.Context, data interface{}) {
	c.JSON(http.StatusServiceUnavailable, Response{
		Success: false,
		Data:    data,
		Error: &Error{
			Code:    ErrCodeServiceUnavailable,
			Message: "Service degraded",
		},
	})
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

// handleError determines the appropriate error response
func handleError(c *gin.Context, err error) {
	// Store details stay in the logs
	InternalError(c, "An unexpected error occurred")
}
