// Package errors provides the standardized HTTP error response shape and gin
// helpers used across the API surface.
package errors

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// APIError is the simple standardized error response body.
type APIError struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// BadRequest sends a 400 Bad Request response.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	c.JSON(http.StatusBadRequest, NewAPIError(message, details))
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string, details map[string]interface{}) {
	c.JSON(http.StatusNotFound, NewAPIError(message, details))
}

// Conflict sends a 409 Conflict response.
func Conflict(c *gin.Context, message string, details map[string]interface{}) {
	c.JSON(http.StatusConflict, NewAPIError(message, details))
}

// TooManyRequests sends a 429 response with a Retry-After header when
// retryAfterSeconds is positive.
func TooManyRequests(c *gin.Context, message string, retryAfterSeconds int) {
	details := map[string]interface{}{}
	if retryAfterSeconds > 0 {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		details["retry_after_seconds"] = retryAfterSeconds
	}
	c.JSON(http.StatusTooManyRequests, NewAPIError(message, details))
}

// Internal sends a 500 Internal Server Error response.
func Internal(c *gin.Context, message string, details map[string]interface{}) {
	c.JSON(http.StatusInternalServerError, NewAPIError(message, details))
}

// BadGateway sends a 502 response for aggregate downstream failures.
func BadGateway(c *gin.Context, message string, details map[string]interface{}) {
	c.JSON(http.StatusBadGateway, NewAPIError(message, details))
}
