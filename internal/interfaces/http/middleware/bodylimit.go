package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/serialtrack/backend/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that rejects request bodies over maxBytes.
// Streaming bodies without a Content-Length are still capped by the
// MaxBytesReader wrap.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
				dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size",
			))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
