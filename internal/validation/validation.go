// Package validation provides request-size limiting for the fee tracker
// read API.
package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum accepted request body size.
const MaxRequestSize = 1 << 20 // 1MB

// RequestSizeMiddleware limits the request body size gin will read.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
