// Package middleware holds the Gin middleware stack: API key auth, per-IP
// rate limiting, request tracking and metrics accounting.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth accepts either an Authorization bearer token or an x-api-key
// header (Anthropic clients send the latter). Comparison is constant-time.
// An empty key list disables the check.
func APIKeyAuth(keys func() []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		accepted := keys()
		if len(accepted) == 0 {
			c.Next()
			return
		}

		presented := extractKey(c)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"type":    "authentication_error",
					"message": "missing API key",
				},
			})
			return
		}
		for _, key := range accepted {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"type":    "authentication_error",
				"message": "invalid API key",
			},
		})
	}
}

func extractKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, found := strings.CutPrefix(auth, "Bearer "); found {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(c.GetHeader("x-api-key"))
}
