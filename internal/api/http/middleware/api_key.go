package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware rejects requests whose X-API-Key is not one of keys.
// With no keys configured every request passes.
func APIKeyMiddleware(keys []string) gin.HandlerFunc {
	accepted := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			accepted = append(accepted, []byte(k))
		}
	}

	return func(c *gin.Context) {
		if len(accepted) == 0 {
			c.Next()
			return
		}

		key := []byte(c.GetHeader("X-API-Key"))
		for _, want := range accepted {
			if subtle.ConstantTimeCompare(key, want) == 1 {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"ok":    false,
			"error": "invalid API key",
		})
	}
}
