package middleware

import (
	"crypto/subtle"

	"pixelswap/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// SharedSecret rejects requests whose header does not carry the configured
// secret. An empty secret rejects everything.
func SharedSecret(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(header)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.Error(errutil.Unauthorized("invalid or missing "+header, nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
