package middleware

import (
	"pixelswap/pkg/errutil"
	"pixelswap/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last handler error as the standard error envelope.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		v := errutil.FromError(err.Err)
		if v.Code.HTTPStatus() >= 500 {
			logger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("path", c.FullPath()),
				zap.Error(err.Err),
			)
			v.Err = nil
		}
		c.JSON(v.Code.HTTPStatus(), v.JSON())
	}
}
