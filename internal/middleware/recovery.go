package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/ai-gateway/internal/httperror"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString("request_id")
				slog.Error("panic_recovered", "request_id", requestID, "panic", err, "path", c.Request.URL.Path)

				httperror.Write(c, http.StatusInternalServerError, httperror.CodeInternal, "internal server error")
			}
		}()
		c.Next()
	}
}
