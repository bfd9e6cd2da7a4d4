package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/ai-gateway/internal/httperror"
)

const (
	PrincipalHeader = "X-Principal-ID"
	PrincipalKey    = "principal_id"
)

// RequirePrincipal reads the caller identity established upstream. The
// gateway does not authenticate it.
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(PrincipalHeader))
		if id == "" || len(id) > 128 {
			httperror.Write(c, http.StatusBadRequest, httperror.CodeInvalidRequest, PrincipalHeader+" header required")
			return
		}

		c.Set(PrincipalKey, id)
		c.Next()
	}
}
