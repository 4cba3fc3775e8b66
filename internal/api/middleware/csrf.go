package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/visatrack/visatrack/internal/csrf"
)

// CSRFMiddleware enforces double-submit CSRF protection on authenticated
// mutations. The token issued at login rides in the XSRF-TOKEN cookie; the
// client must echo it in the X-XSRF-TOKEN header. Runs after AuthMiddleware
// so the identity is already in context.
func CSRFMiddleware(store *csrf.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID := c.GetString("identity_id")
		presented := c.GetHeader("X-XSRF-TOKEN")

		if !store.Validate(identityID, isSafeMethod(c.Request.Method), presented) {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid or missing CSRF token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
