package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoointerview/internal/utils"
)

// RequireRole admits requests whose JWT role is one of allowed. Must run
// after JWTAuth.
func RequireRole(allowed ...string) gin.HandlerFunc {
	allow := map[string]struct{}{}
	for _, a := range allowed {
		a = strings.TrimSpace(strings.ToLower(a))
		if a != "" {
			allow[a] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		v, _ := c.Get("role")
		role, _ := v.(string)
		role = strings.ToLower(strings.TrimSpace(role))

		if _, ok := allow[role]; role == "" || !ok {
			abort(c, http.StatusForbidden, utils.CodeForbidden, "forbidden")
			return
		}

		c.Next()
	}
}

func RequireRecruiter() gin.HandlerFunc { return RequireRole("recruiter", "admin") }

func RequireAdmin() gin.HandlerFunc { return RequireRole("admin") }
