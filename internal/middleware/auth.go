package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qc-standards/internal/handlers/common"
	"qc-standards/internal/models"
)

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			common.WriteErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "could not validate credentials")
			return
		}
		c.Next()
	}
}

// RequireRole lets through users holding one of roles. Mount after RequireAuth.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := map[models.UserRole]struct{}{}
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			common.WriteErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "could not validate credentials")
			return
		}
		if _, ok := roleSet[u.Role]; !ok {
			common.WriteErrorCode(c, http.StatusForbidden, "FORBIDDEN", "not enough permissions")
			return
		}
		c.Next()
	}
}
