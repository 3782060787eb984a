package middleware

import (
	"context"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"qc-standards/internal/logging"
	"qc-standards/internal/models"
)

const (
	// SessionUserID is the session key login writes and InjectUser reads.
	SessionUserID = "user_id"

	currentUserKey = "CurrentUser"
)

type Authenticator interface {
	Authenticate(ctx context.Context, userID uint) (*models.User, error)
	AuthenticateToken(ctx context.Context, raw string) (*models.User, error)
}

// InjectUser resolves the caller from a bearer token, falling back to the
// session cookie. A bad credential leaves the request anonymous.
func InjectUser(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u := resolve(c, auth); u != nil {
			c.Set(currentUserKey, u)
			c.Set(logging.UserIDKey, u.ID)
		}
		c.Next()
	}
}

func resolve(c *gin.Context, auth Authenticator) *models.User {
	ctx := c.Request.Context()
	if raw, ok := bearer(c.GetHeader("Authorization")); ok {
		u, err := auth.AuthenticateToken(ctx, raw)
		if err != nil {
			return nil
		}
		return u
	}

	sess := sessions.Default(c)
	uid, ok := sess.Get(SessionUserID).(uint)
	if !ok || uid == 0 {
		return nil
	}
	u, err := auth.Authenticate(ctx, uid)
	if err != nil {
		return nil
	}
	return u
}

func bearer(header string) (string, bool) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// CurrentUser returns the user set by InjectUser, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
