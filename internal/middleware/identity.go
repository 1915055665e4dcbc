package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/pkg/ctxutil"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
)

// IdentityMiddleware resolves the calling user from the X-User-ID header (or
// the "user" query parameter for EventSource clients, which cannot set
// headers). Authentication itself is delegated to the gateway in front of
// this service; the middleware only validates and propagates the identity.
type IdentityMiddleware struct {
	log *logger.Logger
}

func NewIdentityMiddleware(log *logger.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{log: log.With("Middleware", "IdentityMiddleware")}
}

func (im *IdentityMiddleware) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractUserID(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user id"})
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		rd := &ctxutil.RequestData{UserID: userID}
		if s := strings.TrimSpace(c.GetHeader("X-Session-ID")); s != "" {
			if sessionID, err := uuid.Parse(s); err == nil {
				rd.SessionID = sessionID
			}
		}

		ctx := ctxutil.WithRequestData(c.Request.Context(), rd)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractUserID(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
		return h
	}
	return strings.TrimSpace(c.Query("user"))
}
