package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"legalrag/internal/pkg/jwtutil"
	"legalrag/internal/transport/http/response"
)

const ContextSessionIDKey = "session_id"

// RequireSession resolves the signed session cookie to a session id. A missing or
// invalid cookie is a client error, reported as 400.
func RequireSession(secret, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(cookieName)
		if err != nil || strings.TrimSpace(raw) == "" {
			response.Abort(c, http.StatusBadRequest, response.CodeInvalidSession, "Invalid session")
			return
		}

		claims, err := jwtutil.ParseToken(secret, raw)
		if err != nil {
			response.Abort(c, http.StatusBadRequest, response.CodeInvalidSession, "Invalid session")
			return
		}

		c.Set(ContextSessionIDKey, claims.Subject)
		c.Next()
	}
}

func SessionID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextSessionIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
