package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Preyoshi04/MockWise/internal/models"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

// SessionCookie carries the login token for browser clients.
const SessionCookie = "session"

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type JWTConfig struct {
	Secret   []byte
	Issuer   string // optional
	Audience string // optional
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
		Code:    utils.CodeUnauthorized,
		Message: msg,
	})
}

// bearerOrCookie prefers the Authorization header and falls back to the
// session cookie.
func bearerOrCookie(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if v, err := c.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(v)
	}
	return ""
}

func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(cfg.Secret) == 0 {
			c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{
				Code:    utils.CodeInternal,
				Message: "JWT_SECRET is not set",
			})
			return
		}

		raw := bearerOrCookie(c)
		if raw == "" {
			abortUnauthorized(c, "missing token")
			return
		}

		claims, err := utils.ParseToken(raw, cfg.Secret, cfg.Issuer, cfg.Audience)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		role := claims.Role
		if role == "" {
			role = string(models.RoleUser)
		}

		c.Set("user_id", claims.Subject)
		c.Set("role", role)
		c.Next()
	}
}
