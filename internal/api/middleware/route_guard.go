package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	loginPath     = "/auth/login"
	dashboardPath = "/dashboard"
)

// Paths the guard never looks at.
var guardExempt = []string{"/api", "/_next/static", "/_next/image", "/favicon.ico", "/ping"}

func hasSegmentPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// RouteGuard redirects page navigations (GET and HEAD) on the presence of the
// session cookie alone; token validity is checked later by JWTAuth. Signed-out
// visitors are sent from dashboard and interview pages to the login page,
// signed-in ones from the auth pages to the dashboard.
func RouteGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m := c.Request.Method; m != http.MethodGet && m != http.MethodHead {
			c.Next()
			return
		}
		path := c.Request.URL.Path
		for _, p := range guardExempt {
			if hasSegmentPrefix(path, p) {
				c.Next()
				return
			}
		}

		cookie, err := c.Cookie(SessionCookie)
		signedIn := err == nil && cookie != ""

		switch {
		case !signedIn && (strings.HasPrefix(path, "/dashboard") || strings.HasPrefix(path, "/interview")):
			c.Redirect(http.StatusTemporaryRedirect, loginPath)
			c.Abort()
			return
		case signedIn && strings.HasPrefix(path, "/auth"):
			c.Redirect(http.StatusTemporaryRedirect, dashboardPath)
			c.Abort()
			return
		}
		c.Next()
	}
}
