package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass the access-token check: health probes and the token
// endpoints that exist to obtain one.
var publicPaths = map[string]bool{
	"/health":        true,
	"/health/db":     true,
	"/auth/register": true,
	"/auth/login":    true,
	"/auth/refresh":  true,
}

// AuthSkipper exempts public routes. The matched route is preferred over the
// raw URL so a trailing slash cannot dodge the check.
func AuthSkipper(c echo.Context) bool {
	p := c.Path()
	if p == "" {
		p = c.Request().URL.Path
	}
	return IsPublicPath(p)
}

// IsPublicPath reports whether path is served without an access token.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
