package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AuthCookieName is the cookie hubs read subscriber tokens from.
const AuthCookieName = "mercureAuthorization"

// TokenFromRequest extracts a hub token from, in order, a bearer
// Authorization header, the mercureAuthorization cookie or the authorization
// query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("authorization")
}

// Auth rejects requests that do not carry token. An empty token disables the
// check.
func Auth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if token == "" {
			return next
		}
		return func(c echo.Context) error {
			got := TokenFromRequest(c.Request())
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				FromContext(c.Request().Context()).Warn("Rejected unauthorized request", "path", c.Path())
				return c.String(http.StatusUnauthorized, "Unauthorized")
			}
			return next(c)
		}
	}
}
