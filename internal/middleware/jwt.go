package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dispatch-backoffice/internal/utils"
)

// Context keys set by the middleware in this package.
const (
	UserIDKey   = "user_id"  // uint64
	RoleKey     = "role"     // string claim: "operator" or "member"
	ActorKey    = "actor"    // service.Actor
	ResolvedKey = "resolved" // *service.Resolved
)

// JWTAuth validates a Bearer access token and stores the user id and the
// role claim in the echo context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request())
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			uid, _ := claims.UserID()
			c.Set(UserIDKey, uid)
			c.Set(RoleKey, claims.Role)
			return next(c)
		}
	}
}

func bearer(r *http.Request) (string, bool) {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(auth[7:])
	return raw, raw != ""
}

// BearerUserID returns the user id of a valid access token on r, if any.
// It serves routes that accept but do not require a session.
func BearerUserID(r *http.Request, secret string) (uint64, bool) {
	raw, ok := bearer(r)
	if !ok {
		return 0, false
	}
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return 0, false
	}
	uid, err := claims.UserID()
	return uid, err == nil
}
