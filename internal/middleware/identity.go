package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/dispatch-backoffice/internal/logger"
	"github.com/iliyamo/dispatch-backoffice/internal/metrics"
	"github.com/iliyamo/dispatch-backoffice/internal/policy"
	"github.com/iliyamo/dispatch-backoffice/internal/service"
)

// Resolver loads the user, membership and tenant behind a user id.
type Resolver interface {
	Resolve(ctx context.Context, userID uint64) (*service.Resolved, error)
}

// Resolve looks up the caller's identity, membership and tenant on every
// request and stores the result and the derived actor in the context.  It
// runs after JWTAuth.  Deleted or disabled users are rejected.
func Resolve(dir Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, ok := c.Get(UserIDKey).(uint64)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			res, err := dir.Resolve(c.Request().Context(), uid)
			switch {
			case errors.Is(err, service.ErrNotFound):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user"})
			case err != nil:
				logger.FromEcho(c).Error("resolve identity failed", zap.Uint64("user_id", uid), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
			case !res.User.IsActive:
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
			}
			c.Set(ResolvedKey, res)
			c.Set(ActorKey, res.Actor())
			return next(c)
		}
	}
}

// AccessGate admits a request only when the gate decision for the resolved
// caller is ALLOW.  Blocked callers receive the decision and the surface
// they should be sent to.  It runs after Resolve.
func AccessGate(now func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res, ok := ResolvedFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			d := Decision(res, now())
			metrics.GateDecisionsTotal.WithLabelValues(string(d)).Inc()
			if d == policy.Allow {
				return next(c)
			}
			return Blocked(c, d)
		}
	}
}

// RequireTenant admits any caller that belongs to a company, whatever its
// subscription state.  Onboarding routes sit behind it.
func RequireTenant() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, ok := ActorFrom(c)
			switch {
			case !ok:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			case a.IsOperator:
				return Blocked(c, policy.OperatorConsole)
			case a.TenantID == 0:
				return Blocked(c, policy.NeedsRegistration)
			}
			return next(c)
		}
	}
}

// RequireOperator admits platform operators only.
func RequireOperator() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if a, ok := ActorFrom(c); !ok || !a.IsOperator {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// Decision runs the access gate for a resolved caller.
func Decision(res *service.Resolved, now time.Time) policy.Decision {
	id := policy.Identity{UserID: res.User.ID, IsOperator: res.User.IsOperator}
	return policy.Decide(id, res.Tenant, now)
}

// Blocked writes the response for a non-ALLOW decision: 402 when the
// company has to pay, 403 otherwise.
func Blocked(c echo.Context, d policy.Decision) error {
	status := http.StatusForbidden
	if d == policy.NeedsSubscription || d == policy.PaymentPending {
		status = http.StatusPaymentRequired
	}
	return c.JSON(status, echo.Map{"error": string(d), "redirect": d.Redirect()})
}

// ActorFrom returns the actor stored by Resolve.
func ActorFrom(c echo.Context) (service.Actor, bool) {
	a, ok := c.Get(ActorKey).(service.Actor)
	return a, ok
}

// ResolvedFrom returns the resolution stored by Resolve.
func ResolvedFrom(c echo.Context) (*service.Resolved, bool) {
	r, ok := c.Get(ResolvedKey).(*service.Resolved)
	return r, ok && r != nil
}

// userKey identifies the caller for rate limiting: the user id when a token
// was validated, "anon" otherwise.
func userKey(c echo.Context) string {
	if uid, ok := c.Get(UserIDKey).(uint64); ok && uid != 0 {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
