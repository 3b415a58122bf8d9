package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/dispatch-backoffice/internal/logger"
	"github.com/iliyamo/dispatch-backoffice/internal/middleware"
	"github.com/iliyamo/dispatch-backoffice/internal/repository"
	"github.com/iliyamo/dispatch-backoffice/internal/service"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// actor returns the caller resolved by the middleware chain.
func actor(c echo.Context) service.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

// pathID parses the :id route parameter.
func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Fields: map[string]string{"id": "must be a positive integer"}}
	}
	return id, nil
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "request body could not be parsed"})
}

// writeError maps service and repository errors to JSON responses.
// Unexpected errors are logged and reported as a generic 500.
func writeError(c echo.Context, err error) error {
	var (
		verr *service.ValidationError
		qerr *service.QuotaError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation_failed", "message": "invalid input", "fields": verr.Fields})
	case errors.As(err, &qerr):
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"error":       "quota_exceeded",
			"message":     qerr.Reason,
			"plan":        qerr.Plan,
			"limit":       qerr.Limit,
			"current":     qerr.Current,
			"upgrade_url": "/v1/subscription",
		})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": "resource not found"})
	case errors.Is(err, service.ErrNoTenant):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no_company", "message": err.Error(), "redirect": "/v1/company/register"})
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "permission_denied", "message": "not allowed for your role"})
	case errors.Is(err, service.ErrDuplicateIdentity):
		return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate_identity", "message": "username or email already registered"})
	case errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_transition", "message": err.Error()})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "message": "conflicts with existing data"})
	case errors.Is(err, context.DeadlineExceeded):
		logger.FromEcho(c).Warn("request timed out", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "timeout", "message": "request timed out"})
	}
	logger.FromEcho(c).Error("request failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal error"})
}
