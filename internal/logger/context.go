package logger

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	echoKey              = "logger"
)

// WithContext returns a copy of ctx carrying log.
func WithContext(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx or the base logger.
func FromContext(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return log
	}
	return base
}

// FromEcho returns the request logger set by Middleware or the base logger.
func FromEcho(c echo.Context) *zap.Logger {
	if log, ok := c.Get(echoKey).(*zap.Logger); ok {
		return log
	}
	return base
}

// Middleware attaches a request-scoped logger (tagged with the request id)
// to the echo context and the request context, then logs one line per
// request.
func Middleware(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			reqLog := log.With(zap.String("request_id", rid))
			c.Set(echoKey, reqLog)
			req := c.Request()
			c.SetRequest(req.WithContext(WithContext(req.Context(), reqLog)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
			}
			if uid, ok := c.Get("user_id").(uint64); ok {
				fields = append(fields, zap.Uint64("user_id", uid))
			}
			switch s := c.Response().Status; {
			case s >= 500:
				reqLog.Error("request", append(fields, zap.Error(err))...)
			case s >= 400:
				reqLog.Warn("request", fields...)
			default:
				reqLog.Info("request", fields...)
			}
			return nil
		}
	}
}
