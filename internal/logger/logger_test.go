package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
)

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	log, err := New(config.LogConfig{Level: "debug", Format: "json", Output: "file", FilePath: path, MaxSizeMB: 1})
	require.NoError(t, err)
	log.Info("hello", zap.String("k", "v"))
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"hello"`)
	assert.Same(t, log, L())
}

func TestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, level("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, level("warn"))
	assert.Equal(t, zapcore.InfoLevel, level("verbose"))
}

func TestMiddlewareLogsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := echo.New()
	e.Use(Middleware(zap.New(core)))
	e.GET("/ping/:id", func(c echo.Context) error {
		FromEcho(c).Debug("inside")
		FromContext(c.Request().Context()).Debug("ctx")
		return c.String(http.StatusOK, "pong")
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "nope")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping/9", nil)
	req.Header.Set(echo.HeaderXRequestID, "rid-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "/ping/:id", ctx["path"])
	assert.Equal(t, int64(200), ctx["status"])
	assert.Equal(t, "rid-1", ctx["request_id"])
	assert.Equal(t, 1, logs.FilterMessage("inside").FilterField(zap.String("request_id", "rid-1")).Len())
	assert.Equal(t, 1, logs.FilterMessage("ctx").Len())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	warn := logs.FilterMessage("request").FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warn, 1)
}

func TestFromContextFallback(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}
