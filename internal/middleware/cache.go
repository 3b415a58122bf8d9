package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
	"github.com/iliyamo/dispatch-backoffice/internal/logger"
)

// captureWriter tees the response body into buf, up to limit bytes.
type captureWriter struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (w *captureWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if !w.truncated {
		if w.limit > 0 && int64(w.buf.Len()+len(b)) > w.limit {
			w.truncated = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	var parts []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", c.Path()}
	case "method_route":
		parts = []string{"method", r.Method, "route", c.Path()}
	case "method_route_query":
		parts = []string{"method", r.Method, "route", c.Path(), "q", r.URL.RawQuery}
	default:
		parts = []string{"route", c.Path(), "q", r.URL.RawQuery}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum)
}

// entry layout: [4 status][4 header length][header JSON][body]
func encodeEntry(status int, header http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	out = append(out, hdr...)
	return append(out, body...), nil
}

func decodeEntry(b []byte) (int, http.Header, []byte, bool) {
	if len(b) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(b[0:4]))
	n := int(binary.BigEndian.Uint32(b[4:8]))
	if n < 0 || 8+n > len(b) {
		return 0, nil, nil, false
	}
	hdr := http.Header{}
	if n > 0 {
		if err := json.Unmarshal(b[8:8+n], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, b[8+n:], true
}

// NewRedisCache replays cached 200 responses of public routes.  Responses
// carry X-Cache: HIT or MISS.  Without redis it passes through.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			key := cacheKey(cfg, c)
			res := c.Response()

			if b, err := rdb.Get(c.Request().Context(), key).Bytes(); err == nil {
				if status, hdr, body, ok := decodeEntry(b); ok {
					for k, vs := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vs {
							res.Header().Add(k, v)
						}
					}
					res.Header().Set("X-Cache", "HIT")
					return c.Blob(status, res.Header().Get(echo.HeaderContentType), body)
				}
			}

			w := &captureWriter{ResponseWriter: res.Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			res.Writer = w
			res.Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if w.status != http.StatusOK || w.truncated {
				return nil
			}
			hdr := res.Header().Clone()
			hdr.Del("X-Cache")
			entry, err := encodeEntry(w.status, hdr, w.buf.Bytes())
			if err == nil {
				err = rdb.Set(context.WithoutCancel(c.Request().Context()), key, entry, ttl).Err()
			}
			if err != nil {
				logger.FromEcho(c).Warn("cache store failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}
