// Package metrics exposes the Prometheus collectors of the dispatch API.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const prefix = "dispatch"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_registrations_total",
			Help: "Company and member registrations by outcome",
		},
		[]string{"kind", "outcome"},
	)

	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_gate_decisions_total",
			Help: "Access gate decisions on tenant routes",
		},
		[]string{"decision"},
	)

	QuotaDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_quota_denials_total",
			Help: "Fleet unit creations refused by the plan limit",
		},
		[]string{"plan"},
	)

	LoadTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_load_transitions_total",
			Help: "Load status changes",
		},
		[]string{"from", "to"},
	)

	TenantOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_tenant_operations_total",
			Help: "Operator console actions on tenants",
		},
		[]string{"operation"},
	)

	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_event_publish_failures_total",
			Help: "Domain events that could not be published",
		},
	)
)

// Middleware records request count and latency per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			method := c.Request().Method
			path := c.Path()
			HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Response().Status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the default registry.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
