package middleware

import (
	"strconv"
	"time"

	"github.com/Xalid7/oshxona/prometheus"

	"github.com/labstack/echo/v4"
)

// MetricsMiddleware tracks HTTP request counts and durations
func MetricsMiddleware(m *prometheus.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			// Resolve the status before it is written by the error handler
			if err != nil {
				c.Error(err)
			}

			duration := time.Since(start).Seconds()

			method := c.Request().Method
			path := c.Path()
			status := strconv.Itoa(c.Response().Status)

			m.HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
			m.HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

			return nil
		}
	}
}
