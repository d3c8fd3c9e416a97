package middleware

import (
	"github.com/Xalid7/oshxona/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Keep the caller's ID when one is sent
		requestID := c.Request().Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
			c.Request().Header.Set(HeaderRequestID, requestID)
		}
		c.Response().Header().Set(HeaderRequestID, requestID)

		c.Set("request_id", requestID)

		// Request logger for handlers and for services reached through the request context
		log := logger.GetLogger().With(zap.String("request_id", requestID))
		c.Set("logger", log)
		req := c.Request()
		c.SetRequest(req.WithContext(logger.WithContext(req.Context(), log)))

		return next(c)
	}
}

// GetRequestID returns the ID set by RequestIDMiddleware
func GetRequestID(c echo.Context) string {
	id, _ := c.Get("request_id").(string)
	return id
}
