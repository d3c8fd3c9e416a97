package handler

import (
	"net/http"

	"github.com/Xalid7/oshxona/pkg/config"
	"github.com/Xalid7/oshxona/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthCheck reports whether the service and its store are up
func (h *Handler) HealthCheck(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		logger.FromEcho(c).Error("Health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":  "unhealthy",
			"service": config.ServiceName,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": config.ServiceName,
	})
}
