package handler

import (
	"net/http"
	"strconv"

	"github.com/Xalid7/oshxona/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MonthlyReports returns stored reports, newest first
func (h *Handler) MonthlyReports(c echo.Context) error {
	log := logger.FromEcho(c)

	reports, err := h.reports.ListMonthly(c.Request().Context())
	if err != nil {
		return respondError(c, log, err, "retrieve reports")
	}
	return c.JSON(http.StatusOK, reports)
}

// GenerateMonthlyReport builds the report for /:year/:month, replacing any earlier one
func (h *Handler) GenerateMonthlyReport(c echo.Context) error {
	log := logger.FromEcho(c)

	// Parse the period from the path
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return badRequest(c, log, err)
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		return badRequest(c, log, err)
	}

	// Generate and store the report
	r, err := h.reports.GenerateMonthly(c.Request().Context(), year, month)
	if err != nil {
		return respondError(c, log, err, "generate report")
	}

	if r.IsSuspicious {
		log.Warn("Monthly report flagged as suspicious",
			zap.Int("year", year),
			zap.Int("month", month),
			zap.String("efficiency", r.EfficiencyPercentage.StringFixed(2)))
	}
	return c.JSON(http.StatusCreated, r)
}

// DashboardStats returns today's figures for the dashboard
func (h *Handler) DashboardStats(c echo.Context) error {
	log := logger.FromEcho(c)

	stats, err := h.reports.DashboardStats(c.Request().Context())
	if err != nil {
		return respondError(c, log, err, "retrieve dashboard stats")
	}
	return c.JSON(http.StatusOK, stats)
}

// UsageAnalytics returns product usage totals over the last ?days (default from config)
func (h *Handler) UsageAnalytics(c echo.Context) error {
	log := logger.FromEcho(c)

	days, err := queryInt(c, "days")
	if err != nil {
		return badRequest(c, log, err)
	}

	totals, err := h.reports.UsageAnalytics(c.Request().Context(), days)
	if err != nil {
		return respondError(c, log, err, "retrieve usage analytics")
	}
	return c.JSON(http.StatusOK, totals)
}
