package handler

import (
	"net/http"

	"github.com/Xalid7/oshxona/internal/inventory"
	"github.com/Xalid7/oshxona/internal/middleware"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/Xalid7/oshxona/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ServeRequest is the body of POST /api/servings
type ServeRequest struct {
	MealID         uint   `json:"meal_id"`
	PortionsServed int    `json:"portions_served"`
	Notes          string `json:"notes"`
}

// ServeMeal records a serving for the authenticated user and deducts stock
func (h *Handler) ServeMeal(c echo.Context) error {
	log := logger.FromEcho(c)
	// The serving is recorded for the caller
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}

	// Parse request
	var req ServeRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	// Everything below runs in one transaction
	record, err := h.inventory.ServeMeal(c.Request().Context(), inventory.ServeRequest{
		MealID:   req.MealID,
		Portions: req.PortionsServed,
		Notes:    req.Notes,
		UserID:   userID,
	})
	if err != nil {
		return respondError(c, log, err, "serve meal")
	}
	return c.JSON(http.StatusCreated, record)
}

// ListServings returns servings newest first. Accepts since, until and limit.
func (h *Handler) ListServings(c echo.Context) error {
	log := logger.FromEcho(c)

	// Handle query parameters for filtering
	since, err := queryTime(c, "since")
	if err != nil {
		return badRequest(c, log, err)
	}
	until, err := queryTime(c, "until")
	if err != nil {
		return badRequest(c, log, err)
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, log, err)
	}

	// Execute the query
	servings, err := h.inventory.ListServings(c.Request().Context(), store.ServingQuery{
		Since: since,
		Until: until,
		Limit: limit,
	})
	if err != nil {
		return respondError(c, log, err, "retrieve servings")
	}
	return c.JSON(http.StatusOK, servings)
}

// TodayServings returns servings since midnight UTC
func (h *Handler) TodayServings(c echo.Context) error {
	log := logger.FromEcho(c)

	servings, err := h.inventory.TodayServings(c.Request().Context())
	if err != nil {
		return respondError(c, log, err, "retrieve servings")
	}
	return c.JSON(http.StatusOK, servings)
}

// GetServing returns a serving with its usage entries
func (h *Handler) GetServing(c echo.Context) error {
	log := logger.FromEcho(c)
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, log, err)
	}

	serving, err := h.inventory.GetServing(c.Request().Context(), id)
	if err != nil {
		return respondError(c, log, err, "retrieve serving")
	}
	return c.JSON(http.StatusOK, serving)
}

// ListUsage returns usage log entries filtered by product_id, serving_id, since and limit
func (h *Handler) ListUsage(c echo.Context) error {
	log := logger.FromEcho(c)

	// Handle query parameters for filtering
	productID, err := queryUint(c, "product_id")
	if err != nil {
		return badRequest(c, log, err)
	}
	servingID, err := queryUint(c, "serving_id")
	if err != nil {
		return badRequest(c, log, err)
	}
	since, err := queryTime(c, "since")
	if err != nil {
		return badRequest(c, log, err)
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, log, err)
	}

	// Execute the query
	entries, err := h.inventory.ListUsage(c.Request().Context(), store.UsageFilter{
		ProductID: productID,
		ServingID: servingID,
		Since:     since,
		Limit:     limit,
	})
	if err != nil {
		return respondError(c, log, err, "retrieve usage")
	}
	return c.JSON(http.StatusOK, entries)
}
