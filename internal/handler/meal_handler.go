package handler

import (
	"net/http"
	"strconv"

	"github.com/Xalid7/oshxona/internal/catalog"
	"github.com/Xalid7/oshxona/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ListMeals returns active meals, or all of them with ?include_inactive=true
func (h *Handler) ListMeals(c echo.Context) error {
	log := logger.FromEcho(c)

	// Filter by active status if specified
	includeInactive := false
	if raw := c.QueryParam("include_inactive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			log.Warn("Invalid include_inactive parameter", zap.String("value", raw))
		} else {
			includeInactive = v
		}
	}

	meals, err := h.catalog.ListMeals(c.Request().Context(), includeInactive)
	if err != nil {
		return respondError(c, log, err, "retrieve meals")
	}

	log.Info("Meals retrieved successfully", zap.Int("count", len(meals)))
	return c.JSON(http.StatusOK, meals)
}

// GetMeal returns a meal with its ingredients and possible portions
func (h *Handler) GetMeal(c echo.Context) error {
	log := logger.FromEcho(c)
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, log, err)
	}

	meal, err := h.catalog.GetMeal(c.Request().Context(), id)
	if err != nil {
		return respondError(c, log, err, "retrieve meal")
	}
	return c.JSON(http.StatusOK, meal)
}

// MealPortions returns how many portions current stock allows
func (h *Handler) MealPortions(c echo.Context) error {
	log := logger.FromEcho(c)
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, log, err)
	}

	portions, err := h.inventory.GetFeasiblePortions(c.Request().Context(), id)
	if err != nil {
		return respondError(c, log, err, "calculate portions")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"meal_id":           id,
		"possible_portions": portions,
	})
}

// CreateMeal adds a meal with its ingredients
func (h *Handler) CreateMeal(c echo.Context) error {
	log := logger.FromEcho(c)

	// Parse request
	var req catalog.MealInput
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	// Create the meal with its ingredients
	meal, err := h.catalog.CreateMeal(c.Request().Context(), req)
	if err != nil {
		return respondError(c, log, err, "create meal")
	}

	log.Info("Meal created successfully",
		zap.Uint("meal_id", meal.ID),
		zap.String("name", meal.Name),
		zap.Int("ingredients", len(meal.Ingredients)))
	return c.JSON(http.StatusCreated, meal)
}

// UpdateMeal changes the fields present in the body
func (h *Handler) UpdateMeal(c echo.Context) error {
	log := logger.FromEcho(c)
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, log, err)
	}

	// A present ingredients list replaces the old one
	var req catalog.MealUpdate
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	meal, err := h.catalog.UpdateMeal(c.Request().Context(), id, req)
	if err != nil {
		return respondError(c, log, err, "update meal")
	}
	return c.JSON(http.StatusOK, meal)
}

// DeleteMeal removes a meal and its ingredient lines
func (h *Handler) DeleteMeal(c echo.Context) error {
	log := logger.FromEcho(c)
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, log, err)
	}

	if err := h.catalog.DeleteMeal(c.Request().Context(), id); err != nil {
		return respondError(c, log, err, "delete meal")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "meal deleted"})
}
