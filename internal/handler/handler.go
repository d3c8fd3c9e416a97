// Package handler exposes the kitchen services over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Xalid7/oshxona/internal/account"
	"github.com/Xalid7/oshxona/internal/catalog"
	"github.com/Xalid7/oshxona/internal/inventory"
	"github.com/Xalid7/oshxona/internal/report"
	"github.com/Xalid7/oshxona/internal/store"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Pinger checks that the store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the services behind the HTTP API
type Handler struct {
	catalog   *catalog.Service
	inventory *inventory.Service
	reports   *report.Service
	accounts  *account.Service
	store     Pinger
}

// New creates a handler over the given services
func New(cat *catalog.Service, inv *inventory.Service, rep *report.Service, acc *account.Service, st Pinger) *Handler {
	return &Handler{
		catalog:   cat,
		inventory: inv,
		reports:   rep,
		accounts:  acc,
		store:     st,
	}
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, inventory.ErrMealNotFound),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, account.ErrUserNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrInvalidPortions),
		errors.Is(err, inventory.ErrUnknownUnit),
		errors.Is(err, inventory.ErrIncompatibleUnits),
		errors.Is(err, catalog.ErrInvalidInput),
		errors.Is(err, catalog.ErrDuplicateIngredient),
		errors.Is(err, account.ErrInvalidInput),
		errors.Is(err, report.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrMealInactive),
		errors.Is(err, inventory.ErrInvalidIngredient),
		errors.Is(err, catalog.ErrProductInUse),
		errors.Is(err, account.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, account.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, account.ErrUserInactive):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Server errors hide their detail.
func respondError(c echo.Context, log *zap.Logger, err error, action string) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("Failed to "+action, zap.Error(err))
		return c.JSON(status, echo.Map{"error": "failed to " + action})
	}

	log.Warn("Request rejected",
		zap.String("action", action),
		zap.Int("status", status),
		zap.Error(err))

	body := echo.Map{"error": err.Error()}
	var shortage *inventory.InsufficientStockError
	if errors.As(err, &shortage) {
		body["shortage"] = shortage
	}
	var invalid *catalog.ValidationError
	if errors.As(err, &invalid) {
		body["field"] = invalid.Field
	}
	return c.JSON(status, body)
}

func parseID(c echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid %s %q", name, c.Param(name))
	}
	return uint(v), nil
}

func queryUint(c echo.Context, name string) (uint, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return uint(v), nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates (UTC midnight)
func queryTime(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q", name, raw)
	}
	return t, nil
}

func badRequest(c echo.Context, log *zap.Logger, err error) error {
	log.Warn("Invalid request", zap.Error(err))
	return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
}
