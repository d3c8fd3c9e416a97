package handler

import (
	"net/http"

	"github.com/Xalid7/oshxona/internal/account"
	"github.com/Xalid7/oshxona/internal/middleware"
	"github.com/Xalid7/oshxona/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges a username and password for a bearer token
func (h *Handler) Login(c echo.Context) error {
	log := logger.FromEcho(c)

	// Parse request
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	// Verify credentials and issue the token
	res, err := h.accounts.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respondError(c, log, err, "log in")
	}

	log.Info("Login successful", zap.Uint("user_id", res.User.ID), zap.String("role", res.User.Role))
	return c.JSON(http.StatusOK, res)
}

// Me returns the authenticated user
func (h *Handler) Me(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}

	u, err := h.accounts.GetUser(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, log, err, "load user")
	}
	return c.JSON(http.StatusOK, u)
}

// ListUsers returns every account
func (h *Handler) ListUsers(c echo.Context) error {
	log := logger.FromEcho(c)

	users, err := h.accounts.ListUsers(c.Request().Context())
	if err != nil {
		return respondError(c, log, err, "list users")
	}

	log.Info("Users retrieved", zap.Int("count", len(users)))
	return c.JSON(http.StatusOK, users)
}

// CreateUser registers a new staff account
func (h *Handler) CreateUser(c echo.Context) error {
	log := logger.FromEcho(c)

	var req account.UserInput
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	u, err := h.accounts.CreateUser(c.Request().Context(), req)
	if err != nil {
		return respondError(c, log, err, "create user")
	}
	return c.JSON(http.StatusCreated, u)
}

// ToggleUserActive flips a user's active flag
func (h *Handler) ToggleUserActive(c echo.Context) error {
	log := logger.FromEcho(c)
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, log, err)
	}

	u, err := h.accounts.ToggleActive(c.Request().Context(), id)
	if err != nil {
		return respondError(c, log, err, "update user")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":   "user active flag updated",
		"user_id":   u.ID,
		"is_active": u.IsActive,
	})
}
