package handler

import (
	"github.com/Xalid7/oshxona/internal/model"
	mid "github.com/Xalid7/oshxona/internal/middleware"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the API on e. Every /api route except login needs a bearer token.
func (h *Handler) RegisterRoutes(e *echo.Echo, tokens mid.TokenValidator) {
	e.GET("/health", h.HealthCheck)
	e.POST("/api/auth/login", h.Login)

	api := e.Group("/api", mid.AuthMiddleware(tokens, h.accounts))
	adminOnly := mid.RequireRole(model.RoleAdmin)
	editors := mid.RequireRole(model.RoleAdmin, model.RoleManager)

	users := api.Group("/users")
	users.GET("/me", h.Me)
	users.GET("", h.ListUsers, adminOnly)
	users.POST("", h.CreateUser, adminOnly)
	users.PUT("/:id/toggle-active", h.ToggleUserActive, adminOnly)

	products := api.Group("/products")
	products.GET("", h.ListProducts)
	products.GET("/low-stock/alerts", h.LowStockAlerts)
	products.GET("/:id", h.GetProduct)
	products.POST("", h.CreateProduct, editors)
	products.PUT("/:id", h.UpdateProduct, editors)
	products.DELETE("/:id", h.DeleteProduct, adminOnly)

	meals := api.Group("/meals")
	meals.GET("", h.ListMeals)
	meals.GET("/:id", h.GetMeal)
	meals.GET("/:id/portions", h.MealPortions)
	meals.POST("", h.CreateMeal, editors)
	meals.PUT("/:id", h.UpdateMeal, editors)
	meals.DELETE("/:id", h.DeleteMeal, adminOnly)

	servings := api.Group("/servings")
	servings.POST("", h.ServeMeal)
	servings.GET("", h.ListServings)
	servings.GET("/today", h.TodayServings)
	servings.GET("/:id", h.GetServing)

	api.GET("/usage", h.ListUsage)

	reports := api.Group("/reports")
	reports.GET("/monthly", h.MonthlyReports)
	reports.POST("/generate-monthly/:year/:month", h.GenerateMonthlyReport, editors)
	reports.GET("/dashboard-stats", h.DashboardStats)
	reports.GET("/usage-analytics", h.UsageAnalytics, editors)
}
