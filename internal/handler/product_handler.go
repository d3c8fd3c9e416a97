package handler

import (
	"net/http"

	"github.com/Xalid7/oshxona/internal/catalog"
	"github.com/Xalid7/oshxona/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ListProducts returns every product
func (h *Handler) ListProducts(c echo.Context) error {
	log := logger.FromEcho(c)

	products, err := h.catalog.ListProducts(c.Request().Context())
	if err != nil {
		return respondError(c, log, err, "retrieve products")
	}

	log.Info("Products retrieved successfully", zap.Int("count", len(products)))
	return c.JSON(http.StatusOK, products)
}

// GetProduct returns a single product by ID
func (h *Handler) GetProduct(c echo.Context) error {
	log := logger.FromEcho(c)
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, log, err)
	}

	product, err := h.catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return respondError(c, log, err, "retrieve product")
	}
	return c.JSON(http.StatusOK, product)
}

// LowStockAlerts returns products at or below their minimum quantity
func (h *Handler) LowStockAlerts(c echo.Context) error {
	log := logger.FromEcho(c)

	products, err := h.catalog.LowStock(c.Request().Context())
	if err != nil {
		return respondError(c, log, err, "retrieve low stock products")
	}

	if len(products) > 0 {
		log.Info("Low stock products found", zap.Int("count", len(products)))
	}
	return c.JSON(http.StatusOK, products)
}

// CreateProduct adds a product to the inventory
func (h *Handler) CreateProduct(c echo.Context) error {
	log := logger.FromEcho(c)

	// Parse request
	var req catalog.ProductInput
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	// Create the product
	product, err := h.catalog.CreateProduct(c.Request().Context(), req)
	if err != nil {
		return respondError(c, log, err, "create product")
	}

	log.Info("Product created successfully",
		zap.Uint("product_id", product.ID),
		zap.String("name", product.Name))
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct changes the fields present in the body. Setting quantity restocks.
func (h *Handler) UpdateProduct(c echo.Context) error {
	log := logger.FromEcho(c)
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, log, err)
	}

	// Only fields present in the body are changed
	var req catalog.ProductUpdate
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	product, err := h.catalog.UpdateProduct(c.Request().Context(), id, req)
	if err != nil {
		return respondError(c, log, err, "update product")
	}
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct removes a product that no meal uses
func (h *Handler) DeleteProduct(c echo.Context) error {
	log := logger.FromEcho(c)
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, log, err)
	}

	// Products still used by a meal are kept
	if err := h.catalog.DeleteProduct(c.Request().Context(), id); err != nil {
		return respondError(c, log, err, "delete product")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "product deleted"})
}
