package inventory

import (
	"errors"
	"fmt"

	"github.com/Xalid7/oshxona/internal/units"
	"github.com/shopspring/decimal"
)

var (
	ErrMealNotFound      = errors.New("meal not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrMealInactive      = errors.New("meal is not active")
	ErrInvalidPortions   = errors.New("portions must be positive")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidIngredient = errors.New("meal ingredient quantity must be positive")
	ErrPersistence       = errors.New("persistence failure")

	ErrUnknownUnit       = units.ErrUnknownUnit
	ErrIncompatibleUnits = units.ErrIncompatibleUnits
)

// InsufficientStockError names the product that blocked a serving.
type InsufficientStockError struct {
	ProductID     uint            `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Required      decimal.Decimal `json:"required"`
	RequiredUnit  string          `json:"required_unit"`
	Available     decimal.Decimal `json:"available"`
	AvailableUnit string          `json:"available_unit"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough %s available: required %s%s, available %s%s",
		e.ProductName, e.Required.String(), e.RequiredUnit, e.Available.String(), e.AvailableUnit)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsClientError reports whether err is caused by the request rather than the store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMealNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrMealInactive) ||
		errors.Is(err, ErrInvalidPortions) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidIngredient) ||
		errors.Is(err, ErrUnknownUnit) ||
		errors.Is(err, ErrIncompatibleUnits)
}
