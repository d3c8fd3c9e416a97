// Package store declares what the kitchen services need from persistence.
// gormstore and memory provide the implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// Tx is a unit of work scoped to one serve operation.
// Everything written through it is committed or rolled back together.
type Tx interface {
	GetMeal(ctx context.Context, id uint) (*model.Meal, error)
	GetUser(ctx context.Context, id uint) (*model.User, error)
	// LockProducts loads the given products and holds an exclusive lock on each
	// until the unit of work ends. Missing ids are absent from the result.
	LockProducts(ctx context.Context, ids []uint) (map[uint]*model.Product, error)
	UpdateProductQuantity(ctx context.Context, id uint, quantity decimal.Decimal) error
	CreateServing(ctx context.Context, s *model.MealServing) error
	CreateUsageLog(ctx context.Context, e *model.ProductUsageLog) error
}

// UsageFilter narrows ListUsage. Zero values mean "any".
type UsageFilter struct {
	ProductID uint
	ServingID uint
	Since     time.Time
	Limit     int
}

// ServingQuery narrows ListServings. Results are newest first.
type ServingQuery struct {
	Since time.Time
	Until time.Time
	Limit int
}

// ProductQuery narrows ListProducts.
type ProductQuery struct {
	LowStockOnly bool
}

// MealQuery narrows ListMeals.
type MealQuery struct {
	ActiveOnly bool
}

// UsageTotal is the summed usage of one product in one unit.
type UsageTotal struct {
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product"`
	Unit        string          `json:"unit"`
	Total       decimal.Decimal `json:"usage"`
}
