// Package catalog manages products and meals. Every write validates units
// against the conversion table and stores the normalised symbol.
package catalog

import (
	"context"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"go.uber.org/zap"
)

// Store is the persistence the catalog needs.
type Store interface {
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id uint) (*model.Product, error)
	GetProducts(ctx context.Context, ids []uint) (map[uint]*model.Product, error)
	ListProducts(ctx context.Context, q store.ProductQuery) ([]model.Product, error)
	UpdateProduct(ctx context.Context, id uint, fn func(p *model.Product) error) (*model.Product, error)
	DeleteProduct(ctx context.Context, id uint) error
	ProductInUse(ctx context.Context, id uint) (bool, error)

	CreateMeal(ctx context.Context, m *model.Meal) error
	GetMeal(ctx context.Context, id uint) (*model.Meal, error)
	ListMeals(ctx context.Context, q store.MealQuery) ([]model.Meal, error)
	UpdateMeal(ctx context.Context, m *model.Meal, replaceIngredients bool) error
	DeleteMeal(ctx context.Context, id uint) error
}

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(st Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, log: log}
}
