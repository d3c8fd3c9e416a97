package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Xalid7/oshxona/internal/inventory"
	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/Xalid7/oshxona/internal/units"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IngredientInput is the amount of a product needed for one portion.
type IngredientInput struct {
	ProductID uint            `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
}

type MealInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	IsActive    *bool             `json:"is_active"`
	Ingredients []IngredientInput `json:"ingredients"`
}

// MealUpdate changes only the fields that are set. A non-nil Ingredients
// replaces the whole ingredient list.
type MealUpdate struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	IsActive    *bool              `json:"is_active"`
	Ingredients *[]IngredientInput `json:"ingredients"`
}

type IngredientView struct {
	ID          uint            `json:"id"`
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
}

// MealView is a meal with product names and the portions current stock allows.
type MealView struct {
	ID               uint             `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	IsActive         bool             `json:"is_active"`
	Ingredients      []IngredientView `json:"ingredients"`
	PossiblePortions int64            `json:"possible_portions"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (s *Service) CreateMeal(ctx context.Context, in MealInput) (*MealView, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	ingredients, err := s.validateIngredients(ctx, in.Ingredients)
	if err != nil {
		return nil, err
	}

	m := &model.Meal{
		Name:        name,
		Description: in.Description,
		IsActive:    true,
		Ingredients: ingredients,
	}
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
	if err := s.store.CreateMeal(ctx, m); err != nil {
		s.log.Error("Failed to create meal", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("%w: create meal: %w", inventory.ErrPersistence, err)
	}

	s.log.Info("Meal created",
		zap.Uint("meal_id", m.ID),
		zap.String("name", m.Name),
		zap.Int("ingredients", len(m.Ingredients)))
	return s.GetMeal(ctx, m.ID)
}

func (s *Service) GetMeal(ctx context.Context, id uint) (*MealView, error) {
	m, err := s.store.GetMeal(ctx, id)
	if err != nil {
		return nil, mealError(id, err)
	}
	views, err := s.views(ctx, []model.Meal{*m})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListMeals returns active meals, or every meal when includeInactive is set.
func (s *Service) ListMeals(ctx context.Context, includeInactive bool) ([]MealView, error) {
	meals, err := s.store.ListMeals(ctx, store.MealQuery{ActiveOnly: !includeInactive})
	if err != nil {
		return nil, fmt.Errorf("%w: list meals: %w", inventory.ErrPersistence, err)
	}
	return s.views(ctx, meals)
}

func (s *Service) UpdateMeal(ctx context.Context, id uint, upd MealUpdate) (*MealView, error) {
	m, err := s.store.GetMeal(ctx, id)
	if err != nil {
		return nil, mealError(id, err)
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
		m.Name = name
	}
	if upd.Description != nil {
		m.Description = *upd.Description
	}
	if upd.IsActive != nil {
		m.IsActive = *upd.IsActive
	}
	replace := upd.Ingredients != nil
	if replace {
		ingredients, err := s.validateIngredients(ctx, *upd.Ingredients)
		if err != nil {
			return nil, err
		}
		m.Ingredients = ingredients
	}

	if err := s.store.UpdateMeal(ctx, m, replace); err != nil {
		return nil, mealError(id, err)
	}

	s.log.Info("Meal updated",
		zap.Uint("meal_id", id),
		zap.Bool("is_active", m.IsActive),
		zap.Bool("ingredients_replaced", replace))
	return s.GetMeal(ctx, id)
}

func (s *Service) DeleteMeal(ctx context.Context, id uint) error {
	if err := s.store.DeleteMeal(ctx, id); err != nil {
		return mealError(id, err)
	}
	s.log.Info("Meal deleted", zap.Uint("meal_id", id))
	return nil
}

// validateIngredients checks every line against the product it points at and
// returns the lines with normalised units.
func (s *Service) validateIngredients(ctx context.Context, in []IngredientInput) ([]model.MealIngredient, error) {
	ids := make([]uint, 0, len(in))
	seen := make(map[uint]bool, len(in))
	for i, ing := range in {
		if ing.ProductID == 0 {
			return nil, invalid(fmt.Sprintf("ingredients[%d].product_id", i), "is required")
		}
		if seen[ing.ProductID] {
			return nil, fmt.Errorf("%w: product %d", ErrDuplicateIngredient, ing.ProductID)
		}
		seen[ing.ProductID] = true
		ids = append(ids, ing.ProductID)
	}

	products, err := s.store.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load products: %w", inventory.ErrPersistence, err)
	}

	out := make([]model.MealIngredient, 0, len(in))
	for i, ing := range in {
		field := fmt.Sprintf("ingredients[%d]", i)
		// Check after rounding to stored precision so nothing is stored as zero
		quantity := units.Normalize(ing.Quantity)
		if !quantity.IsPositive() {
			return nil, invalid(field+".quantity", "must be at least "+decimal.New(1, -units.Precision).String())
		}
		if quantity.GreaterThan(units.MaxQuantity) {
			return nil, invalid(field+".quantity", "must not exceed "+units.MaxQuantity.String())
		}
		p, ok := products[ing.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", inventory.ErrProductNotFound, ing.ProductID)
		}
		unit, err := units.Parse(ing.Unit)
		if err != nil {
			return nil, err
		}
		stockUnit, err := units.Parse(p.Unit)
		if err != nil {
			return nil, err
		}
		ok, err = units.Comparable(stockUnit, unit)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s is stocked in %s, ingredient uses %s",
				units.ErrIncompatibleUnits, p.Name, stockUnit, unit)
		}
		out = append(out, model.MealIngredient{
			ProductID: ing.ProductID,
			Quantity:  quantity,
			Unit:      string(unit),
		})
	}
	return out, nil
}

// views resolves product names and feasible portions with one product lookup.
func (s *Service) views(ctx context.Context, meals []model.Meal) ([]MealView, error) {
	var ids []uint
	for _, m := range meals {
		for _, ing := range m.Ingredients {
			ids = append(ids, ing.ProductID)
		}
	}
	stock, err := s.store.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load products: %w", inventory.ErrPersistence, err)
	}

	out := make([]MealView, 0, len(meals))
	for i := range meals {
		m := &meals[i]
		v := MealView{
			ID:               m.ID,
			Name:             m.Name,
			Description:      m.Description,
			IsActive:         m.IsActive,
			Ingredients:      make([]IngredientView, 0, len(m.Ingredients)),
			PossiblePortions: inventory.FeasiblePortions(m, stock),
			CreatedAt:        m.CreatedAt,
			UpdatedAt:        m.UpdatedAt,
		}
		for _, ing := range m.Ingredients {
			name := "Unknown"
			if p, ok := stock[ing.ProductID]; ok {
				name = p.Name
			}
			v.Ingredients = append(v.Ingredients, IngredientView{
				ID:          ing.ID,
				ProductID:   ing.ProductID,
				ProductName: name,
				Quantity:    ing.Quantity,
				Unit:        ing.Unit,
			})
		}
		out = append(out, v)
	}
	return out, nil
}

func mealError(id uint, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: id %d", inventory.ErrMealNotFound, id)
	}
	return fmt.Errorf("%w: meal %d: %w", inventory.ErrPersistence, id, err)
}
