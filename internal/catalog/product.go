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

const defaultUnit = units.Gram

type ProductInput struct {
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	MinimumQuantity decimal.Decimal `json:"minimum_quantity"`
	DeliveryDate    *time.Time      `json:"delivery_date"`
}

// ProductUpdate changes only the fields that are set. Setting Quantity is a restock.
type ProductUpdate struct {
	Name            *string          `json:"name"`
	Quantity        *decimal.Decimal `json:"quantity"`
	Unit            *string          `json:"unit"`
	MinimumQuantity *decimal.Decimal `json:"minimum_quantity"`
	DeliveryDate    *time.Time       `json:"delivery_date"`
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	unit := defaultUnit
	if strings.TrimSpace(in.Unit) != "" {
		u, err := units.Parse(in.Unit)
		if err != nil {
			return nil, err
		}
		unit = u
	}
	qty, err := nonNegative("quantity", in.Quantity)
	if err != nil {
		return nil, err
	}
	minimum, err := nonNegative("minimum_quantity", in.MinimumQuantity)
	if err != nil {
		return nil, err
	}

	p := &model.Product{
		Name:            name,
		Quantity:        qty,
		Unit:            string(unit),
		MinimumQuantity: minimum,
		DeliveryDate:    in.DeliveryDate,
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		s.log.Error("Failed to create product", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("%w: create product: %w", inventory.ErrPersistence, err)
	}

	s.log.Info("Product created",
		zap.Uint("product_id", p.ID),
		zap.String("name", p.Name),
		zap.String("quantity", p.Quantity.String()+p.Unit))
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, productError(id, err)
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.store.ListProducts(ctx, store.ProductQuery{})
	if err != nil {
		return nil, fmt.Errorf("%w: list products: %w", inventory.ErrPersistence, err)
	}
	return products, nil
}

// LowStock returns products at or below their minimum quantity.
func (s *Service) LowStock(ctx context.Context) ([]model.Product, error) {
	products, err := s.store.ListProducts(ctx, store.ProductQuery{LowStockOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: list low stock: %w", inventory.ErrPersistence, err)
	}
	return products, nil
}

// UpdateProduct applies the set fields under the product's lock.
// A product used by meals may only switch to a unit comparable with its current one.
func (s *Service) UpdateProduct(ctx context.Context, id uint, upd ProductUpdate) (*model.Product, error) {
	var (
		name         string
		unit         units.Unit
		qty, minimum decimal.Decimal
		checkUsed    bool
	)
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
	}
	if upd.Unit != nil {
		u, err := units.Parse(*upd.Unit)
		if err != nil {
			return nil, err
		}
		unit = u
		inUse, err := s.store.ProductInUse(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: check product usage: %w", inventory.ErrPersistence, err)
		}
		checkUsed = inUse
	}
	if upd.Quantity != nil {
		q, err := nonNegative("quantity", *upd.Quantity)
		if err != nil {
			return nil, err
		}
		qty = q
	}
	if upd.MinimumQuantity != nil {
		m, err := nonNegative("minimum_quantity", *upd.MinimumQuantity)
		if err != nil {
			return nil, err
		}
		minimum = m
	}

	var previous decimal.Decimal
	p, err := s.store.UpdateProduct(ctx, id, func(p *model.Product) error {
		previous = p.Quantity
		if upd.Name != nil {
			p.Name = name
		}
		if upd.Unit != nil {
			if checkUsed {
				current, err := units.Parse(p.Unit)
				if err != nil {
					return err
				}
				ok, err := units.Comparable(current, unit)
				if err != nil {
					return err
				}
				if !ok {
					return invalid("unit", fmt.Sprintf("product is used by meals in %s, cannot switch to %s", current, unit))
				}
			}
			p.Unit = string(unit)
		}
		if upd.Quantity != nil {
			p.Quantity = qty
		}
		if upd.MinimumQuantity != nil {
			p.MinimumQuantity = minimum
		}
		if upd.DeliveryDate != nil {
			d := *upd.DeliveryDate
			p.DeliveryDate = &d
		}
		return nil
	})
	if err != nil {
		return nil, productError(id, err)
	}

	fields := []zap.Field{zap.Uint("product_id", p.ID), zap.String("name", p.Name)}
	if upd.Quantity != nil {
		fields = append(fields,
			zap.String("previous_quantity", previous.String()),
			zap.String("quantity", p.Quantity.String()+p.Unit))
	}
	s.log.Info("Product updated", fields...)
	return p, nil
}

// DeleteProduct removes a product that no meal references.
func (s *Service) DeleteProduct(ctx context.Context, id uint) error {
	inUse, err := s.store.ProductInUse(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: check product usage: %w", inventory.ErrPersistence, err)
	}
	if inUse {
		s.log.Warn("Refusing to delete product used by meals", zap.Uint("product_id", id))
		return fmt.Errorf("%w: id %d", ErrProductInUse, id)
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return productError(id, err)
	}
	s.log.Info("Product deleted", zap.Uint("product_id", id))
	return nil
}

func productError(id uint, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: id %d", inventory.ErrProductNotFound, id)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, units.ErrUnknownUnit):
		return err
	}
	return fmt.Errorf("%w: product %d: %w", inventory.ErrPersistence, id, err)
}

func nonNegative(field string, q decimal.Decimal) (decimal.Decimal, error) {
	if q.IsNegative() {
		return decimal.Zero, invalid(field, "must not be negative")
	}
	q = units.Normalize(q)
	if q.GreaterThan(units.MaxQuantity) {
		return decimal.Zero, invalid(field, "must not exceed "+units.MaxQuantity.String())
	}
	return q, nil
}
