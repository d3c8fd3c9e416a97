package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/Xalid7/oshxona/internal/units"
	"github.com/shopspring/decimal"
)

// Ledger owns product quantity changes inside one unit of work.
// It only sees products that were locked through the same Tx.
type Ledger struct {
	tx       store.Tx
	products map[uint]*model.Product
}

// Deduction is the result of a successful Deduct, expressed in the product's unit.
type Deduction struct {
	ProductID uint
	Amount    decimal.Decimal
	Unit      string
	Remaining decimal.Decimal
}

// ProductBalance is a product quantity after a serving.
type ProductBalance struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
	LowStock  bool            `json:"low_stock"`
}

// NewLedger wraps products previously locked through tx.
func NewLedger(tx store.Tx, locked map[uint]*model.Product) *Ledger {
	return &Ledger{tx: tx, products: locked}
}

// CanDeduct reports whether the product holds at least quantity in unit.
// Units that cannot be compared with the product's unit report false.
func (l *Ledger) CanDeduct(productID uint, quantity decimal.Decimal, unit string) (bool, error) {
	p, ok := l.products[productID]
	if !ok {
		return false, fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
	}
	stockBase, requiredBase, err := toCommonBase(p.Quantity, p.Unit, quantity, unit)
	if errors.Is(err, ErrIncompatibleUnits) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stockBase.GreaterThanOrEqual(requiredBase), nil
}

// Deduct removes quantity (given in unit) from the product and persists the new balance.
// The amount is converted into the product's own unit first.
func (l *Ledger) Deduct(ctx context.Context, productID uint, quantity decimal.Decimal, unit string) (*Deduction, error) {
	p, ok := l.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
	}
	from, err := units.Parse(unit)
	if err != nil {
		return nil, err
	}
	to, err := units.Parse(p.Unit)
	if err != nil {
		return nil, err
	}
	amount, err := units.Convert(quantity, from, to)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(p.Quantity) {
		return nil, l.Shortage(productID, quantity, unit)
	}

	remaining := units.Normalize(p.Quantity.Sub(amount))
	if err := l.tx.UpdateProductQuantity(ctx, productID, remaining); err != nil {
		return nil, fmt.Errorf("%w: update product %d: %w", ErrPersistence, productID, err)
	}
	p.Quantity = remaining

	return &Deduction{
		ProductID: productID,
		Amount:    amount,
		Unit:      string(to),
		Remaining: remaining,
	}, nil
}

// Shortage builds the error reported when productID cannot cover quantity.
func (l *Ledger) Shortage(productID uint, quantity decimal.Decimal, unit string) error {
	p, ok := l.products[productID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
	}
	return &InsufficientStockError{
		ProductID:     p.ID,
		ProductName:   p.Name,
		Required:      quantity,
		RequiredUnit:  unit,
		Available:     p.Quantity,
		AvailableUnit: p.Unit,
	}
}

// Balances returns the current quantities of every product in the ledger, ordered by id.
func (l *Ledger) Balances() []ProductBalance {
	out := make([]ProductBalance, 0, len(l.products))
	for _, p := range l.products {
		out = append(out, ProductBalance{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			Unit:      p.Unit,
			LowStock:  p.IsLowStock(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
