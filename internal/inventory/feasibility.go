package inventory

import (
	"fmt"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/units"
	"github.com/shopspring/decimal"
)

// FeasiblePortions returns how many whole portions of meal the stock snapshot allows.
// Ingredients whose product is missing, empty or measured in an incompatible unit allow none.
func FeasiblePortions(meal *model.Meal, stock map[uint]*model.Product) int64 {
	if meal == nil || len(meal.Ingredients) == 0 {
		return 0
	}

	var portions int64 = -1
	for _, ing := range meal.Ingredients {
		n := ingredientPortions(ing, stock[ing.ProductID])
		if n == 0 {
			return 0
		}
		if portions < 0 || n < portions {
			portions = n
		}
	}
	return portions
}

func ingredientPortions(ing model.MealIngredient, p *model.Product) int64 {
	if p == nil || !p.Quantity.IsPositive() || !ing.Quantity.IsPositive() {
		return 0
	}
	stockBase, requiredBase, err := toCommonBase(p.Quantity, p.Unit, ing.Quantity, ing.Unit)
	if err != nil {
		return 0
	}
	q, _ := stockBase.QuoRem(requiredBase, 0)
	return q.IntPart()
}

// toCommonBase converts a stock quantity and a required quantity into the same base unit.
func toCommonBase(stock decimal.Decimal, stockUnit string, required decimal.Decimal, requiredUnit string) (decimal.Decimal, decimal.Decimal, error) {
	su, err := units.Parse(stockUnit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	ru, err := units.Parse(requiredUnit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	ok, err := units.Comparable(su, ru)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s and %s", ErrIncompatibleUnits, su, ru)
	}
	_, stockBase, err := units.ToBase(stock, su)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	_, requiredBase, err := units.ToBase(required, ru)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return stockBase, requiredBase, nil
}
