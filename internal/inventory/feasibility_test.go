package inventory

import (
	"testing"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/shopspring/decimal"
)

func product(id uint, name, qty, unit string) *model.Product {
	return &model.Product{
		ID:              id,
		Name:            name,
		Quantity:        decimal.RequireFromString(qty),
		Unit:            unit,
		MinimumQuantity: decimal.Zero,
	}
}

func ingredient(productID uint, qty, unit string) model.MealIngredient {
	return model.MealIngredient{
		ProductID: productID,
		Quantity:  decimal.RequireFromString(qty),
		Unit:      unit,
	}
}

func TestFeasiblePortions(t *testing.T) {
	stock := map[uint]*model.Product{
		1: product(1, "Rice", "2", "kg"),
		2: product(2, "Oil", "0.3", "l"),
		3: product(3, "Eggs", "7", "dona"),
		4: product(4, "Flour", "0", "kg"),
		5: product(5, "Tea", "3", "paket"),
		6: product(6, "Salt", "1", "pinch"),
	}

	tests := []struct {
		name        string
		ingredients []model.MealIngredient
		want        int64
	}{
		{
			name:        "single ingredient kg stock g recipe",
			ingredients: []model.MealIngredient{ingredient(1, "500", "g")},
			want:        4,
		},
		{
			name:        "minimum across ingredients",
			ingredients: []model.MealIngredient{ingredient(1, "500", "g"), ingredient(2, "100", "ml")},
			want:        3,
		},
		{
			name:        "floor of fractional portions",
			ingredients: []model.MealIngredient{ingredient(3, "2", "dona")},
			want:        3,
		},
		{
			name:        "empty stock allows nothing",
			ingredients: []model.MealIngredient{ingredient(1, "500", "g"), ingredient(4, "100", "g")},
			want:        0,
		},
		{
			name:        "missing product allows nothing",
			ingredients: []model.MealIngredient{ingredient(99, "1", "g")},
			want:        0,
		},
		{
			name:        "discrete units do not convert",
			ingredients: []model.MealIngredient{ingredient(5, "1", "dona")},
			want:        0,
		},
		{
			name:        "mass against volume is incompatible",
			ingredients: []model.MealIngredient{ingredient(2, "10", "g")},
			want:        0,
		},
		{
			name:        "unknown stock unit is incompatible",
			ingredients: []model.MealIngredient{ingredient(6, "1", "g")},
			want:        0,
		},
		{
			name:        "no ingredients",
			ingredients: nil,
			want:        0,
		},
		{
			name:        "fractional recipe quantity",
			ingredients: []model.MealIngredient{ingredient(1, "0.333", "kg")},
			want:        6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meal := &model.Meal{ID: 1, Name: "Test", IsActive: true, Ingredients: tt.ingredients}
			if got := FeasiblePortions(meal, stock); got != tt.want {
				t.Errorf("FeasiblePortions() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFeasiblePortionsNilMeal(t *testing.T) {
	if got := FeasiblePortions(nil, nil); got != 0 {
		t.Errorf("FeasiblePortions(nil) = %d, want 0", got)
	}
}

func TestFeasiblePortionsMonotonic(t *testing.T) {
	amounts := []string{"0.001", "0.05", "0.3", "1", "7", "150", "999.999", "2500"}

	tests := []struct {
		name      string
		stockUnit string
		needUnit  string
	}{
		{name: "same unit", stockUnit: "g", needUnit: "g"},
		{name: "kg stock g recipe", stockUnit: "kg", needUnit: "g"},
		{name: "g stock kg recipe", stockUnit: "g", needUnit: "kg"},
		{name: "litres and millilitres", stockUnit: "l", needUnit: "ml"},
		{name: "pieces", stockUnit: "dona", needUnit: "dona"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feasible := func(stock, need string) int64 {
				meal := &model.Meal{ID: 1, Ingredients: []model.MealIngredient{
					ingredient(1, need, tt.needUnit),
					ingredient(2, "1", "g"),
				}}
				return FeasiblePortions(meal, map[uint]*model.Product{
					1: product(1, "Main", stock, tt.stockUnit),
					2: product(2, "Side", "1000", "g"),
				})
			}

			for _, stock := range amounts {
				for i := 1; i < len(amounts); i++ {
					less, more := feasible(stock, amounts[i-1]), feasible(stock, amounts[i])
					if more > less {
						t.Errorf("stock %s: need %s gives %d, larger need %s gives %d",
							stock, amounts[i-1], less, amounts[i], more)
					}
				}
			}
			for _, need := range amounts {
				for i := 1; i < len(amounts); i++ {
					less, more := feasible(amounts[i-1], need), feasible(amounts[i], need)
					if more < less {
						t.Errorf("need %s: stock %s gives %d, larger stock %s gives %d",
							need, amounts[i-1], less, amounts[i], more)
					}
				}
			}
		})
	}
}

func TestFeasiblePortionsStable(t *testing.T) {
	stock := map[uint]*model.Product{
		1: product(1, "Rice", "2", "kg"),
		2: product(2, "Oil", "0.3", "l"),
	}
	meal := &model.Meal{ID: 1, Ingredients: []model.MealIngredient{
		ingredient(1, "150", "g"),
		ingredient(2, "25", "ml"),
	}}

	first := FeasiblePortions(meal, stock)
	for i := 0; i < 10; i++ {
		if got := FeasiblePortions(meal, stock); got != first {
			t.Fatalf("call %d = %d, first call = %d", i, got, first)
		}
	}
	if first != 12 {
		t.Errorf("FeasiblePortions() = %d, want 12", first)
	}
	if !stock[1].Quantity.Equal(decimal.RequireFromString("2")) || !stock[2].Quantity.Equal(decimal.RequireFromString("0.3")) {
		t.Error("snapshot was modified")
	}
}
