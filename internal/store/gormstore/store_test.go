package gormstore_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Xalid7/oshxona/internal/inventory"
	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/Xalid7/oshxona/internal/store/gormstore"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newStore(t *testing.T) *gormstore.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := gormstore.New(db)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedProduct(t *testing.T, st *gormstore.Store, name, qty, unit, min string) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Quantity: dec(qty), Unit: unit, MinimumQuantity: dec(min)}
	if err := st.CreateProduct(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestServeMealWithGormStore(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	rice := seedProduct(t, st, "Rice", "2", "kg", "0.5")
	carrot := seedProduct(t, st, "Carrot", "1", "kg", "0.1")
	cook := &model.User{Username: "oshpaz", Email: "oshpaz@example.com", Role: model.RoleCook, IsActive: true}
	if err := st.CreateUser(ctx, cook); err != nil {
		t.Fatal(err)
	}
	plov := &model.Meal{Name: "Plov", IsActive: true, Ingredients: []model.MealIngredient{
		{ProductID: rice.ID, Quantity: dec("500"), Unit: "g"},
		{ProductID: carrot.ID, Quantity: dec("200"), Unit: "g"},
	}}
	if err := st.CreateMeal(ctx, plov); err != nil {
		t.Fatal(err)
	}

	svc := inventory.NewService(st, nil)

	portions, err := svc.GetFeasiblePortions(ctx, plov.ID)
	if err != nil {
		t.Fatal(err)
	}
	if portions != 4 {
		t.Fatalf("portions = %d, want 4", portions)
	}

	rec, err := svc.ServeMeal(ctx, inventory.ServeRequest{MealID: plov.ID, Portions: 3, UserID: cook.ID})
	if err != nil {
		t.Fatalf("ServeMeal: %v", err)
	}
	if rec.Username != "oshpaz" || len(rec.Usage) != 2 {
		t.Errorf("record = %+v", rec)
	}

	got, err := st.GetProduct(ctx, rice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Quantity.Equal(dec("0.5")) {
		t.Errorf("rice = %s, want 0.5", got.Quantity)
	}

	_, err = svc.ServeMeal(ctx, inventory.ServeRequest{MealID: plov.ID, Portions: 2, UserID: cook.ID})
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("error = %v, want insufficient stock", err)
	}
	got, err = st.GetProduct(ctx, carrot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Quantity.Equal(dec("0.4")) {
		t.Errorf("carrot = %s, want 0.4 after rejected serve", got.Quantity)
	}

	usage, err := st.ListUsage(ctx, store.UsageFilter{ServingID: rec.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 2 || !usage[0].QuantityUsed.Equal(dec("1.5")) || usage[0].Unit != "kg" {
		t.Errorf("usage = %+v", usage)
	}
}

func TestProductLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	milk := seedProduct(t, st, "Milk", "10", "l", "2")
	flour := seedProduct(t, st, "Flour", "1", "kg", "5")

	low, err := st.ListProducts(ctx, store.ProductQuery{LowStockOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(low) != 1 || low[0].ID != flour.ID {
		t.Errorf("low stock = %+v, want flour only", low)
	}
	if n, _ := st.CountLowStock(ctx); n != 1 {
		t.Errorf("CountLowStock = %d, want 1", n)
	}

	updated, err := st.UpdateProduct(ctx, milk.ID, func(p *model.Product) error {
		p.Quantity = dec("1.5")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Quantity.Equal(dec("1.5")) || updated.Name != "Milk" {
		t.Errorf("updated = %+v", updated)
	}

	errStop := errors.New("stop")
	if _, err := st.UpdateProduct(ctx, milk.ID, func(*model.Product) error { return errStop }); !errors.Is(err, errStop) {
		t.Errorf("error = %v, want callback error", err)
	}
	if _, err := st.UpdateProduct(ctx, 999, func(*model.Product) error { return nil }); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want not found", err)
	}

	meal := &model.Meal{Name: "Porridge", IsActive: true, Ingredients: []model.MealIngredient{
		{ProductID: milk.ID, Quantity: dec("200"), Unit: "ml"},
	}}
	if err := st.CreateMeal(ctx, meal); err != nil {
		t.Fatal(err)
	}
	inUse, err := st.ProductInUse(ctx, milk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !inUse {
		t.Error("milk should be in use")
	}

	if err := st.DeleteMeal(ctx, meal.ID); err != nil {
		t.Fatal(err)
	}
	if inUse, _ := st.ProductInUse(ctx, milk.ID); inUse {
		t.Error("milk should be released after meal deletion")
	}

	if err := st.DeleteProduct(ctx, milk.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetProduct(ctx, milk.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
	if err := st.DeleteProduct(ctx, milk.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete error = %v, want not found", err)
	}
}

func TestUpdateMealReplacesIngredients(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	rice := seedProduct(t, st, "Rice", "5", "kg", "1")
	oil := seedProduct(t, st, "Oil", "2", "l", "0.5")

	meal := &model.Meal{Name: "Plov", IsActive: true, Ingredients: []model.MealIngredient{
		{ProductID: rice.ID, Quantity: dec("100"), Unit: "g"},
	}}
	if err := st.CreateMeal(ctx, meal); err != nil {
		t.Fatal(err)
	}

	meal.Name = "Plov (big)"
	meal.IsActive = false
	if err := st.UpdateMeal(ctx, meal, false); err != nil {
		t.Fatal(err)
	}
	got, err := st.GetMeal(ctx, meal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Plov (big)" || got.IsActive || len(got.Ingredients) != 1 {
		t.Errorf("meal = %+v", got)
	}

	meal.Ingredients = []model.MealIngredient{
		{ProductID: rice.ID, Quantity: dec("150"), Unit: "g"},
		{ProductID: oil.ID, Quantity: dec("15"), Unit: "ml"},
	}
	if err := st.UpdateMeal(ctx, meal, true); err != nil {
		t.Fatal(err)
	}
	got, err = st.GetMeal(ctx, meal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Ingredients) != 2 || !got.Ingredients[0].Quantity.Equal(dec("150")) {
		t.Errorf("ingredients = %+v", got.Ingredients)
	}

	active, err := st.ListMeals(ctx, store.MealQuery{ActiveOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("active meals = %d, want 0", len(active))
	}

	missing := &model.Meal{ID: 404, Name: "x"}
	if err := st.UpdateMeal(ctx, missing, false); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestServingsAndTotals(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	rice := seedProduct(t, st, "Rice", "10", "kg", "1")
	meal := &model.Meal{Name: "Plov", IsActive: true, Ingredients: []model.MealIngredient{
		{ProductID: rice.ID, Quantity: dec("100"), Unit: "g"},
	}}
	if err := st.CreateMeal(ctx, meal); err != nil {
		t.Fatal(err)
	}

	march := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	april := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{march, march.Add(time.Hour), april} {
		clock := at
		svc := inventory.NewService(st, nil, inventory.WithClock(func() time.Time { return clock }))
		if _, err := svc.ServeMeal(ctx, inventory.ServeRequest{MealID: meal.ID, Portions: i + 1, UserID: 1}); err != nil {
			t.Fatal(err)
		}
	}

	sum, err := st.SumPortions(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if sum != 3 {
		t.Errorf("march portions = %d, want 3", sum)
	}

	servings, err := st.ListServings(ctx, store.ServingQuery{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(servings) != 2 || servings[0].PortionsServed != 3 {
		t.Errorf("servings = %+v", servings)
	}

	totals, err := st.UsageTotals(ctx, march.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 1 || totals[0].ProductName != "Rice" || !totals[0].Total.Equal(dec("0.6")) {
		t.Errorf("totals = %+v", totals)
	}
}

func TestUsersAndReports(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	admin := &model.User{Username: "admin", Email: "admin@example.com", Role: model.RoleAdmin, IsActive: true}
	if err := st.CreateUser(ctx, admin); err != nil {
		t.Fatal(err)
	}
	dup := &model.User{Username: "admin", Email: "other@example.com", Role: model.RoleCook}
	if err := st.CreateUser(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Errorf("error = %v, want conflict", err)
	}
	if err := st.SetUserActive(ctx, admin.ID, false); err != nil {
		t.Fatal(err)
	}
	got, err := st.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsActive {
		t.Error("admin should be inactive")
	}

	for _, eff := range []string{"80.00", "83.33"} {
		r := &model.MonthlyReport{Year: 2024, Month: 3, TotalPortionsServed: 10, TotalPortionsPossible: 12, EfficiencyPercentage: dec(eff)}
		if err := st.SaveMonthlyReport(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.SaveMonthlyReport(ctx, &model.MonthlyReport{Year: 2024, Month: 4, EfficiencyPercentage: decimal.Zero}); err != nil {
		t.Fatal(err)
	}
	reports, err := st.ListMonthlyReports(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	if reports[0].Month != 4 || !reports[1].EfficiencyPercentage.Equal(dec("83.33")) {
		t.Errorf("reports = %+v", reports)
	}
}
