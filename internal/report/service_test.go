package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Xalid7/oshxona/internal/inventory"
	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store/memory"
	"github.com/shopspring/decimal"
)

func TestMonthly(t *testing.T) {
	tests := []struct {
		served         int64
		wantPossible   int64
		wantEfficiency string
		wantSuspicious bool
	}{
		{served: 0, wantPossible: 0, wantEfficiency: "0", wantSuspicious: true},
		{served: 4, wantPossible: 4, wantEfficiency: "100", wantSuspicious: false},
		{served: 5, wantPossible: 6, wantEfficiency: "83.33", wantSuspicious: true},
		{served: 9, wantPossible: 10, wantEfficiency: "90", wantSuspicious: false},
		{served: 100, wantPossible: 120, wantEfficiency: "83.33", wantSuspicious: true},
	}

	for _, tt := range tests {
		r := Monthly(2024, 3, tt.served)
		if r.TotalPortionsPossible != tt.wantPossible {
			t.Errorf("served %d: possible = %d, want %d", tt.served, r.TotalPortionsPossible, tt.wantPossible)
		}
		if !r.EfficiencyPercentage.Equal(decimal.RequireFromString(tt.wantEfficiency)) {
			t.Errorf("served %d: efficiency = %s, want %s", tt.served, r.EfficiencyPercentage, tt.wantEfficiency)
		}
		if r.IsSuspicious != tt.wantSuspicious {
			t.Errorf("served %d: suspicious = %v, want %v", tt.served, r.IsSuspicious, tt.wantSuspicious)
		}
	}
}

type fixture struct {
	store *memory.Store
	meal  *model.Meal
	rice  *model.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	rice := &model.Product{Name: "Rice", Quantity: decimal.RequireFromString("50"), Unit: "kg", MinimumQuantity: decimal.RequireFromString("1")}
	salt := &model.Product{Name: "Salt", Quantity: decimal.RequireFromString("0.1"), Unit: "kg", MinimumQuantity: decimal.RequireFromString("1")}
	for _, p := range []*model.Product{rice, salt} {
		if err := st.CreateProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	meal := &model.Meal{Name: "Plov", IsActive: true, Ingredients: []model.MealIngredient{
		{ProductID: rice.ID, Quantity: decimal.RequireFromString("100"), Unit: "g"},
	}}
	if err := st.CreateMeal(ctx, meal); err != nil {
		t.Fatal(err)
	}
	return &fixture{store: st, meal: meal, rice: rice}
}

func (f *fixture) serve(t *testing.T, at time.Time, portions int) {
	t.Helper()
	svc := inventory.NewService(f.store, nil, inventory.WithClock(func() time.Time { return at }))
	if _, err := svc.ServeMeal(context.Background(), inventory.ServeRequest{MealID: f.meal.ID, Portions: portions, UserID: 1}); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateMonthlyReplacesExisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.serve(t, time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC), 7)
	f.serve(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 3)
	f.serve(t, time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC), 2)
	f.serve(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 11)

	svc := NewService(f.store, nil)
	r, err := svc.GenerateMonthly(ctx, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalPortionsServed != 5 || r.TotalPortionsPossible != 6 {
		t.Errorf("report = %+v", r)
	}

	f.serve(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), 4)
	if _, err := svc.GenerateMonthly(ctx, 2024, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GenerateMonthly(ctx, 2024, 2); err != nil {
		t.Fatal(err)
	}

	reports, err := svc.ListMonthly(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	if reports[0].Month != 3 || reports[0].TotalPortionsServed != 9 {
		t.Errorf("newest report = %+v", reports[0])
	}
	if reports[1].Month != 2 || reports[1].TotalPortionsServed != 7 {
		t.Errorf("oldest report = %+v", reports[1])
	}
}

func TestGenerateMonthlyInvalidPeriod(t *testing.T) {
	svc := NewService(memory.New(), nil)
	for _, p := range [][2]int{{2024, 0}, {2024, 13}, {1999, 5}} {
		if _, err := svc.GenerateMonthly(context.Background(), p[0], p[1]); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("%v: error = %v, want invalid period", p, err)
		}
	}
}

func TestDashboardAndUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC)
	f.serve(t, now.AddDate(0, 0, -40), 10)
	f.serve(t, now.AddDate(0, 0, -1), 5)
	f.serve(t, now.Add(-2*time.Hour), 2)
	f.serve(t, now.Add(-time.Hour), 3)

	svc := NewService(f.store, nil, WithClock(func() time.Time { return now }), WithUsageDays(30))

	stats, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := DashboardStats{TodayServings: 5, LowStockCount: 1, TotalProducts: 2, RecentServings: 4}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	usage, err := svc.UsageAnalytics(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 || usage[0].ProductName != "Rice" || !usage[0].Total.Equal(decimal.RequireFromString("1")) {
		t.Errorf("usage = %+v", usage)
	}

	usage, err = svc.UsageAnalytics(ctx, 60)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 || !usage[0].Total.Equal(decimal.RequireFromString("2")) {
		t.Errorf("usage over 60 days = %+v", usage)
	}
}
