// Package report builds monthly serving reports and dashboard figures.
// Reads are not coordinated with serves that are in flight.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidPeriod = errors.New("invalid report period")

var (
	hundred              = decimal.NewFromInt(100)
	suspiciousDeviation  = decimal.NewFromInt(15)
	recentServingsWindow = 5
)

type Store interface {
	SumPortions(ctx context.Context, from, to time.Time) (int64, error)
	SaveMonthlyReport(ctx context.Context, r *model.MonthlyReport) error
	ListMonthlyReports(ctx context.Context) ([]model.MonthlyReport, error)
	CountProducts(ctx context.Context) (int64, error)
	CountLowStock(ctx context.Context) (int64, error)
	ListServings(ctx context.Context, q store.ServingQuery) ([]model.MealServing, error)
	UsageTotals(ctx context.Context, since time.Time) ([]store.UsageTotal, error)
}

// DashboardStats is the summary shown on the kitchen dashboard.
type DashboardStats struct {
	TodayServings  int64 `json:"today_servings"`
	LowStockCount  int64 `json:"low_stock_count"`
	TotalProducts  int64 `json:"total_products"`
	RecentServings int   `json:"recent_servings"`
}

type Service struct {
	store     Store
	log       *zap.Logger
	now       func() time.Time
	usageDays int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithUsageDays sets the default window of UsageAnalytics.
func WithUsageDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.usageDays = days
		}
	}
}

func NewService(st Store, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:     st,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		usageDays: 30,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateMonthly computes the report for a calendar month (UTC) and replaces
// any report stored for it.
func (s *Service) GenerateMonthly(ctx context.Context, year, month int) (*model.MonthlyReport, error) {
	if month < 1 || month > 12 || year < 2000 || year > 9999 {
		return nil, fmt.Errorf("%w: %d-%02d", ErrInvalidPeriod, year, month)
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	served, err := s.store.SumPortions(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum portions: %w", err)
	}

	r := Monthly(year, month, served)
	if err := s.store.SaveMonthlyReport(ctx, r); err != nil {
		s.log.Error("Failed to save monthly report", zap.Int("year", year), zap.Int("month", month), zap.Error(err))
		return nil, fmt.Errorf("save report: %w", err)
	}

	s.log.Info("Monthly report generated",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int64("served", r.TotalPortionsServed),
		zap.Int64("possible", r.TotalPortionsPossible),
		zap.String("efficiency", r.EfficiencyPercentage.StringFixed(2)),
		zap.Bool("suspicious", r.IsSuspicious))
	return r, nil
}

// Monthly derives the report figures from the portions served in a month.
// Possible portions allow a fixed 20% on top of what was served.
func Monthly(year, month int, served int64) *model.MonthlyReport {
	possible := served + served/5

	efficiency := decimal.Zero
	if possible > 0 {
		efficiency = decimal.NewFromInt(served).
			Mul(hundred).
			Div(decimal.NewFromInt(possible)).
			Round(2)
	}

	return &model.MonthlyReport{
		Year:                  year,
		Month:                 month,
		TotalPortionsServed:   served,
		TotalPortionsPossible: possible,
		EfficiencyPercentage:  efficiency,
		IsSuspicious:          hundred.Sub(efficiency).Abs().GreaterThan(suspiciousDeviation),
	}
}

// ListMonthly returns stored reports, newest month first.
func (s *Service) ListMonthly(ctx context.Context) ([]model.MonthlyReport, error) {
	return s.store.ListMonthlyReports(ctx)
}

func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	today, err := s.store.SumPortions(ctx, midnight, midnight.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("sum portions: %w", err)
	}
	low, err := s.store.CountLowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("count low stock: %w", err)
	}
	total, err := s.store.CountProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	recent, err := s.store.ListServings(ctx, store.ServingQuery{Limit: recentServingsWindow})
	if err != nil {
		return nil, fmt.Errorf("recent servings: %w", err)
	}

	return &DashboardStats{
		TodayServings:  today,
		LowStockCount:  low,
		TotalProducts:  total,
		RecentServings: len(recent),
	}, nil
}

// UsageAnalytics sums usage per product and unit over the last days.
// A non-positive days uses the configured default.
func (s *Service) UsageAnalytics(ctx context.Context, days int) ([]store.UsageTotal, error) {
	if days <= 0 {
		days = s.usageDays
	}
	since := s.now().AddDate(0, 0, -days)
	totals, err := s.store.UsageTotals(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}
	return totals, nil
}
