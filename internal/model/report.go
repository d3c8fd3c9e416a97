package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyReport aggregates served portions for one calendar month
type MonthlyReport struct {
	ID                    uint            `json:"id" gorm:"primarykey"`
	Month                 int             `json:"month" gorm:"uniqueIndex:idx_report_period;not null"`
	Year                  int             `json:"year" gorm:"uniqueIndex:idx_report_period;not null"`
	TotalPortionsServed   int64           `json:"total_portions_served" gorm:"not null"`
	TotalPortionsPossible int64           `json:"total_portions_possible" gorm:"not null"`
	EfficiencyPercentage  decimal.Decimal `json:"efficiency_percentage" gorm:"type:decimal(5,2);not null"`
	IsSuspicious          bool            `json:"is_suspicious" gorm:"not null"`
	CreatedAt             time.Time       `json:"created_at"`
}

// All returns every model for AutoMigrate
func All() []interface{} {
	return []interface{}{
		&User{},
		&Product{},
		&Meal{},
		&MealIngredient{},
		&MealServing{},
		&ProductUsageLog{},
		&MonthlyReport{},
	}
}
