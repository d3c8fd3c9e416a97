package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MealServing records portions of a meal handed out. Rows are never updated.
type MealServing struct {
	ID             uint      `json:"id" gorm:"primarykey"`
	MealID         uint      `json:"meal_id" gorm:"index;not null"`
	UserID         uint      `json:"user_id" gorm:"index;not null"`
	PortionsServed int       `json:"portions_served" gorm:"not null"`
	ServedAt       time.Time `json:"served_at" gorm:"index;not null"`
	Notes          string    `json:"notes" gorm:"type:text"`
}

// ProductUsageLog is one stock deduction caused by a serving. Rows are never updated.
type ProductUsageLog struct {
	ID            uint            `json:"id" gorm:"primarykey"`
	ProductID     uint            `json:"product_id" gorm:"index;not null"`
	MealServingID uint            `json:"meal_serving_id" gorm:"index;not null"`
	QuantityUsed  decimal.Decimal `json:"quantity_used" gorm:"type:decimal(10,3);not null"`
	Unit          string          `json:"unit" gorm:"type:varchar(20);not null"`
	UsedAt        time.Time       `json:"used_at" gorm:"index;not null"`
}

// TableName keeps the table name singular
func (ProductUsageLog) TableName() string {
	return "product_usage_log"
}
