package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a stock item. Quantity is only changed by the stock ledger or a direct restock.
type Product struct {
	ID              uint            `json:"id" gorm:"primarykey"`
	Name            string          `json:"name" gorm:"type:varchar(100);index;not null"`
	Quantity        decimal.Decimal `json:"quantity" gorm:"type:decimal(10,3);not null"`
	Unit            string          `json:"unit" gorm:"type:varchar(20);not null"`
	MinimumQuantity decimal.Decimal `json:"minimum_quantity" gorm:"type:decimal(10,3);not null"`
	DeliveryDate    *time.Time      `json:"delivery_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `json:"-" gorm:"index"`
}

// IsLowStock reports whether the product has reached its reorder threshold.
func (p Product) IsLowStock() bool {
	return p.Quantity.LessThanOrEqual(p.MinimumQuantity)
}
