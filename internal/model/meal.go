package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Meal is a recipe served to children in portions
type Meal struct {
	ID          uint             `json:"id" gorm:"primarykey"`
	Name        string           `json:"name" gorm:"type:varchar(100);index;not null"`
	Description string           `json:"description" gorm:"type:text"`
	IsActive    bool             `json:"is_active" gorm:"not null"`
	Ingredients []MealIngredient `json:"ingredients" gorm:"foreignKey:MealID"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `json:"-" gorm:"index"`
}

// MealIngredient is the amount of one product needed for a single portion
type MealIngredient struct {
	ID        uint            `json:"id" gorm:"primarykey"`
	MealID    uint            `json:"meal_id" gorm:"index;not null"`
	ProductID uint            `json:"product_id" gorm:"index;not null"`
	Quantity  decimal.Decimal `json:"quantity" gorm:"type:decimal(10,3);not null"`
	Unit      string          `json:"unit" gorm:"type:varchar(20);not null"`
}
