// Package gormstore persists the kitchen ledger with gorm. It runs against
// PostgreSQL in production and SQLite in tests.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/Xalid7/oshxona/internal/units"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// translate maps gorm errors onto store sentinels.
func translate(err error, what string, key interface{}) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s %v: %w", what, key, store.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s %v: %w", what, key, store.ErrConflict)
	}
	return fmt.Errorf("%s %v: %w", what, key, err)
}

// Unit of work

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.conn(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) GetMeal(_ context.Context, id uint) (*model.Meal, error) {
	return getMeal(t.db, id)
}

func (t *gormTx) GetUser(_ context.Context, id uint) (*model.User, error) {
	return getUser(t.db, id)
}

// LockProducts takes row locks in ascending id order so concurrent serves cannot deadlock.
func (t *gormTx) LockProducts(_ context.Context, ids []uint) (map[uint]*model.Product, error) {
	out := make(map[uint]*model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []model.Product
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (t *gormTx) UpdateProductQuantity(_ context.Context, id uint, quantity decimal.Decimal) error {
	res := t.db.Model(&model.Product{}).Where("id = ?", id).Update("quantity", quantity)
	if res.Error != nil {
		return translate(res.Error, "product", id)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (t *gormTx) CreateServing(_ context.Context, sv *model.MealServing) error {
	return t.db.Create(sv).Error
}

func (t *gormTx) CreateUsageLog(_ context.Context, e *model.ProductUsageLog) error {
	return t.db.Create(e).Error
}

// Products

func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	return translate(s.conn(ctx).Create(p).Error, "product", p.Name)
}

func (s *Store) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	if err := s.conn(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err, "product", id)
	}
	return &p, nil
}

func (s *Store) GetProducts(ctx context.Context, ids []uint) (map[uint]*model.Product, error) {
	out := make(map[uint]*model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []model.Product
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context, q store.ProductQuery) ([]model.Product, error) {
	query := s.conn(ctx).Order("id")
	if q.LowStockOnly {
		query = query.Where("quantity <= minimum_quantity")
	}
	var products []model.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// UpdateProduct applies fn to the product under a row lock, so it serialises
// with serves deducting the same product.
func (s *Store) UpdateProduct(ctx context.Context, id uint, fn func(p *model.Product) error) (*model.Product, error) {
	var p model.Product
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error; err != nil {
			return translate(err, "product", id)
		}
		if err := fn(&p); err != nil {
			return err
		}
		p.ID = id
		return tx.Save(&p).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id uint) error {
	res := s.conn(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return translate(res.Error, "product", id)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ProductInUse(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&model.MealIngredient{}).
		Where("product_id = ?", id).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&model.Product{}).Count(&count).Error
	return count, err
}

func (s *Store) CountLowStock(ctx context.Context) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&model.Product{}).
		Where("quantity <= minimum_quantity").
		Count(&count).Error
	return count, err
}

// Meals

func (s *Store) CreateMeal(ctx context.Context, m *model.Meal) error {
	return translate(s.conn(ctx).Create(m).Error, "meal", m.Name)
}

func getMeal(db *gorm.DB, id uint) (*model.Meal, error) {
	var m model.Meal
	err := db.Preload("Ingredients", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).First(&m, id).Error
	if err != nil {
		return nil, translate(err, "meal", id)
	}
	return &m, nil
}

func (s *Store) GetMeal(ctx context.Context, id uint) (*model.Meal, error) {
	return getMeal(s.conn(ctx), id)
}

func (s *Store) ListMeals(ctx context.Context, q store.MealQuery) ([]model.Meal, error) {
	query := s.conn(ctx).Preload("Ingredients", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Order("id")
	if q.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	var meals []model.Meal
	if err := query.Find(&meals).Error; err != nil {
		return nil, err
	}
	return meals, nil
}

// UpdateMeal stores m's scalar fields. With replaceIngredients the ingredient
// rows are deleted and recreated from m.Ingredients in the same transaction.
func (s *Store) UpdateMeal(ctx context.Context, m *model.Meal, replaceIngredients bool) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Meal{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
			"name":        m.Name,
			"description": m.Description,
			"is_active":   m.IsActive,
			"updated_at":  time.Now().UTC(),
		})
		if res.Error != nil {
			return translate(res.Error, "meal", m.ID)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("meal %d: %w", m.ID, store.ErrNotFound)
		}
		if !replaceIngredients {
			return nil
		}
		if err := tx.Where("meal_id = ?", m.ID).Delete(&model.MealIngredient{}).Error; err != nil {
			return err
		}
		if len(m.Ingredients) == 0 {
			return nil
		}
		for i := range m.Ingredients {
			m.Ingredients[i].ID = 0
			m.Ingredients[i].MealID = m.ID
		}
		return tx.Create(&m.Ingredients).Error
	})
}

// DeleteMeal soft-deletes the meal and drops its ingredient rows, which releases
// the products it referenced.
func (s *Store) DeleteMeal(ctx context.Context, id uint) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Meal{}, id)
		if res.Error != nil {
			return translate(res.Error, "meal", id)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("meal %d: %w", id, store.ErrNotFound)
		}
		return tx.Where("meal_id = ?", id).Delete(&model.MealIngredient{}).Error
	})
}

// Servings and usage

func (s *Store) GetServing(ctx context.Context, id uint) (*model.MealServing, error) {
	var sv model.MealServing
	if err := s.conn(ctx).First(&sv, id).Error; err != nil {
		return nil, translate(err, "serving", id)
	}
	return &sv, nil
}

func (s *Store) ListServings(ctx context.Context, q store.ServingQuery) ([]model.MealServing, error) {
	query := s.conn(ctx).Order("served_at DESC").Order("id DESC")
	if !q.Since.IsZero() {
		query = query.Where("served_at >= ?", q.Since)
	}
	if !q.Until.IsZero() {
		query = query.Where("served_at < ?", q.Until)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var servings []model.MealServing
	if err := query.Find(&servings).Error; err != nil {
		return nil, err
	}
	return servings, nil
}

func (s *Store) SumPortions(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := s.conn(ctx).Model(&model.MealServing{}).
		Select("COALESCE(SUM(portions_served), 0)").
		Where("served_at >= ? AND served_at < ?", from, to).
		Scan(&total).Error
	return total, err
}

func (s *Store) ListUsage(ctx context.Context, f store.UsageFilter) ([]model.ProductUsageLog, error) {
	query := s.conn(ctx).Order("id")
	if f.ProductID != 0 {
		query = query.Where("product_id = ?", f.ProductID)
	}
	if f.ServingID != 0 {
		query = query.Where("meal_serving_id = ?", f.ServingID)
	}
	if !f.Since.IsZero() {
		query = query.Where("used_at >= ?", f.Since)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	var entries []model.ProductUsageLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

type usageRow struct {
	ProductID uint
	Unit      string
	Total     decimal.Decimal
}

// UsageTotals sums usage since the given time per product and unit.
// Names of deleted products are still resolved.
func (s *Store) UsageTotals(ctx context.Context, since time.Time) ([]store.UsageTotal, error) {
	var rows []usageRow
	err := s.conn(ctx).Model(&model.ProductUsageLog{}).
		Select("product_id, unit, SUM(quantity_used) AS total").
		Where("used_at >= ?", since).
		Group("product_id, unit").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProductID)
	}
	var products []model.Product
	if len(ids) > 0 {
		if err := s.conn(ctx).Unscoped().Where("id IN ?", ids).Find(&products).Error; err != nil {
			return nil, err
		}
	}
	names := make(map[uint]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	out := make([]store.UsageTotal, 0, len(rows))
	for _, r := range rows {
		name, ok := names[r.ProductID]
		if !ok {
			name = "Unknown"
		}
		out = append(out, store.UsageTotal{
			ProductID:   r.ProductID,
			ProductName: name,
			Unit:        r.Unit,
			Total:       units.Normalize(r.Total),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductName == out[j].ProductName {
			return out[i].Unit < out[j].Unit
		}
		return out[i].ProductName < out[j].ProductName
	})
	return out, nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	var count int64
	err := s.conn(ctx).Model(&model.User{}).
		Where("username = ? OR email = ?", u.Username, u.Email).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("user %s: %w", u.Username, store.ErrConflict)
	}
	return translate(s.conn(ctx).Create(u).Error, "user", u.Username)
}

func getUser(db *gorm.DB, id uint) (*model.User, error) {
	var u model.User
	if err := db.First(&u, id).Error; err != nil {
		return nil, translate(err, "user", id)
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*model.User, error) {
	return getUser(s.conn(ctx), id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.conn(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err, "user", username)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.conn(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) SetUserActive(ctx context.Context, id uint, active bool) error {
	res := s.conn(ctx).Model(&model.User{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&model.User{}).Count(&count).Error
	return count, err
}

// Reports

// SaveMonthlyReport replaces any report stored for the same year and month.
func (s *Store) SaveMonthlyReport(ctx context.Context, r *model.MonthlyReport) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("year = ? AND month = ?", r.Year, r.Month).
			Delete(&model.MonthlyReport{}).Error
		if err != nil {
			return err
		}
		r.ID = 0
		return tx.Create(r).Error
	})
}

func (s *Store) ListMonthlyReports(ctx context.Context) ([]model.MonthlyReport, error) {
	var reports []model.MonthlyReport
	err := s.conn(ctx).Order("year DESC").Order("month DESC").Find(&reports).Error
	return reports, err
}

// Core

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
