// Package memory is an in-process store. Writes made inside WithinTx are staged
// and applied on commit; products are locked individually.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu sync.RWMutex

	products map[uint]*model.Product
	meals    map[uint]*model.Meal
	users    map[uint]*model.User
	reports  map[uint]*model.MonthlyReport
	servings []model.MealServing
	usage    []model.ProductUsageLog

	nextProduct    uint
	nextMeal       uint
	nextIngredient uint
	nextUser       uint
	nextReport     uint
	nextServing    uint
	nextUsage      uint

	locksMu      sync.Mutex
	productLocks map[uint]*sync.Mutex
}

func New() *Store {
	return &Store{
		products:     make(map[uint]*model.Product),
		meals:        make(map[uint]*model.Meal),
		users:        make(map[uint]*model.User),
		reports:      make(map[uint]*model.MonthlyReport),
		productLocks: make(map[uint]*sync.Mutex),
	}
}

func (s *Store) productLock(id uint) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.productLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.productLocks[id] = l
	}
	return l
}

// Unit of work

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx := &memTx{s: s, quantities: make(map[uint]decimal.Decimal)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	s          *Store
	locked     []uint
	quantities map[uint]decimal.Decimal
	servings   []model.MealServing
	usage      []model.ProductUsageLog
}

func (t *memTx) GetMeal(ctx context.Context, id uint) (*model.Meal, error) {
	return t.s.GetMeal(ctx, id)
}

func (t *memTx) GetUser(ctx context.Context, id uint) (*model.User, error) {
	return t.s.GetUser(ctx, id)
}

func (t *memTx) LockProducts(_ context.Context, ids []uint) (map[uint]*model.Product, error) {
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, id := range sorted {
		if t.holds(id) {
			continue
		}
		t.s.productLock(id).Lock()
		t.locked = append(t.locked, id)
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	out := make(map[uint]*model.Product, len(sorted))
	for _, id := range sorted {
		if p, ok := t.s.products[id]; ok {
			c := *p
			if q, staged := t.quantities[id]; staged {
				c.Quantity = q
			}
			out[id] = &c
		}
	}
	return out, nil
}

func (t *memTx) UpdateProductQuantity(_ context.Context, id uint, quantity decimal.Decimal) error {
	if !t.holds(id) {
		return fmt.Errorf("product %d is not locked by this transaction", id)
	}
	t.quantities[id] = quantity
	return nil
}

func (t *memTx) CreateServing(_ context.Context, sv *model.MealServing) error {
	t.s.mu.Lock()
	t.s.nextServing++
	sv.ID = t.s.nextServing
	t.s.mu.Unlock()

	t.servings = append(t.servings, *sv)
	return nil
}

func (t *memTx) CreateUsageLog(_ context.Context, e *model.ProductUsageLog) error {
	t.s.mu.Lock()
	t.s.nextUsage++
	e.ID = t.s.nextUsage
	t.s.mu.Unlock()

	t.usage = append(t.usage, *e)
	return nil
}

func (t *memTx) holds(id uint) bool {
	for _, l := range t.locked {
		if l == id {
			return true
		}
	}
	return false
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	now := time.Now().UTC()
	for id, q := range t.quantities {
		if p, ok := t.s.products[id]; ok {
			p.Quantity = q
			p.UpdatedAt = now
		}
	}
	t.s.servings = append(t.s.servings, t.servings...)
	t.s.usage = append(t.s.usage, t.usage...)
}

func (t *memTx) release() {
	for i := len(t.locked) - 1; i >= 0; i-- {
		t.s.productLock(t.locked[i]).Unlock()
	}
	t.locked = nil
}

// Products

func (s *Store) CreateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProduct++
	now := time.Now().UTC()
	p.ID = s.nextProduct
	p.CreatedAt = now
	p.UpdatedAt = now
	c := *p
	s.products[p.ID] = &c
	return nil
}

func (s *Store) GetProduct(_ context.Context, id uint) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *Store) GetProducts(_ context.Context, ids []uint) (map[uint]*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uint]*model.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			c := *p
			out[id] = &c
		}
	}
	return out, nil
}

func (s *Store) ListProducts(_ context.Context, q store.ProductQuery) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		if q.LowStockOnly && !p.IsLowStock() {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateProduct applies fn to the product while holding its lock, so it cannot
// interleave with a serve that is deducting the same product.
func (s *Store) UpdateProduct(_ context.Context, id uint, fn func(p *model.Product) error) (*model.Product, error) {
	l := s.productLock(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	c := *p
	if err := fn(&c); err != nil {
		return nil, err
	}
	c.ID = id
	c.UpdatedAt = time.Now().UTC()
	s.products[id] = &c
	out := c
	return &out, nil
}

func (s *Store) DeleteProduct(_ context.Context, id uint) error {
	l := s.productLock(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ProductInUse(_ context.Context, id uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.meals {
		for _, ing := range m.Ingredients {
			if ing.ProductID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) CountProducts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.products)), nil
}

func (s *Store) CountLowStock(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, p := range s.products {
		if p.IsLowStock() {
			n++
		}
	}
	return n, nil
}

// Meals

func (s *Store) CreateMeal(_ context.Context, m *model.Meal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMeal++
	now := time.Now().UTC()
	m.ID = s.nextMeal
	m.CreatedAt = now
	m.UpdatedAt = now
	s.assignIngredientIDs(m)
	s.meals[m.ID] = cloneMeal(m)
	return nil
}

func (s *Store) GetMeal(_ context.Context, id uint) (*model.Meal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meals[id]
	if !ok {
		return nil, fmt.Errorf("meal %d: %w", id, store.ErrNotFound)
	}
	return cloneMeal(m), nil
}

func (s *Store) ListMeals(_ context.Context, q store.MealQuery) ([]model.Meal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Meal, 0, len(s.meals))
	for _, m := range s.meals {
		if q.ActiveOnly && !m.IsActive {
			continue
		}
		out = append(out, *cloneMeal(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateMeal stores m's scalar fields. With replaceIngredients the ingredient list is
// deleted and recreated from m.Ingredients.
func (s *Store) UpdateMeal(_ context.Context, m *model.Meal, replaceIngredients bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.meals[m.ID]
	if !ok {
		return fmt.Errorf("meal %d: %w", m.ID, store.ErrNotFound)
	}
	c := cloneMeal(existing)
	c.Name = m.Name
	c.Description = m.Description
	c.IsActive = m.IsActive
	c.UpdatedAt = time.Now().UTC()
	if replaceIngredients {
		s.assignIngredientIDs(m)
		c.Ingredients = cloneMeal(m).Ingredients
	}
	s.meals[m.ID] = c
	return nil
}

func (s *Store) DeleteMeal(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meals[id]; !ok {
		return fmt.Errorf("meal %d: %w", id, store.ErrNotFound)
	}
	delete(s.meals, id)
	return nil
}

func (s *Store) assignIngredientIDs(m *model.Meal) {
	for i := range m.Ingredients {
		s.nextIngredient++
		m.Ingredients[i].ID = s.nextIngredient
		m.Ingredients[i].MealID = m.ID
	}
}

func cloneMeal(m *model.Meal) *model.Meal {
	c := *m
	c.Ingredients = append([]model.MealIngredient(nil), m.Ingredients...)
	return &c
}

// Servings and usage

func (s *Store) GetServing(_ context.Context, id uint) (*model.MealServing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sv := range s.servings {
		if sv.ID == id {
			c := sv
			return &c, nil
		}
	}
	return nil, fmt.Errorf("serving %d: %w", id, store.ErrNotFound)
}

func (s *Store) ListServings(_ context.Context, q store.ServingQuery) ([]model.MealServing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MealServing, 0)
	for _, sv := range s.servings {
		if !q.Since.IsZero() && sv.ServedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && !sv.ServedAt.Before(q.Until) {
			continue
		}
		out = append(out, sv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServedAt.Equal(out[j].ServedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ServedAt.After(out[j].ServedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) SumPortions(_ context.Context, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, sv := range s.servings {
		if !sv.ServedAt.Before(from) && sv.ServedAt.Before(to) {
			total += int64(sv.PortionsServed)
		}
	}
	return total, nil
}

func (s *Store) ListUsage(_ context.Context, f store.UsageFilter) ([]model.ProductUsageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ProductUsageLog, 0)
	for _, e := range s.usage {
		if f.ProductID != 0 && e.ProductID != f.ProductID {
			continue
		}
		if f.ServingID != 0 && e.MealServingID != f.ServingID {
			continue
		}
		if !f.Since.IsZero() && e.UsedAt.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UsageTotals(_ context.Context, since time.Time) ([]store.UsageTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		product uint
		unit    string
	}
	totals := make(map[key]decimal.Decimal)
	for _, e := range s.usage {
		if e.UsedAt.Before(since) {
			continue
		}
		k := key{e.ProductID, e.Unit}
		totals[k] = totals[k].Add(e.QuantityUsed)
	}

	out := make([]store.UsageTotal, 0, len(totals))
	for k, total := range totals {
		name := "Unknown"
		if p, ok := s.products[k.product]; ok {
			name = p.Name
		}
		out = append(out, store.UsageTotal{ProductID: k.product, ProductName: name, Unit: k.unit, Total: total})
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

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("user %s: %w", u.Username, store.ErrConflict)
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	u.CreatedAt = time.Now().UTC()
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) GetUser(_ context.Context, id uint) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, store.ErrNotFound)
}

func (s *Store) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetUserActive(_ context.Context, id uint, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	u.IsActive = active
	return nil
}

func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// Reports

// SaveMonthlyReport replaces any report for the same year and month.
func (s *Store) SaveMonthlyReport(_ context.Context, r *model.MonthlyReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.reports {
		if existing.Year == r.Year && existing.Month == r.Month {
			delete(s.reports, id)
		}
	}
	s.nextReport++
	r.ID = s.nextReport
	r.CreatedAt = time.Now().UTC()
	c := *r
	s.reports[r.ID] = &c
	return nil
}

func (s *Store) ListMonthlyReports(_ context.Context) ([]model.MonthlyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MonthlyReport, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out, nil
}

// Core

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
