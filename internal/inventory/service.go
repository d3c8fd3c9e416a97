// Package inventory implements portion calculation and the serve transaction:
// check stock, deduct it and log the usage as one unit of work.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/Xalid7/oshxona/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultServingLimit = 100
	unknownName         = "Unknown"
)

// Store is the persistence the inventory service needs.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx store.Tx) error) error
	GetMeal(ctx context.Context, id uint) (*model.Meal, error)
	GetUser(ctx context.Context, id uint) (*model.User, error)
	GetProducts(ctx context.Context, ids []uint) (map[uint]*model.Product, error)
	GetServing(ctx context.Context, id uint) (*model.MealServing, error)
	ListServings(ctx context.Context, q store.ServingQuery) ([]model.MealServing, error)
	ListUsage(ctx context.Context, f store.UsageFilter) ([]model.ProductUsageLog, error)
}

// Recorder receives serving outcomes, e.g. for metrics.
type Recorder interface {
	ServingRecorded(mealName string, portions int)
	ServingRejected(reason string)
	InsufficientStock(productName string)
	StockLevel(productID uint, name, unit string, quantity decimal.Decimal)
}

type nopRecorder struct{}

func (nopRecorder) ServingRecorded(string, int)                      {}
func (nopRecorder) ServingRejected(string)                           {}
func (nopRecorder) InsufficientStock(string)                         {}
func (nopRecorder) StockLevel(uint, string, string, decimal.Decimal) {}

// ServeRequest asks for portions of a meal on behalf of a user.
type ServeRequest struct {
	MealID   uint
	Portions int
	Notes    string
	UserID   uint
}

// ServingRecord is a serving with its display fields resolved.
type ServingRecord struct {
	ID             uint                    `json:"id"`
	MealID         uint                    `json:"meal_id"`
	MealName       string                  `json:"meal_name"`
	UserID         uint                    `json:"user_id"`
	Username       string                  `json:"username"`
	PortionsServed int                     `json:"portions_served"`
	ServedAt       time.Time               `json:"served_at"`
	Notes          string                  `json:"notes"`
	Usage          []model.ProductUsageLog `json:"usage,omitempty"`
	Balances       []ProductBalance        `json:"balances,omitempty"`
}

type Service struct {
	store    Store
	log      *zap.Logger
	recorder Recorder
	now      func() time.Time
}

type Option func(*Service)

// WithRecorder sets where serving outcomes are reported.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st Store, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:    st,
		log:      log,
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetFeasiblePortions returns how many portions of the meal current stock allows.
// The answer reflects committed state at read time and takes no locks.
//
// It is computed for one serving of all portions. Each serve deducts its amount
// rounded up to 0.001 of the product's unit, so many small serves can use up stock
// before the reported count is reached (0.3 g a portion from a kg product costs 1 g
// per single-portion serve).
func (s *Service) GetFeasiblePortions(ctx context.Context, mealID uint) (int64, error) {
	meal, err := s.store.GetMeal(ctx, mealID)
	if err != nil {
		return 0, s.mealLookupError(mealID, err)
	}
	stock, err := s.store.GetProducts(ctx, productIDs(meal))
	if err != nil {
		return 0, fmt.Errorf("%w: load stock: %w", ErrPersistence, err)
	}
	return FeasiblePortions(meal, stock), nil
}

// ServeMeal checks stock for every ingredient, records the serving, deducts stock and
// logs usage in one transaction. Nothing is written unless every ingredient is available.
func (s *Service) ServeMeal(ctx context.Context, req ServeRequest) (*ServingRecord, error) {
	log := s.logFor(ctx).With(
		zap.Uint("meal_id", req.MealID),
		zap.Int("portions", req.Portions),
		zap.Uint("user_id", req.UserID))

	if req.Portions <= 0 {
		s.recorder.ServingRejected("invalid_portions")
		return nil, ErrInvalidPortions
	}

	log.Info("Serving meal")

	var record *ServingRecord
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		meal, err := tx.GetMeal(ctx, req.MealID)
		if err != nil {
			return s.mealLookupError(req.MealID, err)
		}
		if !meal.IsActive {
			return fmt.Errorf("%w: %s", ErrMealInactive, meal.Name)
		}
		if len(meal.Ingredients) == 0 {
			return fmt.Errorf("%w: %s has no ingredients", ErrInsufficientStock, meal.Name)
		}
		// A zero line would serve without deducting anything
		for _, ing := range meal.Ingredients {
			if !ing.Quantity.IsPositive() {
				return fmt.Errorf("%w: %s, product %d", ErrInvalidIngredient, meal.Name, ing.ProductID)
			}
		}

		// Lock every product of the meal in id order
		locked, err := tx.LockProducts(ctx, productIDs(meal))
		if err != nil {
			return fmt.Errorf("%w: lock products: %w", ErrPersistence, err)
		}
		ledger := NewLedger(tx, locked)
		portions := decimal.NewFromInt(int64(req.Portions))

		// Check every ingredient before writing anything
		for _, ing := range meal.Ingredients {
			required := ing.Quantity.Mul(portions)
			ok, err := ledger.CanDeduct(ing.ProductID, required, ing.Unit)
			if err != nil {
				return err
			}
			if !ok {
				return ledger.Shortage(ing.ProductID, required, ing.Unit)
			}
		}

		// Record the serving
		serving := &model.MealServing{
			MealID:         meal.ID,
			UserID:         req.UserID,
			PortionsServed: req.Portions,
			ServedAt:       s.now(),
			Notes:          req.Notes,
		}
		if err := tx.CreateServing(ctx, serving); err != nil {
			return fmt.Errorf("%w: create serving: %w", ErrPersistence, err)
		}

		// Deduct stock and log usage per ingredient
		usage := NewUsageLog(tx, s.now)
		entries := make([]model.ProductUsageLog, 0, len(meal.Ingredients))
		for _, ing := range meal.Ingredients {
			d, err := ledger.Deduct(ctx, ing.ProductID, ing.Quantity.Mul(portions), ing.Unit)
			if err != nil {
				return err
			}
			entry, err := usage.Record(ctx, ing.ProductID, serving.ID, d.Amount, d.Unit)
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
		}

		username, err := s.username(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		record = &ServingRecord{
			ID:             serving.ID,
			MealID:         meal.ID,
			MealName:       meal.Name,
			UserID:         serving.UserID,
			Username:       username,
			PortionsServed: serving.PortionsServed,
			ServedAt:       serving.ServedAt,
			Notes:          serving.Notes,
			Usage:          entries,
			Balances:       ledger.Balances(),
		}
		return nil
	})
	if err != nil {
		if !IsClientError(err) && !errors.Is(err, ErrPersistence) {
			err = fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		s.reportFailure(log, err)
		return nil, err
	}

	// Record metrics
	s.recorder.ServingRecorded(record.MealName, record.PortionsServed)
	for _, b := range record.Balances {
		s.recorder.StockLevel(b.ProductID, b.Name, b.Unit, b.Quantity)
	}
	log.Info("Meal served",
		zap.Uint("serving_id", record.ID),
		zap.String("meal_name", record.MealName),
		zap.Int("usage_entries", len(record.Usage)))
	return record, nil
}

// ListUsage returns usage log entries in creation order.
func (s *Service) ListUsage(ctx context.Context, f store.UsageFilter) ([]model.ProductUsageLog, error) {
	entries, err := s.store.ListUsage(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: list usage: %w", ErrPersistence, err)
	}
	return entries, nil
}

// ListServings returns servings newest first. A zero limit means 100, a negative one means no limit.
func (s *Service) ListServings(ctx context.Context, q store.ServingQuery) ([]ServingRecord, error) {
	if q.Limit == 0 {
		q.Limit = defaultServingLimit
	}
	servings, err := s.store.ListServings(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list servings: %w", ErrPersistence, err)
	}

	meals := map[uint]string{}
	users := map[uint]string{}
	out := make([]ServingRecord, 0, len(servings))
	for _, sv := range servings {
		mealName, ok := meals[sv.MealID]
		if !ok {
			mealName = unknownName
			if m, err := s.store.GetMeal(ctx, sv.MealID); err == nil {
				mealName = m.Name
			}
			meals[sv.MealID] = mealName
		}
		username, ok := users[sv.UserID]
		if !ok {
			username = unknownName
			if u, err := s.store.GetUser(ctx, sv.UserID); err == nil {
				username = u.Username
			}
			users[sv.UserID] = username
		}
		out = append(out, ServingRecord{
			ID:             sv.ID,
			MealID:         sv.MealID,
			MealName:       mealName,
			UserID:         sv.UserID,
			Username:       username,
			PortionsServed: sv.PortionsServed,
			ServedAt:       sv.ServedAt,
			Notes:          sv.Notes,
		})
	}
	return out, nil
}

// TodayServings returns every serving since midnight UTC.
func (s *Service) TodayServings(ctx context.Context) ([]ServingRecord, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.ListServings(ctx, store.ServingQuery{Since: midnight, Limit: -1})
}

// GetServing returns one serving with its usage entries.
func (s *Service) GetServing(ctx context.Context, id uint) (*ServingRecord, error) {
	sv, err := s.store.GetServing(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("serving %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get serving: %w", ErrPersistence, err)
	}
	usage, err := s.ListUsage(ctx, store.UsageFilter{ServingID: sv.ID})
	if err != nil {
		return nil, err
	}

	rec := &ServingRecord{
		ID:             sv.ID,
		MealID:         sv.MealID,
		MealName:       unknownName,
		UserID:         sv.UserID,
		Username:       unknownName,
		PortionsServed: sv.PortionsServed,
		ServedAt:       sv.ServedAt,
		Notes:          sv.Notes,
		Usage:          usage,
	}
	if m, err := s.store.GetMeal(ctx, sv.MealID); err == nil {
		rec.MealName = m.Name
	}
	if u, err := s.store.GetUser(ctx, sv.UserID); err == nil {
		rec.Username = u.Username
	}
	return rec, nil
}

// logFor prefers the request logger carried by ctx so entries keep their request_id.
func (s *Service) logFor(ctx context.Context) *zap.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return s.log
}

func (s *Service) username(ctx context.Context, tx store.Tx, userID uint) (string, error) {
	u, err := tx.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return unknownName, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get user: %w", ErrPersistence, err)
	}
	return u.Username, nil
}

func (s *Service) mealLookupError(mealID uint, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: id %d", ErrMealNotFound, mealID)
	}
	return fmt.Errorf("%w: get meal: %w", ErrPersistence, err)
}

func (s *Service) reportFailure(log *zap.Logger, err error) {
	var shortage *InsufficientStockError
	switch {
	case errors.As(err, &shortage):
		s.recorder.InsufficientStock(shortage.ProductName)
		s.recorder.ServingRejected("insufficient_stock")
		log.Warn("Serving rejected: insufficient stock",
			zap.Uint("product_id", shortage.ProductID),
			zap.String("product_name", shortage.ProductName),
			zap.String("required", shortage.Required.String()+shortage.RequiredUnit),
			zap.String("available", shortage.Available.String()+shortage.AvailableUnit))
	case errors.Is(err, ErrMealNotFound):
		s.recorder.ServingRejected("meal_not_found")
		log.Warn("Serving rejected: meal not found")
	case IsClientError(err):
		s.recorder.ServingRejected("invalid_request")
		log.Warn("Serving rejected", zap.Error(err))
	default:
		s.recorder.ServingRejected("persistence")
		log.Error("Serving failed, transaction rolled back", zap.Error(err))
	}
}

// productIDs returns the distinct product ids of a meal in ascending order.
func productIDs(meal *model.Meal) []uint {
	seen := make(map[uint]struct{}, len(meal.Ingredients))
	ids := make([]uint, 0, len(meal.Ingredients))
	for _, ing := range meal.Ingredients {
		if _, ok := seen[ing.ProductID]; ok {
			continue
		}
		seen[ing.ProductID] = struct{}{}
		ids = append(ids, ing.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
