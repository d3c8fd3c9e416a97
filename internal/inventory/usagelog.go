package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/shopspring/decimal"
)

// UsageLog appends deduction records. There is no update or delete.
type UsageLog struct {
	tx  store.Tx
	now func() time.Time
}

func NewUsageLog(tx store.Tx, now func() time.Time) *UsageLog {
	return &UsageLog{tx: tx, now: now}
}

// Record stores that quantity (already in the product's unit) was used by a serving.
func (u *UsageLog) Record(ctx context.Context, productID, servingID uint, quantity decimal.Decimal, unit string) (*model.ProductUsageLog, error) {
	entry := &model.ProductUsageLog{
		ProductID:     productID,
		MealServingID: servingID,
		QuantityUsed:  quantity,
		Unit:          unit,
		UsedAt:        u.now(),
	}
	if err := u.tx.CreateUsageLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: usage log for product %d: %w", ErrPersistence, productID, err)
	}
	return entry, nil
}
