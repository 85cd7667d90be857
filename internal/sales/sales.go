package sales

import (
	"context"
)

// Sales keeps a listing's sales counter in step with completed purchases.
// Every call must stand for exactly one purchase entering or leaving completed.
type Sales interface {
	Increment(ctx context.Context, listingID string) error
	Decrement(ctx context.Context, listingID string) error
}

// Counter is the catalog's atomic counter primitive.
type Counter interface {
	AdjustSales(ctx context.Context, listingID string, delta int64) error
}

type sales struct {
	counter Counter
}

func NewSales(counter Counter) Sales {
	sales := sales{counter: counter}
	return &sales
}

func (sales *sales) Increment(ctx context.Context, listingID string) error {
	return sales.counter.AdjustSales(ctx, listingID, 1)
}

func (sales *sales) Decrement(ctx context.Context, listingID string) error {
	return sales.counter.AdjustSales(ctx, listingID, -1)
}
