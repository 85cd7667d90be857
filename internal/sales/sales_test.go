package sales

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type counterStub struct {
	deltas map[string][]int64
	err    error
}

func (c *counterStub) AdjustSales(_ context.Context, listingID string, delta int64) error {
	if c.err != nil {
		return c.err
	}
	if c.deltas == nil {
		c.deltas = make(map[string][]int64)
	}
	c.deltas[listingID] = append(c.deltas[listingID], delta)
	return nil
}

func TestSales(t *testing.T) {
	ctx := context.Background()
	counter := &counterStub{}
	sales := NewSales(counter)

	require.NoError(t, sales.Increment(ctx, "listing-1"))
	require.NoError(t, sales.Increment(ctx, "listing-1"))
	require.NoError(t, sales.Decrement(ctx, "listing-1"))
	require.NoError(t, sales.Increment(ctx, "listing-2"))

	require.Equal(t, []int64{1, 1, -1}, counter.deltas["listing-1"])
	require.Equal(t, []int64{1}, counter.deltas["listing-2"])

	counter.err = errors.New("db down")
	require.ErrorIs(t, sales.Increment(ctx, "listing-1"), counter.err)
}
