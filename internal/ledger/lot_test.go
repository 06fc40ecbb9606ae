package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustLot(t *testing.T, qty, cost string, at time.Time) Lot {
	t.Helper()
	lot, err := NewLot(d(qty), d(cost), at)
	require.NoError(t, err)
	return lot
}

func TestConsumeFIFO_SpansLots(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	h := NewHolding(" aapl ")
	require.NoError(t, h.AddLot(mustLot(t, "10", "1", t0)))
	require.NoError(t, h.AddLot(mustLot(t, "5", "2", t0.Add(time.Hour))))

	result, err := h.ConsumeFIFO(d("12"))
	require.NoError(t, err)

	assert.Equal(t, "AAPL", h.Symbol)
	assert.True(t, result.Cost.Equal(d("14")), "consumed cost = %s", result.Cost)
	require.Len(t, result.Consumed, 2)
	assert.True(t, result.Consumed[0].Quantity.Equal(d("10")))
	assert.True(t, result.Consumed[1].Quantity.Equal(d("2")))

	require.Len(t, h.Lots, 1)
	assert.True(t, h.Lots[0].Quantity.Equal(d("3")))
	assert.True(t, h.Lots[0].UnitCost.Equal(d("2")))
}

func TestConsumeFIFO_ExactAndFull(t *testing.T) {
	t0 := time.Now()
	h := NewHolding("MSFT")
	require.NoError(t, h.AddLot(mustLot(t, "10", "1", t0)))

	result, err := h.ConsumeFIFO(d("10"))
	require.NoError(t, err)
	assert.True(t, result.Cost.Equal(d("10")))
	assert.True(t, h.IsEmpty())
	assert.True(t, h.TotalQuantity().IsZero())
	assert.True(t, h.AverageUnitCost().IsZero())
}

func TestConsumeFIFO_RejectsWithoutMutation(t *testing.T) {
	h := NewHolding("MSFT")
	require.NoError(t, h.AddLot(mustLot(t, "4", "3", time.Now())))
	before := h.Clone()

	_, err := h.ConsumeFIFO(d("5"))
	assert.True(t, errors.Is(err, ErrInsufficientQuantity))

	_, err = h.ConsumeFIFO(d("0"))
	assert.True(t, errors.Is(err, ErrNonPositiveQuantity))

	assert.Equal(t, before, h)
}

func TestAddLot_OrdersByAcquisitionThenCreation(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	h := NewHolding("X")
	first := mustLot(t, "1", "1", t0)
	second := mustLot(t, "1", "2", t0)
	earlier := mustLot(t, "1", "3", t0.Add(-time.Minute))

	require.NoError(t, h.AddLot(first))
	require.NoError(t, h.AddLot(second))
	require.NoError(t, h.AddLot(earlier))

	ids := []string{h.Lots[0].ID, h.Lots[1].ID, h.Lots[2].ID}
	assert.Equal(t, []string{earlier.ID, first.ID, second.ID}, ids)
}

func TestNewLot_Validation(t *testing.T) {
	_, err := NewLot(d("-1"), d("1"), time.Now())
	assert.True(t, errors.Is(err, ErrNonPositiveQuantity))

	_, err = NewLot(d("1"), d("-0.01"), time.Now())
	assert.True(t, errors.Is(err, ErrNegativeUnitCost))

	lot, err := NewLot(d("2"), d("0"), time.Now())
	require.NoError(t, err)
	assert.True(t, lot.Cost().IsZero())
}

func TestClone_IsIndependent(t *testing.T) {
	h := NewHolding("X")
	require.NoError(t, h.AddLot(mustLot(t, "5", "1", time.Now())))

	c := h.Clone()
	_, err := c.ConsumeFIFO(d("2"))
	require.NoError(t, err)

	assert.True(t, h.TotalQuantity().Equal(d("5")))
	assert.True(t, c.TotalQuantity().Equal(d("3")))
}

// Quantity and cost are conserved: held + consumed always equals bought.
func TestHolding_ConservationProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("bought = held + sold for quantity and cost", prop.ForAll(
		func(buys []int, sellPercents []int) bool {
			h := NewHolding("PROP")
			t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			boughtQty := decimal.Zero
			boughtCost := decimal.Zero
			for i, q := range buys {
				qty := decimal.NewFromInt(int64(q))
				cost := decimal.NewFromInt(int64(i%7 + 1)).Div(decimal.NewFromInt(4))
				lot, err := NewLot(qty, cost, t0.Add(time.Duration(i)*time.Minute))
				if err != nil || h.AddLot(lot) != nil {
					return false
				}
				boughtQty = boughtQty.Add(qty)
				boughtCost = boughtCost.Add(qty.Mul(cost))
			}

			soldQty := decimal.Zero
			soldCost := decimal.Zero
			for _, p := range sellPercents {
				held := h.TotalQuantity()
				qty := held.Mul(decimal.NewFromInt(int64(p))).Div(decimal.NewFromInt(100)).Floor()
				if !qty.IsPositive() {
					continue
				}
				res, err := h.ConsumeFIFO(qty)
				if err != nil {
					return false
				}
				soldQty = soldQty.Add(qty)
				soldCost = soldCost.Add(res.Cost)

				for _, lot := range h.Lots {
					if !lot.Quantity.IsPositive() {
						return false
					}
				}
			}

			return h.TotalQuantity().Add(soldQty).Equal(boughtQty) &&
				h.CostBasis().Add(soldCost).Equal(boughtCost)
		},
		gen.SliceOf(gen.IntRange(1, 500)),
		gen.SliceOf(gen.IntRange(1, 100)),
	))

	properties.TestingRun(t)
}
