package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hexastock/internal/errors"
)

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(map[string]decimal.Decimal{"aapl": decimal.NewFromInt(190)})

	quote, err := p.GetPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(190)))
	assert.False(t, quote.AsOf.IsZero())

	_, err = p.GetPrice(context.Background(), "MSFT")
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))

	p.SetPrice("msft", decimal.NewFromInt(410))
	quote, err = p.GetPrice(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(410)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.GetPrice(ctx, "AAPL")
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))
}
