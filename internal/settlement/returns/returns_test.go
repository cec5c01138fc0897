package returns

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/stock-bet-settlement/internal/settlement/failure"
	"github.com/radieske/stock-bet-settlement/internal/settlement/marketdata"
)

func quote(close, adj float64) marketdata.Quote {
	return marketdata.Quote{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: close, AdjClose: adj}
}

func TestCalculate(t *testing.T) {
	r, err := Calculate(quote(100, 100), quote(110, 110))
	require.NoError(t, err)
	assert.InDelta(t, 0.10, r.Raw, 1e-12)
	assert.Equal(t, 0.10, r.Rounded)

	r, err = Calculate(quote(200, 200), quote(150, 150))
	require.NoError(t, err)
	assert.InDelta(t, -0.25, r.Raw, 1e-12)
	assert.Equal(t, -0.25, r.Rounded)
}

func TestCalculate_UsesAdjustedClose(t *testing.T) {
	r, err := Calculate(quote(100, 50), quote(110, 55))
	require.NoError(t, err)
	assert.InDelta(t, 0.10, r.Raw, 1e-12)
}

func TestCalculate_InvalidPrices(t *testing.T) {
	cases := []struct {
		name       string
		start, end marketdata.Quote
	}{
		{"zero start", quote(0, 0), quote(110, 110)},
		{"zero adjusted start", quote(100, 0), quote(110, 110)},
		{"negative start", quote(-1, -1), quote(110, 110)},
		{"nan start", quote(math.NaN(), math.NaN()), quote(110, 110)},
		{"missing end", quote(100, 100), quote(0, 0)},
		{"infinite end", quote(100, 100), quote(math.Inf(1), math.Inf(1))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Calculate(tc.start, tc.end)
			require.Error(t, err)
			assert.Equal(t, failure.KindInvalidPrice, failure.KindOf(err))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, 0.1234, Truncate(0.123456))
	assert.Equal(t, -0.1234, Truncate(-0.123456))
	assert.Equal(t, 0.29, Truncate(0.29))
	assert.Equal(t, 0.0, Truncate(0.00009))
	assert.Equal(t, 0.0, Truncate(0))
}
