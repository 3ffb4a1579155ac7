package units

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMicro(t *testing.T) {
	t.Run("whole tokens", func(t *testing.T) {
		assert.Equal(t, int64(4_000_000), ToMicro(decimal.NewFromInt(4)))
	})

	t.Run("fractional tokens", func(t *testing.T) {
		d, err := decimal.NewFromString("2.5")
		require.NoError(t, err)
		assert.Equal(t, int64(2_500_000), ToMicro(d))
	})

	t.Run("floors below one micro-token", func(t *testing.T) {
		d, err := decimal.NewFromString("0.0000004")
		require.NoError(t, err)
		assert.Equal(t, int64(0), ToMicro(d))
	})

	t.Run("float construction stays exact", func(t *testing.T) {
		// 0.1 is not representable in binary floating point; the
		// decimal path must still produce exactly 100000 micro.
		assert.Equal(t, int64(100_000), ToMicro(decimal.NewFromFloat(0.1)))
	})
}

func TestToDisplay(t *testing.T) {
	assert.True(t, decimal.NewFromInt(10).Equal(ToDisplay(10_000_000)))

	half, err := decimal.NewFromString("0.5")
	require.NoError(t, err)
	assert.True(t, half.Equal(ToDisplay(500_000)))
}

func TestRoundTrip(t *testing.T) {
	for _, micro := range []int64{0, 1, 5, 999_999, 1_000_000, 10_000_000} {
		assert.Equal(t, micro, ToMicro(ToDisplay(micro)))
	}
}

func TestDisplayFloat(t *testing.T) {
	assert.Equal(t, 10.0, DisplayFloat(10_000_000))
	assert.Equal(t, 0.000005, DisplayFloat(5))
}
