package decimal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundWithPrecisionModes(t *testing.T) {
	v, err := NewFromString("1.2356")
	require.NoError(t, err)

	require.True(t, RoundWithPrecision(v, 2, Floor).Equal(New(123, -2)))
	require.True(t, RoundWithPrecision(v, 2, Ceiling).Equal(New(124, -2)))
	require.True(t, RoundWithPrecision(v, 2, ToNearest).Equal(New(124, -2)))
}

func TestRoundCeilingNegativeTruncatesTowardZero(t *testing.T) {
	v, err := NewFromString("-1.231")
	require.NoError(t, err)
	require.True(t, RoundWithPrecision(v, 2, Ceiling).Equal(New(-123, -2)))
}

func TestRoundFloorNegativeRoundsAwayFromZero(t *testing.T) {
	v, err := NewFromString("-1.231")
	require.NoError(t, err)
	require.True(t, RoundWithPrecision(v, 2, Floor).Equal(New(-124, -2)), "floor of -1.231 at 2 places must be -1.24, not -1.23")
}

func TestIsNegativeBeyond(t *testing.T) {
	margin, err := NewFromString("0.00000001")
	require.NoError(t, err)

	withinMargin, err := NewFromString("-0.000000005")
	require.NoError(t, err)
	require.False(t, IsNegativeBeyond(withinMargin, margin))

	beyondMargin, err := NewFromString("-0.01")
	require.NoError(t, err)
	require.True(t, IsNegativeBeyond(beyondMargin, margin))
}

func TestAbsMaxMin(t *testing.T) {
	a := NewFromInt(-5)
	b := NewFromInt(3)

	require.True(t, Abs(a).Equal(NewFromInt(5)))
	require.True(t, Max(a, b).Equal(b))
	require.True(t, Min(a, b).Equal(a))
}

func TestClampNonNegative(t *testing.T) {
	require.True(t, ClampNonNegative(NewFromInt(-5)).Equal(Zero))
	require.True(t, ClampNonNegative(NewFromInt(5)).Equal(NewFromInt(5)))
}
