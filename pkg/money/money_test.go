package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalize_HalfUp(t *testing.T) {
	cases := map[string]string{
		"10.005":  "10.01",
		"10.004":  "10.00",
		"10.0049": "10.00",
		"-3.335":  "-3.34",
		"0":       "0",
	}
	for in, want := range cases {
		got := Normalize(decimal.RequireFromString(in))
		require.True(t, got.Equal(decimal.RequireFromString(want)), "input %s got %s", in, got)
	}
}

func TestFromCents(t *testing.T) {
	require.Equal(t, "12.34", FromCents(1234).String())
	require.Equal(t, "-0.05", FromCents(-5).String())
}

func TestDelta(t *testing.T) {
	reported := decimal.RequireFromString("100.005")
	local := decimal.RequireFromString("100.01")
	require.True(t, Delta(reported, local).IsZero())

	d := Delta(decimal.RequireFromString("8.5"), decimal.RequireFromString("10"))
	require.True(t, d.Equal(decimal.RequireFromString("-1.5")), "got %s", d)
}

func TestEqual_NormalizesBeforeCompare(t *testing.T) {
	require.True(t, Equal(decimal.RequireFromString("5.004"), decimal.RequireFromString("5.0001")))
	require.False(t, Equal(decimal.RequireFromString("5.005"), decimal.RequireFromString("5.00")))
}
