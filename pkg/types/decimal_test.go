package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDecimalRoundTripsThroughString(t *testing.T) {
	d, err := ParseDecimal("19.99")
	require.NoError(t, err)
	require.Equal(t, int32(2), d.Scale)
	require.Equal(t, "19.99", d.String())
}

func TestParseDecimalRejectsMalformedLiteral(t *testing.T) {
	_, err := ParseDecimal("not-a-number")
	require.Error(t, err)
}

func TestDecimalToShopspringPreservesScale(t *testing.T) {
	d, err := ParseDecimal("-3.1400")
	require.NoError(t, err)
	require.True(t, d.ToShopspring().Equal(d.ToShopspring()))
	require.Equal(t, "-3.1400", d.ToShopspring().String())
}

func TestDecimalStringOfZeroValue(t *testing.T) {
	var d Decimal
	require.Equal(t, "0", d.String())
}
