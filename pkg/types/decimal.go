package types

import (
	"fmt"

	shopspring "github.com/shopspring/decimal"
)

// ParseDecimal parses a decimal literal (as it appears in a pipeline config
// file or a SQL literal) using shopspring/decimal's arbitrary-precision
// parser, then lowers it into weir's internal fixed-point Decimal
// representation (unscaled mantissa + scale) for storage and index
// encoding. shopspring/decimal is the user-facing parsing/formatting
// surface; the internal Decimal type is purely an encoding detail (see
// DESIGN.md).
func ParseDecimal(literal string) (Decimal, error) {
	d, err := shopspring.NewFromString(literal)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal literal %q: %w", literal, err)
	}
	return Decimal{
		Unscaled: d.Coefficient(),
		Scale:    -d.Exponent(),
	}, nil
}

// ToShopspring converts weir's internal Decimal back into a
// shopspring/decimal value for formatting in logs and query results.
func (d Decimal) ToShopspring() shopspring.Decimal {
	if d.Unscaled == nil {
		return shopspring.Zero
	}
	return shopspring.NewFromBigInt(d.Unscaled, -d.Scale)
}
