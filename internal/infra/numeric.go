package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// NumericToDecimal converts a pgtype.Numeric (from PostgreSQL numeric(18,2))
// to a decimal.Decimal. Returns an error on NULL, NaN or infinity.
func NumericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Decimal{}, fmt.Errorf("numeric value is NULL")
	}
	if n.NaN {
		return decimal.Decimal{}, fmt.Errorf("numeric value is NaN")
	}
	if n.InfinityModifier != pgtype.Finite {
		return decimal.Decimal{}, fmt.Errorf("numeric value is infinite")
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

// maxNumeric is the first value that no longer fits a numeric(18,2) column.
var maxNumeric = decimal.New(1, 16)

// DecimalToNumeric converts a decimal.Decimal to pgtype.Numeric for writing
// to PostgreSQL numeric(18,2) columns. Values too wide for the column are
// rejected here instead of surfacing as a driver error.
func DecimalToNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	if d.Abs().GreaterThanOrEqual(maxNumeric) {
		return pgtype.Numeric{}, fmt.Errorf("value %s exceeds numeric(18,2)", d)
	}
	return pgtype.Numeric{
		Int:              new(big.Int).Set(d.Coefficient()),
		Exp:              d.Exponent(),
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}, nil
}
