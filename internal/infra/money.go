package infra

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Monetary values are stored as integer cents in numeric(15,0) columns.

// NumericToCents converts a numeric(15,0) cents column. NULL yields nil.
// Fractional digits are truncated; values outside int64 are an error.
func NumericToCents(n pgtype.Numeric) (*int64, error) {
	if !n.Valid {
		return nil, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, fmt.Errorf("numeric value is not finite")
	}

	bi := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		bi.Mul(bi, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		bi.Quo(bi, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil))
	}

	if !bi.IsInt64() {
		return nil, fmt.Errorf("numeric value %s overflows int64", bi.String())
	}
	v := bi.Int64()
	return &v, nil
}

// CentsToNumeric converts cents for writing to a numeric(15,0) column.
func CentsToNumeric(cents int64) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              big.NewInt(cents),
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}

// ParseAmountCents parses a decimal amount such as "12.5" or "-3.05" into cents.
// At most two fractional digits are accepted.
func ParseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := strings.HasPrefix(s, "-")
	body := strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	whole, frac, _ := strings.Cut(body, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q: more than 2 decimal places", s)
	}
	if whole == "" {
		whole = "0"
	}
	frac += strings.Repeat("0", 2-len(frac))

	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("invalid amount %q", s)
			}
		}
	}

	cents, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}
