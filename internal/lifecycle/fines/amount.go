// Package fines parses monetary amounts and tracks fine payment state.
package fines

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts outside these bounds are treated as unparseable.
const maxAmountExponent = 32

var maxAmount = decimal.New(1, 18)

// ParseAmount accepts numbers, numeric strings and json.Number. Absent,
// empty, unparseable or out-of-range input yields zero.
func ParseAmount(raw any) decimal.Decimal {
	return bounded(parse(raw))
}

// bounded checks the exponent before anything that rescales the value.
func bounded(d decimal.Decimal) decimal.Decimal {
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return decimal.Zero
	}
	if d.Abs().Cmp(maxAmount) >= 0 {
		return decimal.Zero
	}
	return d
}

func parse(raw any) decimal.Decimal {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero
		}
		return *v
	case json.Number:
		return parseString(v.String())
	case string:
		return parseString(v)
	case *string:
		if v == nil {
			return decimal.Zero
		}
		return parseString(*v)
	case float64:
		return fromFloat(v)
	case *float64:
		if v == nil {
			return decimal.Zero
		}
		return fromFloat(*v)
	case float32:
		return fromFloat(float64(v))
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromInt(int64(v))
	case uint32:
		return decimal.NewFromInt(int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return decimal.Zero
		}
		return decimal.NewFromInt(int64(v))
	}
	return decimal.Zero
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func parseString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}

	// "SAR 1,250.00", "$12.50", "12,5"
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if strings.Contains(clean, ",") {
		if !strings.Contains(clean, ".") && isDecimalComma(clean) {
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// isDecimalComma: a single comma followed by one or two digits.
func isDecimalComma(s string) bool {
	if strings.Count(s, ",") != 1 {
		return false
	}
	tail := s[strings.Index(s, ",")+1:]
	return len(tail) == 1 || len(tail) == 2
}

// Present reports whether a candidate value was supplied at all. Blank
// strings count as absent.
func Present(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case json.Number:
		return strings.TrimSpace(v.String()) != ""
	case *string:
		return v != nil && strings.TrimSpace(*v) != ""
	case *float64:
		return v != nil
	case *decimal.Decimal:
		return v != nil
	}
	return true
}

// ResolveAmount returns the first present candidate, parsed. Negative
// amounts clamp to zero.
func ResolveAmount(candidates ...any) decimal.Decimal {
	for _, c := range candidates {
		if !Present(c) {
			continue
		}
		d := ParseAmount(c)
		if d.IsNegative() {
			return decimal.Zero
		}
		return d
	}
	return decimal.Zero
}
