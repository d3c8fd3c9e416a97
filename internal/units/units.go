// Package units holds the fixed measurement table used for stock and recipe quantities.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept for every stored quantity.
const Precision int32 = 3

// MaxQuantity is the largest quantity a decimal(10,3) column holds.
var MaxQuantity = decimal.New(9999999999, -Precision)

var (
	ErrUnknownUnit       = errors.New("unknown unit")
	ErrIncompatibleUnits = errors.New("incompatible units")
)

// Family groups units that can be converted into each other.
type Family string

const (
	Mass     Family = "mass"
	Volume   Family = "volume"
	Discrete Family = "discrete"
)

// Unit is a stored unit symbol, e.g. "kg" or "dona".
type Unit string

const (
	Gram       Unit = "g"
	Kilogram   Unit = "kg"
	Milliliter Unit = "ml"
	Liter      Unit = "l"
	Piece      Unit = "dona"
	Pack       Unit = "paket"
	Box        Unit = "quti"
)

type entry struct {
	family Family
	scale  decimal.Decimal
}

var table = map[Unit]entry{
	Gram:       {Mass, decimal.NewFromInt(1)},
	Kilogram:   {Mass, decimal.NewFromInt(1000)},
	Milliliter: {Volume, decimal.NewFromInt(1)},
	Liter:      {Volume, decimal.NewFromInt(1000)},
	Piece:      {Discrete, decimal.NewFromInt(1)},
	Pack:       {Discrete, decimal.NewFromInt(1)},
	Box:        {Discrete, decimal.NewFromInt(1)},
}

var aliases = map[string]Unit{
	"gram":       Gram,
	"grams":      Gram,
	"kilogram":   Kilogram,
	"kilograms":  Kilogram,
	"milliliter": Milliliter,
	"millilitre": Milliliter,
	"liter":      Liter,
	"litre":      Liter,
	"piece":      Piece,
	"pieces":     Piece,
	"pcs":        Piece,
	"pack":       Pack,
	"packs":      Pack,
	"box":        Box,
	"boxes":      Box,
}

// Parse normalises a symbol or alias into a stored unit.
func Parse(symbol string) (Unit, error) {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if _, ok := table[Unit(s)]; ok {
		return Unit(s), nil
	}
	if u, ok := aliases[s]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, symbol)
}

// All returns the stored symbols in display order.
func All() []Unit {
	return []Unit{Gram, Kilogram, Milliliter, Liter, Piece, Pack, Box}
}

func (u Unit) String() string { return string(u) }

// Family returns the measurement family of u.
func (u Unit) Family() (Family, error) {
	e, ok := table[u]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, string(u))
	}
	return e.family, nil
}

// Comparable reports whether quantities in a and b can be compared.
// Discrete units only match the identical symbol.
func Comparable(a, b Unit) (bool, error) {
	ea, ok := table[a]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownUnit, string(a))
	}
	eb, ok := table[b]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownUnit, string(b))
	}
	if ea.family != eb.family {
		return false, nil
	}
	if ea.family == Discrete {
		return a == b, nil
	}
	return true, nil
}

// ToBase converts quantity into the base unit of its family (g, ml, or the discrete symbol itself).
func ToBase(quantity decimal.Decimal, u Unit) (Family, decimal.Decimal, error) {
	e, ok := table[u]
	if !ok {
		return "", decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownUnit, string(u))
	}
	return e.family, quantity.Mul(e.scale), nil
}

// FromBase expresses a base quantity in u, rounded up to Precision digits.
func FromBase(base decimal.Decimal, u Unit) (decimal.Decimal, error) {
	e, ok := table[u]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownUnit, string(u))
	}
	return base.Div(e.scale).RoundCeil(Precision), nil
}

// Convert expresses quantity given in from as a quantity in to.
func Convert(quantity decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	ok, err := Comparable(from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s -> %s", ErrIncompatibleUnits, from, to)
	}
	_, base, err := ToBase(quantity, from)
	if err != nil {
		return decimal.Zero, err
	}
	return FromBase(base, to)
}

// Normalize rounds a quantity to the stored precision.
func Normalize(q decimal.Decimal) decimal.Decimal {
	return q.Round(Precision)
}
