package units

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"graphmix/pkg/domain"

	"gopkg.in/yaml.v3"
)

// Quantity is a magnitude paired with a unit. Arithmetic between quantities
// of different dimensionality fails with a domain.DimensionalityError.
type Quantity struct {
	Magnitude float64
	Unit      Unit
}

// Dim returns the quantity's dimension.
func (q Quantity) Dim() Dimension { return q.Unit.Dim }

// Is reports whether q belongs to class c.
func (q Quantity) Is(c Class) bool { return q.Unit.Dim == c.Dim }

// IsZero reports a zero magnitude.
func (q Quantity) IsZero() bool { return q.Magnitude == 0 }

func (q Quantity) base() float64 { return q.Magnitude * q.Unit.factor() }

// Base returns the magnitude expressed in base units (g, mol, L, s).
func (q Quantity) Base() float64 { return q.base() }

func mismatch(want Dimension, op string, got Dimension) error {
	return domain.DimensionalityError{Expected: want.String(), For: op, Got: got.String()}
}

// ToUnit converts q into u.
func (q Quantity) ToUnit(u Unit) (Quantity, error) {
	if q.Dim() != u.Dim {
		return Quantity{}, mismatch(u.Dim, "conversion to "+u.String(), q.Dim())
	}
	return Quantity{Magnitude: q.Magnitude * (q.Unit.factor() / u.factor()), Unit: u}, nil
}

// To converts q into the unit expression, parsed with the default System.
func (q Quantity) To(unit string) (Quantity, error) {
	u, err := ParseUnit(unit)
	if err != nil {
		return Quantity{}, err
	}
	return q.ToUnit(u)
}

// Add returns q+o expressed in q's unit.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if q.Dim() != o.Dim() {
		return Quantity{}, mismatch(q.Dim(), "addition", o.Dim())
	}
	return Quantity{Magnitude: q.Magnitude + o.Magnitude*(o.Unit.factor()/q.Unit.factor()), Unit: q.Unit}, nil
}

// Sub returns q-o expressed in q's unit.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	return q.Add(o.Scale(-1))
}

// Scale multiplies the magnitude by f.
func (q Quantity) Scale(f float64) Quantity {
	return Quantity{Magnitude: q.Magnitude * f, Unit: q.Unit}
}

// Mul multiplies two quantities. A dimensionless operand scales the other
// one; otherwise the result carries a compound unit.
func (q Quantity) Mul(o Quantity) Quantity {
	switch {
	case o.Dim().Dimensionless():
		return Quantity{Magnitude: q.Magnitude * o.base(), Unit: q.Unit}
	case q.Dim().Dimensionless():
		return Quantity{Magnitude: o.Magnitude * q.base(), Unit: o.Unit}
	}
	dim := q.Dim().Mul(o.Dim())
	if dim.Dimensionless() {
		return Quantity{Magnitude: q.base() * o.base(), Unit: Dimensionless}
	}
	return Quantity{
		Magnitude: q.Magnitude * o.Magnitude,
		Unit:      Unit{Symbol: compound(q.Unit, "*", o.Unit), Dim: dim, Scale: q.Unit.factor() * o.Unit.factor()},
	}
}

// Div divides q by o. Dividing quantities of the same dimension yields a
// plain ratio.
func (q Quantity) Div(o Quantity) Quantity {
	if o.Dim().Dimensionless() {
		return Quantity{Magnitude: q.Magnitude / o.base(), Unit: q.Unit}
	}
	dim := q.Dim().Div(o.Dim())
	if dim.Dimensionless() {
		return Quantity{Magnitude: q.base() / o.base(), Unit: Dimensionless}
	}
	if q.Dim().Dimensionless() {
		return Quantity{
			Magnitude: q.base() / o.Magnitude,
			Unit:      Unit{Symbol: compound(Unit{Symbol: "1"}, "/", o.Unit), Dim: dim, Scale: 1 / o.Unit.factor()},
		}
	}
	return Quantity{
		Magnitude: q.Magnitude / o.Magnitude,
		Unit:      Unit{Symbol: compound(q.Unit, "/", o.Unit), Dim: dim, Scale: q.Unit.factor() / o.Unit.factor()},
	}
}

func compound(a Unit, op string, b Unit) string {
	wrap := func(s string) string {
		if strings.ContainsAny(s, "*/") {
			return "(" + s + ")"
		}
		return s
	}
	return wrap(a.Symbol) + op + wrap(b.Symbol)
}

// Cmp compares q and o after conversion to base units.
func (q Quantity) Cmp(o Quantity) (int, error) {
	if q.Dim() != o.Dim() {
		return 0, mismatch(q.Dim(), "comparison", o.Dim())
	}
	a, b := q.base(), o.base()
	switch {
	case closeTo(a, b):
		return 0, nil
	case a < b:
		return -1, nil
	default:
		return 1, nil
	}
}

// Equal reports whether q and o describe the same physical amount.
func (q Quantity) Equal(o Quantity) bool {
	if q.Dim() != o.Dim() {
		return false
	}
	return closeTo(q.base(), o.base())
}

// Compact rescales the SI prefix of a simple unit, or of the numerator of a
// ratio, so the magnitude falls in [1, 1000) when a prefix allows it.
func (q Quantity) Compact() Quantity {
	if q.Magnitude == 0 || math.IsInf(q.Magnitude, 0) || math.IsNaN(q.Magnitude) {
		return q
	}
	head, rest := q.Unit.Symbol, ""
	if i := strings.Index(head, "/"); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	if strings.ContainsAny(head, "*()^") {
		return q
	}
	pscale, name, ok := defaultSystem.splitPrefix(head)
	if !ok {
		return q
	}
	base := q.Magnitude * pscale
	chosen := compactPrefixes[len(compactPrefixes)-1]
	for _, cand := range compactPrefixes {
		if math.Abs(base/cand.scale) >= 1 {
			chosen = cand
			break
		}
	}
	u, err := defaultSystem.ParseUnit(chosen.symbol + name + rest)
	if err != nil {
		return q
	}
	return Quantity{Magnitude: q.Magnitude * (pscale / chosen.scale), Unit: u}
}

// String returns the canonical "<magnitude> <unit>" form. Dimensionless
// quantities print their magnitude alone.
func (q Quantity) String() string {
	mag := strconv.FormatFloat(q.Magnitude, 'g', -1, 64)
	if q.Unit.Symbol == "" {
		return mag
	}
	return mag + " " + q.Unit.Symbol
}

// MarshalJSON encodes the canonical string form.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON accepts the canonical string form or a bare number.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var f float64
		if ferr := json.Unmarshal(b, &f); ferr != nil {
			return fmt.Errorf("units: decode quantity: %w", err)
		}
		*q = Quantity{Magnitude: f, Unit: Dimensionless}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// MarshalYAML encodes the canonical string form.
func (q Quantity) MarshalYAML() (any, error) {
	return q.String(), nil
}

// UnmarshalYAML accepts the canonical string form or a bare number.
func (q *Quantity) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("units: decode quantity: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
