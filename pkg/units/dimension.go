// Package units wraps magnitudes with physical units and checks that values
// belong to the dimensionality class an operation expects.
package units

import (
	"fmt"
	"strings"
)

// Dimension is the exponent vector of a quantity over the base dimensions
// mass, substance, length and time.
type Dimension struct {
	Mass      int
	Substance int
	Length    int
	Time      int
}

// Mul returns the dimension of a product.
func (d Dimension) Mul(o Dimension) Dimension {
	return Dimension{
		Mass:      d.Mass + o.Mass,
		Substance: d.Substance + o.Substance,
		Length:    d.Length + o.Length,
		Time:      d.Time + o.Time,
	}
}

// Div returns the dimension of a quotient.
func (d Dimension) Div(o Dimension) Dimension {
	return d.Mul(o.Pow(-1))
}

// Pow raises every exponent by n.
func (d Dimension) Pow(n int) Dimension {
	return Dimension{Mass: d.Mass * n, Substance: d.Substance * n, Length: d.Length * n, Time: d.Time * n}
}

// Dimensionless reports whether every exponent is zero.
func (d Dimension) Dimensionless() bool { return d == Dimension{} }

// String renders the dimension the way error messages print it, for example
// "[mass] / [length] ** 3".
func (d Dimension) String() string {
	if d.Dimensionless() {
		return "dimensionless"
	}
	var num, den []string
	add := func(name string, exp int) {
		switch {
		case exp > 0:
			num = append(num, dimTerm(name, exp))
		case exp < 0:
			den = append(den, dimTerm(name, -exp))
		}
	}
	add("[mass]", d.Mass)
	add("[substance]", d.Substance)
	add("[length]", d.Length)
	add("[time]", d.Time)
	out := "1"
	if len(num) > 0 {
		out = strings.Join(num, " * ")
	}
	for _, t := range den {
		out += " / " + t
	}
	return out
}

func dimTerm(name string, exp int) string {
	if exp == 1 {
		return name
	}
	return fmt.Sprintf("%s ** %d", name, exp)
}

// Class names a dimensionality that a value can be constrained to.
type Class struct {
	Name string
	Dim  Dimension
}

var (
	Mass               = Class{Name: "mass", Dim: Dimension{Mass: 1}}
	Substance          = Class{Name: "substance", Dim: Dimension{Substance: 1}}
	Volume             = Class{Name: "volume", Dim: Dimension{Length: 3}}
	Percent            = Class{Name: "percent", Dim: Dimension{}}
	MolarMass          = Class{Name: "molar mass", Dim: Dimension{Mass: 1, Substance: -1}}
	MolarConcentration = Class{Name: "molar concentration", Dim: Dimension{Substance: 1, Length: -3}}
	MassConcentration  = Class{Name: "mass concentration", Dim: Dimension{Mass: 1, Length: -3}}
	FlowRate           = Class{Name: "flow rate", Dim: Dimension{Length: 3, Time: -1}}
)

// Classes returns the built-in classes in a stable order.
func Classes() []Class {
	return []Class{Mass, Substance, Volume, Percent, MolarMass, MolarConcentration, MassConcentration, FlowRate}
}

// IsConcentration reports whether d is a mass or molar concentration.
func IsConcentration(d Dimension) bool {
	return d == MassConcentration.Dim || d == MolarConcentration.Dim
}
