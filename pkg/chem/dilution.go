package chem

import (
	"fmt"

	"graphmix/pkg/domain"
	"graphmix/pkg/units"
)

// Dilution is the c1·v1 = c2·v2 relation with exactly one unknown term left
// nil. C1 and C2 are concentrations, V1 and V2 volumes.
type Dilution struct {
	C1 *units.Quantity
	V1 *units.Quantity
	C2 *units.Quantity
	V2 *units.Quantity
}

// Term is a convenience for filling Dilution fields from values.
func Term(q units.Quantity) *units.Quantity { return &q }

// Solve returns the missing term expressed in the default System.
func (d Dilution) Solve() (units.Quantity, error) {
	return d.SolveIn(units.Default())
}

// SolveIn returns the missing term expressed in the default unit of its class
// in sys.
func (d Dilution) SolveIn(sys *units.System) (units.Quantity, error) {
	missing := 0
	for _, t := range []*units.Quantity{d.C1, d.V1, d.C2, d.V2} {
		if t == nil {
			missing++
		}
	}
	if missing != 1 {
		return units.Quantity{}, fmt.Errorf("%w: expected exactly one unknown term, got %d", domain.ErrInvalidDilutionInput, missing)
	}

	var (
		num     units.Quantity
		divisor units.Quantity
	)
	switch {
	case d.C1 == nil:
		num, divisor = d.C2.Mul(*d.V2), *d.V1
	case d.V1 == nil:
		if err := sameDim(*d.C1, *d.C2); err != nil {
			return units.Quantity{}, err
		}
		num, divisor = d.C2.Mul(*d.V2), *d.C1
	case d.C2 == nil:
		num, divisor = d.C1.Mul(*d.V1), *d.V2
	default:
		if err := sameDim(*d.C1, *d.C2); err != nil {
			return units.Quantity{}, err
		}
		num, divisor = d.C1.Mul(*d.V1), *d.C2
	}
	if divisor.IsZero() {
		return units.Quantity{}, fmt.Errorf("%w: division by zero %s", domain.ErrInvalidDilutionInput, divisor)
	}
	return sys.Express(num.Div(divisor)), nil
}

func sameDim(c1, c2 units.Quantity) error {
	if c1.Dim() != c2.Dim() {
		return domain.DimensionalityError{Expected: c1.Dim().String(), For: "final concentration", Got: c2.Dim().String()}
	}
	return nil
}
