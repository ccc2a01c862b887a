package units

import (
	"encoding/json"
	"fmt"

	"graphmix/pkg/domain"
)

// Validator coerces loosely typed input into a Quantity of one class.
type Validator struct {
	sys         *System
	class       Class
	defaultUnit Unit
	hasDefault  bool
}

// Validator returns a validator for c that attaches the system's default
// unit of c to bare numbers.
func (s *System) Validator(c Class) Validator {
	u, ok := s.defaults[c.Name]
	return Validator{sys: s, class: c, defaultUnit: u, hasDefault: ok}
}

// ValidatorWithDefault returns a validator for c that attaches unit to bare
// numbers. The unit must belong to c.
func (s *System) ValidatorWithDefault(c Class, unit string) (Validator, error) {
	u, err := s.ParseUnit(unit)
	if err != nil {
		return Validator{}, err
	}
	if u.Dim != c.Dim {
		return Validator{}, domain.DimensionalityError{Expected: c.Dim.String(), For: c.Name, Got: u.Dim.String()}
	}
	return Validator{sys: s, class: c, defaultUnit: u, hasDefault: true}, nil
}

// Class returns the class the validator enforces.
func (v Validator) Class() Class { return v.class }

// Coerce accepts a Quantity, a quantity string or a bare number and checks
// that the result belongs to the validator's class.
func (v Validator) Coerce(value any) (Quantity, error) {
	var q Quantity
	switch x := value.(type) {
	case Quantity:
		q = x
	case *Quantity:
		if x == nil {
			return Quantity{}, fmt.Errorf("units: nil quantity for %s", v.class.Name)
		}
		q = *x
	case string:
		parsed, err := v.sys.Parse(x)
		if err != nil {
			return Quantity{}, err
		}
		q = v.attachDefault(parsed)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Quantity{}, fmt.Errorf("units: %w", err)
		}
		q = v.bare(f)
	case float64:
		q = v.bare(x)
	case float32:
		q = v.bare(float64(x))
	case int:
		q = v.bare(float64(x))
	case int64:
		q = v.bare(float64(x))
	case int32:
		q = v.bare(float64(x))
	default:
		return Quantity{}, fmt.Errorf("units: cannot coerce %T into %s", value, v.class.Name)
	}
	return v.Check(q)
}

// Check rejects q unless it belongs to the validator's class.
func (v Validator) Check(q Quantity) (Quantity, error) {
	if q.Dim() != v.class.Dim {
		return Quantity{}, domain.DimensionalityError{Expected: v.class.Dim.String(), For: v.class.Name, Got: q.Dim().String()}
	}
	return q, nil
}

func (v Validator) bare(f float64) Quantity {
	if v.hasDefault {
		return Quantity{Magnitude: f, Unit: v.defaultUnit}
	}
	return Quantity{Magnitude: f, Unit: Dimensionless}
}

func (v Validator) attachDefault(q Quantity) Quantity {
	if q.Unit.Symbol == "" {
		return v.bare(q.Magnitude)
	}
	return q
}
