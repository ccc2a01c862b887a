package mix

import (
	"sort"

	"graphmix/pkg/chem"
	"graphmix/pkg/units"
)

// Entry is the resolved amount of one chemical.
type Entry struct {
	Chemical chem.Chemical
	Amount   units.Quantity
}

// Composition is keyed by chemical name. A chemical appears either among
// the solutes (mass or molar concentration) or the solvents (percent).
type Composition struct {
	Solutes  map[string]Entry
	Solvents map[string]Entry
}

// Lookup returns the stored amount of a chemical.
func (c Composition) Lookup(name string) (Entry, bool) {
	if e, ok := c.Solutes[name]; ok {
		return e, true
	}
	e, ok := c.Solvents[name]
	return e, ok
}

// Of returns the amount of the named chemical, or zero mg/mL when absent.
// With toUnit set the value is converted; a molar concentration converts to
// a mass concentration through the chemical's molar mass. compact rescales
// the SI prefix of the result.
func (c Composition) Of(name, toUnit string, compact bool) (units.Quantity, error) {
	entry, found := c.Lookup(name)
	ret := entry.Amount
	if !found {
		zero := "mg/mL"
		if toUnit != "" {
			zero = toUnit
		}
		q, err := units.New(0, zero)
		if err != nil {
			return units.Quantity{}, err
		}
		ret = q
	}
	if toUnit != "" {
		u, err := units.ParseUnit(toUnit)
		if err != nil {
			return units.Quantity{}, err
		}
		if found && u.Dim == units.MassConcentration.Dim && ret.Dim() == units.MolarConcentration.Dim {
			ret = ret.Mul(entry.Chemical.MolarMass)
		}
		if ret, err = ret.ToUnit(u); err != nil {
			return units.Quantity{}, err
		}
	}
	if compact {
		ret = ret.Compact()
	}
	return ret, nil
}

// OfChemical is Of keyed by a chemical value.
func (c Composition) OfChemical(ch chem.Chemical, toUnit string, compact bool) (units.Quantity, error) {
	return c.Of(ch.Name, toUnit, compact)
}

// Equal reports whether every entry of c has the same amount in other.
// The check is one-directional: other may hold chemicals c lacks.
func (c Composition) Equal(other Composition) bool {
	for _, m := range []map[string]Entry{c.Solutes, c.Solvents} {
		for name, e := range m {
			got, err := other.Of(name, "", false)
			if err != nil || !e.Amount.Equal(got) {
				return false
			}
		}
	}
	return true
}

// SymmetricEqual holds when both compositions hold the same chemicals at the
// same amounts.
func (c Composition) SymmetricEqual(other Composition) bool {
	return c.Equal(other) && other.Equal(c)
}

// SoluteNames returns solute names, sorted.
func (c Composition) SoluteNames() []string { return sortedKeys(c.Solutes) }

// SolventNames returns solvent names, sorted.
func (c Composition) SolventNames() []string { return sortedKeys(c.Solvents) }

func sortedKeys(m map[string]Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
