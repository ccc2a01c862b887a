package mix

import (
	"graphmix/pkg/chem"
	"graphmix/pkg/units"
)

// Kind tags what a Component holds.
type Kind int

const (
	KindChemical Kind = iota + 1
	KindSolution
)

func (k Kind) String() string {
	switch k {
	case KindChemical:
		return "chemical"
	case KindSolution:
		return "solution"
	default:
		return "unknown"
	}
}

// Component is either a raw chemical or a nested solution.
type Component struct {
	Kind     Kind
	Chemical chem.Chemical
	Solution *Solution
}

// ChemicalComponent wraps a chemical.
func ChemicalComponent(c chem.Chemical) Component {
	return Component{Kind: KindChemical, Chemical: c}
}

// SolutionComponent wraps a solution.
func SolutionComponent(s *Solution) Component {
	return Component{Kind: KindSolution, Solution: s}
}

// Name is the graph key of the component.
func (c Component) Name() string {
	switch c.Kind {
	case KindChemical:
		return c.Chemical.Name
	case KindSolution:
		if c.Solution != nil {
			return c.Solution.Name()
		}
	}
	return ""
}

// Amount pairs a component with the concentration it is added at.
type Amount struct {
	Component     Component
	Concentration units.Quantity
}
