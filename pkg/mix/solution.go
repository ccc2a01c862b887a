// Package mix resolves what a solution contains. A Solution is a small
// weighted graph whose nodes are chemicals and nested solutions, all pointing
// into the solution's own name; its Composition is the flattened table of
// solute concentrations and solvent percentages.
package mix

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"graphmix/pkg/chem"
	"graphmix/pkg/domain"
	"graphmix/pkg/units"
)

var (
	// ErrCycle reports a component that already depends on the solution it
	// is being added to.
	ErrCycle = errors.New("mix: component would create a cycle")
	// ErrInvalidComponent reports an empty or malformed component.
	ErrInvalidComponent = errors.New("mix: invalid component")
)

// Solution is mutated in place by its With* builders, which return the same
// pointer for chaining. Solutions are not safe for concurrent mutation.
type Solution struct {
	name       string
	g          *graph
	components map[string]Component
}

// New returns an empty solution.
func New(name string) *Solution {
	s := &Solution{name: name, g: newGraph(), components: make(map[string]Component)}
	s.g.addNode(name)
	return s
}

func (s *Solution) Name() string { return s.name }

func (s *Solution) String() string { return s.name }

// Component returns the component registered under name, including those
// merged in from nested solutions.
func (s *Solution) Component(name string) (Component, bool) {
	c, ok := s.components[name]
	return c, ok
}

// Components returns the registered component names, sorted.
func (s *Solution) Components() []string {
	out := make([]string, 0, len(s.components))
	for name := range s.components {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Chemicals returns every chemical reachable from the solution, sorted by
// name.
func (s *Solution) Chemicals() []chem.Chemical {
	var out []chem.Chemical
	for _, name := range s.Components() {
		if c := s.components[name]; c.Kind == KindChemical {
			out = append(out, c.Chemical)
		}
	}
	return out
}

// Nodes lists graph nodes in insertion order.
func (s *Solution) Nodes() []string {
	return append([]string(nil), s.g.nodes...)
}

// Edges lists graph edges in insertion order.
func (s *Solution) Edges() []Edge {
	return append([]Edge(nil), s.g.edges...)
}

// Concentration returns the weight a direct component was added at.
func (s *Solution) Concentration(component string) (units.Quantity, bool) {
	e, ok := s.g.edge(component, s.name)
	return e.Concentration, ok
}

var concentrationDims = fmt.Sprintf("%s, %s or %s", units.MassConcentration.Dim, units.MolarConcentration.Dim, units.Percent.Dim)

// WithComponent adds c with an edge of weight amount into the solution.
// Chemicals take a mass or molar concentration or a percentage; nested
// solutions only take a percentage, and their graphs are merged in.
func (s *Solution) WithComponent(c Component, amount units.Quantity) (*Solution, error) {
	name := c.Name()
	if name == "" {
		return s, fmt.Errorf("%w: component without a name", ErrInvalidComponent)
	}
	if name == s.name {
		return s, fmt.Errorf("%w: %s cannot contain itself", ErrCycle, name)
	}
	switch c.Kind {
	case KindChemical:
		if !amount.Dim().Dimensionless() && !units.IsConcentration(amount.Dim()) {
			return s, domain.DimensionalityError{Expected: concentrationDims, For: name, Got: amount.Dim().String()}
		}
	case KindSolution:
		if !amount.Dim().Dimensionless() {
			return s, domain.DimensionalityError{Expected: units.Percent.Dim.String(), For: name, Got: amount.Dim().String()}
		}
		if c.Solution.g.hasNode(s.name) {
			return s, fmt.Errorf("%w: %s already contains %s", ErrCycle, name, s.name)
		}
	default:
		return s, fmt.Errorf("%w: unknown kind %d", ErrInvalidComponent, c.Kind)
	}

	s.components[name] = c
	s.g.addNode(name)
	s.g.setEdge(name, s.name, amount)
	if c.Kind == KindSolution {
		s.g.union(c.Solution.g)
		for k, v := range c.Solution.components {
			s.components[k] = v
		}
	}
	return s, nil
}

// WithChemical adds a chemical component.
func (s *Solution) WithChemical(c chem.Chemical, amount units.Quantity) (*Solution, error) {
	return s.WithComponent(ChemicalComponent(c), amount)
}

// WithSolution adds a nested solution at a percentage.
func (s *Solution) WithSolution(sub *Solution, share units.Quantity) (*Solution, error) {
	if sub == nil {
		return s, fmt.Errorf("%w: nil solution", ErrInvalidComponent)
	}
	return s.WithComponent(SolutionComponent(sub), share)
}

// WithComponents adds every amount in order and stops at the first error.
func (s *Solution) WithComponents(amounts ...Amount) (*Solution, error) {
	for _, a := range amounts {
		if _, err := s.WithComponent(a.Component, a.Concentration); err != nil {
			return s, err
		}
	}
	return s, nil
}

// DiluteWith returns a new solution made of ratio parts of s and 1-ratio
// parts of solvent. An empty name defaults to "<s> d/ <solvent>".
func (s *Solution) DiluteWith(solvent Component, ratio float64, name string) (*Solution, error) {
	if !(ratio > 0 && ratio < 1) {
		return nil, fmt.Errorf("%w: dilution ratio %g must be between 0 and 1", domain.ErrInvalidDilutionInput, ratio)
	}
	if name == "" {
		name = s.name + " d/ " + solvent.Name()
	}
	out := New(name)
	if _, err := out.WithSolution(s, units.Percentage(ratio*100)); err != nil {
		return nil, err
	}
	if _, err := out.WithComponent(solvent, units.Percentage((1-ratio)*100)); err != nil {
		return nil, err
	}
	return out, nil
}

// Clone returns a deep copy of the graph. Nested component values are
// shared.
func (s *Solution) Clone() *Solution {
	out := &Solution{name: s.name, g: s.g.clone(), components: make(map[string]Component, len(s.components))}
	for k, v := range s.components {
		out.components[k] = v
	}
	return out
}

// factor is the running multiplier of a traversal path: a plain ratio until
// a concentration edge turns it into a quantity.
type factor struct {
	ratio float64
	qty   *units.Quantity
}

func (f factor) times(w units.Quantity) (factor, error) {
	if w.Dim().Dimensionless() {
		if f.qty != nil {
			q := f.qty.Scale(w.Base())
			return factor{qty: &q}, nil
		}
		return factor{ratio: f.ratio * w.Base()}, nil
	}
	if f.qty != nil {
		return factor{}, domain.DimensionalityError{Expected: units.Percent.Dim.String(), For: "nested concentration", Got: w.Dim().String()}
	}
	q := w.Scale(f.ratio)
	return factor{qty: &q}, nil
}

func (f factor) plus(name string, o factor) (factor, error) {
	switch {
	case f.qty == nil && o.qty == nil:
		return factor{ratio: f.ratio + o.ratio}, nil
	case f.qty != nil && o.qty != nil:
		sum, err := f.qty.Add(*o.qty)
		if err != nil {
			return factor{}, domain.DimensionalityError{Expected: f.qty.Dim().String(), For: name, Got: o.qty.Dim().String()}
		}
		return factor{qty: &sum}, nil
	default:
		return factor{}, domain.DimensionalityError{Expected: "consistent solute or solvent contributions", For: name, Got: "both"}
	}
}

// Composition resolves the solution into solute concentrations and solvent
// percentages. Percent edges multiply along each path and contributions of
// every path reaching the same chemical add up.
func (s *Solution) Composition() (Composition, error) {
	makeup := make(map[string]factor)
	var order []string

	var visit func(node string, f factor) error
	visit = func(node string, f factor) error {
		in := s.g.inEdges(node)
		if len(in) == 0 {
			prev, ok := makeup[node]
			if !ok {
				makeup[node] = f
				order = append(order, node)
				return nil
			}
			sum, err := prev.plus(node, f)
			if err != nil {
				return err
			}
			makeup[node] = sum
			return nil
		}
		for _, e := range in {
			next, err := f.times(e.Concentration)
			if err != nil {
				return err
			}
			if err := visit(e.From, next); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(s.name, factor{ratio: 1}); err != nil {
		return Composition{}, err
	}

	out := Composition{Solutes: make(map[string]Entry), Solvents: make(map[string]Entry)}
	for _, name := range order {
		c, ok := s.components[name]
		if !ok || c.Kind != KindChemical {
			continue
		}
		f := makeup[name]
		if f.qty == nil {
			out.Solvents[name] = Entry{Chemical: c.Chemical, Amount: units.Percentage(100 * f.ratio)}
			continue
		}
		out.Solutes[name] = Entry{Chemical: c.Chemical, Amount: *f.qty}
	}
	return out, nil
}

// Describe renders the composition on one line, solutes first.
func (s *Solution) Describe() (string, error) {
	comp, err := s.Composition()
	if err != nil {
		return "", err
	}
	var parts []string
	for _, name := range comp.SoluteNames() {
		parts = append(parts, fmt.Sprintf("%s %s", comp.Solutes[name].Amount.Compact(), name))
	}
	for _, name := range comp.SolventNames() {
		parts = append(parts, fmt.Sprintf("%s %s", comp.Solvents[name].Amount, name))
	}
	return s.name + ": " + strings.Join(parts, ", "), nil
}
