// Package protocol builds the mixing graph of a liquid-handling protocol and
// solves it for transfer volumes.
//
// Nodes are solutions placed at a location with a target final volume. An
// edge u→v with weight w says that a fraction w of v's volume is drawn from
// u. Solve walks the graph from outputs back to inputs and turns weights into
// transfer volumes.
package protocol

import (
	"errors"
	"fmt"
	"sort"

	"graphmix/pkg/chem"
	"graphmix/pkg/domain"
	"graphmix/pkg/location"
	"graphmix/pkg/mix"
	"graphmix/pkg/units"
)

var (
	// ErrCycle reports an edge that would close a loop.
	ErrCycle = errors.New("protocol: edge would create a cycle")
	// ErrInvalidWeight reports an edge weight outside 0..100 %.
	ErrInvalidWeight = errors.New("protocol: invalid edge weight")
	// ErrNotSolved reports a query that needs Solve first.
	ErrNotSolved = errors.New("protocol: not solved")
)

// Node is a solution placed at a location with a target final volume.
type Node struct {
	Solution    *mix.Solution
	Location    location.Location
	FinalVolume units.Quantity
}

// Name is the node identity, the name of its solution.
func (n *Node) Name() string { return n.Solution.Name() }

// Composition resolves the node's solution.
func (n *Node) Composition() (mix.Composition, error) { return n.Solution.Composition() }

// Edge is one mixing step. Weight is the fraction of the target drawn from
// the source; Volume is set by Solve.
type Edge struct {
	From   string
	To     string
	Weight float64
	Volume *units.Quantity
}

// Protocol is mutated in place by its With* builders, which return the same
// pointer for chaining. It is not safe for concurrent mutation.
type Protocol struct {
	sys *units.System

	grids     map[string]*location.Set
	gridOrder []string

	nodes     map[string]*Node
	order     []string
	chemicals map[string]chem.Chemical

	edges []*Edge
	index map[[2]string]int

	initial  map[string]units.Quantity
	outgoing map[string]units.Quantity
	solved   bool
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithUnits sets the unit system used for derived volumes.
func WithUnits(sys *units.System) Option {
	return func(p *Protocol) { p.sys = sys }
}

// New returns an empty protocol.
func New(opts ...Option) *Protocol {
	p := &Protocol{
		sys:       units.Default(),
		grids:     make(map[string]*location.Set),
		nodes:     make(map[string]*Node),
		chemicals: make(map[string]chem.Chemical),
		index:     make(map[[2]string]int),
		initial:   make(map[string]units.Quantity),
		outgoing:  make(map[string]units.Quantity),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithGrid registers a location set under name. Locations it hands out carry
// that name.
func (p *Protocol) WithGrid(name string, set *location.Set) *Protocol {
	if _, ok := p.grids[name]; !ok {
		p.gridOrder = append(p.gridOrder, name)
	}
	p.grids[name] = set.WithName(name)
	return p
}

// Grid returns a registered location set.
func (p *Protocol) Grid(name string) (*location.Set, error) {
	set, ok := p.grids[name]
	if !ok {
		return nil, domain.NotFoundError{Entity: "grid", Name: name}
	}
	return set, nil
}

// Grids lists grid names in registration order.
func (p *Protocol) Grids() []string { return append([]string(nil), p.gridOrder...) }

// Target picks the location of a new node.
type Target interface {
	place(p *Protocol) (location.Location, error)
}

type gridTarget string

func (g gridTarget) place(p *Protocol) (location.Location, error) {
	set, err := p.Grid(string(g))
	if err != nil {
		return location.Location{}, err
	}
	return set.Next()
}

type supplierTarget struct{ s location.Supplier }

func (t supplierTarget) place(*Protocol) (location.Location, error) { return t.s.Next() }

type fixedTarget location.Location

func (t fixedTarget) place(p *Protocol) (location.Location, error) {
	loc := location.Location(t)
	set, ok := p.grids[loc.Grid]
	if !ok {
		return loc, nil
	}
	placed, err := set.AtName(loc.String())
	if err != nil {
		return location.Location{}, err
	}
	if err := set.Occupy(placed); err != nil {
		return location.Location{}, err
	}
	return placed, nil
}

// Grid places a node at the next free location of a registered grid.
func Grid(name string) Target { return gridTarget(name) }

// In places a node at the next location of s.
func In(s location.Supplier) Target { return supplierTarget{s: s} }

// At places a node at a fixed location, marking it occupied when its grid is
// registered.
func At(loc location.Location) Target { return fixedTarget(loc) }

var volume = units.Default().Validator(units.Volume)

// WithNode places a solution and registers its chemicals.
func (p *Protocol) WithNode(s *mix.Solution, finalVolume units.Quantity, into Target) (*Protocol, error) {
	if _, err := p.newNode(s, finalVolume, into); err != nil {
		return p, err
	}
	return p, nil
}

func (p *Protocol) newNode(s *mix.Solution, finalVolume units.Quantity, into Target) (*Node, error) {
	if s == nil {
		return nil, fmt.Errorf("protocol: nil solution")
	}
	if _, dup := p.nodes[s.Name()]; dup {
		return nil, domain.DuplicateError{Entity: "node", Name: s.Name()}
	}
	if _, err := volume.Check(finalVolume); err != nil {
		return nil, err
	}
	if into == nil {
		return nil, fmt.Errorf("protocol: no target for node %s", s.Name())
	}
	loc, err := into.place(p)
	if err != nil {
		return nil, fmt.Errorf("place %s: %w", s.Name(), err)
	}
	n := &Node{Solution: s, Location: loc, FinalVolume: finalVolume}
	p.addNode(n)
	return n, nil
}

func (p *Protocol) addNode(n *Node) {
	name := n.Name()
	p.nodes[name] = n
	p.order = append(p.order, name)
	for _, c := range n.Solution.Chemicals() {
		p.chemicals[c.Name] = c
	}
	p.initial[name] = p.zeroVolume()
	p.outgoing[name] = p.zeroVolume()
	p.solved = false
}

func (p *Protocol) zeroVolume() units.Quantity {
	u, ok := p.sys.DefaultUnit(units.Volume)
	if !ok {
		return units.MustNew(0, "uL")
	}
	return units.Quantity{Unit: u}
}

// Node returns the node with the given name.
func (p *Protocol) Node(name string) (*Node, error) {
	n, ok := p.nodes[name]
	if !ok {
		return nil, domain.NotFoundError{Entity: "node", Name: name}
	}
	return n, nil
}

// Nodes lists nodes in insertion order.
func (p *Protocol) Nodes() []*Node {
	out := make([]*Node, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.nodes[name])
	}
	return out
}

// Chemical returns a chemical registered by any node's solution.
func (p *Protocol) Chemical(name string) (chem.Chemical, error) {
	c, ok := p.chemicals[name]
	if !ok {
		return chem.Chemical{}, domain.NotFoundError{Entity: "chemical", Name: name}
	}
	return c, nil
}

// Chemicals lists registered chemicals sorted by name.
func (p *Protocol) Chemicals() []chem.Chemical {
	out := make([]chem.Chemical, 0, len(p.chemicals))
	for _, c := range p.chemicals {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WithEdge records that weight (a percentage or plain fraction) of target is
// drawn from source.
func (p *Protocol) WithEdge(source, target string, weight units.Quantity) (*Protocol, error) {
	from, err := p.Node(source)
	if err != nil {
		return p, err
	}
	to, err := p.Node(target)
	if err != nil {
		return p, err
	}
	w, err := fraction(weight)
	if err != nil {
		return p, fmt.Errorf("edge %s -> %s: %w", source, target, err)
	}
	return p, p.addEdge(from.Name(), to.Name(), w)
}

func fraction(weight units.Quantity) (float64, error) {
	if !weight.Dim().Dimensionless() {
		return 0, domain.DimensionalityError{Expected: units.Percent.Dim.String(), For: "edge weight", Got: weight.Dim().String()}
	}
	w := weight.Base()
	if w < 0 || w > 1 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidWeight, weight)
	}
	return w, nil
}

func (p *Protocol) addEdge(from, to string, w float64) error {
	if from == to || p.reaches(to, from) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, from, to)
	}
	key := [2]string{from, to}
	if i, ok := p.index[key]; ok {
		p.edges[i].Weight = w
		p.edges[i].Volume = nil
	} else {
		p.index[key] = len(p.edges)
		p.edges = append(p.edges, &Edge{From: from, To: to, Weight: w})
	}
	p.solved = false
	return nil
}

// reaches reports whether a directed path leads from a to b.
func (p *Protocol) reaches(a, b string) bool {
	seen := map[string]bool{a: true}
	stack := []string{a}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == b {
			return true
		}
		for _, e := range p.edges {
			if e.From == n && !seen[e.To] {
				seen[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}
	return false
}

// Edges returns copies of every edge in insertion order.
func (p *Protocol) Edges() []Edge {
	out := make([]Edge, 0, len(p.edges))
	for _, e := range p.edges {
		out = append(out, *e)
	}
	return out
}

// Edge returns the edge from source to target.
func (p *Protocol) Edge(source, target string) (Edge, bool) {
	i, ok := p.index[[2]string{source, target}]
	if !ok {
		return Edge{}, false
	}
	return *p.edges[i], true
}

func (p *Protocol) inEdges(node string) []*Edge {
	var out []*Edge
	for _, e := range p.edges {
		if e.To == node {
			out = append(out, e)
		}
	}
	return out
}

func (p *Protocol) degrees() (in, out map[string]int) {
	in = make(map[string]int, len(p.order))
	out = make(map[string]int, len(p.order))
	for _, e := range p.edges {
		in[e.To]++
		out[e.From]++
	}
	return in, out
}

// Inputs are nodes nothing is transferred into.
func (p *Protocol) Inputs() []*Node {
	in, _ := p.degrees()
	var out []*Node
	for _, name := range p.order {
		if in[name] == 0 {
			out = append(out, p.nodes[name])
		}
	}
	return out
}

// Outputs are nodes nothing is transferred out of.
func (p *Protocol) Outputs() []*Node {
	_, outDeg := p.degrees()
	var out []*Node
	for _, name := range p.order {
		if outDeg[name] == 0 {
			out = append(out, p.nodes[name])
		}
	}
	return out
}

// Share is the percentage of a new node taken from an existing one.
type Share struct {
	Node    string
	Percent units.Quantity
}

// WithNodeFrom mixes existing nodes into a new solution called name, places
// it and links every share to it.
func (p *Protocol) WithNodeFrom(name string, shares []Share, into Target, finalVolume units.Quantity) (*Protocol, error) {
	s := mix.New(name)
	weights := make([]float64, len(shares))
	for i, sh := range shares {
		src, err := p.Node(sh.Node)
		if err != nil {
			return p, err
		}
		if weights[i], err = fraction(sh.Percent); err != nil {
			return p, fmt.Errorf("share of %s: %w", sh.Node, err)
		}
		if _, err := s.WithSolution(src.Solution, sh.Percent); err != nil {
			return p, err
		}
	}
	n, err := p.newNode(s, finalVolume, into)
	if err != nil {
		return p, err
	}
	for i, sh := range shares {
		if err := p.addEdge(sh.Node, n.Name(), weights[i]); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Dilution describes a node made by diluting Source with Diluent until
// Species reaches FinalConcentration in FinalVolume.
type Dilution struct {
	Species            string
	Source             string
	Diluent            string
	FinalVolume        units.Quantity
	FinalConcentration units.Quantity
	Into               Target
	// Name defaults to "<source>_diluted_with_<diluent>".
	Name string
}

// WithDilution solves c1·v1 = c2·v2 for the source volume, builds the
// diluted solution and links source and diluent to it.
func (p *Protocol) WithDilution(d Dilution) (*Protocol, error) {
	if _, err := p.Chemical(d.Species); err != nil {
		return p, err
	}
	src, err := p.Node(d.Source)
	if err != nil {
		return p, err
	}
	dil, err := p.Node(d.Diluent)
	if err != nil {
		return p, err
	}
	if _, err := volume.Check(d.FinalVolume); err != nil {
		return p, err
	}
	comp, err := src.Composition()
	if err != nil {
		return p, err
	}
	c2 := d.FinalConcentration
	c1, err := comp.Of(d.Species, "", false)
	if err != nil {
		return p, err
	}
	if c1.Dim() != c2.Dim() {
		if c1, err = comp.Of(d.Species, c2.Unit.String(), false); err != nil {
			return p, err
		}
	}
	v1, err := chem.Dilution{C1: &c1, C2: &c2, V2: &d.FinalVolume}.SolveIn(p.sys)
	if err != nil {
		return p, fmt.Errorf("dilute %s: %w", d.Source, err)
	}
	ratio := c2.Div(c1).Base()

	name := d.Name
	if name == "" {
		name = src.Name() + "_diluted_with_" + dil.Name()
	}
	s, err := src.Solution.DiluteWith(mix.SolutionComponent(dil.Solution), ratio, name)
	if err != nil {
		return p, err
	}
	weight := v1.Div(d.FinalVolume).Base()
	n, err := p.newNode(s, d.FinalVolume, d.Into)
	if err != nil {
		return p, err
	}
	if err := p.addEdge(src.Name(), n.Name(), weight); err != nil {
		return p, err
	}
	if err := p.addEdge(dil.Name(), n.Name(), 1-weight); err != nil {
		return p, err
	}
	return p, nil
}
