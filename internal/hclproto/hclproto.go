// Package hclproto loads protocols declared in HCL files.
//
// A file lists grids, solutions, placed nodes and derived nodes:
//
//	grid "plate" {
//	  wells       = 96
//	  dead_volume = "10 uL"
//	}
//
//	solution "saline" {
//	  component "NaCl"  { amount = "${var.salt} mg/mL" }
//	  component "Water" { amount = "100 %" }
//	}
//
//	node {
//	  solution = "saline"
//	  grid     = "plate"
//	  volume   = "0 uL"
//	}
//
//	mix "half" {
//	  grid   = "plate"
//	  volume = "100 uL"
//	  share "saline" { percent = "50 %" }
//	  share "water"  { percent = "50 %" }
//	}
//
//	dilution "salt_low" {
//	  species       = "NaCl"
//	  source        = "saline"
//	  diluent       = "water"
//	  grid          = "plate"
//	  volume        = "200 uL"
//	  concentration = "0.1 mg/mL"
//	}
//
// Component names resolve to a solution declared earlier in the file, then
// to a chemical block, then to the ChemicalSource. Values given to Load are
// visible as var.<name>.
package hclproto

import (
	"context"
	"fmt"
	"os"
	"sort"

	"graphmix/internal/ctxlog"
	"graphmix/pkg/chem"
	"graphmix/pkg/location"
	"graphmix/pkg/mix"
	"graphmix/pkg/protocol"
	"graphmix/pkg/units"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// ChemicalSource resolves chemical names, typically through the registry.
type ChemicalSource interface {
	Chemical(ctx context.Context, name string) (chem.Chemical, error)
}

type fileSpec struct {
	Chemicals []*chemicalBlock `hcl:"chemical,block"`
	Grids     []*gridBlock     `hcl:"grid,block"`
	Solutions []*solutionBlock `hcl:"solution,block"`
	Nodes     []*nodeBlock     `hcl:"node,block"`
	Mixes     []*mixBlock      `hcl:"mix,block"`
	Dilutions []*dilutionBlock `hcl:"dilution,block"`
}

type chemicalBlock struct {
	Name      string  `hcl:"name,label"`
	Formula   *string `hcl:"formula,optional"`
	MolarMass string  `hcl:"molar_mass"`
}

type gridBlock struct {
	Name       string   `hcl:"name,label"`
	Wells      *int     `hcl:"wells,optional"`
	Rows       *int     `hcl:"rows,optional"`
	Columns    *int     `hcl:"columns,optional"`
	MaxVolume  *string  `hcl:"max_volume,optional"`
	DeadVolume *string  `hcl:"dead_volume,optional"`
	Occupied   []string `hcl:"occupied,optional"`
}

type componentBlock struct {
	Name   string `hcl:"name,label"`
	Amount string `hcl:"amount"`
}

type solutionBlock struct {
	Name       string            `hcl:"name,label"`
	Components []*componentBlock `hcl:"component,block"`
}

type nodeBlock struct {
	Solution string  `hcl:"solution"`
	Grid     string  `hcl:"grid"`
	Volume   string  `hcl:"volume"`
	At       *string `hcl:"at,optional"`
}

type shareBlock struct {
	Node    string `hcl:"node,label"`
	Percent string `hcl:"percent"`
}

type mixBlock struct {
	Name   string        `hcl:"name,label"`
	Grid   string        `hcl:"grid"`
	Volume string        `hcl:"volume"`
	Shares []*shareBlock `hcl:"share,block"`
}

type dilutionBlock struct {
	Name          string `hcl:"name,label"`
	Species       string `hcl:"species"`
	Source        string `hcl:"source"`
	Diluent       string `hcl:"diluent"`
	Grid          string `hcl:"grid"`
	Volume        string `hcl:"volume"`
	Concentration string `hcl:"concentration"`
}

// EvalContext exposes vars as var.<name> strings.
func EvalContext(vars map[string]string) *hcl.EvalContext {
	vals := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		vals[k] = cty.StringVal(v)
	}
	obj := cty.EmptyObjectVal
	if len(vals) > 0 {
		obj = cty.ObjectVal(vals)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"var": obj}}
}

// LoadFile reads and builds the protocol in path.
func LoadFile(ctx context.Context, path string, src ChemicalSource, vars map[string]string) (*protocol.Protocol, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(ctx, b, path, src, vars)
}

// Load parses b (named filename in diagnostics) and builds the protocol.
func Load(ctx context.Context, b []byte, filename string, src ChemicalSource, vars map[string]string) (*protocol.Protocol, error) {
	logger := ctxlog.FromContext(ctx)
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(b, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	var spec fileSpec
	if diags := gohcl.DecodeBody(f.Body, EvalContext(vars), &spec); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	logger.Debug("decoded protocol file", "path", filename,
		"grids", len(spec.Grids), "solutions", len(spec.Solutions), "nodes", len(spec.Nodes),
		"mixes", len(spec.Mixes), "dilutions", len(spec.Dilutions))

	bld := &builder{ctx: ctx, src: src, p: protocol.New(), chemicals: map[string]chem.Chemical{}, solutions: map[string]*mix.Solution{}}
	steps := []func(*fileSpec) error{bld.declareChemicals, bld.declareGrids, bld.declareSolutions, bld.placeNodes, bld.derive}
	for _, step := range steps {
		if err := step(&spec); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	}
	return bld.p, nil
}

type builder struct {
	ctx       context.Context
	src       ChemicalSource
	p         *protocol.Protocol
	chemicals map[string]chem.Chemical
	solutions map[string]*mix.Solution
}

func quantity(field, text string) (units.Quantity, error) {
	q, err := units.Parse(text)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("%s: %w", field, err)
	}
	return q, nil
}

func (b *builder) declareChemicals(spec *fileSpec) error {
	for _, c := range spec.Chemicals {
		formula := ""
		if c.Formula != nil {
			formula = *c.Formula
		}
		ch, err := chem.New(c.Name, formula, c.MolarMass)
		if err != nil {
			return err
		}
		b.chemicals[c.Name] = ch
	}
	return nil
}

func (b *builder) declareGrids(spec *fileSpec) error {
	for _, g := range spec.Grids {
		set, err := gridSet(g)
		if err != nil {
			return fmt.Errorf("grid %s: %w", g.Name, err)
		}
		b.p.WithGrid(g.Name, set)
	}
	return nil
}

func gridSet(g *gridBlock) (*location.Set, error) {
	var set *location.Set
	var err error
	switch {
	case g.Wells != nil && (g.Rows != nil || g.Columns != nil):
		return nil, fmt.Errorf("wells excludes rows and columns")
	case g.Wells != nil:
		set, err = location.WellPlate(*g.Wells)
	case g.Rows != nil && g.Columns != nil:
		set, err = location.NewSet(*g.Rows, *g.Columns)
	default:
		return nil, fmt.Errorf("needs wells or rows and columns")
	}
	if err != nil {
		return nil, err
	}
	if g.MaxVolume != nil {
		q, err := quantity("max_volume", *g.MaxVolume)
		if err != nil {
			return nil, err
		}
		set.WithMaxVolume(q)
	}
	if g.DeadVolume != nil {
		q, err := quantity("dead_volume", *g.DeadVolume)
		if err != nil {
			return nil, err
		}
		set.WithDeadVolume(q)
	}
	if len(g.Occupied) > 0 {
		if _, err := set.WithOccupied(g.Occupied...); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (b *builder) component(name string) (mix.Component, error) {
	if s, ok := b.solutions[name]; ok {
		return mix.SolutionComponent(s), nil
	}
	if c, ok := b.chemicals[name]; ok {
		return mix.ChemicalComponent(c), nil
	}
	if b.src == nil {
		return mix.Component{}, fmt.Errorf("chemical %s: no chemical source", name)
	}
	c, err := b.src.Chemical(b.ctx, name)
	if err != nil {
		return mix.Component{}, err
	}
	b.chemicals[name] = c
	return mix.ChemicalComponent(c), nil
}

func (b *builder) declareSolutions(spec *fileSpec) error {
	for _, sb := range spec.Solutions {
		if _, dup := b.solutions[sb.Name]; dup {
			return fmt.Errorf("solution %s declared twice", sb.Name)
		}
		amounts := make([]mix.Amount, 0, len(sb.Components))
		for _, cb := range sb.Components {
			c, err := b.component(cb.Name)
			if err != nil {
				return fmt.Errorf("solution %s: %w", sb.Name, err)
			}
			q, err := quantity("amount of "+cb.Name, cb.Amount)
			if err != nil {
				return fmt.Errorf("solution %s: %w", sb.Name, err)
			}
			amounts = append(amounts, mix.Amount{Component: c, Concentration: q})
		}
		s, err := mix.New(sb.Name).WithComponents(amounts...)
		if err != nil {
			return fmt.Errorf("solution %s: %w", sb.Name, err)
		}
		b.solutions[sb.Name] = s
	}
	return nil
}

func (b *builder) placeNodes(spec *fileSpec) error {
	for _, nb := range spec.Nodes {
		s, ok := b.solutions[nb.Solution]
		if !ok {
			return fmt.Errorf("node: unknown solution %s", nb.Solution)
		}
		vol, err := quantity("volume", nb.Volume)
		if err != nil {
			return fmt.Errorf("node %s: %w", nb.Solution, err)
		}
		target := protocol.Grid(nb.Grid)
		if nb.At != nil {
			loc, err := location.Parse(*nb.At)
			if err != nil {
				return fmt.Errorf("node %s: %w", nb.Solution, err)
			}
			if _, err := b.p.Grid(nb.Grid); err != nil {
				return fmt.Errorf("node %s: %w", nb.Solution, err)
			}
			target = protocol.At(loc.WithGrid(nb.Grid))
		}
		if _, err := b.p.WithNode(s, vol, target); err != nil {
			return fmt.Errorf("node %s: %w", nb.Solution, err)
		}
	}
	return nil
}

// pending is a mix or dilution waiting for the nodes it reads.
type pending struct {
	name  string
	needs []string
	build func() error
}

// derive adds mix and dilution nodes once everything they reference
// exists, so blocks may appear in any order.
func (b *builder) derive(spec *fileSpec) error {
	var queue []pending
	for _, m := range spec.Mixes {
		m := m
		needs := make([]string, len(m.Shares))
		for i, sh := range m.Shares {
			needs[i] = sh.Node
		}
		queue = append(queue, pending{name: m.Name, needs: needs, build: func() error { return b.addMix(m) }})
	}
	for _, d := range spec.Dilutions {
		d := d
		queue = append(queue, pending{name: d.Name, needs: []string{d.Source, d.Diluent}, build: func() error { return b.addDilution(d) }})
	}
	for len(queue) > 0 {
		var rest []pending
		for _, item := range queue {
			if !b.ready(item.needs) {
				rest = append(rest, item)
				continue
			}
			if err := item.build(); err != nil {
				return err
			}
		}
		if len(rest) == len(queue) {
			names := make([]string, len(rest))
			for i, r := range rest {
				names[i] = r.name
			}
			sort.Strings(names)
			return fmt.Errorf("unresolved node references in %v", names)
		}
		queue = rest
	}
	return nil
}

func (b *builder) ready(needs []string) bool {
	for _, n := range needs {
		if _, err := b.p.Node(n); err != nil {
			return false
		}
	}
	return true
}

func (b *builder) addMix(m *mixBlock) error {
	vol, err := quantity("volume", m.Volume)
	if err != nil {
		return fmt.Errorf("mix %s: %w", m.Name, err)
	}
	shares := make([]protocol.Share, len(m.Shares))
	for i, sh := range m.Shares {
		q, err := quantity("percent of "+sh.Node, sh.Percent)
		if err != nil {
			return fmt.Errorf("mix %s: %w", m.Name, err)
		}
		shares[i] = protocol.Share{Node: sh.Node, Percent: q}
	}
	if _, err := b.p.WithNodeFrom(m.Name, shares, protocol.Grid(m.Grid), vol); err != nil {
		return fmt.Errorf("mix %s: %w", m.Name, err)
	}
	return nil
}

func (b *builder) addDilution(d *dilutionBlock) error {
	vol, err := quantity("volume", d.Volume)
	if err != nil {
		return fmt.Errorf("dilution %s: %w", d.Name, err)
	}
	conc, err := quantity("concentration", d.Concentration)
	if err != nil {
		return fmt.Errorf("dilution %s: %w", d.Name, err)
	}
	_, err = b.p.WithDilution(protocol.Dilution{
		Species:            d.Species,
		Source:             d.Source,
		Diluent:            d.Diluent,
		FinalVolume:        vol,
		FinalConcentration: conc,
		Into:               protocol.Grid(d.Grid),
		Name:               d.Name,
	})
	if err != nil {
		return fmt.Errorf("dilution %s: %w", d.Name, err)
	}
	return nil
}
