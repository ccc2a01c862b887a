// Package standards builds standard-curve dilution series on top of a
// protocol.
package standards

import (
	"fmt"
	"sort"

	"graphmix/pkg/domain"
	"graphmix/pkg/location"
	"graphmix/pkg/mix"
	"graphmix/pkg/protocol"
	"graphmix/pkg/units"
)

// Stock names the stock solution as a step source.
const Stock = "stock"

// Step is one point of a curve: Factor parts of Source topped up with
// diluent. A zero Factor is a blank of pure diluent.
type Step struct {
	Ref    string  `json:"ref" yaml:"ref"`
	Factor float64 `json:"factor" yaml:"factor"`
	Source string  `json:"source,omitempty" yaml:"source,omitempty"`
}

func (s Step) source() string {
	if s.Source == "" {
		return Stock
	}
	return s.Source
}

// BCA is the manufacturer recommended nine point BCA assay curve.
var BCA = []Step{
	{Ref: "A", Factor: 1},
	{Ref: "B", Factor: 0.75},
	{Ref: "C", Factor: 0.5},
	{Ref: "D", Source: "B", Factor: 0.5},
	{Ref: "E", Source: "C", Factor: 0.5},
	{Ref: "F", Source: "E", Factor: 0.5},
	{Ref: "G", Source: "F", Factor: 0.5},
	{Ref: "H", Source: "G", Factor: 0.5},
	{Ref: "I", Factor: 0},
}

// RiboGreen is the manufacturer recommended five point RiboGreen assay curve.
var RiboGreen = []Step{
	{Ref: "A", Factor: 1},
	{Ref: "B", Factor: 0.5},
	{Ref: "C", Source: "B", Factor: 0.2},
	{Ref: "D", Source: "C", Factor: 0.2},
	{Ref: "E", Factor: 0},
}

// DilutionFactors returns the overall dilution of the stock at every step.
func DilutionFactors(steps []Step) ([]float64, error) {
	factors := map[string]float64{Stock: 1}
	out := make([]float64, 0, len(steps))
	for _, s := range steps {
		if s.Factor < 0 || s.Factor > 1 {
			return nil, fmt.Errorf("standards: step %s has factor %g outside 0..1", s.Ref, s.Factor)
		}
		base, ok := factors[s.source()]
		if !ok {
			return nil, domain.NotFoundError{Entity: "curve step", Name: s.source()}
		}
		factors[s.Ref] = base * s.Factor
		out = append(out, factors[s.Ref])
	}
	return out, nil
}

// Config describes a curve. Grid fields name entries of Grids.
type Config struct {
	Name        string
	FinalVolume units.Quantity
	Grids       map[string]*location.Set
	StockGrid   string
	DiluentGrid string
	OutGrid     string
	Steps       []Step
}

// CurveBuilder assembles a curve protocol. Stock and diluent must be set
// before Build.
type CurveBuilder struct {
	cfg     Config
	proto   *protocol.Protocol
	stock   *mix.Solution
	diluent *mix.Solution
}

// NewCurveBuilder registers the configured grids on a fresh protocol.
func NewCurveBuilder(cfg Config) (*CurveBuilder, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("standards: curve needs a name")
	}
	names := make([]string, 0, len(cfg.Grids))
	for name := range cfg.Grids {
		names = append(names, name)
	}
	sort.Strings(names)
	p := protocol.New()
	for _, name := range names {
		p.WithGrid(name, cfg.Grids[name])
	}
	for _, g := range []string{cfg.StockGrid, cfg.DiluentGrid, cfg.OutGrid} {
		if _, err := p.Grid(g); err != nil {
			return nil, err
		}
	}
	cfg.Steps = append([]Step(nil), cfg.Steps...)
	return &CurveBuilder{cfg: cfg, proto: p}, nil
}

// WithStep appends a step.
func (b *CurveBuilder) WithStep(s Step) *CurveBuilder {
	b.cfg.Steps = append(b.cfg.Steps, s)
	return b
}

// WithStock places the stock solution. A nil volume uses the dead volume of
// the stock grid.
func (b *CurveBuilder) WithStock(s *mix.Solution, finalVolume *units.Quantity) (*CurveBuilder, error) {
	if err := b.place(s, finalVolume, b.cfg.StockGrid); err != nil {
		return b, err
	}
	b.stock = s
	return b, nil
}

// WithDiluent places the diluent. A nil volume uses the dead volume of the
// diluent grid.
func (b *CurveBuilder) WithDiluent(s *mix.Solution, finalVolume *units.Quantity) (*CurveBuilder, error) {
	if err := b.place(s, finalVolume, b.cfg.DiluentGrid); err != nil {
		return b, err
	}
	b.diluent = s
	return b, nil
}

func (b *CurveBuilder) place(s *mix.Solution, finalVolume *units.Quantity, grid string) error {
	set, err := b.proto.Grid(grid)
	if err != nil {
		return err
	}
	vol := units.MustNew(0, "uL")
	switch {
	case finalVolume != nil:
		vol = *finalVolume
	case set.DeadVolume != nil:
		vol = *set.DeadVolume
	}
	_, err = b.proto.WithNode(s, vol, protocol.Grid(grid))
	return err
}

// Build adds one node per step and returns the protocol.
func (b *CurveBuilder) Build() (*protocol.Protocol, error) {
	if b.stock == nil || b.diluent == nil {
		return nil, fmt.Errorf("standards: curve %s needs a stock and a diluent", b.cfg.Name)
	}
	if _, err := DilutionFactors(b.cfg.Steps); err != nil {
		return nil, err
	}
	made := map[string]*mix.Solution{Stock: b.stock}
	for _, step := range b.cfg.Steps {
		s, err := b.step(step, made)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Ref, err)
		}
		made[step.Ref] = s
	}
	return b.proto, nil
}

func (b *CurveBuilder) step(step Step, made map[string]*mix.Solution) (*mix.Solution, error) {
	name := b.cfg.Name + "_" + step.Ref
	s := mix.New(name)
	type share struct {
		from    *mix.Solution
		percent units.Quantity
	}
	var shares []share
	if step.Factor == 0 {
		shares = append(shares, share{b.diluent, units.Percentage(100)})
	} else {
		shares = append(shares, share{made[step.source()], units.Percentage(100 * step.Factor)})
		if step.Factor < 1 {
			shares = append(shares, share{b.diluent, units.Percentage(100 * (1 - step.Factor))})
		}
	}
	for _, sh := range shares {
		if _, err := s.WithSolution(sh.from, sh.percent); err != nil {
			return nil, err
		}
	}
	if _, err := b.proto.WithNode(s, b.cfg.FinalVolume, protocol.Grid(b.cfg.OutGrid)); err != nil {
		return nil, err
	}
	for _, sh := range shares {
		if _, err := b.proto.WithEdge(sh.from.Name(), name, sh.percent); err != nil {
			return nil, err
		}
	}
	return s, nil
}
