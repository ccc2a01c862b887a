package units

import (
	"fmt"
	"regexp"
	"strconv"
)

// System is an immutable unit configuration: the recognised unit atoms and
// the default unit attached to bare numbers of each dimensionality class.
// Build one with NewSystem; the zero value is not usable.
type System struct {
	atoms    map[string]atom
	defaults map[string]Unit
}

// Option customises a System under construction.
type Option func(*systemConfig)

type systemConfig struct {
	atoms    map[string]atom
	defaults map[string]string
}

// WithDefaultUnit overrides the default unit of a class.
func WithDefaultUnit(c Class, unit string) Option {
	return func(cfg *systemConfig) { cfg.defaults[c.Name] = unit }
}

// WithAtom registers an additional unit atom, for example "Da" for daltons.
func WithAtom(symbol string, dim Dimension, scale float64, prefixable bool) Option {
	return func(cfg *systemConfig) {
		cfg.atoms[symbol] = atom{dim: dim, scale: scale, prefixable: prefixable}
	}
}

var builtinDefaults = map[string]string{
	Mass.Name:               "mg",
	Substance.Name:          "mmol",
	Volume.Name:             "uL",
	Percent.Name:            "%",
	MolarMass.Name:          "g/mol",
	MolarConcentration.Name: "mM",
	MassConcentration.Name:  "mg/mL",
	FlowRate.Name:           "uL/s",
}

// NewSystem builds a System from the built-in atoms and defaults plus opts.
// Every default unit must parse and belong to its class.
func NewSystem(opts ...Option) (*System, error) {
	cfg := &systemConfig{atoms: builtinAtoms(), defaults: make(map[string]string, len(builtinDefaults))}
	for k, v := range builtinDefaults {
		cfg.defaults[k] = v
	}
	for _, opt := range opts {
		opt(cfg)
	}
	sys := &System{atoms: cfg.atoms, defaults: make(map[string]Unit, len(cfg.defaults))}
	for _, c := range Classes() {
		raw, ok := cfg.defaults[c.Name]
		if !ok {
			continue
		}
		u, err := parseUnitExpr(sys.atoms, raw)
		if err != nil {
			return nil, fmt.Errorf("default unit for %s: %w", c.Name, err)
		}
		if u.Dim != c.Dim {
			return nil, fmt.Errorf("default unit %q for %s has dimensionality %s", raw, c.Name, u.Dim)
		}
		sys.defaults[c.Name] = u
	}
	return sys, nil
}

var defaultSystem = mustSystem()

func mustSystem() *System {
	sys, err := NewSystem()
	if err != nil {
		panic(err)
	}
	return sys
}

// Default returns the built-in System. It is never mutated.
func Default() *System { return defaultSystem }

// ParseUnit parses a unit expression.
func (s *System) ParseUnit(expr string) (Unit, error) {
	return parseUnitExpr(s.atoms, expr)
}

// DefaultUnit returns the default unit configured for c.
func (s *System) DefaultUnit(c Class) (Unit, bool) {
	u, ok := s.defaults[c.Name]
	return u, ok
}

// ClassOf returns the built-in class whose dimension is d. Dimensionless
// values resolve to Percent.
func (s *System) ClassOf(d Dimension) (Class, bool) {
	for _, c := range Classes() {
		if c.Dim == d {
			return c, true
		}
	}
	return Class{}, false
}

var quantityPattern = regexp.MustCompile(`^\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*(.*?)\s*$`)

// Parse reads the canonical "<magnitude> <unit>" form. A bare number is
// dimensionless.
func (s *System) Parse(text string) (Quantity, error) {
	m := quantityPattern.FindStringSubmatch(text)
	if m == nil {
		return Quantity{}, fmt.Errorf("units: cannot parse quantity %q", text)
	}
	mag, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("units: cannot parse magnitude of %q: %w", text, err)
	}
	u, err := s.ParseUnit(m[2])
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Magnitude: mag, Unit: u}, nil
}

// New attaches unit to mag.
func (s *System) New(mag float64, unit string) (Quantity, error) {
	u, err := s.ParseUnit(unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Magnitude: mag, Unit: u}, nil
}

// Express converts q into the default unit of its class. Dimensionless
// values collapse to a plain ratio; dimensions without a class are returned
// unchanged.
func (s *System) Express(q Quantity) Quantity {
	if q.Dim().Dimensionless() {
		return Quantity{Magnitude: q.base(), Unit: Dimensionless}
	}
	c, ok := s.ClassOf(q.Dim())
	if !ok {
		return q
	}
	u, ok := s.defaults[c.Name]
	if !ok {
		return q
	}
	return Quantity{Magnitude: q.Magnitude * (q.Unit.factor() / u.factor()), Unit: u}
}

// splitPrefix breaks a single prefixable atom into its prefix and atom.
func (s *System) splitPrefix(tok string) (prefixScale float64, name string, ok bool) {
	a, scale, name, found := lookupAtom(s.atoms, tok)
	if !found || !a.prefixable {
		return 0, "", false
	}
	return scale, name, true
}

// Parse reads a quantity with the default System.
func Parse(text string) (Quantity, error) { return defaultSystem.Parse(text) }

// ParseUnit reads a unit expression with the default System.
func ParseUnit(expr string) (Unit, error) { return defaultSystem.ParseUnit(expr) }

// New attaches unit to mag with the default System.
func New(mag float64, unit string) (Quantity, error) { return defaultSystem.New(mag, unit) }

// MustNew is New for literals known to be valid. It panics on error.
func MustNew(mag float64, unit string) Quantity {
	q, err := New(mag, unit)
	if err != nil {
		panic(err)
	}
	return q
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(text string) Quantity {
	q, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return q
}

// Percentage returns v percent.
func Percentage(v float64) Quantity {
	return Quantity{Magnitude: v, Unit: percentUnit}
}

var percentUnit = Unit{Symbol: "%", Scale: 0.01}
