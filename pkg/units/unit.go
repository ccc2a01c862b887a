package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Unit is a parsed unit expression. Scale converts one unit into the base
// units g, mol, L and s.
type Unit struct {
	Symbol string
	Dim    Dimension
	Scale  float64
}

// Dimensionless is the unit of plain ratios.
var Dimensionless = Unit{Scale: 1}

func (u Unit) String() string {
	if u.Symbol == "" {
		return "dimensionless"
	}
	return u.Symbol
}

// factor treats the zero Unit as dimensionless.
func (u Unit) factor() float64 {
	if u.Scale == 0 {
		return 1
	}
	return u.Scale
}

// Equal reports whether both units measure the same thing at the same scale.
func (u Unit) Equal(o Unit) bool {
	return u.Dim == o.Dim && closeTo(u.factor(), o.factor())
}

type atom struct {
	dim        Dimension
	scale      float64
	prefixable bool
}

var prefixes = []struct {
	symbol string
	scale  float64
}{
	{"p", 1e-12},
	{"n", 1e-9},
	{"u", 1e-6},
	{"µ", 1e-6},
	{"m", 1e-3},
	{"c", 1e-2},
	{"d", 1e-1},
	{"k", 1e3},
}

// compactPrefixes is ordered largest first.
var compactPrefixes = []struct {
	symbol string
	scale  float64
}{
	{"k", 1e3},
	{"", 1},
	{"m", 1e-3},
	{"u", 1e-6},
	{"n", 1e-9},
	{"p", 1e-12},
}

func builtinAtoms() map[string]atom {
	volume := Dimension{Length: 3}
	molar := Dimension{Substance: 1, Length: -3}
	return map[string]atom{
		"g":             {dim: Dimension{Mass: 1}, scale: 1, prefixable: true},
		"mol":           {dim: Dimension{Substance: 1}, scale: 1, prefixable: true},
		"L":             {dim: volume, scale: 1, prefixable: true},
		"l":             {dim: volume, scale: 1, prefixable: true},
		"m":             {dim: Dimension{Length: 1}, scale: 10, prefixable: true},
		"M":             {dim: molar, scale: 1, prefixable: true},
		"molar":         {dim: molar, scale: 1},
		"s":             {dim: Dimension{Time: 1}, scale: 1, prefixable: true},
		"min":           {dim: Dimension{Time: 1}, scale: 60},
		"h":             {dim: Dimension{Time: 1}, scale: 3600},
		"%":             {scale: 0.01},
		"percent":       {scale: 0.01},
		"dimensionless": {scale: 1},
	}
}

// unitParser is a recursive descent parser over expressions such as
// "mg/mL", "uL/s", "(mg/mL)*uL" or "m^3".
type unitParser struct {
	atoms map[string]atom
	toks  []string
	pos   int
	src   string
}

func parseUnitExpr(atoms map[string]atom, src string) (Unit, error) {
	trimmed := strings.TrimSpace(src)
	switch trimmed {
	case "", "dimensionless":
		return Dimensionless, nil
	case "percent":
		trimmed = "%"
	}
	toks, err := tokenizeUnit(trimmed)
	if err != nil {
		return Unit{}, err
	}
	p := &unitParser{atoms: atoms, toks: toks, src: src}
	dim, scale, err := p.expr()
	if err != nil {
		return Unit{}, err
	}
	if p.pos != len(p.toks) {
		return Unit{}, fmt.Errorf("units: unexpected %q in %q", p.toks[p.pos], src)
	}
	return Unit{Symbol: strings.Join(toks, ""), Dim: dim, Scale: scale}, nil
}

func tokenizeUnit(s string) ([]string, error) {
	var toks []string
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '*' && i+1 < len(rs) && rs[i+1] == '*':
			toks = append(toks, "**")
			i += 2
		case strings.ContainsRune("*/^()", r):
			toks = append(toks, string(r))
			i++
		case r == '-' || unicode.IsDigit(r):
			j := i + 1
			for j < len(rs) && unicode.IsDigit(rs[j]) {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		case r == '%':
			toks = append(toks, "%")
			i++
		case unicode.IsLetter(r) || r == 'µ':
			j := i + 1
			for j < len(rs) && (unicode.IsLetter(rs[j]) || rs[j] == 'µ') {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		default:
			return nil, fmt.Errorf("units: invalid character %q in %q", r, s)
		}
	}
	return toks, nil
}

func (p *unitParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *unitParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *unitParser) expr() (Dimension, float64, error) {
	dim, scale, err := p.term()
	if err != nil {
		return Dimension{}, 0, err
	}
	for p.peek() == "*" || p.peek() == "/" {
		op := p.next()
		d, s, err := p.term()
		if err != nil {
			return Dimension{}, 0, err
		}
		if op == "*" {
			dim, scale = dim.Mul(d), scale*s
		} else {
			dim, scale = dim.Div(d), scale/s
		}
	}
	return dim, scale, nil
}

func (p *unitParser) term() (Dimension, float64, error) {
	dim, scale, err := p.factor()
	if err != nil {
		return Dimension{}, 0, err
	}
	if p.peek() == "^" || p.peek() == "**" {
		p.next()
		raw := p.next()
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Dimension{}, 0, fmt.Errorf("units: invalid exponent %q in %q", raw, p.src)
		}
		dim, scale = dim.Pow(n), math.Pow(scale, float64(n))
	}
	return dim, scale, nil
}

func (p *unitParser) factor() (Dimension, float64, error) {
	tok := p.next()
	switch {
	case tok == "":
		return Dimension{}, 0, fmt.Errorf("units: unexpected end of %q", p.src)
	case tok == "(":
		dim, scale, err := p.expr()
		if err != nil {
			return Dimension{}, 0, err
		}
		if p.next() != ")" {
			return Dimension{}, 0, fmt.Errorf("units: unbalanced parenthesis in %q", p.src)
		}
		return dim, scale, nil
	case tok == "1":
		return Dimension{}, 1, nil
	}
	a, pscale, _, ok := lookupAtom(p.atoms, tok)
	if !ok {
		return Dimension{}, 0, fmt.Errorf("units: unknown unit %q in %q", tok, p.src)
	}
	return a.dim, a.scale * pscale, nil
}

// lookupAtom resolves a token as an exact atom first, then as an SI prefix
// followed by a prefixable atom.
func lookupAtom(atoms map[string]atom, tok string) (atom, float64, string, bool) {
	if a, ok := atoms[tok]; ok {
		return a, 1, tok, true
	}
	for _, pre := range prefixes {
		rest, found := strings.CutPrefix(tok, pre.symbol)
		if !found || rest == "" {
			continue
		}
		if a, ok := atoms[rest]; ok && a.prefixable {
			return a, pre.scale, rest, true
		}
	}
	return atom{}, 0, "", false
}

func closeTo(a, b float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	return diff <= 1e-9*math.Max(math.Abs(a), math.Abs(b)) || diff < 1e-15
}
