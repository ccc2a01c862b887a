package hclproto

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"graphmix/pkg/chem"
	"graphmix/pkg/domain"
	"graphmix/pkg/units"
)

type fakeSource map[string]chem.Chemical

func (f fakeSource) Chemical(_ context.Context, name string) (chem.Chemical, error) {
	c, ok := f[name]
	if !ok {
		return chem.Chemical{}, domain.NotFoundError{Entity: "chemical", Name: name}
	}
	return c, nil
}

var source = fakeSource{"Water": chem.MustNew("Water", "H2O", 18.01528)}

const dilutionFile = `
chemical "NaCl" {
  formula    = "NaCl"
  molar_mass = "58.44 g/mol"
}

grid "plate" {
  wells       = 96
  dead_volume = "10 uL"
  occupied    = ["A1"]
}

grid "tubes" {
  rows    = 2
  columns = 3
}

solution "saline" {
  component "NaCl"  { amount = "${var.salt} mg/mL" }
  component "Water" { amount = "100 %" }
}

solution "water" {
  component "Water" { amount = "100 %" }
}

node {
  solution = "saline"
  grid     = "tubes"
  volume   = "0 uL"
  at       = "B2"
}

node {
  solution = "water"
  grid     = "tubes"
  volume   = "0 uL"
}

dilution "half_low" {
  species       = "NaCl"
  source        = "half"
  diluent       = "water"
  grid          = "plate"
  volume        = "100 uL"
  concentration = "0.1 mg/mL"
}

mix "half" {
  grid   = "plate"
  volume = "100 uL"
  share "saline" { percent = "50 %" }
  share "water"  { percent = "50 %" }
}
`

func TestLoadBuildsProtocol(t *testing.T) {
	p, err := Load(context.Background(), []byte(dilutionFile), "dilution.hcl", source, map[string]string{"salt": "1"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := strings.Join(p.Grids(), ","); got != "plate,tubes" {
		t.Fatalf("grids = %s", got)
	}
	saline, err := p.Node("saline")
	if err != nil {
		t.Fatalf("saline: %v", err)
	}
	if saline.Location.Qualified() != "tubes:B2" {
		t.Fatalf("saline at %s", saline.Location.Qualified())
	}
	half, err := p.Node("half")
	if err != nil {
		t.Fatalf("half: %v", err)
	}
	if half.Location.String() == "A1" {
		t.Fatalf("half placed on occupied well")
	}
	low, err := p.Node("half_low")
	if err != nil {
		t.Fatalf("half_low: %v", err)
	}
	comp, err := low.Composition()
	if err != nil {
		t.Fatalf("composition: %v", err)
	}
	nacl, err := comp.Of("NaCl", "mg/mL", false)
	if err != nil || !nacl.Equal(units.MustNew(0.1, "mg/mL")) {
		t.Fatalf("NaCl in half_low = %s (%v)", nacl, err)
	}

	if _, err := p.Solve(); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	moves, err := p.Transfers()
	if err != nil {
		t.Fatalf("Transfers: %v", err)
	}
	found := false
	for _, m := range moves {
		if m.From == "half" && m.To == "half_low" {
			found = true
			if !m.Volume.Equal(units.MustNew(20, "uL")) {
				t.Fatalf("half -> half_low = %s, want 20 uL", m.Volume)
			}
		}
	}
	if !found {
		t.Fatalf("missing half -> half_low transfer in %+v", moves)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.hcl")
	if err := os.WriteFile(path, []byte(dilutionFile), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(context.Background(), path, source, map[string]string{"salt": "2"}); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"), source, nil); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"syntax": `grid "plate" {`,
		"missing var": `
solution "s" {
  component "Water" { amount = "${var.nope} %" }
}`,
		"bad grid": `
grid "g" {
  wells   = 96
  rows    = 8
  columns = 12
}`,
		"unknown solution": `
grid "g" {
  wells = 6
}
node {
  solution = "ghost"
  grid     = "g"
  volume   = "1 mL"
}`,
		"cycle of mixes": `
grid "g" {
  wells = 6
}
mix "a" {
  grid   = "g"
  volume = "1 mL"
  share "b" { percent = "100 %" }
}
mix "b" {
  grid   = "g"
  volume = "1 mL"
  share "a" { percent = "100 %" }
}`,
		"bad amount": `
solution "s" {
  component "Water" { amount = "lots" }
}`,
	}
	for name, src := range cases {
		if _, err := Load(context.Background(), []byte(src), name+".hcl", source, nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestUnknownChemicalSurfacesNotFound(t *testing.T) {
	src := `
solution "s" {
  component "Unobtainium" { amount = "1 mg/mL" }
}`
	_, err := Load(context.Background(), []byte(src), "s.hcl", source, nil)
	if !errors.Is(err, domain.ErrUnknownReference) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Load(context.Background(), []byte(src), "s.hcl", nil, nil); err == nil {
		t.Fatalf("nil source accepted")
	}
}
