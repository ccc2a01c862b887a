package chem

import (
	"encoding/json"
	"errors"
	"testing"

	"graphmix/pkg/domain"
	"graphmix/pkg/units"

	"gopkg.in/yaml.v3"
)

func TestNewCoercesMolarMass(t *testing.T) {
	nacl, err := New("NaCl", "NaCl", 58.44)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if nacl.MolarMass.String() != "58.44 g/mol" {
		t.Fatalf("expected g/mol default, got %s", nacl.MolarMass)
	}
	if _, err := New("NaCl", "NaCl", "58.44 mg"); !errors.Is(err, domain.ErrDimensionalityMismatch) {
		t.Fatalf("expected dimensionality mismatch, got %v", err)
	}
	if _, err := New(" ", "", 1); err == nil {
		t.Fatalf("expected empty name to fail")
	}
}

func TestCountUsesStructure(t *testing.T) {
	glucose := MustNew("glucose", "C6H12O6", 180.156).WithStructure("C(C1C(C(C(C(O1)O)O)O)O)O")
	if got := glucose.Count("C"); got != 6 {
		t.Fatalf("expected 6 carbons, got %d", got)
	}
	if got := glucose.Count("O"); got != 6 {
		t.Fatalf("expected 6 oxygens, got %d", got)
	}
	if got := MustNew("water", "H2O", 18.015).Count("O"); got != 0 {
		t.Fatalf("missing structure should count 0, got %d", got)
	}
}

func TestChemicalDecodingNormalizesMolarMass(t *testing.T) {
	var c Chemical
	if err := json.Unmarshal([]byte(`{"name":"NaCl","formula":"NaCl","molar_mass":58.44}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.MolarMass.String() != "58.44 g/mol" {
		t.Fatalf("expected g/mol, got %s", c.MolarMass)
	}
	var y Chemical
	if err := yaml.Unmarshal([]byte("name: urea\nformula: CH4N2O\nmolar_mass: 60.06 g/mol\n"), &y); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if y.Name != "urea" || !y.MolarMass.Equal(units.MustNew(60.06, "g/mol")) {
		t.Fatalf("unexpected yaml decode %+v", y)
	}
	if err := json.Unmarshal([]byte(`{"name":"x","molar_mass":"3 mL"}`), &c); !errors.Is(err, domain.ErrDimensionalityMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestDilutionSolvesMissingVolume(t *testing.T) {
	v1, err := Dilution{
		C1: Term(units.MustNew(1, "mg/mL")),
		C2: Term(units.MustNew(0.5, "mg/mL")),
		V2: Term(units.MustNew(100, "uL")),
	}.Solve()
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !v1.Equal(units.MustNew(50, "uL")) || v1.Unit.Symbol != "uL" {
		t.Fatalf("expected 50 uL, got %s", v1)
	}
}

func TestDilutionSolvesEachTerm(t *testing.T) {
	c1 := units.MustNew(1, "mg/mL")
	v1 := units.MustNew(50, "uL")
	c2 := units.MustNew(0.5, "mg/mL")
	v2 := units.MustNew(0.1, "mL")

	cases := []struct {
		name string
		d    Dilution
		want units.Quantity
	}{
		{"c1", Dilution{V1: &v1, C2: &c2, V2: &v2}, c1},
		{"c2", Dilution{C1: &c1, V1: &v1, V2: &v2}, c2},
		{"v2", Dilution{C1: &c1, V1: &v1, C2: &c2}, v2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.d.Solve()
			if err != nil {
				t.Fatalf("solve: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDilutionRejectsBadInput(t *testing.T) {
	c1 := units.MustNew(1, "mg/mL")
	molar := units.MustNew(1, "mM")
	vol := units.MustNew(100, "uL")

	if _, err := (Dilution{C1: &c1, C2: &molar, V2: &vol}).Solve(); !errors.Is(err, domain.ErrDimensionalityMismatch) {
		t.Fatalf("expected dimensionality mismatch, got %v", err)
	}
	if _, err := (Dilution{C1: &c1, V1: &vol, C2: &molar}).Solve(); !errors.Is(err, domain.ErrDimensionalityMismatch) {
		t.Fatalf("expected dimensionality mismatch for v2, got %v", err)
	}
	for _, d := range []Dilution{
		{},
		{C1: &c1},
		{C1: &c1, V1: &vol, C2: &c1, V2: &vol},
	} {
		if _, err := d.Solve(); !errors.Is(err, domain.ErrInvalidDilutionInput) {
			t.Fatalf("expected invalid dilution input, got %v", err)
		}
	}
	zero := units.MustNew(0, "mg/mL")
	if _, err := (Dilution{C1: &zero, C2: &c1, V2: &vol}).Solve(); !errors.Is(err, domain.ErrInvalidDilutionInput) {
		t.Fatalf("expected zero divisor rejection, got %v", err)
	}
}
