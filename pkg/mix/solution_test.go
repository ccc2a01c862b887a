package mix

import (
	"errors"
	"testing"

	"graphmix/pkg/chem"
	"graphmix/pkg/domain"
	"graphmix/pkg/units"
)

var (
	nacl  = chem.MustNew("NaCl", "NaCl", "58.44 g/mol")
	water = chem.MustNew("Water", "H2O", "18.015 g/mol")
)

func saline(t *testing.T) *Solution {
	t.Helper()
	s, err := New("saline").WithComponents(
		Amount{Component: ChemicalComponent(nacl), Concentration: units.MustNew(1, "mg/mL")},
		Amount{Component: ChemicalComponent(water), Concentration: units.Percentage(100)},
	)
	if err != nil {
		t.Fatalf("build saline: %v", err)
	}
	return s
}

func dilute(t *testing.T, name string, sub *Solution) *Solution {
	t.Helper()
	s, err := New(name).WithSolution(sub, units.Percentage(50))
	if err != nil {
		t.Fatalf("add %s: %v", sub.Name(), err)
	}
	if _, err := s.WithChemical(water, units.Percentage(50)); err != nil {
		t.Fatalf("add water: %v", err)
	}
	return s
}

func mustComposition(t *testing.T, s *Solution) Composition {
	t.Helper()
	c, err := s.Composition()
	if err != nil {
		t.Fatalf("composition of %s: %v", s.Name(), err)
	}
	return c
}

func expected(solute units.Quantity) Composition {
	return Composition{
		Solutes:  map[string]Entry{"NaCl": {Chemical: nacl, Amount: solute}},
		Solvents: map[string]Entry{"Water": {Chemical: water, Amount: units.Percentage(100)}},
	}
}

func TestSolutionFromPrimitives(t *testing.T) {
	s := saline(t)
	comp := mustComposition(t, s)
	if !comp.SymmetricEqual(expected(units.MustNew(1, "mg/mL"))) {
		t.Fatalf("unexpected composition %+v", comp)
	}
	if got := s.Nodes(); len(got) != 3 {
		t.Fatalf("expected 3 nodes, got %v", got)
	}
	if w, ok := s.Concentration("NaCl"); !ok || w.String() != "1 mg/mL" {
		t.Fatalf("unexpected NaCl weight %v", w)
	}
	if chems := s.Chemicals(); len(chems) != 2 || chems[0].Name != "NaCl" || chems[1].Name != "Water" {
		t.Fatalf("unexpected chemicals %v", chems)
	}
}

func TestSolutionFromSolutionMultipliesPercentages(t *testing.T) {
	once := dilute(t, "diluted_saline", saline(t))
	if got := once.Nodes(); len(got) != 4 {
		t.Fatalf("expected 4 nodes after union, got %v", got)
	}
	if !mustComposition(t, once).SymmetricEqual(expected(units.MustNew(0.5, "mg/mL"))) {
		t.Fatalf("unexpected composition %+v", mustComposition(t, once))
	}

	twice := dilute(t, "twice_diluted_saline", once)
	comp := mustComposition(t, twice)
	if !comp.SymmetricEqual(expected(units.MustNew(0.25, "mg/mL"))) {
		t.Fatalf("unexpected composition %+v", comp)
	}
	if _, ok := twice.Component("saline"); !ok {
		t.Fatalf("nested components should be merged in")
	}
}

func TestSubSolutionRequiresPercent(t *testing.T) {
	_, err := New("diluted_saline").WithSolution(saline(t), units.MustNew(50, "mg/mL"))
	if !errors.Is(err, domain.ErrDimensionalityMismatch) {
		t.Fatalf("expected dimensionality mismatch, got %v", err)
	}
	var dimErr domain.DimensionalityError
	if !errors.As(err, &dimErr) || dimErr.For != "saline" {
		t.Fatalf("error should name the component, got %v", err)
	}
	if _, err := New("x").WithChemical(nacl, units.MustNew(5, "uL")); !errors.Is(err, domain.ErrDimensionalityMismatch) {
		t.Fatalf("volume is not a concentration, got %v", err)
	}
}

func TestCyclesAreRejected(t *testing.T) {
	s := saline(t)
	if _, err := s.WithSolution(s, units.Percentage(10)); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	outer := dilute(t, "outer", s)
	if _, err := s.WithSolution(outer, units.Percentage(10)); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestMolarAmountsConvertThroughMolarMass(t *testing.T) {
	s, err := New("brine").WithChemical(nacl, units.MustNew(10, "mM"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := s.WithChemical(water, units.Percentage(100)); err != nil {
		t.Fatalf("build: %v", err)
	}
	comp := mustComposition(t, s)
	got, err := comp.Of("NaCl", "mg/mL", false)
	if err != nil {
		t.Fatalf("of: %v", err)
	}
	if !got.Equal(units.MustNew(0.5844, "mg/mL")) {
		t.Fatalf("expected 0.5844 mg/mL, got %s", got)
	}
	compact, err := comp.OfChemical(nacl, "mg/mL", true)
	if err != nil || compact.Unit.Symbol != "ug/mL" {
		t.Fatalf("expected compact ug/mL, got %v %v", compact, err)
	}
	missing, err := comp.Of("KCl", "", false)
	if err != nil || missing.String() != "0 mg/mL" {
		t.Fatalf("expected zero default, got %v %v", missing, err)
	}
	missing, err = comp.Of("KCl", "mM", false)
	if err != nil || missing.String() != "0 mM" {
		t.Fatalf("expected zero in requested unit, got %v %v", missing, err)
	}
	if _, err := comp.Of("Water", "mg/mL", false); !errors.Is(err, domain.ErrDimensionalityMismatch) {
		t.Fatalf("percent cannot become a concentration, got %v", err)
	}
}

func TestCompositionEqualIsDirectional(t *testing.T) {
	full := expected(units.MustNew(1, "mg/mL"))
	partial := Composition{
		Solutes:  map[string]Entry{"NaCl": {Chemical: nacl, Amount: units.MustNew(1000, "ug/mL")}},
		Solvents: map[string]Entry{},
	}
	if !partial.Equal(full) {
		t.Fatalf("partial entries are satisfied by the full composition")
	}
	if full.Equal(partial) {
		t.Fatalf("full composition has a solvent the partial one lacks")
	}
	if partial.SymmetricEqual(full) {
		t.Fatalf("symmetric equality needs matching key sets")
	}
}

func TestDiluteWith(t *testing.T) {
	d, err := saline(t).DiluteWith(ChemicalComponent(water), 0.25, "")
	if err != nil {
		t.Fatalf("dilute: %v", err)
	}
	if d.Name() != "saline d/ Water" {
		t.Fatalf("unexpected default name %q", d.Name())
	}
	comp := mustComposition(t, d)
	if !comp.SymmetricEqual(expected(units.MustNew(0.25, "mg/mL"))) {
		t.Fatalf("unexpected composition %+v", comp)
	}
	for _, ratio := range []float64{0, 1, -0.5, 1.5} {
		if _, err := saline(t).DiluteWith(ChemicalComponent(water), ratio, ""); !errors.Is(err, domain.ErrInvalidDilutionInput) {
			t.Fatalf("ratio %g: expected invalid dilution input, got %v", ratio, err)
		}
	}
}

func TestMixedSoluteAndSolventContributionsFail(t *testing.T) {
	inner, err := New("inner").WithChemical(nacl, units.MustNew(1, "mg/mL"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	outer, err := New("outer").WithSolution(inner, units.Percentage(50))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := outer.WithChemical(nacl, units.Percentage(50)); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := outer.Composition(); !errors.Is(err, domain.ErrDimensionalityMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	empty := mustComposition(t, New("nothing"))
	if len(empty.Solutes)+len(empty.Solvents) != 0 {
		t.Fatalf("empty solution should have an empty composition")
	}
}
