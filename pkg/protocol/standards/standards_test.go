package standards

import (
	"errors"
	"math"
	"testing"

	"graphmix/pkg/chem"
	"graphmix/pkg/domain"
	"graphmix/pkg/location"
	"graphmix/pkg/mix"
	"graphmix/pkg/units"
)

var (
	nacl  = chem.MustNew("NaCl", "NaCl", 58.44)
	water = chem.MustNew("Water", "H2O", 18.01528)
)

func newCurve(t *testing.T, steps []Step) *CurveBuilder {
	t.Helper()
	plate, err := location.WellPlate(96)
	if err != nil {
		t.Fatalf("plate: %v", err)
	}
	plate.WithDeadVolume(units.MustNew(10, "uL"))
	b, err := NewCurveBuilder(Config{
		Name:        "BCA",
		FinalVolume: units.MustNew(100, "uL"),
		Grids:       map[string]*location.Set{"plate": plate},
		StockGrid:   "plate",
		DiluentGrid: "plate",
		OutGrid:     "plate",
		Steps:       steps,
	})
	if err != nil {
		t.Fatalf("NewCurveBuilder: %v", err)
	}
	stock, err := mix.New("saline").WithComponents(
		mix.Amount{Component: mix.ChemicalComponent(nacl), Concentration: units.MustNew(1, "mg/mL")},
		mix.Amount{Component: mix.ChemicalComponent(water), Concentration: units.Percentage(100)},
	)
	if err != nil {
		t.Fatalf("stock: %v", err)
	}
	diluent, err := mix.New("water").WithChemical(water, units.Percentage(100))
	if err != nil {
		t.Fatalf("diluent: %v", err)
	}
	if _, err := b.WithStock(stock, nil); err != nil {
		t.Fatalf("WithStock: %v", err)
	}
	if _, err := b.WithDiluent(diluent, nil); err != nil {
		t.Fatalf("WithDiluent: %v", err)
	}
	return b
}

func TestDilutionFactors(t *testing.T) {
	got, err := DilutionFactors(BCA)
	if err != nil {
		t.Fatalf("DilutionFactors: %v", err)
	}
	want := []float64{1, 0.75, 0.5, 0.375, 0.25, 0.125, 0.0625, 0.03125, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("factor[%d] = %g, want %g", i, got[i], want[i])
		}
	}

	_, err = DilutionFactors([]Step{{Ref: "A", Source: "Z", Factor: 0.5}})
	if !errors.Is(err, domain.ErrUnknownReference) {
		t.Fatalf("unknown source err = %v", err)
	}
	if _, err := DilutionFactors([]Step{{Ref: "A", Factor: 1.5}}); err == nil {
		t.Fatalf("expected factor range error")
	}
}

func TestBuildBCACurve(t *testing.T) {
	p, err := newCurve(t, BCA).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := len(p.Inputs()); got != 2 {
		t.Fatalf("inputs = %d, want 2", got)
	}
	// A, D, H and I are never drawn from.
	if got := len(p.Outputs()); got != 4 {
		t.Fatalf("outputs = %d, want 4", got)
	}
	if n, err := p.Node("saline"); err != nil || !n.FinalVolume.Equal(units.MustNew(10, "uL")) {
		t.Fatalf("stock node = %v, %v", n, err)
	}

	factors, _ := DilutionFactors(BCA)
	for i, step := range BCA {
		n, err := p.Node("BCA_" + step.Ref)
		if err != nil {
			t.Fatalf("node %s: %v", step.Ref, err)
		}
		comp, err := n.Composition()
		if err != nil {
			t.Fatalf("composition %s: %v", step.Ref, err)
		}
		got, err := comp.Of("NaCl", "mg/mL", false)
		if err != nil {
			t.Fatalf("Of %s: %v", step.Ref, err)
		}
		if math.Abs(got.Magnitude-factors[i]) > 1e-3*math.Max(factors[i], 1e-9) {
			t.Fatalf("step %s NaCl = %v, want %g mg/mL", step.Ref, got, factors[i])
		}
	}

	blank, ok := p.Edge("water", "BCA_I")
	if !ok || blank.Weight != 1 {
		t.Fatalf("blank edge = %+v, %v", blank, ok)
	}
	if _, ok := p.Edge("saline", "BCA_I"); ok {
		t.Fatalf("blank should not draw from stock")
	}
	if _, ok := p.Edge("water", "BCA_A"); ok {
		t.Fatalf("undiluted step should not draw diluent")
	}

	if _, err := p.Solve(); err != nil {
		t.Fatalf("Solve: %v", err)
	}
}

func TestBuildRequiresStockAndDiluent(t *testing.T) {
	plate, _ := location.WellPlate(96)
	b, err := NewCurveBuilder(Config{
		Name:        "RG",
		FinalVolume: units.MustNew(100, "uL"),
		Grids:       map[string]*location.Set{"plate": plate},
		StockGrid:   "plate",
		DiluentGrid: "plate",
		OutGrid:     "plate",
		Steps:       RiboGreen,
	})
	if err != nil {
		t.Fatalf("NewCurveBuilder: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected missing stock error")
	}
}

func TestNewCurveBuilderUnknownGrid(t *testing.T) {
	_, err := NewCurveBuilder(Config{Name: "x", StockGrid: "nope"})
	if !errors.Is(err, domain.ErrUnknownReference) {
		t.Fatalf("err = %v", err)
	}
}

func TestWithStepExtendsCurve(t *testing.T) {
	b := newCurve(t, nil).
		WithStep(Step{Ref: "A", Factor: 1}).
		WithStep(Step{Ref: "B", Source: "A", Factor: 0.1})
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e, ok := p.Edge("BCA_A", "BCA_B")
	if !ok || math.Abs(e.Weight-0.1) > 1e-12 {
		t.Fatalf("edge = %+v, %v", e, ok)
	}
}
