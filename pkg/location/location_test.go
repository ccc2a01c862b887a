package location

import (
	"errors"
	"testing"

	"graphmix/pkg/domain"
	"graphmix/pkg/units"
)

func TestParseLocation(t *testing.T) {
	loc, err := Parse("plate:B12")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if loc.Grid != "plate" || loc.Row != "B" || loc.Column != 12 {
		t.Fatalf("unexpected location %+v", loc)
	}
	if loc.String() != "B12" || loc.Qualified() != "plate:B12" {
		t.Fatalf("unexpected rendering %s / %s", loc, loc.Qualified())
	}
	if r, c := loc.XY(); r != 1 || c != 11 {
		t.Fatalf("unexpected xy %d,%d", r, c)
	}
	if !loc.Equal(MustParse("B12")) {
		t.Fatalf("equality ignores grid")
	}
	for _, bad := range []string{"", "A", "1A", "a1", "A0", "Ax"} {
		if _, err := Parse(bad); !errors.Is(err, ErrInvalidLocation) {
			t.Fatalf("expected invalid location for %q, got %v", bad, err)
		}
	}
	if _, err := MustParse("A1").Next(); !errors.Is(err, ErrNoSupplier) {
		t.Fatalf("expected missing supplier, got %v", err)
	}
}

func TestSetIteratesRowMajorSkippingOccupied(t *testing.T) {
	set, err := NewSet(2, 3)
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	if _, err := set.WithName("rack").WithOccupied("A2", "rack:B1"); err != nil {
		t.Fatalf("occupy: %v", err)
	}
	if set.Len() != 4 {
		t.Fatalf("expected 4 free positions, got %d", set.Len())
	}
	var got []string
	for {
		loc, err := set.Next()
		if err != nil {
			var exhausted domain.ExhaustedError
			if !errors.As(err, &exhausted) || exhausted.Capacity != 6 || exhausted.Set != "rack" {
				t.Fatalf("expected exhausted error, got %v", err)
			}
			break
		}
		if loc.Grid != "rack" {
			t.Fatalf("expected grid rack, got %q", loc.Grid)
		}
		got = append(got, loc.String())
	}
	want := []string{"A1", "A3", "B2", "B3"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if set.Len() != 0 || len(set.Occupied()) != 6 {
		t.Fatalf("expected full set, len=%d occupied=%d", set.Len(), len(set.Occupied()))
	}
	set.Reset()
	if set.Len() != 6 {
		t.Fatalf("reset should free every position")
	}
}

func TestNextLocationDrawsFromSameSet(t *testing.T) {
	set, err := WellPlate(96)
	if err != nil {
		t.Fatalf("plate: %v", err)
	}
	set.WithMaxVolume(units.MustNew(200, "uL")).WithDeadVolume(units.MustNew(10, "uL"))
	first, err := set.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second, err := first.Next()
	if err != nil {
		t.Fatalf("next from location: %v", err)
	}
	if first.String() != "A1" || second.String() != "A2" {
		t.Fatalf("unexpected sequence %s, %s", first, second)
	}
	if second.MaxVolume == nil || second.MaxVolume.String() != "200 uL" || second.DeadVolume.String() != "10 uL" {
		t.Fatalf("volumes should follow the set, got %+v", second)
	}
	if set.Available(first) || !set.Available(MustParse("H12")) || set.Available(MustParse("I1")) {
		t.Fatalf("unexpected availability")
	}
}

func TestIndexingAndPresets(t *testing.T) {
	set, err := WellPlate(384)
	if err != nil {
		t.Fatalf("plate: %v", err)
	}
	if set.Rows != 16 || set.Columns != 24 {
		t.Fatalf("unexpected 384 shape %dx%d", set.Rows, set.Columns)
	}
	loc, err := set.At(25)
	if err != nil || loc.String() != "B2" {
		t.Fatalf("expected B2, got %v %v", loc, err)
	}
	loc, err = set.AtCoord(15, 23)
	if err != nil || loc.String() != "P24" {
		t.Fatalf("expected P24, got %v %v", loc, err)
	}
	loc, err = set.AtName("C4")
	if err != nil || loc.String() != "C4" {
		t.Fatalf("expected C4, got %v %v", loc, err)
	}
	if _, err := set.At(384); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if _, err := set.AtCoord(16, 0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if _, err := set.AtName("Q1"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	shapes := map[int][2]int{6: {2, 3}, 12: {3, 4}, 24: {4, 6}, 48: {6, 8}, 96: {8, 12}}
	for n, dims := range shapes {
		s, err := WellPlate(n)
		if err != nil {
			t.Fatalf("plate %d: %v", n, err)
		}
		if s.Rows != dims[0] || s.Columns != dims[1] || s.Capacity() != n {
			t.Fatalf("plate %d: unexpected shape %dx%d", n, s.Rows, s.Columns)
		}
	}
	if _, err := WellPlate(7); err == nil {
		t.Fatalf("expected unknown preset to fail")
	}
	if _, err := NewSet(27, 1); err == nil {
		t.Fatalf("expected too many rows to fail")
	}
}
