package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		message  string
	}{
		{DimensionalityError{Expected: "dimensionless", For: "saline", Got: "[mass] / [length] ** 3"}, ErrDimensionalityMismatch, "expected dimensionality dimensionless for saline, got [mass] / [length] ** 3"},
		{NotFoundError{Entity: "chemical", Name: "NaCl"}, ErrUnknownReference, "chemical NaCl not found"},
		{DuplicateError{Entity: "node", Name: "water"}, ErrDuplicateEntity, "node water already exists"},
		{ExhaustedError{Set: "plate", Capacity: 6}, ErrExhaustedLocationSet, "location set plate exhausted after 6 positions"},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("wrapped: %w", tc.err)
		if !errors.Is(wrapped, tc.sentinel) {
			t.Fatalf("expected %T to unwrap to %v", tc.err, tc.sentinel)
		}
		if tc.err.Error() != tc.message {
			t.Fatalf("unexpected message %q", tc.err.Error())
		}
	}
}

func TestErrorsAsRecoversFields(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFoundError{Entity: "chemical", Name: "Tris"})
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError")
	}
	if nf.Name != "Tris" || nf.Entity != "chemical" {
		t.Fatalf("unexpected fields %+v", nf)
	}
	if (ExhaustedError{}).Error() != "location set (unnamed) exhausted after 0 positions" {
		t.Fatalf("unexpected unnamed message")
	}
}
