// Package domain holds the error taxonomy shared by the graphmix core and its
// collaborators. Every typed error unwraps to one of the sentinels so callers
// can branch with errors.Is without knowing which package raised it.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionalityMismatch reports a quantity whose physical dimension does
	// not match what an operation expects.
	ErrDimensionalityMismatch = errors.New("dimensionality mismatch")
	// ErrInvalidDilutionInput reports a dilution equation with anything other
	// than exactly one unknown term.
	ErrInvalidDilutionInput = errors.New("invalid dilution input")
	// ErrUnknownReference reports a lookup by name that found nothing.
	ErrUnknownReference = errors.New("unknown reference")
	// ErrDuplicateEntity reports an insert whose identity already exists.
	ErrDuplicateEntity = errors.New("duplicate entity")
	// ErrExhaustedLocationSet reports a location request beyond capacity.
	ErrExhaustedLocationSet = errors.New("location set exhausted")
)

// DimensionalityError names the expected and actual dimensionality of the
// value that was rejected.
type DimensionalityError struct {
	Expected string
	For      string
	Got      string
}

func (e DimensionalityError) Error() string {
	return fmt.Sprintf("expected dimensionality %s for %s, got %s", e.Expected, e.For, e.Got)
}

// Unwrap exposes the sentinel for errors.Is.
func (e DimensionalityError) Unwrap() error { return ErrDimensionalityMismatch }

// NotFoundError indicates a missing entity in a registry.
type NotFoundError struct {
	Entity string
	Name   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Name)
}

// Unwrap exposes the sentinel for errors.Is.
func (e NotFoundError) Unwrap() error { return ErrUnknownReference }

// DuplicateError indicates an entity whose name is already registered.
type DuplicateError struct {
	Entity string
	Name   string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Name)
}

// Unwrap exposes the sentinel for errors.Is.
func (e DuplicateError) Unwrap() error { return ErrDuplicateEntity }

// ExhaustedError indicates that a location set has no free position left.
type ExhaustedError struct {
	Set      string
	Capacity int
}

func (e ExhaustedError) Error() string {
	name := e.Set
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("location set %s exhausted after %d positions", name, e.Capacity)
}

// Unwrap exposes the sentinel for errors.Is.
func (e ExhaustedError) Unwrap() error { return ErrExhaustedLocationSet }
