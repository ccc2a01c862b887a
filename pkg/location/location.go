// Package location models well plate and tube rack positions and the
// stateful sets that hand them out in a deterministic order.
package location

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"graphmix/pkg/units"
)

var (
	// ErrInvalidLocation reports a location string that cannot be parsed.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrOutOfRange reports an index outside the rows and columns of a set.
	ErrOutOfRange = errors.New("location out of range")
	// ErrNoSupplier reports Next on a location that was not handed out by a set.
	ErrNoSupplier = errors.New("location has no supplying set")
)

// Location is a coordinate on a plate or rack. Rows are letters starting at
// "A", columns are 1-based.
type Location struct {
	Grid       string          `json:"grid,omitempty" yaml:"grid,omitempty"`
	Row        string          `json:"row" yaml:"row"`
	Column     int             `json:"column" yaml:"column"`
	MaxVolume  *units.Quantity `json:"max_volume,omitempty" yaml:"max_volume,omitempty"`
	DeadVolume *units.Quantity `json:"dead_volume,omitempty" yaml:"dead_volume,omitempty"`

	set *Set
}

// Supplier hands out unused locations.
type Supplier interface {
	Next() (Location, error)
}

// Parse reads "A1" or "grid:A1".
func Parse(text string) (Location, error) {
	var loc Location
	coord := strings.TrimSpace(text)
	if grid, rest, ok := strings.Cut(coord, ":"); ok {
		loc.Grid = grid
		coord = rest
	}
	if len(coord) < 2 || coord[0] < 'A' || coord[0] > 'Z' {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, text)
	}
	col, err := strconv.Atoi(coord[1:])
	if err != nil || col < 1 {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, text)
	}
	loc.Row = coord[:1]
	loc.Column = col
	return loc, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(text string) Location {
	loc, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return loc
}

func at(row, col int) Location {
	return Location{Row: string(rune('A' + row)), Column: col + 1}
}

// String returns the coordinate without the grid, e.g. "B7".
func (l Location) String() string { return l.Row + strconv.Itoa(l.Column) }

// Qualified returns "grid:B7", or the bare coordinate when there is no grid.
func (l Location) Qualified() string {
	if l.Grid == "" {
		return l.String()
	}
	return l.Grid + ":" + l.String()
}

// Equal compares coordinates only.
func (l Location) Equal(o Location) bool { return l.String() == o.String() }

// XY returns the zero-based row and column indexes.
func (l Location) XY() (int, int) {
	if l.Row == "" {
		return -1, l.Column - 1
	}
	return int(l.Row[0] - 'A'), l.Column - 1
}

// WithGrid returns a copy on grid.
func (l Location) WithGrid(grid string) Location {
	l.Grid = grid
	return l
}

// Next asks the set that produced l for the following free location.
func (l Location) Next() (Location, error) {
	if l.set == nil {
		return Location{}, ErrNoSupplier
	}
	return l.set.Next()
}
