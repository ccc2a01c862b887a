package location

import (
	"fmt"
	"sort"

	"graphmix/pkg/domain"
	"graphmix/pkg/units"
)

// Set is an ordered, stateful supply of locations. Positions are handed out
// row by row and skip anything already occupied.
type Set struct {
	Name       string
	Rows       int
	Columns    int
	MaxVolume  *units.Quantity
	DeadVolume *units.Quantity

	occupied map[string]Location
	cursor   int
}

// NewSet returns an empty set of rows×columns positions. Rows are limited to
// the letters A-Z.
func NewSet(rows, columns int) (*Set, error) {
	if rows < 1 || rows > 26 || columns < 1 {
		return nil, fmt.Errorf("location: invalid set dimensions %dx%d", rows, columns)
	}
	return &Set{Rows: rows, Columns: columns, occupied: make(map[string]Location)}, nil
}

var plates = map[int][2]int{
	6:   {2, 3},
	12:  {3, 4},
	24:  {4, 6},
	48:  {6, 8},
	96:  {8, 12},
	384: {16, 24},
}

// WellPlate returns a set shaped like a standard plate with n wells.
func WellPlate(n int) (*Set, error) {
	dims, ok := plates[n]
	if !ok {
		return nil, fmt.Errorf("location: no %d-well plate preset", n)
	}
	return NewSet(dims[0], dims[1])
}

// WithName names the set; locations it produces carry the name as grid.
func (s *Set) WithName(name string) *Set {
	s.Name = name
	return s
}

// WithMaxVolume sets the working volume of every position.
func (s *Set) WithMaxVolume(q units.Quantity) *Set {
	s.MaxVolume = &q
	return s
}

// WithDeadVolume sets the volume that cannot be drawn from a position.
func (s *Set) WithDeadVolume(q units.Quantity) *Set {
	s.DeadVolume = &q
	return s
}

// WithOccupied marks positions given as "A1" or "grid:A1" as taken.
func (s *Set) WithOccupied(locs ...string) (*Set, error) {
	for _, raw := range locs {
		loc, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		if err := s.Occupy(loc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Occupy marks loc as taken.
func (s *Set) Occupy(loc Location) error {
	if err := s.check(loc); err != nil {
		return err
	}
	if s.occupied == nil {
		s.occupied = make(map[string]Location)
	}
	s.occupied[loc.String()] = s.place(loc)
	return nil
}

// Available reports whether loc is inside the set and not yet taken.
func (s *Set) Available(loc Location) bool {
	if s.check(loc) != nil {
		return false
	}
	_, taken := s.occupied[loc.String()]
	return !taken
}

// Next returns the first free position in row-major order and marks it
// occupied. It fails with domain.ExhaustedError once every position is taken.
func (s *Set) Next() (Location, error) {
	total := s.Capacity()
	for ; s.cursor < total; s.cursor++ {
		loc := at(s.cursor/s.Columns, s.cursor%s.Columns)
		if _, taken := s.occupied[loc.String()]; taken {
			continue
		}
		placed := s.place(loc)
		if s.occupied == nil {
			s.occupied = make(map[string]Location)
		}
		s.occupied[loc.String()] = placed
		s.cursor++
		return placed, nil
	}
	return Location{}, domain.ExhaustedError{Set: s.Name, Capacity: total}
}

// Reset forgets every occupied position.
func (s *Set) Reset() {
	s.occupied = make(map[string]Location)
	s.cursor = 0
}

// Capacity is the number of positions in the set.
func (s *Set) Capacity() int { return s.Rows * s.Columns }

// Len is the number of positions still free.
func (s *Set) Len() int { return s.Capacity() - len(s.occupied) }

// Occupied lists taken positions in row-major order.
func (s *Set) Occupied() []Location {
	out := make([]Location, 0, len(s.occupied))
	for _, loc := range s.occupied {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, ci := out[i].XY()
		rj, cj := out[j].XY()
		if ri != rj {
			return ri < rj
		}
		return ci < cj
	})
	return out
}

// At returns the position with row-major index i.
func (s *Set) At(i int) (Location, error) {
	if i < 0 || i >= s.Capacity() {
		return Location{}, fmt.Errorf("%w: index %d in %dx%d", ErrOutOfRange, i, s.Rows, s.Columns)
	}
	return s.place(at(i/s.Columns, i%s.Columns)), nil
}

// AtCoord returns the position at zero-based row and column.
func (s *Set) AtCoord(row, col int) (Location, error) {
	if row < 0 || col < 0 || row >= s.Rows || col >= s.Columns {
		return Location{}, fmt.Errorf("%w: (%d, %d) in %dx%d", ErrOutOfRange, row, col, s.Rows, s.Columns)
	}
	return s.place(at(row, col)), nil
}

// AtName returns the position named like "C4".
func (s *Set) AtName(name string) (Location, error) {
	loc, err := Parse(name)
	if err != nil {
		return Location{}, err
	}
	if err := s.check(loc); err != nil {
		return Location{}, err
	}
	return s.place(loc), nil
}

func (s *Set) check(loc Location) error {
	r, c := loc.XY()
	if r < 0 || c < 0 || r >= s.Rows || c >= s.Columns {
		return fmt.Errorf("%w: %s in %dx%d", ErrOutOfRange, loc, s.Rows, s.Columns)
	}
	return nil
}

func (s *Set) place(loc Location) Location {
	loc.Grid = s.Name
	loc.MaxVolume = s.MaxVolume
	loc.DeadVolume = s.DeadVolume
	loc.set = s
	return loc
}
