package liquidhandling

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"graphmix/pkg/location"
	"graphmix/pkg/units"
)

// Call is one driver invocation seen by the Simulator.
type Call struct {
	Op     string
	At     string
	Volume string
}

// Simulator is an in-memory Driver. It records calls and the net volume
// moved in or out of every location; wells start empty so sources go
// negative.
type Simulator struct {
	mu      sync.Mutex
	calls   []Call
	volumes map[string]units.Quantity
	tip     bool
}

// NewSimulator returns an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{volumes: map[string]units.Quantity{}}
}

func (s *Simulator) record(c Call) {
	s.calls = append(s.calls, c)
}

func (s *Simulator) Setup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: "setup"})
	return ctx.Err()
}

func (s *Simulator) SetupTransfer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: "setup_transfer"})
	return ctx.Err()
}

func (s *Simulator) PickUpTip(ctx context.Context, at location.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tip {
		return fmt.Errorf("simulator: tip already mounted")
	}
	s.tip = true
	s.record(Call{Op: "pick_up_tip", At: at.Qualified()})
	return ctx.Err()
}

func (s *Simulator) DropTip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tip {
		return fmt.Errorf("simulator: no tip to drop")
	}
	s.tip = false
	s.record(Call{Op: "drop_tip"})
	return ctx.Err()
}

func (s *Simulator) move(op string, vol units.Quantity, at location.Location, sign float64) error {
	if !s.tip {
		return fmt.Errorf("simulator: %s without tip at %s", op, at.Qualified())
	}
	key := at.Qualified()
	cur, ok := s.volumes[key]
	delta := vol.Scale(sign)
	if ok {
		sum, err := cur.Add(delta)
		if err != nil {
			return err
		}
		delta = sum
	}
	s.volumes[key] = delta
	s.record(Call{Op: op, At: key, Volume: vol.String()})
	return nil
}

func (s *Simulator) Aspirate(ctx context.Context, vol units.Quantity, at location.Location, _ Motion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.move("aspirate", vol, at, -1); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Simulator) Dispense(ctx context.Context, vol units.Quantity, at location.Location, _ Motion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.move("dispense", vol, at, 1); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Simulator) FinishTransfer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: "finish_transfer"})
	return ctx.Err()
}

// Calls returns a copy of the recorded calls.
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns just the operation names, in call order.
func (s *Simulator) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Op
	}
	return out
}

// Volume is the net volume at a location; ok is false if nothing moved there.
func (s *Simulator) Volume(at location.Location) (units.Quantity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.volumes[at.Qualified()]
	return q, ok
}

// Locations lists every touched location, sorted.
func (s *Simulator) Locations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.volumes))
	for k := range s.volumes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
