package protocol

import (
	"container/heap"
	"errors"
	"fmt"

	"graphmix/pkg/location"
	"graphmix/pkg/units"
)

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with ties broken by insertion order.
func (p *Protocol) topoOrder() ([]string, error) {
	pos := make(map[string]int, len(p.order))
	for i, name := range p.order {
		pos[name] = i
	}
	indeg := make([]int, len(p.order))
	outgoing := make([][]int, len(p.order))
	for _, e := range p.edges {
		u, v := pos[e.From], pos[e.To]
		indeg[v]++
		outgoing[u] = append(outgoing[u], v)
	}

	ready := &intMinHeap{}
	heap.Init(ready)
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}
	out := make([]string, 0, len(p.order))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, p.order[n])
		for _, m := range outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	if len(out) != len(p.order) {
		return nil, ErrCycle
	}
	return out, nil
}

// Solve computes transfer volumes from outputs back to inputs. Each node's
// outgoing volume is the sum drawn from it downstream; an edge u→v moves
// weight·(final(v) + outgoing(v)); a node's initial volume is its final
// volume plus its outgoing volume.
func (p *Protocol) Solve() (*Protocol, error) {
	order, err := p.topoOrder()
	if err != nil {
		return p, err
	}
	for _, name := range p.order {
		p.outgoing[name] = p.zeroVolume()
	}
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		n := p.nodes[name]
		total, err := n.FinalVolume.Add(p.outgoing[name])
		if err != nil {
			return p, fmt.Errorf("node %s: %w", name, err)
		}
		total = p.sys.Express(total)
		p.initial[name] = total
		for _, e := range p.inEdges(name) {
			vol := total.Scale(e.Weight)
			e.Volume = &vol
			sum, err := p.outgoing[e.From].Add(vol)
			if err != nil {
				return p, fmt.Errorf("node %s: %w", e.From, err)
			}
			p.outgoing[e.From] = sum
		}
	}
	p.solved = true
	return p, nil
}

// Solved reports whether volumes reflect the current graph.
func (p *Protocol) Solved() bool { return p.solved }

// InitialVolume is the volume that must be present at a node before any
// transfer out of it: its final volume plus everything drawn downstream.
func (p *Protocol) InitialVolume(name string) (units.Quantity, error) {
	return p.volumeOf(p.initial, name)
}

// OutgoingVolume is the total volume drawn from a node.
func (p *Protocol) OutgoingVolume(name string) (units.Quantity, error) {
	return p.volumeOf(p.outgoing, name)
}

func (p *Protocol) volumeOf(m map[string]units.Quantity, name string) (units.Quantity, error) {
	if _, err := p.Node(name); err != nil {
		return units.Quantity{}, err
	}
	if !p.solved {
		return units.Quantity{}, ErrNotSolved
	}
	return m[name], nil
}

// Transfer is one liquid movement an executor has to perform.
type Transfer struct {
	From   string
	To     string
	Source location.Location
	Dest   location.Location
	Volume units.Quantity
}

// Transfers lists every non-empty transfer, grouped by destination in
// topological order.
func (p *Protocol) Transfers() ([]Transfer, error) {
	if !p.solved {
		return nil, ErrNotSolved
	}
	order, err := p.topoOrder()
	if err != nil {
		return nil, err
	}
	var out []Transfer
	for _, name := range order {
		for _, e := range p.inEdges(name) {
			if e.Volume == nil || e.Volume.IsZero() {
				continue
			}
			out = append(out, Transfer{
				From:   e.From,
				To:     e.To,
				Source: p.nodes[e.From].Location,
				Dest:   p.nodes[e.To].Location,
				Volume: *e.Volume,
			})
		}
	}
	return out, nil
}

// ErrVolumeLimit is wrapped by every VolumeLimitError.
var ErrVolumeLimit = errors.New("protocol: volume limit exceeded")

// VolumeLimitError reports a node whose volumes do not fit its location.
type VolumeLimitError struct {
	Node   string
	Limit  string
	Volume units.Quantity
	Bound  units.Quantity
}

func (e VolumeLimitError) Error() string {
	return fmt.Sprintf("node %s: %s outside %s of %s", e.Node, e.Volume, e.Limit, e.Bound)
}

func (e VolumeLimitError) Unwrap() error { return ErrVolumeLimit }

// CheckVolumes compares solved volumes with the max and dead volumes of
// each node's location. Solve itself never enforces them.
func (p *Protocol) CheckVolumes() error {
	if !p.solved {
		return ErrNotSolved
	}
	var errs []error
	for _, name := range p.order {
		n := p.nodes[name]
		if limit := n.Location.MaxVolume; limit != nil {
			if c, err := p.initial[name].Cmp(*limit); err != nil {
				errs = append(errs, err)
			} else if c > 0 {
				errs = append(errs, VolumeLimitError{Node: name, Limit: "max volume", Volume: p.initial[name], Bound: *limit})
			}
		}
		if dead := n.Location.DeadVolume; dead != nil && !p.outgoing[name].IsZero() {
			if c, err := n.FinalVolume.Cmp(*dead); err != nil {
				errs = append(errs, err)
			} else if c < 0 {
				errs = append(errs, VolumeLimitError{Node: name, Limit: "dead volume", Volume: n.FinalVolume, Bound: *dead})
			}
		}
	}
	return errors.Join(errs...)
}
