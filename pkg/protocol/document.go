package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"graphmix/pkg/location"
	"graphmix/pkg/mix"
	"graphmix/pkg/units"

	"gopkg.in/yaml.v3"
)

// Document is the serializable form of a protocol.
type Document struct {
	Grids  []GridEntry `json:"grids" yaml:"grids"`
	Nodes  []NodeEntry `json:"nodes" yaml:"nodes"`
	Links  []LinkEntry `json:"links" yaml:"links"`
	Solved bool        `json:"solved" yaml:"solved"`
}

// GridEntry records a location set and its occupied positions.
type GridEntry struct {
	Name       string          `json:"name" yaml:"name"`
	Rows       int             `json:"rows" yaml:"rows"`
	Columns    int             `json:"columns" yaml:"columns"`
	MaxVolume  *units.Quantity `json:"max_volume,omitempty" yaml:"max_volume,omitempty"`
	DeadVolume *units.Quantity `json:"dead_volume,omitempty" yaml:"dead_volume,omitempty"`
	Occupied   []string        `json:"occupied,omitempty" yaml:"occupied,omitempty"`
}

// NodeEntry records a node; volumes are present once solved.
type NodeEntry struct {
	ID             string          `json:"id" yaml:"id"`
	Location       string          `json:"location" yaml:"location"`
	FinalVolume    units.Quantity  `json:"final_volume" yaml:"final_volume"`
	InitialVolume  *units.Quantity `json:"initial_volume,omitempty" yaml:"initial_volume,omitempty"`
	OutgoingVolume *units.Quantity `json:"outgoing_volume,omitempty" yaml:"outgoing_volume,omitempty"`
	Solution       mix.Document    `json:"solution" yaml:"solution"`
}

// LinkEntry records an edge.
type LinkEntry struct {
	Source string          `json:"source" yaml:"source"`
	Target string          `json:"target" yaml:"target"`
	Weight float64         `json:"weight" yaml:"weight"`
	Volume *units.Quantity `json:"volume,omitempty" yaml:"volume,omitempty"`
}

// Document returns the serializable form of p.
func (p *Protocol) Document() Document {
	doc := Document{Solved: p.solved}
	for _, name := range p.gridOrder {
		set := p.grids[name]
		g := GridEntry{Name: name, Rows: set.Rows, Columns: set.Columns, MaxVolume: set.MaxVolume, DeadVolume: set.DeadVolume}
		for _, loc := range set.Occupied() {
			g.Occupied = append(g.Occupied, loc.String())
		}
		doc.Grids = append(doc.Grids, g)
	}
	for _, n := range p.Nodes() {
		entry := NodeEntry{
			ID:          n.Name(),
			Location:    n.Location.Qualified(),
			FinalVolume: n.FinalVolume,
			Solution:    n.Solution.Document(),
		}
		if p.solved {
			initial, outgoing := p.initial[n.Name()], p.outgoing[n.Name()]
			entry.InitialVolume, entry.OutgoingVolume = &initial, &outgoing
		}
		doc.Nodes = append(doc.Nodes, entry)
	}
	for _, e := range p.edges {
		doc.Links = append(doc.Links, LinkEntry{Source: e.From, Target: e.To, Weight: e.Weight, Volume: e.Volume})
	}
	return doc
}

// FromDocument rebuilds a protocol.
func FromDocument(doc Document, opts ...Option) (*Protocol, error) {
	p := New(opts...)
	for _, g := range doc.Grids {
		set, err := location.NewSet(g.Rows, g.Columns)
		if err != nil {
			return nil, fmt.Errorf("grid %s: %w", g.Name, err)
		}
		if g.MaxVolume != nil {
			set.WithMaxVolume(*g.MaxVolume)
		}
		if g.DeadVolume != nil {
			set.WithDeadVolume(*g.DeadVolume)
		}
		if _, err := set.WithOccupied(g.Occupied...); err != nil {
			return nil, fmt.Errorf("grid %s: %w", g.Name, err)
		}
		p.WithGrid(g.Name, set)
	}
	for _, entry := range doc.Nodes {
		s, err := mix.FromDocument(entry.Solution)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", entry.ID, err)
		}
		if s.Name() != entry.ID {
			return nil, fmt.Errorf("node %s: solution is named %s", entry.ID, s.Name())
		}
		loc, err := p.resolve(entry.Location)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", entry.ID, err)
		}
		if _, dup := p.nodes[entry.ID]; dup {
			return nil, fmt.Errorf("node %s: duplicate", entry.ID)
		}
		if _, err := volume.Check(entry.FinalVolume); err != nil {
			return nil, fmt.Errorf("node %s: %w", entry.ID, err)
		}
		p.addNode(&Node{Solution: s, Location: loc, FinalVolume: entry.FinalVolume})
	}
	for _, l := range doc.Links {
		if _, err := p.Node(l.Source); err != nil {
			return nil, err
		}
		if _, err := p.Node(l.Target); err != nil {
			return nil, err
		}
		if l.Weight < 0 || l.Weight > 1 {
			return nil, fmt.Errorf("%w: %g", ErrInvalidWeight, l.Weight)
		}
		if err := p.addEdge(l.Source, l.Target, l.Weight); err != nil {
			return nil, err
		}
		if l.Volume != nil {
			v := *l.Volume
			p.edges[p.index[[2]string{l.Source, l.Target}]].Volume = &v
		}
	}
	if doc.Solved {
		for _, entry := range doc.Nodes {
			if entry.InitialVolume == nil || entry.OutgoingVolume == nil {
				return nil, fmt.Errorf("node %s: solved document without volumes", entry.ID)
			}
			p.initial[entry.ID] = *entry.InitialVolume
			p.outgoing[entry.ID] = *entry.OutgoingVolume
		}
		p.solved = true
	}
	return p, nil
}

// resolve maps a qualified location string back onto a registered grid.
func (p *Protocol) resolve(text string) (location.Location, error) {
	loc, err := location.Parse(text)
	if err != nil {
		return location.Location{}, err
	}
	set, ok := p.grids[loc.Grid]
	if !ok {
		return loc, nil
	}
	return set.AtName(loc.String())
}

// MarshalJSON encodes the protocol document.
func (p *Protocol) MarshalJSON() ([]byte, error) { return json.Marshal(p.Document()) }

// UnmarshalJSON decodes a protocol document.
func (p *Protocol) UnmarshalJSON(b []byte) error {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	out, err := FromDocument(doc)
	if err != nil {
		return err
	}
	*p = *out
	return nil
}

// MarshalYAML encodes the protocol document.
func (p *Protocol) MarshalYAML() (any, error) { return p.Document(), nil }

// UnmarshalYAML decodes a protocol document.
func (p *Protocol) UnmarshalYAML(node *yaml.Node) error {
	var doc Document
	if err := node.Decode(&doc); err != nil {
		return err
	}
	out, err := FromDocument(doc)
	if err != nil {
		return err
	}
	*p = *out
	return nil
}

// Format selects a document encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// Encode writes the protocol document in f.
func (p *Protocol) Encode(w io.Writer, f Format) error {
	switch f {
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p.Document())
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p.Document()); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("protocol: unknown format %q", f)
	}
}

// Decode reads a protocol document in f.
func Decode(r io.Reader, f Format) (*Protocol, error) {
	var doc Document
	switch f {
	case JSON, "":
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, err
		}
	case YAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("protocol: unknown format %q", f)
	}
	return FromDocument(doc)
}
