package mix

import (
	"encoding/json"
	"fmt"

	"graphmix/pkg/chem"
	"graphmix/pkg/units"

	"gopkg.in/yaml.v3"
)

// Document is the node-link form of a solution graph.
type Document struct {
	Directed   bool        `json:"directed" yaml:"directed"`
	Multigraph bool        `json:"multigraph" yaml:"multigraph"`
	Graph      GraphAttrs  `json:"graph" yaml:"graph"`
	Nodes      []NodeEntry `json:"nodes" yaml:"nodes"`
	Links      []LinkEntry `json:"links" yaml:"links"`
}

// GraphAttrs names the sink node.
type GraphAttrs struct {
	Name string `json:"name" yaml:"name"`
}

// NodeEntry is one graph node. Chemical nodes carry the chemical record.
type NodeEntry struct {
	ID       string         `json:"id" yaml:"id"`
	Kind     string         `json:"kind" yaml:"kind"`
	Chemical *chem.Chemical `json:"chemical,omitempty" yaml:"chemical,omitempty"`
}

// LinkEntry is one weighted edge; the concentration is stringified.
type LinkEntry struct {
	Source        string         `json:"source" yaml:"source"`
	Target        string         `json:"target" yaml:"target"`
	Concentration units.Quantity `json:"concentration" yaml:"concentration"`
}

// Document returns the node-link form of s.
func (s *Solution) Document() Document {
	doc := Document{Directed: true, Graph: GraphAttrs{Name: s.name}}
	for _, n := range s.g.nodes {
		entry := NodeEntry{ID: n, Kind: KindSolution.String()}
		if c, ok := s.components[n]; ok && c.Kind == KindChemical {
			ch := c.Chemical
			entry.Kind = KindChemical.String()
			entry.Chemical = &ch
		}
		doc.Nodes = append(doc.Nodes, entry)
	}
	for _, e := range s.g.edges {
		doc.Links = append(doc.Links, LinkEntry{Source: e.From, Target: e.To, Concentration: e.Concentration})
	}
	return doc
}

// FromDocument rebuilds a solution. Nested solutions are reconstructed from
// the part of the graph that feeds into them.
func FromDocument(doc Document) (*Solution, error) {
	if doc.Graph.Name == "" {
		return nil, fmt.Errorf("%w: document has no graph name", ErrInvalidComponent)
	}
	full := newGraph()
	kinds := make(map[string]NodeEntry, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if n.Kind == KindChemical.String() && n.Chemical == nil {
			return nil, fmt.Errorf("%w: chemical node %s has no chemical", ErrInvalidComponent, n.ID)
		}
		kinds[n.ID] = n
		full.addNode(n.ID)
	}
	for _, l := range doc.Links {
		if !full.hasNode(l.Source) || !full.hasNode(l.Target) {
			return nil, fmt.Errorf("%w: link %s -> %s references an unknown node", ErrInvalidComponent, l.Source, l.Target)
		}
		full.setEdge(l.Source, l.Target, l.Concentration)
	}
	if !full.hasNode(doc.Graph.Name) {
		return nil, fmt.Errorf("%w: sink %s is not a node", ErrInvalidComponent, doc.Graph.Name)
	}

	built := make(map[string]*Solution)
	var build func(name string) *Solution
	build = func(name string) *Solution {
		if s, ok := built[name]; ok {
			return s
		}
		nodes := full.ancestors(name)
		s := &Solution{name: name, g: full.subgraph(nodes), components: make(map[string]Component)}
		built[name] = s
		for _, n := range nodes {
			if n == name {
				continue
			}
			entry := kinds[n]
			if entry.Kind == KindChemical.String() {
				s.components[n] = ChemicalComponent(*entry.Chemical)
				continue
			}
			s.components[n] = SolutionComponent(build(n))
		}
		return s
	}
	return build(doc.Graph.Name), nil
}

// MarshalJSON encodes the node-link document.
func (s *Solution) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// UnmarshalJSON decodes a node-link document.
func (s *Solution) UnmarshalJSON(b []byte) error {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	out, err := FromDocument(doc)
	if err != nil {
		return err
	}
	*s = *out
	return nil
}

// MarshalYAML encodes the node-link document.
func (s *Solution) MarshalYAML() (any, error) {
	return s.Document(), nil
}

// UnmarshalYAML decodes a node-link document.
func (s *Solution) UnmarshalYAML(node *yaml.Node) error {
	var doc Document
	if err := node.Decode(&doc); err != nil {
		return err
	}
	out, err := FromDocument(doc)
	if err != nil {
		return err
	}
	*s = *out
	return nil
}
