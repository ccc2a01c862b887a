package mix

import "graphmix/pkg/units"

// Edge is a weighted link from a component into the solution that uses it.
type Edge struct {
	From          string
	To            string
	Concentration units.Quantity
}

// graph is a small arena digraph keyed by node name. Nodes and edges keep
// insertion order so documents and traversals are reproducible.
type graph struct {
	nodes []string
	seen  map[string]struct{}
	edges []Edge
	index map[[2]string]int
}

func newGraph() *graph {
	return &graph{seen: make(map[string]struct{}), index: make(map[[2]string]int)}
}

func (g *graph) addNode(name string) {
	if _, ok := g.seen[name]; ok {
		return
	}
	g.seen[name] = struct{}{}
	g.nodes = append(g.nodes, name)
}

func (g *graph) hasNode(name string) bool {
	_, ok := g.seen[name]
	return ok
}

// setEdge adds from→to or replaces its weight.
func (g *graph) setEdge(from, to string, w units.Quantity) {
	g.addNode(from)
	g.addNode(to)
	key := [2]string{from, to}
	if i, ok := g.index[key]; ok {
		g.edges[i].Concentration = w
		return
	}
	g.index[key] = len(g.edges)
	g.edges = append(g.edges, Edge{From: from, To: to, Concentration: w})
}

func (g *graph) edge(from, to string) (Edge, bool) {
	i, ok := g.index[[2]string{from, to}]
	if !ok {
		return Edge{}, false
	}
	return g.edges[i], true
}

func (g *graph) inEdges(node string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.To == node {
			out = append(out, e)
		}
	}
	return out
}

// union merges o into g. Edge weights from o replace existing ones.
func (g *graph) union(o *graph) {
	for _, n := range o.nodes {
		g.addNode(n)
	}
	for _, e := range o.edges {
		g.setEdge(e.From, e.To, e.Concentration)
	}
}

// ancestors returns every node with a path into node, plus node itself, in
// insertion order.
func (g *graph) ancestors(node string) []string {
	keep := map[string]bool{node: true}
	stack := []string{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.inEdges(n) {
			if !keep[e.From] {
				keep[e.From] = true
				stack = append(stack, e.From)
			}
		}
	}
	out := make([]string, 0, len(keep))
	for _, n := range g.nodes {
		if keep[n] {
			out = append(out, n)
		}
	}
	return out
}

// subgraph returns the graph induced by nodes.
func (g *graph) subgraph(nodes []string) *graph {
	keep := make(map[string]bool, len(nodes))
	out := newGraph()
	for _, n := range nodes {
		keep[n] = true
		out.addNode(n)
	}
	for _, e := range g.edges {
		if keep[e.From] && keep[e.To] {
			out.setEdge(e.From, e.To, e.Concentration)
		}
	}
	return out
}

func (g *graph) clone() *graph {
	out := newGraph()
	out.union(g)
	return out
}
