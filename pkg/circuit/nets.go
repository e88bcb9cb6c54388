package circuit

import (
	"sort"
	"strconv"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Net is a set of pins that are electrically the same node.
type Net struct {
	// Name is the explicit label carried by one of the net's connections, or
	// a generated "N$<n>" name.
	Name        string
	Pins        []PinRef
	Connections []string
}

// pinGraph is the undirected graph whose nodes are connected pins and whose
// edges are connections. Its connected components are the nets.
type pinGraph struct {
	g     *simple.UndirectedGraph
	refs  map[int64]PinRef
	ids   map[PinRef]int64
	edges map[[2]int64]string
}

func buildPinGraph(s State) *pinGraph {
	pg := &pinGraph{
		g:     simple.NewUndirectedGraph(),
		refs:  make(map[int64]PinRef),
		ids:   make(map[PinRef]int64),
		edges: make(map[[2]int64]string),
	}
	node := func(ref PinRef) graph.Node {
		if id, ok := pg.ids[ref]; ok {
			return pg.g.Node(id)
		}
		n := pg.g.NewNode()
		pg.g.AddNode(n)
		pg.ids[ref] = n.ID()
		pg.refs[n.ID()] = ref
		return n
	}
	for _, conn := range s.Connections {
		if conn.From == conn.To {
			continue
		}
		a, b := node(conn.From), node(conn.To)
		pg.g.SetEdge(pg.g.NewEdge(a, b))
		key := [2]int64{a.ID(), b.ID()}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		pg.edges[key] = conn.ID
	}
	return pg
}

// Nets derives the nets of the design from the connection graph. Explicit
// labels win over generated names; nets are ordered by their first pin.
func (m *Model) Nets() []Net {
	s := m.State()
	pg := buildPinGraph(s)

	label := make(map[string]string, len(s.Connections))
	for _, conn := range s.Connections {
		label[conn.ID] = conn.NetID
	}

	var nets []Net
	for _, comp := range topo.ConnectedComponents(pg.g) {
		net := Net{}
		inNet := make(map[int64]bool, len(comp))
		for _, n := range comp {
			net.Pins = append(net.Pins, pg.refs[n.ID()])
			inNet[n.ID()] = true
		}
		for key, connID := range pg.edges {
			if inNet[key[0]] {
				net.Connections = append(net.Connections, connID)
			}
		}
		sort.Slice(net.Pins, func(i, j int) bool { return net.Pins[i].less(net.Pins[j]) })
		sort.Strings(net.Connections)
		for _, id := range net.Connections {
			if l := label[id]; l != "" && (net.Name == "" || l < net.Name) {
				net.Name = l
			}
		}
		nets = append(nets, net)
	}
	sort.Slice(nets, func(i, j int) bool { return nets[i].Pins[0].less(nets[j].Pins[0]) })

	n := 0
	for i := range nets {
		if nets[i].Name == "" {
			n++
			nets[i].Name = "N$" + strconv.Itoa(n)
		}
	}
	return nets
}

// DetectCycles reports whether the connections close a loop through the
// components, such as two parts wired in parallel. Every component is one
// node and every connection one edge, so a wire between two pins of the same
// part is a loop too. Loops are normal in real circuits and are only logged
// as a warning.
func (m *Model) DetectCycles() bool {
	s := m.State()
	g := simple.NewUndirectedGraph()
	ids := make(map[string]int64)
	node := func(componentID string) graph.Node {
		if id, ok := ids[componentID]; ok {
			return g.Node(id)
		}
		n := g.NewNode()
		g.AddNode(n)
		ids[componentID] = n.ID()
		return n
	}
	edges := 0
	for _, conn := range s.Connections {
		if conn.From == conn.To {
			continue
		}
		a, b := node(conn.From.ComponentID), node(conn.To.ComponentID)
		edges++
		if a.ID() != b.ID() {
			g.SetEdge(g.NewEdge(a, b))
		}
	}
	// A forest has exactly |V| - components edges; parallel and
	// same-component connections count individually.
	nodes := g.Nodes().Len()
	if nodes == 0 || edges <= nodes-len(topo.ConnectedComponents(g)) {
		return false
	}
	m.logger.Warn("connections form a loop",
		zap.Int("components", nodes),
		zap.Int("connections", edges))
	return true
}
